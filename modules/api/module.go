package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/realtime-gateway-demo/config"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
	"github.com/example/realtime-gateway-demo/modules/chat"
	"github.com/example/realtime-gateway-demo/modules/directory"
	"github.com/example/realtime-gateway-demo/modules/lowlatency"
	"github.com/example/realtime-gateway-demo/modules/pubsub"
	"github.com/example/realtime-gateway-demo/modules/securechat"
)

// APIModule serves the namespace sockets and the HTTP facade.
type APIModule struct {
	cfg      config.Config
	app      *fiber.App
	registry *broadcast.Registry
	handlers map[broadcast.Namespace]broadcast.Handler

	chatAdapter      chat.ChatPort
	secureAdapter    securechat.SecureChatPort
	pubsubAdapter    pubsub.PubSubPort
	gameAdapter      lowlatency.GameStatePort
	directoryAdapter directory.DirectoryPort

	logger types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule serving the hubs of registry.
func NewModule(cfg config.Config, registry *broadcast.Registry, logger types.Logger) *APIModule {
	return &APIModule{
		cfg:      cfg,
		registry: registry,
		handlers: make(map[broadcast.Namespace]broadcast.Handler),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"chat", "securechat", "pubsub", "lowlatency", "directory"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "chat":
		m.chatAdapter = chat.NewChatAdapter(container)
	case "securechat":
		m.secureAdapter = securechat.NewSecureChatAdapter(container)
	case "pubsub":
		m.pubsubAdapter = pubsub.NewPubSubAdapter(container)
	case "lowlatency":
		m.gameAdapter = lowlatency.NewGameStateAdapter(container)
	case "directory":
		m.directoryAdapter = directory.NewDirectoryAdapter(container)
	}
}

// Mount serves the socket endpoint of h's namespace
// (called from main.go; handlers are not exposed via ServiceContainer).
func (m *APIModule) Mount(h broadcast.Handler) {
	m.handlers[h.Namespace()] = h
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if err := m.checkDependencies(); err != nil {
		return err
	}
	if m.registry == nil {
		return fmt.Errorf("broadcast registry dependency not set")
	}

	m.app = m.newApp()

	// Start server in goroutine with startup error detection
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.cfg.Port, "namespaces", len(m.handlers))
	return nil
}

func (m *APIModule) checkDependencies() error {
	switch {
	case m.chatAdapter == nil:
		return fmt.Errorf("chat adapter dependency not set")
	case m.secureAdapter == nil:
		return fmt.Errorf("securechat adapter dependency not set")
	case m.pubsubAdapter == nil:
		return fmt.Errorf("pubsub adapter dependency not set")
	case m.gameAdapter == nil:
		return fmt.Errorf("lowlatency adapter dependency not set")
	case m.directoryAdapter == nil:
		return fmt.Errorf("directory adapter dependency not set")
	}
	return nil
}

// newApp builds the Fiber application with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Realtime Gateway",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Get(fiber.HeaderUpgrade) == "websocket"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes(app)
	return app
}

// Stop gracefully shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.cfg.Port,
			"connected_clients": m.registry.Total(),
		},
	}
}

// errorHandler handles Fiber errors.
func (m *APIModule) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		m.logger.Error("HTTP error", "code", code, "message", message, "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// statusFor maps a failure kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, broadcast.ErrInvalidPayload):
		return fiber.StatusBadRequest
	case errors.Is(err, broadcast.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, broadcast.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, broadcast.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, broadcast.ErrRateLimited):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse.
func (m *APIModule) respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		m.logger.Error("Request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   broadcast.Failure(err).Code,
		Message: err.Error(),
	})
}
