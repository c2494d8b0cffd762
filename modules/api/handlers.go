package api

import (
	"fmt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/example/realtime-gateway-demo/modules/broadcast"
	"github.com/example/realtime-gateway-demo/modules/chat"
	"github.com/example/realtime-gateway-demo/modules/directory"
)

const defaultHistoryLimit = 50

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// Namespace sockets
	app.Get("/ws/:namespace", m.upgradeMiddleware, websocket.New(m.handleWebSocket))

	// REST API v1
	api := app.Group("/api/v1")

	api.Post("/chat/message", m.postChatMessage)
	api.Get("/rooms/:room/history", m.getHistory)
	api.Post("/secure/message", m.postSecureMessage)
	api.Post("/stomp/publish", m.publish)
	api.Post("/game/state", m.postGameState)

	api.Post("/service/register", m.registerService)
	api.Post("/service/:name/heartbeat", m.heartbeat)
	api.Get("/services", m.listServices)

	api.Get("/connections", m.connections)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.registry.Total(),
		},
	})
}

func invalidBody(err error) error {
	return fmt.Errorf("%w: %v", broadcast.ErrInvalidPayload, err)
}

// postChatMessage handles POST /api/v1/chat/message.
func (m *APIModule) postChatMessage(c *fiber.Ctx) error {
	var req ChatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return m.respondError(c, invalidBody(err))
	}

	msg, err := m.chatAdapter.SendMessage(c.UserContext(), chat.SendMessageRequest{
		Room:     req.Room,
		Username: req.Username,
		Message:  req.Message,
	})
	if err != nil {
		return m.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ChatMessageResponse{
		Success: true,
		Message: msg,
	})
}

// getHistory handles GET /api/v1/rooms/:room/history.
func (m *APIModule) getHistory(c *fiber.Ctx) error {
	room := c.Params("room")
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > chat.HistoryCapacity {
		limit = chat.HistoryCapacity
	}

	messages, err := m.chatAdapter.GetHistory(c.UserContext(), room, limit)
	if err != nil {
		return m.respondError(c, err)
	}

	return c.JSON(HistoryResponse{
		Room:     room,
		Messages: messages,
		Total:    len(messages),
	})
}

// postSecureMessage handles POST /api/v1/secure/message.
func (m *APIModule) postSecureMessage(c *fiber.Ctx) error {
	var req SecureMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return m.respondError(c, invalidBody(err))
	}

	resp, err := m.secureAdapter.Broadcast(c.UserContext(), req.Message)
	if err != nil {
		return m.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// publish handles POST /api/v1/stomp/publish.
func (m *APIModule) publish(c *fiber.Ctx) error {
	var req PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return m.respondError(c, invalidBody(err))
	}

	resp, err := m.pubsubAdapter.Publish(c.UserContext(), req.Topic, req.Message)
	if err != nil {
		return m.respondError(c, err)
	}
	return c.JSON(resp)
}

// postGameState handles POST /api/v1/game/state.
func (m *APIModule) postGameState(c *fiber.Ctx) error {
	var req GameStateRequest
	if err := c.BodyParser(&req); err != nil {
		return m.respondError(c, invalidBody(err))
	}

	resp, err := m.gameAdapter.Relay(c.UserContext(), req.State)
	if err != nil {
		return m.respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// registerService handles POST /api/v1/service/register.
func (m *APIModule) registerService(c *fiber.Ctx) error {
	var req RegisterServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return m.respondError(c, invalidBody(err))
	}

	rec, err := m.directoryAdapter.Register(c.UserContext(), directory.RegisterRequest{
		Name:     req.Name,
		Type:     req.Type,
		Metadata: req.Metadata,
	})
	if err != nil {
		return m.respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ServiceResponse{
		Success: true,
		Service: rec,
	})
}

// heartbeat handles POST /api/v1/service/:name/heartbeat.
func (m *APIModule) heartbeat(c *fiber.Ctx) error {
	resp, err := m.directoryAdapter.Heartbeat(c.UserContext(), c.Params("name"))
	if err != nil {
		return m.respondError(c, err)
	}
	return c.JSON(resp)
}

// listServices handles GET /api/v1/services.
func (m *APIModule) listServices(c *fiber.Ctx) error {
	services, err := m.directoryAdapter.Discover(c.UserContext())
	if err != nil {
		return m.respondError(c, err)
	}
	return c.JSON(ServiceListResponse{
		Services: services,
		Total:    len(services),
	})
}

// connections handles GET /api/v1/connections.
func (m *APIModule) connections(c *fiber.Ctx) error {
	return c.JSON(ConnectionsResponse{
		Namespaces: m.registry.Counts(),
		Total:      m.registry.Total(),
	})
}
