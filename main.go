package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/middleware/accesslog"
	"github.com/go-monolith/mono/middleware/requestid"
	kvjetstream "github.com/go-monolith/mono/plugin/kv-jetstream"

	"github.com/example/realtime-gateway-demo/config"
	"github.com/example/realtime-gateway-demo/modules/api"
	"github.com/example/realtime-gateway-demo/modules/broadcast"
	"github.com/example/realtime-gateway-demo/modules/chat"
	"github.com/example/realtime-gateway-demo/modules/directory"
	"github.com/example/realtime-gateway-demo/modules/iot"
	"github.com/example/realtime-gateway-demo/modules/lowlatency"
	"github.com/example/realtime-gateway-demo/modules/pubsub"
	"github.com/example/realtime-gateway-demo/modules/securechat"
	"github.com/example/realtime-gateway-demo/modules/transfer"
)

func main() {
	log.Println("=== Realtime Gateway - Fiber + Namespaced WebSocket Hubs ===")

	cfg := config.FromEnv()

	// Create mono application with embedded NATS JetStream
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(cfg.JetStreamDir),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Middleware must be registered before regular modules
	requestIDMiddleware, err := requestid.New(requestid.WithHeaderName("X-Request-ID"))
	if err != nil {
		log.Fatalf("Failed to create requestid middleware: %v", err)
	}
	accessLogMiddleware, err := accesslog.New(
		accesslog.WithOutput(os.Stdout),
		accesslog.WithFormat(accesslog.FormatJSON),
	)
	if err != nil {
		log.Fatalf("Failed to create accesslog middleware: %v", err)
	}
	mustRegister(app, requestIDMiddleware)
	mustRegister(app, accessLogMiddleware)

	if cfg.DirectoryBackend == directory.BackendKV {
		kvPlugin, err := kvjetstream.New(kvjetstream.Config{
			Buckets: []kvjetstream.BucketConfig{
				{
					Name:        directory.BucketName,
					Description: "Registered services of the distributed namespace",
					Storage:     kvjetstream.MemoryStorage,
				},
			},
		})
		if err != nil {
			log.Fatalf("Failed to create kv plugin: %v", err)
		}
		if err := app.RegisterPlugin(kvPlugin, "kv"); err != nil {
			log.Fatalf("Failed to register kv plugin: %v", err)
		}
	}

	// Create modules. Every namespace module gets its hub from the
	// broadcast registry; hubs are not exposed via ServiceContainer.
	broadcastModule := broadcast.NewModule(cfg.WriteTimeout)
	registry := broadcastModule.Registry()

	chatModule := chat.NewModule(registry.Hub(broadcast.NamespaceChat), logger)
	secureChatModule := securechat.NewModule(registry.Hub(broadcast.NamespaceSecureChat), cfg.JWTSecret, logger)
	pubsubModule := pubsub.NewModule(registry.Hub(broadcast.NamespaceStomp), logger)
	lowLatencyModule := lowlatency.NewModule(registry.Hub(broadcast.NamespaceLowLatency), logger)
	iotModule := iot.NewModule(registry.Hub(broadcast.NamespaceIoT), logger)
	directoryModule := directory.NewModule(cfg.DirectoryBackend, cfg.DirectoryTTL, logger)
	transferModule, err := transfer.NewModule(registry.Hub(broadcast.NamespaceBinary), logger,
		transfer.WithChunkInterval(cfg.ChunkInterval),
		transfer.WithMaxConcurrent(cfg.MaxConcurrentTransfers),
	)
	if err != nil {
		log.Fatalf("Failed to create transfer module: %v", err)
	}

	apiModule := api.NewModule(cfg, registry, logger)
	apiModule.Mount(chatModule)
	apiModule.Mount(secureChatModule)
	apiModule.Mount(pubsubModule)
	apiModule.Mount(transferModule)
	apiModule.Mount(lowLatencyModule)
	apiModule.Mount(directoryModule)
	apiModule.Mount(iotModule)

	// Register modules with the framework.
	// Order: hubs first, then namespace modules, then the driving adapter
	// - broadcast: namespace hubs + event consumer for directory/transfer events
	// - namespace modules: request-reply services + socket handlers
	// - api: Fiber HTTP/WebSocket server, depends on the namespace services
	mustRegister(app, broadcastModule)
	mustRegister(app, chatModule)
	mustRegister(app, secureChatModule)
	mustRegister(app, pubsubModule)
	mustRegister(app, lowLatencyModule)
	mustRegister(app, iotModule)
	mustRegister(app, transferModule)
	mustRegister(app, directoryModule)
	mustRegister(app, apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

type registrar interface {
	Register(module mono.Module) error
}

func mustRegister(app registrar, module mono.Module) {
	if err := app.Register(module); err != nil {
		log.Fatalf("Failed to register %s: %v", module.Name(), err)
	}
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Module bus: NATS (embedded, request-reply + events)")
	log.Printf("  - Service directory backend: %s (ttl: %s)", cfg.DirectoryBackend, cfg.DirectoryTTL)
	log.Printf("  - JetStream storage: %s", cfg.JetStreamDir)
	log.Printf("  - Chunk pacing: %s, max concurrent transfers: %d", cfg.ChunkInterval, cfg.MaxConcurrentTransfers)
	log.Println("")
	log.Printf("WebSocket Endpoints (ws://localhost:%s/ws/<namespace>):", cfg.Port)
	for _, ns := range broadcast.Namespaces() {
		log.Printf("  /ws/%s", ns)
	}
	log.Println("  Secure chat requires ?token=<jwt> or an Authorization: Bearer header")
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /health                          - Health check")
	log.Println("  POST   /api/v1/chat/message             - Post a chat message")
	log.Println("  GET    /api/v1/rooms/:room/history      - Room history")
	log.Println("  POST   /api/v1/secure/message           - Secure broadcast")
	log.Println("  POST   /api/v1/stomp/publish            - Publish to a topic")
	log.Println("  POST   /api/v1/game/state               - Volatile game update")
	log.Println("  POST   /api/v1/service/register         - Register a service")
	log.Println("  POST   /api/v1/service/:name/heartbeat  - Service heartbeat")
	log.Println("  GET    /api/v1/services                 - Discover services")
	log.Println("  GET    /api/v1/connections              - Connections per namespace")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
