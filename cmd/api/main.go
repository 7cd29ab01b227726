// dag-chat API Gateway
//
// Entry point for the DAG conversation engine: a server-side chat core
// where messages form a directed acyclic graph supporting branching and
// merging, exposed over HTTP + SSE.
//
// ARCHITECTURE ROLE:
// - API Gateway: routes all HTTP requests for the chat and conversation API
// - Chat Orchestrator: validates, persists, and streams each /chat turn
// - Two-store persistence: relational ConversationStore (Postgres) plus
//   document MessageStore (MongoDB) for the DAG nodes themselves
// - Model Adapter registry: a uniform streaming interface over
//   heterogeneous vendor chat APIs, configured rather than hardcoded
//
// STARTUP SEQUENCE:
// 1. Load configuration from environment variables / .env
// 2. Initialize structured logging
// 3. Create the auto-title worker pool
// 4. Connect to the relational ConversationStore (Postgres)
// 5. Connect to the document MessageStore (MongoDB)
// 6. Connect to Redis for SSE stream presence, falling back to memory
// 7. Build the Model Adapter registry from configuration
// 8. Wire the Chat Orchestrator and Conversation Service
// 9. Configure Fiber, middleware, and routes
// 10. Start the server with graceful shutdown
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/ZM-BAD/dag-chat/internal/adapter"
	"github.com/ZM-BAD/dag-chat/internal/config"
	"github.com/ZM-BAD/dag-chat/internal/handlers"
	"github.com/ZM-BAD/dag-chat/internal/middleware"
	"github.com/ZM-BAD/dag-chat/internal/orchestrator"
	"github.com/ZM-BAD/dag-chat/internal/service"
	"github.com/ZM-BAD/dag-chat/internal/services"
	"github.com/ZM-BAD/dag-chat/internal/store"
	"github.com/ZM-BAD/dag-chat/internal/workers"
)

func main() {
	// PHASE 1: CONFIGURATION AND LOGGING SETUP
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Server.Environment == "development" {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))

	// PHASE 2: WORKER POOL INITIALIZATION
	// The only detached background work in this system is the auto-title
	// job the Chat Orchestrator schedules after a conversation's first turn.
	poolManager := workers.NewPoolManager(workers.PoolConfig{AutoTitleWorkers: 4})

	// PHASE 3: RELATIONAL CONVERSATION STORE
	slog.Info("Connecting to conversation store")
	pgDB, err := store.NewPostgresDB(cfg)
	if err != nil {
		slog.Error("Failed to connect to conversation store", "error", err)
		log.Fatal("Conversation store connection required:", err)
	}
	defer pgDB.Close()
	slog.Info("Conversation store connection established successfully")
	convStore := store.NewPostgresConversationStore(pgDB)

	// PHASE 4: DOCUMENT MESSAGE STORE
	slog.Info("Connecting to message store")
	mongoDB, err := store.NewMongoDB(cfg)
	if err != nil {
		slog.Error("Failed to connect to message store", "error", err)
		log.Fatal("Message store connection required:", err)
	}
	defer mongoDB.Close(context.Background())

	msgStoreCtx, msgStoreCancel := context.WithTimeout(context.Background(), 15*time.Second)
	msgStore, err := store.NewMongoMessageStore(msgStoreCtx, mongoDB)
	msgStoreCancel()
	if err != nil {
		log.Fatal("Failed to initialize message store indexes:", err)
	}
	slog.Info("Message store connection established successfully")

	// PHASE 5: SSE STREAM PRESENCE, REDIS PRIMARY WITH MEMORY FALLBACK
	presence := connectStreamPresence(cfg)

	// PHASE 6: MODEL ADAPTER REGISTRY
	registry := buildAdapterRegistry(cfg)
	slog.Info("Model adapter registry built", "models", len(registry.ListModels()))

	// PHASE 7: SERVICE INITIALIZATION
	orch := orchestrator.New(convStore, msgStore, registry, poolManager, cfg.Chat)
	convService := service.NewConversationService(convStore, msgStore)

	// PHASE 8: HTTP HANDLER INITIALIZATION WITH DEPENDENCY INJECTION
	slog.Info("Initializing handlers")
	chatHandler := handlers.NewChatHandler(orch, presence, cfg.Chat)
	conversationHandler := handlers.NewConversationHandler(convService)
	healthHandler := handlers.NewHealthHandler(cfg, pgDB, presence, poolManager)
	modelsHandler := handlers.NewModelsHandler(registry)

	// PHASE 9: FIBER WEB SERVER CONFIGURATION
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorHandler: middleware.ErrorHandler(),
	})

	// PHASE 10: MIDDLEWARE STACK SETUP
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	// PHASE 11: API ROUTE REGISTRATION
	app.Get("/health", healthHandler.HandleHealth)

	api := app.Group("/api/v1")
	api.Post("/create-conversation", conversationHandler.HandleCreateConversation) // create a messageless conversation
	api.Post("/chat", chatHandler.HandleChat)                                      // stream a turn over SSE
	api.Get("/dialogue/list", conversationHandler.HandleListConversations)         // paged conversation listing
	api.Get("/dialogue/history", conversationHandler.HandleHistory)               // flat message list for client-side DAG reconstruction
	api.Put("/dialogue/rename", conversationHandler.HandleRename)
	api.Delete("/dialogue/delete", conversationHandler.HandleDelete)
	api.Get("/models", modelsHandler.HandleListModels) // adapter registry catalogue

	// PHASE 12: GRACEFUL SHUTDOWN HANDLING
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		slog.Info("Shutting down server...")

		poolManager.Shutdown()
		if err := presence.Close(); err != nil {
			slog.Error("Stream presence close error", "error", err)
		}
		if err := pgDB.Close(); err != nil {
			slog.Error("Conversation store close error", "error", err)
		}
		if err := mongoDB.Close(context.Background()); err != nil {
			slog.Error("Message store close error", "error", err)
		}
		if err := app.Shutdown(); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		slog.Info("Server shutdown complete")
		os.Exit(0)
	}()

	// PHASE 13: SERVER STARTUP
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	slog.Info("Starting dag-chat API server",
		"address", addr,
		"environment", cfg.Server.Environment,
		"default_model", cfg.Chat.DefaultModel)

	if err := app.Listen(addr); err != nil {
		slog.Error("Server failed to start", "error", err)
		poolManager.Shutdown()
		log.Fatal(err)
	}
}

// connectStreamPresence pings Redis once at startup and falls back to the
// in-memory StreamPresence when it's unreachable, mirroring the teacher's
// connect-or-degrade cache setup.
func connectStreamPresence(cfg *config.Config) services.StreamPresence {
	redisAddr := strings.TrimPrefix(cfg.Redis.URL, "redis://")
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()

	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		slog.Warn("Redis connection failed, falling back to in-memory stream presence", "error", err)
		redisClient.Close()
		return services.NewMemoryStreamPresence()
	}

	slog.Info("Redis connection established successfully", "addr", redisAddr)
	return services.NewRedisStreamPresence(redisClient)
}

// buildAdapterRegistry seeds the process-wide Model Adapter registry
// (spec §4.5, §9) from configuration: one OpenAI-compatible entry plus any
// number of generic REST entries, so adding a vendor never requires new
// Go code.
func buildAdapterRegistry(cfg *config.Config) *adapter.Registry {
	registry := adapter.NewRegistry()

	if cfg.Adapters.OpenAI.APIKey != "" {
		openaiAdapter := adapter.NewOpenAIAdapter(adapter.OpenAIConfig{
			APIKey:  cfg.Adapters.OpenAI.APIKey,
			BaseURL: cfg.Adapters.OpenAI.BaseURL,
		})
		for _, modelName := range cfg.Adapters.OpenAI.Models {
			registry.Register(modelName, modelName, []string{"content"}, openaiAdapter)
		}
	}

	for _, rc := range cfg.Adapters.REST {
		restAdapter := adapter.NewRESTAdapter(adapter.RESTConfig{BaseURL: rc.BaseURL, APIKey: rc.APIKey})
		registry.Register(rc.Name, rc.DisplayName, rc.Capabilities, restAdapter)
	}

	return registry
}
