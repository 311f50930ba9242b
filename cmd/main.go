package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lessonforge/lessonforge-backend/internal/db"
	"github.com/lessonforge/lessonforge-backend/internal/handlers"
	"github.com/lessonforge/lessonforge-backend/internal/ledger"
	"github.com/lessonforge/lessonforge-backend/internal/localstore"
	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/observability"
	"github.com/lessonforge/lessonforge-backend/internal/realtime/bus"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/server"
	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
	"github.com/lessonforge/lessonforge-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	serviceName := utils.GetEnv("SERVICE_NAME", "lessonforge-backend", log)
	localMax := utils.GetEnvAsInt("LOCAL_VERSIONS_MAX", localstore.DefaultMaxVersions, log)
	debounceMs := utils.GetEnvAsInt("AUTO_SAVE_DEBOUNCE_MS", int(services.DefaultDebounceInterval/time.Millisecond), log)
	minSaveIntervalMs := utils.GetEnvAsInt("MIN_AUTO_SAVE_INTERVAL_MS", int(ledger.DefaultMinAutoSaveInterval/time.Millisecond), log)
	allowOrigins := server.SplitOrigins(utils.GetEnv("CORS_ALLOW_ORIGINS", "", log))

	// Tracing
	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	// Session state and save gate are shared by the store and every edit
	// session, so the remote-down flag and per-document baselines agree.
	state := ledger.NewSessionState()
	gate := ledger.NewSaveGate(state, time.Duration(minSaveIntervalMs)*time.Millisecond)

	// Postgres (remote version store). The process stays up without it:
	// saves fall back to the local store until a restart brings it back.
	var versionRepo repos.DocumentVersionRepo
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Warn("Postgres init failed, starting in local-only mode", "error", err)
		state.MarkRemoteDown()
	} else {
		if err = postgresService.AutoMigrateAll(); err != nil {
			log.Warn("Postgres auto migration failed", "error", err)
		}
		versionRepo = repos.NewDocumentVersionRepo(postgresService.DB(), log)
	}

	// Local fallback store
	var localStore localstore.Store
	sqliteService, err := db.NewSqliteService(log)
	if err != nil {
		log.Warn("Local sqlite store unavailable, falling back to in-memory", "error", err)
		localStore = localstore.NewMemoryStore(localMax)
	} else {
		localStore, err = localstore.NewSqliteStore(sqliteService.DB(), localMax, log)
		if err != nil {
			log.Warn("Local sqlite store migration failed, falling back to in-memory", "error", err)
			localStore = localstore.NewMemoryStore(localMax)
		}
	}

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewHub(log)

	// Cross-instance event bus (optional)
	var eventBus bus.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		eventBus, err = bus.NewRedisBus(log)
		if err != nil {
			log.Warn("Redis bus init failed, events stay instance-local", "error", err)
			eventBus = nil
		} else {
			defer eventBus.Close()
			if err := eventBus.StartForwarder(ctx, sseHub.Broadcast); err != nil {
				log.Warn("Redis forwarder init failed, events stay instance-local", "error", err)
				eventBus = nil
			}
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	notifier := services.NewSSENotifier(log, sseHub, eventBus)
	versionService := services.NewVersionHistoryService(log, versionRepo, localStore, gate, state, notifier, services.VersionHistoryConfig{})
	sessionManager := services.NewSessionManager(log, versionService, gate, services.EditSessionOptions{
		DebounceInterval: time.Duration(debounceMs) * time.Millisecond,
	})
	defer sessionManager.CloseAll()

	// Handlers
	log.Info("Setting up handlers from main...")
	sessionHandler := handlers.NewSessionHandler(sessionManager)
	versionHandler := handlers.NewVersionHandler(versionService)
	sseHandler := handlers.NewSSEHandler(log, sseHub)

	// Middleware
	log.Info("Setting up middleware from main...")
	actorMiddleware := middleware.NewActorMiddleware(log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		ServiceName:     serviceName,
		AllowOrigins:    allowOrigins,
		Tracing:         otelShutdown != nil,
		ActorMiddleware: actorMiddleware,
		SessionHandler:  sessionHandler,
		VersionHandler:  versionHandler,
		SSEHandler:      sseHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
