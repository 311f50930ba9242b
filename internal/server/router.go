package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/lessonforge/lessonforge-backend/internal/handlers"
	"github.com/lessonforge/lessonforge-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName  string
	AllowOrigins []string
	Tracing      bool

	ActorMiddleware *middleware.ActorMiddleware
	SessionHandler  *handlers.SessionHandler
	VersionHandler  *handlers.VersionHandler
	SSEHandler      *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	if cfg.Tracing {
		router.Use(otelgin.Middleware(cfg.ServiceName))
	}

	// Cors
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Actor-Id", "X-Actor-Type", "X-Actor-Name"},
		AllowCredentials: true,
	}))

	// Health
	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		if cfg.ActorMiddleware != nil {
			api.Use(cfg.ActorMiddleware.Extract())
		}

		// Edit sessions
		if cfg.SessionHandler != nil {
			api.POST("/documents/:type/:id/session", cfg.SessionHandler.Open)
			api.GET("/documents/:type/:id/session", cfg.SessionHandler.Status)
			api.DELETE("/documents/:type/:id/session", cfg.SessionHandler.Close)
			api.POST("/documents/:type/:id/session/load-more", cfg.SessionHandler.LoadMore)
			api.POST("/documents/:type/:id/session/refresh", cfg.SessionHandler.Refresh)
			api.POST("/documents/:type/:id/content", cfg.SessionHandler.PushContent)
			api.POST("/documents/:type/:id/save", cfg.SessionHandler.ManualSave)
		}

		// Versions
		if cfg.VersionHandler != nil {
			api.GET("/documents/:type/:id/versions", cfg.VersionHandler.History)
			api.GET("/versions/:versionId", cfg.VersionHandler.Get)
			api.POST("/versions/:versionId/restore", cfg.VersionHandler.Restore)
		}
	}

	// Realtime (SSE)
	if cfg.SSEHandler != nil {
		router.GET("/sse/stream", cfg.SSEHandler.Stream)
	}

	return router
}

// SplitOrigins parses a comma separated origin list from the environment.
func SplitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
