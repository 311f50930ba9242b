package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/services"
)

const (
	actorIDKey   = "actor_id"
	actorTypeKey = "actor_type"
	actorNameKey = "actor_name"
)

// ActorMiddleware lifts the caller's identity headers into the request
// context so handlers can attribute versions without each one re-reading
// headers. Identity is supplied by the upstream gateway; this service does
// not authenticate.
type ActorMiddleware struct {
	log *logger.Logger
}

func NewActorMiddleware(log *logger.Logger) *ActorMiddleware {
	return &ActorMiddleware{log: log.With("middleware", "ActorMiddleware")}
}

func (m *ActorMiddleware) Extract() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(actorIDKey, c.GetHeader("X-Actor-Id"))
		c.Set(actorTypeKey, c.GetHeader("X-Actor-Type"))
		c.Set(actorNameKey, c.GetHeader("X-Actor-Name"))
		c.Next()
	}
}

func ActorFromContext(c *gin.Context) services.Attribution {
	return services.Attribution{
		CreatedBy:     c.GetString(actorIDKey),
		CreatedByType: c.GetString(actorTypeKey),
		CreatedByName: c.GetString(actorNameKey),
	}
}
