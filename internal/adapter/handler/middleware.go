package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/grocery-store/internal/auth"
	"github.com/rl1809/grocery-store/internal/core/domain"
)

const identityKey = "identity"

// Authenticate rejects requests without a valid bearer token and stores the
// caller's identity on the context.
func (h *HTTPHandler) Authenticate(authn auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ParseBearer(c.GetHeader("Authorization"))
		id, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func (h *HTTPHandler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).IsAdmin() {
			h.fail(c, domain.ErrForbidden)
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) domain.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(domain.Identity)
	return id
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
