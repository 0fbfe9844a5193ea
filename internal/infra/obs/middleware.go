package obs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware carries the request-scoped observability concerns: a request id
// threaded through context and response headers, and an access log that names
// the acting user so a reservation's trail can be followed across calls.
type Middleware struct {
	Logger *slog.Logger
}

type requestIDKey struct{}

// RequestID reuses an inbound X-Request-ID or mints one, and makes it
// available both to downstream handlers (via context) and to the caller (via
// the response header).
func (m Middleware) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), requestIDKey{}, id)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func (m Middleware) LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m.Logger == nil {
			return
		}
		path := c.FullPath()
		if path == "/livez" || path == "/readyz" {
			// probes would drown the log
			return
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", RequestIDFromContext(c.Request.Context()),
		}
		if actor := c.GetHeader("X-Actor-ID"); actor != "" {
			attrs = append(attrs, "actor_id", actor)
		}
		m.Logger.Info("http request", attrs...)
	}
}

func RequestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}
