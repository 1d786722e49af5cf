package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	KeyLogger       = "logger"
	RequestIDHeader = "X-Request-ID"
)

// RequestLogger tags each request with an id and logs its completion.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		l := log.WithFields(logrus.Fields{
			"request_id":  id,
			"http.method": c.Request.Method,
			"http.path":   c.Request.URL.Path,
		})
		c.Set(KeyLogger, l)
		c.Next()

		l = l.WithFields(logrus.Fields{
			"http.status": c.Writer.Status(),
			"http.bytes":  c.Writer.Size(),
			"elapsed_ms":  time.Since(start).Milliseconds(),
		})
		switch {
		case c.Writer.Status() >= 500:
			l.Error("request complete")
		case c.Writer.Status() >= 400:
			l.Warn("request complete")
		default:
			l.Debug("request complete")
		}
	}
}

// Logger returns the request-scoped logger, or fallback when RequestLogger is not mounted.
func Logger(c *gin.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if v, ok := c.Get(KeyLogger); ok {
		if l, ok := v.(logrus.FieldLogger); ok {
			return l
		}
	}
	return fallback
}
