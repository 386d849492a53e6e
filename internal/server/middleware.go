package server

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/NetoRibeiro/ovpfh-v2/internal/logging"
	"github.com/NetoRibeiro/ovpfh-v2/internal/metrics"
)

const (
	HeaderRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
)

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func sanitizeRequestID(incoming string) string {
	if incoming != "" && requestIDPattern.MatchString(incoming) {
		return incoming
	}
	return uuid.NewString()
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c *gin.Context) string { return c.GetString(requestIDKey) }

// RequestLogger tags the request with an id, stores a request-scoped logger on the
// request context, logs one line per request and records it in recorder.
func RequestLogger(base *slog.Logger, recorder *metrics.Recorder) gin.HandlerFunc {
	if base == nil {
		base = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		reqID := sanitizeRequestID(c.GetHeader(HeaderRequestID))
		c.Set(requestIDKey, reqID)
		c.Header(HeaderRequestID, reqID)

		logger := base.With(
			slog.String(logging.FieldRequestID, reqID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("client_ip", c.ClientIP()),
		)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))

		c.Next()

		d := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		recorder.RecordHTTPRequest(c.Request.Method, route, status, d)

		attrs := []any{
			slog.Int(logging.FieldStatusCode, status),
			slog.Int64(logging.FieldDurationMS, d.Milliseconds()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String(logging.FieldError, c.Errors.String()))
		}
		switch {
		case status >= 500:
			logger.Error("request complete", attrs...)
		default:
			logger.Info("request complete", attrs...)
		}
	}
}
