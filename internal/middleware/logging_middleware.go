package middleware

import (
	"time"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDKey ключ gin.Context, под которым лежит trace-ID запроса
const TraceIDKey = "trace_id"

// TraceIDHeader заголовок ответа с trace-ID
const TraceIDHeader = "X-Trace-Id"

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
type RequestLogger struct {
	log *logging.Logger
}

// NewRequestLogger создает middleware; logger == nil пишет в глобальный логгер
func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	return &RequestLogger{log: logger}
}

func (rl *RequestLogger) info(format string, args ...interface{}) {
	if rl.log != nil {
		rl.log.Info(format, args...)
		return
	}
	logging.Info(format, args...)
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Берём trace-id из OpenTelemetry, если span уже создан otelgin
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rl.info("[HTTP] ▶ %s %s ip=%s trace=%s", method, path, c.ClientIP(), traceID)

		c.Next()

		rl.info("[HTTP] ◀ %s %s %d %s trace=%s", method, path, c.Writer.Status(), time.Since(start), traceID)
	}
}
