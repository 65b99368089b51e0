package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/annel0/mmo-level/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestLogger_SetsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger("api", &buf, logging.INFO)

	r := gin.New()
	r.Use(NewRequestLogger(logger).Handler())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = c.GetString(TraceIDKey)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(TraceIDHeader))
	assert.Contains(t, buf.String(), "GET /ping 204")
	assert.Contains(t, buf.String(), seen)
}

func TestPrometheusMiddleware_CountsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := NewPrometheusMiddleware("test_api", reg)

	r := gin.New()
	r.Use(mw.Handler())
	mw.RegisterMetricsEndpoint(r, reg)
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/bad", "/bad", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(mw.reqErrors.WithLabelValues("GET", "/bad", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mw.reqErrors.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(mw.reqInflight))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_api_http_request_duration_seconds"))
}
