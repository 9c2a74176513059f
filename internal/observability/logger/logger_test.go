package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	obscontext "github.com/abrahamoflondon/innercircle/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestKeyHintNeverShowsSecret(t *testing.T) {
	raw := "icl_Zm9vYmFyYmF6cXV4cXV1eHF1dXhxdXV4cXV1eA"
	field := KeyHint(raw)
	assert.Equal(t, "key_hint", field.Key)
	assert.Equal(t, "icl_Zm9v***", field.String)
	assert.NotContains(t, field.String, raw[8:])

	assert.Equal(t, "****", KeyHint(" abcd ").String)
}

func TestWithContextSkipsUnsetFields(t *testing.T) {
	logs := observe(t)

	FromContext(context.Background()).Info("bare")
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "admin", "ada")
	FromContext(ctx).Info("scoped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].ContextMap())

	fields := entries[1].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "admin", fields["actor_type"])
	assert.Equal(t, "ada", fields["actor_id"])
	assert.NotContains(t, fields, "member_id")
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observe(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) {
			return "validation_error", "invalid_format"
		},
		QuietRoutes:       []string{"/metrics"},
		QuietClientErrors: []string{"/verify"},
	}))
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/verify", func(c *gin.Context) {
		c.Set(OutcomeKey, "invalid_format")
		_ = c.Error(errors.New("bad key"))
		c.Status(http.StatusBadRequest)
	})
	r.GET("/decision", func(c *gin.Context) {
		c.Set(AccessTierKey, "member")
		c.Status(http.StatusOK)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/metrics", nil),
		httptest.NewRequest(http.MethodPost, "/verify", nil),
		httptest.NewRequest(http.MethodGet, "/decision", nil),
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	}

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)

	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, "invalid_format", entries[1].ContextMap()["verification_outcome"])
	assert.Equal(t, "invalid_format", entries[1].ContextMap()["error_code"])

	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, "member", entries[2].ContextMap()["access_tier"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observe(t)

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, obscontext.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "abc-123", w.Body.String())
}
