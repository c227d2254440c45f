package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		in   string
		want LogFormat
	}{
		{"json", FormatJSON},
		{"console", FormatConsole},
		{"TEXT", FormatConsole},
		{" pretty ", FormatConsole},
		{"", FormatJSON},
		{"garbage", FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogFormat(tt.in))
		})
	}
}

func TestNew_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: FormatJSON, Output: &buf})
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log.Info("dropped")
	assert.Empty(t, buf.String())

	log.Warn("kept", map[string]interface{}{"book_id": "b1"})
	out := decodeLine(t, &buf)
	assert.Equal(t, "kept", out["message"])
	assert.Equal(t, "warn", out["level"])
	assert.Equal(t, "b1", out["book_id"])
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log := New(Config{Level: "loud", Output: &bytes.Buffer{}})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestWithAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: FormatJSON, Output: &buf})

	child := log.Component("sync").With(map[string]interface{}{"author": "Brandon Sanderson"})
	child.Debug("merging")

	out := decodeLine(t, &buf)
	assert.Equal(t, "sync", out["component"])
	assert.Equal(t, "Brandon Sanderson", out["author"])
	assert.Equal(t, zerolog.DebugLevel, child.GetLevel())
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() {
		log.Info("nothing")
		log.Error("nothing", map[string]interface{}{"n": 1})
	})
	assert.Equal(t, zerolog.NoLevel, log.GetLevel())
}

func TestSetupOnlyOnce(t *testing.T) {
	ResetForTesting()
	t.Cleanup(ResetForTesting)

	var first, second bytes.Buffer
	Setup(Config{Level: "info", Format: FormatJSON, Output: &first})
	Setup(Config{Level: "info", Format: FormatJSON, Output: &second})

	Get().Info("hello")
	assert.Contains(t, first.String(), "hello")
	assert.Empty(t, second.String())
}

func TestContextRoundTrip(t *testing.T) {
	log := Nop()
	ctx := NewContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))

	def := Nop()
	assert.Same(t, def, FromContextOr(context.Background(), def))
	assert.Same(t, ctx, NewContext(ctx, nil))
}

func TestHTTPMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: FormatJSON, Output: &buf})

	var sawLogger bool
	handler := HTTPMiddleware(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = FromContext(r.Context()) != nil
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/search", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, sawLogger)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	out := decodeLine(t, &buf)
	assert.Equal(t, "HTTP request", out["message"])
	assert.Equal(t, "/api/search", out["path"])
	assert.Equal(t, float64(http.StatusAccepted), out["status"])
	assert.NotEmpty(t, out["request_id"])
	assert.Equal(t, out["request_id"], rec.Header().Get("X-Request-ID"))
}

func TestHTTPMiddleware_KeepsIncomingRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: FormatJSON, Output: &buf})

	var seen string
	handler := HTTPMiddleware(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(ContextKeyRequestID).(string)
		FromContextOr(r.Context(), Nop()).Info("inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-42", seen)
	dec := json.NewDecoder(&buf)
	for i := 0; i < 2; i++ {
		var line map[string]interface{}
		require.NoError(t, dec.Decode(&line))
		assert.Equal(t, "req-42", line["request_id"])
	}
}
