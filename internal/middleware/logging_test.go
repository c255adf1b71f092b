package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLevel string
	}{
		{"ok", http.StatusOK, "hello", "level=INFO"},
		{"client error", http.StatusNotFound, "missing", "level=WARN"},
		{"server error", http.StatusInternalServerError, "boom", "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			h := chimiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/locations", nil))

			out := buf.String()
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "path=/api/locations")
			assert.Contains(t, out, "request_id=")
			assert.Contains(t, out, "bytes="+strconv.Itoa(len(tt.body)))
		})
	}
}

func TestLogger_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(slog.New(slog.NewTextHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
		w.WriteHeader(http.StatusTeapot) // ignored by net/http after a write
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "status=200")
}
