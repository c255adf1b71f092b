package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/panchang/internal/apperror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"validation", apperror.ValidationFailed("email", "Invalid email format"), http.StatusBadRequest, "validation_error", "Invalid email format"},
		{"unauthorized", apperror.Unauthorized("Invalid API token"), http.StatusUnauthorized, "unauthorized", "Invalid API token"},
		{"not found", apperror.NotFound("subscription", "3"), http.StatusNotFound, "not_found", "subscription not found with id 3"},
		{"conflict", apperror.Conflict("user", "a@b.c"), http.StatusConflict, "conflict", "user conflict with id a@b.c"},
		{"upstream", apperror.Upstream("Failed to fetch panchang data", errors.New("dial tcp: refused")), http.StatusInternalServerError, "upstream_error", "Failed to fetch panchang data"},
		{"wrapped", fmt.Errorf("service: %w", apperror.NotFound("user", "1")), http.StatusNotFound, "not_found", "user not found with id 1"},
		{"unknown", errors.New("database is locked"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			writeError(rr, tt.err)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
			assert.NotContains(t, body.Message, "dial tcp")
		})
	}
}
