package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/model"
)

type tokenTable map[string]*model.User

func (t tokenTable) AuthenticateAPIToken(_ context.Context, token string) (*model.User, error) {
	if u, ok := t[token]; ok {
		return u, nil
	}
	return nil, errors.New("no such token")
}

func TestRequireAPIToken(t *testing.T) {
	user := &model.User{ID: 7, Email: "u@example.com"}
	mw := RequireAPIToken(tokenTable{"good": user})

	var got *model.User
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		id, _ := UserIDFromContext(r.Context())
		assert.Equal(t, int64(7), id)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		token    string
		wantCode int
		wantMsg  string
	}{
		{"valid", "good", http.StatusNoContent, ""},
		{"missing", "", http.StatusUnauthorized, "API token is missing"},
		{"unknown", "bad", http.StatusUnauthorized, "Invalid API token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
			if tt.token != "" {
				req.Header.Set(APITokenHeader, tt.token)
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantMsg != "" {
				assert.Contains(t, rr.Body.String(), tt.wantMsg)
				assert.Nil(t, got)
			} else {
				assert.Equal(t, user, got)
			}
		})
	}
}

type userTable struct {
	users map[int64]*model.User
	err   error
}

func (t userTable) GetUser(_ context.Context, id int64) (*model.User, error) {
	if t.err != nil {
		return nil, t.err
	}
	if u, ok := t.users[id]; ok {
		return u, nil
	}
	return nil, apperror.NotFound("user", "x")
}

func TestRequireSession(t *testing.T) {
	ts := newTestTokenService(t)
	valid, _ := ts.Generate(9, 2)
	stale, _ := ts.Generate(9, 1)
	ghost, _ := ts.Generate(404, 0)
	expired, _ := ts.GenerateWithDuration(9, 2, -time.Second)

	users := userTable{users: map[int64]*model.User{9: {ID: 9, Email: "nine@example.com", SessionVersion: 2}}}
	h := RequireSession(ts, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, int64(9), id)
		u, ok := UserFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "nine@example.com", u.Email)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		cookie   string
		wantCode int
		wantMsg  string
	}{
		{"valid session", valid, http.StatusNoContent, ""},
		{"no cookie", "", http.StatusUnauthorized, "login required"},
		{"expired", expired, http.StatusUnauthorized, "session expired or invalid"},
		{"garbage", "nope", http.StatusUnauthorized, "session expired or invalid"},
		{"older session version", stale, http.StatusUnauthorized, "session revoked"},
		{"user no longer exists", ghost, http.StatusUnauthorized, "session revoked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/api/token", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantMsg)
		})
	}
}

func TestRequireSession_LookupFailure(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate(9, 0)

	h := RequireSession(ts, userTable{err: errors.New("database is locked")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/api/token", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "database is locked")
}

func TestContextHelpers_Empty(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)
	_, ok = UserFromContext(context.Background())
	assert.False(t, ok)
}
