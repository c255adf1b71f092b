package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/auth"
	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/service"
)

const (
	stateCookie = "oauth_state"
	// stateMaxAge is long enough to approve the login at the provider, in seconds.
	stateMaxAge = 600
)

// Authenticator is the part of service.AuthService the auth routes use.
type Authenticator interface {
	LoginOrRegister(ctx context.Context, p *auth.Profile) (*service.AuthResult, error)
	RotateAPIToken(ctx context.Context, userID int64) (string, error)
	Logout(ctx context.Context, userID int64) error
}

// AuthHandler runs the OAuth login flow for every registered provider, and the session
// routes behind it.
//
//   - HandleLogin     GET /auth/login/{provider}           redirect to the provider
//   - HandleCallback  GET /auth/login/{provider}/callback  finish login, set session cookie
//   - HandleToken     GET|POST /auth/api/token             rotate the API token (session)
//   - HandleLogout    GET /auth/logout                     revoke and clear the session (session)
//   - HandleMe        GET /api/me                          current user (API token)
type AuthHandler struct {
	providers    map[string]auth.Provider
	svc          Authenticator
	sessionTTL   int
	secureCookie bool
	logger       *slog.Logger
}

// NewAuthHandler registers providers under their Name. secureCookie marks cookies Secure and
// should be set whenever the service is reached over HTTPS.
func NewAuthHandler(providers []auth.Provider, svc Authenticator, tokens *auth.TokenService, secureCookie bool, logger *slog.Logger) *AuthHandler {
	byName := make(map[string]auth.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		providers:    byName,
		svc:          svc,
		sessionTTL:   int(tokens.TTL().Seconds()),
		secureCookie: secureCookie,
		logger:       logger,
	}
}

func (h *AuthHandler) provider(r *http.Request) (auth.Provider, error) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		return nil, apperror.NotFound("provider", name)
	}
	return p, nil
}

// HandleLogin redirects to the provider's consent page. A random state is stored in a
// short-lived cookie and checked again on the callback.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the login:
//
//  1. check the state against the cookie
//  2. exchange the code and read the provider profile and email
//  3. find or create the user
//  4. set the session cookie and redirect home
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	p, err := h.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch", slog.String("provider", p.Name()))
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization",
			slog.String("provider", p.Name()),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	profile, err := auth.Identify(r.Context(), p, code)
	if err != nil {
		h.logger.Error("auth callback: provider exchange failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.Upstream("authentication failed", err))
		return
	}

	res, err := h.svc.LoginOrRegister(r.Context(), profile)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    res.SessionToken,
		Path:     "/",
		MaxAge:   h.sessionTTL,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// TokenResponse carries a freshly issued API token.
type TokenResponse struct {
	Token string `json:"token"`
}

// HandleToken issues a new API token for the session user, revoking the old one.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("login required"))
		return
	}

	token, err := h.svc.RotateAPIToken(r.Context(), userID)
	if err != nil {
		h.logger.Error("rotating api token failed",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleLogout revokes every session of the user, including copies of the JWT held
// elsewhere, and deletes the session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("login required"))
		return
	}

	if err := h.svc.Logout(r.Context(), userID); err != nil {
		h.logger.Error("logout failed",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully logged out"})
}

// HandleMe returns the user the API token belongs to.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("API token is missing"))
		return
	}
	writeJSON(w, http.StatusOK, userResponse(user))
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Provider  string `json:"oauth_provider"`
	CreatedAt string `json:"created_at"`
}

func userResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Provider:  u.OAuthProvider,
		CreatedAt: u.CreatedAt.UTC().Format(isoLayout),
	}
}
