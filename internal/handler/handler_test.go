package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/panchang/internal/auth"
	"github.com/sakif/panchang/internal/handler"
	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/panchang"
	sqliteRepo "github.com/sakif/panchang/internal/repository/sqlite"
	"github.com/sakif/panchang/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeProvider is an identity provider that accepts the code "good-code".
type fakeProvider struct {
	name    string
	profile auth.Profile
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if code != "good-code" {
		return nil, auth.ErrProvider
	}
	return &oauth2.Token{AccessToken: "at"}, nil
}

func (p *fakeProvider) FetchProfile(context.Context, *oauth2.Token) (*auth.Profile, error) {
	profile := p.profile
	profile.Email = ""
	return &profile, nil
}

func (p *fakeProvider) FetchEmail(context.Context, *oauth2.Token) (string, error) {
	return p.profile.Email, nil
}

// fakeSource serves canned feed responses.
type fakeSource struct {
	payload  *panchang.Payload
	places   json.RawMessage
	err      error
	gotDate  time.Time
	gotLocID string
	gotCity  string
}

func (s *fakeSource) Fetch(_ context.Context, locationID string, date time.Time) (*panchang.Payload, error) {
	s.gotLocID, s.gotDate = locationID, date
	if s.err != nil {
		return nil, s.err
	}
	p := *s.payload
	p.LocationID = locationID
	return &p, nil
}

func (s *fakeSource) LookupPlaces(_ context.Context, city string) (json.RawMessage, error) {
	s.gotCity = city
	if s.err != nil {
		return nil, s.err
	}
	return s.places, nil
}

// testApp is the full router over an in-memory database.
type testApp struct {
	router  http.Handler
	db      *sqliteRepo.DB
	tokens  *auth.TokenService
	authSvc *service.AuthService
	source  *fakeSource
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	authSvc := service.NewAuthService(db.Users(), tokens, testLogger)
	subSvc := service.NewSubscriptionService(db.Subscriptions(), testLogger)
	source := &fakeSource{
		payload: &panchang.Payload{RawData: "Mumbai\nSunday\nS\nVN\nVG\nTamil: Aippasi 1", Date: "2026-10-18"},
		places:  json.RawMessage(`[{"id":"1277333"}]`),
	}

	providers := []auth.Provider{
		&fakeProvider{name: model.ProviderGitHub, profile: auth.Profile{ProviderID: "42", Name: "Octo", Email: "octo@example.com"}},
	}
	authH := handler.NewAuthHandler(providers, authSvc, tokens, false, testLogger)
	subH := handler.NewSubscriptionHandler(subSvc, testLogger)
	panH := handler.NewPanchangHandler(source, testLogger)

	r := chi.NewRouter()
	r.Get("/", handler.HandleIndex)
	r.Get("/healthz", handler.HandleHealth)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login/{provider}", authH.HandleLogin)
		r.Get("/login/{provider}/callback", authH.HandleCallback)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(tokens, authSvc))
			r.Get("/api/token", authH.HandleToken)
			r.Post("/api/token", authH.HandleToken)
			r.Get("/logout", authH.HandleLogout)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/panchang", panH.HandlePanchang)
		r.Get("/panchang/digest", panH.HandleDigest)
		r.Get("/locations", panH.HandleLocations)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAPIToken(authSvc))
			r.Get("/me", authH.HandleMe)
			r.Post("/subscribe", subH.HandleSubscribe)
			r.Get("/subscriptions", subH.HandleList)
			r.Delete("/subscriptions/{id}", subH.HandleUnsubscribe)
		})
	})

	return &testApp{router: r, db: db, tokens: tokens, authSvc: authSvc, source: source}
}

// do sends a request through the router. Headers are given as name/value pairs.
func (a *testApp) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// session logs a user in and returns the session cookie header value.
func (a *testApp) session(t *testing.T, providerID, email string) string {
	t.Helper()
	res, err := a.authSvc.LoginOrRegister(context.Background(), &auth.Profile{
		Provider: model.ProviderGitHub, ProviderID: providerID, Name: "User " + providerID, Email: email,
	})
	require.NoError(t, err)
	return auth.SessionCookie + "=" + res.SessionToken
}

// login registers a user and returns a fresh API token for them.
func (a *testApp) login(t *testing.T, providerID, email string) (userID int64, apiToken string) {
	t.Helper()
	ctx := context.Background()
	res, err := a.authSvc.LoginOrRegister(ctx, &auth.Profile{
		Provider: model.ProviderGitHub, ProviderID: providerID, Name: "User " + providerID, Email: email,
	})
	require.NoError(t, err)
	token, err := a.authSvc.RotateAPIToken(ctx, res.User.ID)
	require.NoError(t, err)
	return res.User.ID, token
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
