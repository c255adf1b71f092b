package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// ErrProvider wraps every failure talking to an identity provider.
var ErrProvider = errors.New("auth: identity provider error")

// Profile is the identity a provider vouches for after a successful login.
type Profile struct {
	Provider   string
	ProviderID string
	Name       string
	Email      string
}

// Provider is one OAuth 2.0 identity provider. Login and callback handling is the same for
// every provider; only these steps differ.
type Provider interface {
	// Name is the path segment used in /auth/login/{provider}.
	Name() string
	// AuthURL is where the browser is sent to approve the login. state is echoed back on the
	// callback.
	AuthURL(state string) string
	// ExchangeCode trades the callback's authorization code for an access token.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	// FetchProfile returns the provider's stable user id and display name. Email may be empty.
	FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error)
	// FetchEmail returns the user's primary email address.
	FetchEmail(ctx context.Context, tok *oauth2.Token) (string, error)
}

// ProviderConfig holds the OAuth app registration for one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint and APIBaseURL override the provider's real URLs.
	Endpoint   oauth2.Endpoint
	APIBaseURL string
}

// Identify runs the provider side of a login: code exchange, profile, then email.
func Identify(ctx context.Context, p Provider, code string) (*Profile, error) {
	tok, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := p.FetchProfile(ctx, tok)
	if err != nil {
		return nil, err
	}

	if profile.Email == "" {
		email, err := p.FetchEmail(ctx, tok)
		if err != nil {
			return nil, err
		}
		profile.Email = email
	}

	profile.Provider = p.Name()
	return profile, nil
}

func newOAuthConfig(cfg ProviderConfig, endpoint oauth2.Endpoint, scopes []string) *oauth2.Config {
	if cfg.Endpoint.AuthURL != "" {
		endpoint = cfg.Endpoint
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

func exchange(ctx context.Context, config *oauth2.Config, provider, code string) (*oauth2.Token, error) {
	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: exchanging code: %w", ErrProvider, provider, err)
	}
	return tok, nil
}

// getJSON calls a provider API with the token's bearer credentials and decodes the body.
func getJSON(ctx context.Context, config *oauth2.Config, tok *oauth2.Token, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %w", ErrProvider, err)
	}

	resp, err := config.Client(ctx, tok).Do(req)
	if err != nil {
		return fmt.Errorf("%w: calling %s: %w", ErrProvider, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrProvider, url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrProvider, url, err)
	}
	return nil
}
