package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/sakif/panchang/internal/model"
)

const githubAPI = "https://api.github.com"

// githubUser is the portion of the GitHub /user response we use.
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider signs users in with GitHub.
type GitHubProvider struct {
	config *oauth2.Config
	api    string
}

var _ Provider = (*GitHubProvider)(nil)

// NewGitHubProvider requests the "read:user" and "user:email" scopes. cfg.RedirectURL must
// match the callback URL registered for the OAuth app.
func NewGitHubProvider(cfg ProviderConfig) *GitHubProvider {
	api := githubAPI
	if cfg.APIBaseURL != "" {
		api = strings.TrimRight(cfg.APIBaseURL, "/")
	}
	return &GitHubProvider{
		config: newOAuthConfig(cfg, github.Endpoint, []string{"read:user", "user:email"}),
		api:    api,
	}
}

func (p *GitHubProvider) Name() string { return model.ProviderGitHub }

func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, p.config, p.Name(), code)
}

// FetchProfile reads /user. The display name falls back to the login when unset. The email on
// /user is only the public one, so it is left for FetchEmail.
func (p *GitHubProvider) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	var u githubUser
	if err := getJSON(ctx, p.config, tok, p.api+"/user", &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("%w: github returned an invalid user (id = 0)", ErrProvider)
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}
	return &Profile{ProviderID: strconv.FormatInt(u.ID, 10), Name: name}, nil
}

// FetchEmail returns the address GitHub marks as primary.
func (p *GitHubProvider) FetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	var emails []githubEmail
	if err := getJSON(ctx, p.config, tok, p.api+"/user/emails", &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Email != "" {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("%w: github account has no primary email", ErrProvider)
}
