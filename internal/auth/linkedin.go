package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"

	"github.com/sakif/panchang/internal/model"
)

const linkedinAPI = "https://api.linkedin.com"

type linkedinMe struct {
	ID                 string `json:"id"`
	LocalizedFirstName string `json:"localizedFirstName"`
	LocalizedLastName  string `json:"localizedLastName"`
}

type linkedinEmailResponse struct {
	Elements []struct {
		Handle struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"handle~"`
	} `json:"elements"`
}

// LinkedInProvider signs users in with LinkedIn's v2 member API.
type LinkedInProvider struct {
	config *oauth2.Config
	api    string
}

var _ Provider = (*LinkedInProvider)(nil)

func NewLinkedInProvider(cfg ProviderConfig) *LinkedInProvider {
	api := linkedinAPI
	if cfg.APIBaseURL != "" {
		api = strings.TrimRight(cfg.APIBaseURL, "/")
	}
	return &LinkedInProvider{
		config: newOAuthConfig(cfg, linkedin.Endpoint, []string{"r_liteprofile", "r_emailaddress"}),
		api:    api,
	}
}

func (p *LinkedInProvider) Name() string { return model.ProviderLinkedIn }

func (p *LinkedInProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *LinkedInProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchange(ctx, p.config, p.Name(), code)
}

func (p *LinkedInProvider) FetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	var me linkedinMe
	if err := getJSON(ctx, p.config, tok, p.api+"/v2/me", &me); err != nil {
		return nil, err
	}
	if me.ID == "" {
		return nil, fmt.Errorf("%w: linkedin returned a profile without an id", ErrProvider)
	}

	name := strings.TrimSpace(me.LocalizedFirstName + " " + me.LocalizedLastName)
	return &Profile{ProviderID: me.ID, Name: name}, nil
}

// FetchEmail reads the first email handle from the emailAddress projection.
func (p *LinkedInProvider) FetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	q := url.Values{}
	q.Set("q", "members")
	q.Set("projection", "(elements*(handle~))")

	var resp linkedinEmailResponse
	if err := getJSON(ctx, p.config, tok, p.api+"/v2/emailAddress?"+q.Encode(), &resp); err != nil {
		return "", err
	}
	if len(resp.Elements) == 0 || resp.Elements[0].Handle.EmailAddress == "" {
		return "", fmt.Errorf("%w: linkedin returned no email address", ErrProvider)
	}
	return resp.Elements[0].Handle.EmailAddress, nil
}
