// Package model defines the records persisted by the identity and subscription stores.
package model

import "time"

// Provider names accepted by the OAuth login flow and stored in User.OAuthProvider.
const (
	ProviderGitHub   = "github"
	ProviderLinkedIn = "linkedin"
)

// User is an identity created on the first successful OAuth callback.
//
// (OAuthProvider, OAuthID) identifies the account at its provider and is unique.
// APIToken is empty until the user asks for one; rotating it overwrites the previous value,
// which immediately stops authenticating. The token is never serialised to JSON.
//
// SessionVersion is embedded in every session JWT; bumping it on logout revokes all of the
// user's outstanding sessions.
type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	OAuthProvider  string    `json:"oauth_provider"`
	OAuthID        string    `json:"oauth_id"`
	APIToken       string    `json:"-"`
	SessionVersion int64     `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
