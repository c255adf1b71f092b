package repository

import (
	"context"
	"time"

	"github.com/sakif/panchang/internal/model"
)

// UserRepository is the identity store.
type UserRepository interface {
	// Create inserts a new user and fills in ID and CreatedAt.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByProvider(ctx context.Context, provider, providerID string) (*model.User, error)
	GetByAPIToken(ctx context.Context, token string) (*model.User, error)
	// SetAPIToken replaces the user's API token.
	SetAPIToken(ctx context.Context, id int64, token string) error
	// BumpSessionVersion increments the user's session version and returns the new value.
	BumpSessionVersion(ctx context.Context, id int64) (int64, error)
}

// SubscriptionRepository is the subscription store.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *model.Subscription) error
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	// FindActive returns the active subscription for the (user, location, email) triple.
	FindActive(ctx context.Context, userID int64, locationID, email string) (*model.Subscription, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]model.Subscription, error)
	ListActive(ctx context.Context) ([]model.Subscription, error)
	Deactivate(ctx context.Context, id int64) error
	MarkSent(ctx context.Context, id int64, at time.Time) error
}
