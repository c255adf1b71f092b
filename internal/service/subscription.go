package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/repository"
)

const msgDuplicateSubscription = "Already subscribed to this location with this email"

// SubscribeInput is a request to mail the digest for one location to one address.
type SubscribeInput struct {
	LocationID string `json:"location_id" validate:"required"`
	CityName   string `json:"city_name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
}

type SubscriptionService struct {
	repo     repository.SubscriptionRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSubscriptionService(repo repository.SubscriptionRepository, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Subscribe creates an active subscription owned by userID. A user may hold at most one active
// subscription per (location, email); a second one is a validation error, not a conflict.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID int64, in SubscribeInput) (*model.Subscription, error) {
	in.LocationID = strings.TrimSpace(in.LocationID)
	in.CityName = strings.TrimSpace(in.CityName)
	in.Email = strings.TrimSpace(in.Email)

	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	_, err := s.repo.FindActive(ctx, userID, in.LocationID, in.Email)
	switch {
	case err == nil:
		return nil, apperror.ValidationFailed("location_id", msgDuplicateSubscription)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/subscription: checking existing subscription: %w", err)
	}

	sub := &model.Subscription{
		UserID:     userID,
		LocationID: in.LocationID,
		CityName:   in.CityName,
		Email:      in.Email,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		// A concurrent subscribe won the race to the unique index.
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("location_id", msgDuplicateSubscription)
		}
		return nil, fmt.Errorf("service/subscription: creating subscription: %w", err)
	}

	s.logger.Info("subscription created",
		slog.Int64("subscriptionID", sub.ID),
		slog.Int64("userID", userID),
		slog.String("locationID", sub.LocationID),
	)
	return sub, nil
}

func (s *SubscriptionService) validateInput(in SubscribeInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("service/subscription: validating input: %w", err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apperror.ValidationFailed(jsonField(fe.Field()), "location_id, city_name, and email are required")
		}
	}
	return apperror.ValidationFailed("email", "Invalid email format")
}

func jsonField(structField string) string {
	switch structField {
	case "LocationID":
		return "location_id"
	case "CityName":
		return "city_name"
	default:
		return "email"
	}
}

// List returns the user's active subscriptions.
func (s *SubscriptionService) List(ctx context.Context, userID int64) ([]model.Subscription, error) {
	subs, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/subscription: listing subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

// Unsubscribe soft-deletes a subscription the user owns. Someone else's subscription is
// reported as not found.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, userID, subscriptionID int64) error {
	sub, err := s.repo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return apperror.NotFound("subscription", strconv.FormatInt(subscriptionID, 10))
	}

	if err := s.repo.Deactivate(ctx, subscriptionID); err != nil {
		return err
	}

	s.logger.Info("subscription deactivated",
		slog.Int64("subscriptionID", subscriptionID),
		slog.Int64("userID", userID),
	)
	return nil
}
