package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/repository"
)

var _ repository.SubscriptionRepository = (*SubscriptionStore)(nil)

// SubscriptionStore implements repository.SubscriptionRepository on the subscriptions table.
type SubscriptionStore struct {
	conn *sql.DB
}

const subscriptionColumns = `id, user_id, location_id, city_name, email, is_active, created_at, last_sent`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts an active subscription. If an active subscription for the same
// (user, location, email) already exists the partial unique index rejects the insert and
// apperror.ErrConflict is returned.
func (s *SubscriptionStore) Create(ctx context.Context, sub *model.Subscription) error {
	sub.Active = true
	sub.CreatedAt = time.Now().UTC()
	sub.LastSent = nil

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, location_id, city_name, email, is_active, created_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		sub.UserID,
		sub.LocationID,
		sub.CityName,
		sub.Email,
		sub.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("subscription", sub.LocationID)
		}
		return fmt.Errorf("sqlite: inserting subscription for user %d: %w", sub.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading subscription id: %w", err)
	}
	sub.ID = id

	return nil
}

// GetByID returns the subscription regardless of its active flag.
func (s *SubscriptionStore) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("subscription", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting subscription %d: %w", id, err)
	}
	return sub, nil
}

func (s *SubscriptionStore) FindActive(ctx context.Context, userID int64, locationID, email string) (*model.Subscription, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = ? AND location_id = ? AND email = ? AND is_active = 1`,
		userID, locationID, email)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("subscription", locationID)
		}
		return nil, fmt.Errorf("sqlite: finding active subscription: %w", err)
	}
	return sub, nil
}

// ListActiveByUser returns the user's active subscriptions, oldest first.
func (s *SubscriptionStore) ListActiveByUser(ctx context.Context, userID int64) ([]model.Subscription, error) {
	return s.list(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = ? AND is_active = 1 ORDER BY id`, userID)
}

// ListActive returns every active subscription; the dispatcher's work list.
func (s *SubscriptionStore) ListActive(ctx context.Context) ([]model.Subscription, error) {
	return s.list(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE is_active = 1 ORDER BY id`)
}

// Deactivate soft-deletes a subscription.
func (s *SubscriptionStore) Deactivate(ctx context.Context, id int64) error {
	return s.update(ctx, id, `UPDATE subscriptions SET is_active = 0 WHERE id = ?`, id)
}

// MarkSent records a successful delivery.
func (s *SubscriptionStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return s.update(ctx, id, `UPDATE subscriptions SET last_sent = ? WHERE id = ?`, at.UTC(), id)
}

func (s *SubscriptionStore) update(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating subscription %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("subscription", strconv.FormatInt(id, 10))
	}
	return nil
}

func (s *SubscriptionStore) list(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]model.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subscriptions: %w", err)
	}

	return subs, nil
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	var (
		sub      model.Subscription
		lastSent sql.NullTime
	)
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.LocationID,
		&sub.CityName,
		&sub.Email,
		&sub.Active,
		&sub.CreatedAt,
		&lastSent,
	)
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		t := lastSent.Time
		sub.LastSent = &t
	}
	return &sub, nil
}
