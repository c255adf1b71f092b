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

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore implements repository.UserRepository on the users table.
type UserStore struct {
	conn *sql.DB
}

const userColumns = `id, email, name, oauth_provider, oauth_id, api_token, session_version, created_at`

// Create inserts a user. A duplicate email or (provider, provider id) pair is reported as
// apperror.ErrConflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	user.CreatedAt = time.Now().UTC()

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (email, name, oauth_provider, oauth_id, api_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.Name,
		user.OAuthProvider,
		user.OAuthID,
		nullString(user.APIToken),
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user (%s/%s): %w", user.OAuthProvider, user.OAuthID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading user id: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID returns apperror.ErrNotFound if no user has that id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return user, nil
}

// GetByProvider looks a user up by the identity their OAuth provider reported.
func (s *UserStore) GetByProvider(ctx context.Context, provider, providerID string) (*model.User, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = ? AND oauth_id = ?`,
		provider, providerID)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+"/"+providerID)
		}
		return nil, fmt.Errorf("sqlite: getting user %s/%s: %w", provider, providerID, err)
	}
	return user, nil
}

// GetByAPIToken resolves an API token. An empty token never matches.
func (s *UserStore) GetByAPIToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user", "token")
	}

	row := s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE api_token = ?`, token)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Do not echo the token back in the message.
			return nil, apperror.NotFound("user", "token")
		}
		return nil, fmt.Errorf("sqlite: getting user by api token: %w", err)
	}
	return user, nil
}

// SetAPIToken overwrites the user's token; the old value stops matching immediately.
func (s *UserStore) SetAPIToken(ctx context.Context, id int64, token string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE users SET api_token = ? WHERE id = ?`, nullString(token), id)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("api token", strconv.FormatInt(id, 10))
		}
		return fmt.Errorf("sqlite: setting api token for user %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

// BumpSessionVersion invalidates every session issued for the user so far.
func (s *UserStore) BumpSessionVersion(ctx context.Context, id int64) (int64, error) {
	var version int64
	err := s.conn.QueryRowContext(ctx,
		`UPDATE users SET session_version = session_version + 1 WHERE id = ? RETURNING session_version`,
		id).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return 0, fmt.Errorf("sqlite: bumping session version for user %d: %w", id, err)
	}
	return version, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u     model.User
		token sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.OAuthProvider,
		&u.OAuthID,
		&token,
		&u.SessionVersion,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.APIToken = token.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
