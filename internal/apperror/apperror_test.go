package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("subscription", "7"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "email is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("Invalid API token"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream("Failed to fetch panchang data", cause),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Upstream keeps the cause reachable",
			err:       Upstream("Failed to fetch panchang data", cause),
			target:    cause,
			wantMatch: true,
		},
		{
			name:      "wrapped AppError still matches",
			err:       fmt.Errorf("service/subscription: %w", NotFound("subscription", "7")),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("subscription", "7"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Unauthorized does NOT match ErrNotFound",
			err:       Unauthorized("API token is missing"),
			target:    ErrNotFound,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("subscription", "42"),
			wantMessage: "subscription not found with id 42",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("location_id", "location_id is required"),
			wantMessage: "location_id is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("user", "a@b.c"),
			wantMessage: "user conflict with id a@b.c",
		},
		{
			name:        "Upstream hides the cause",
			err:         Upstream("Failed to fetch location data", errors.New("secret host 10.0.0.1")),
			wantMessage: "Failed to fetch location data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("subscription", "1")

	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "Invalid email format")

	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
