package model

import "time"

// Subscription is a standing request to email the daily panchang of LocationID to Email.
//
// Unsubscribing flips Active to false; rows are never removed. At most one active
// subscription exists per (UserID, LocationID, Email).
type Subscription struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"-"`
	LocationID string     `json:"location_id"`
	CityName   string     `json:"city_name"`
	Email      string     `json:"email"`
	Active     bool       `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSent   *time.Time `json:"last_sent,omitempty"`
}
