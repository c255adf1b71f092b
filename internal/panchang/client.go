// Package panchang talks to the MyPanchang feed and turns its free-text day listing into a digest.
//
// The pipeline is Fetch (raw text for a location and date) → Parse (optional-field record) →
// Render (HTML email body). Fetch can fail; Parse and Render never do.
package panchang

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DateLayout is the ISO date format used in query parameters and payloads.
const DateLayout = "2006-01-02"

const (
	DefaultFeedURL   = "https://mypanchang.com/newsite/panfeed.php"
	DefaultPlacesURL = "https://mypanchang.com/newsite/placequery.php"
	DefaultTimeout   = 15 * time.Second

	// maxBodySize bounds how much of an upstream response is read.
	maxBodySize = 1 << 20
)

// ErrFetch marks every failure to obtain data from the upstream feed.
var ErrFetch = errors.New("panchang: upstream fetch failed")

// Payload is one day's raw feed response for a location.
type Payload struct {
	RawData    string `json:"raw_data"`
	LocationID string `json:"location_id"`
	Date       string `json:"date"`
}

// Config holds the upstream endpoints.
type Config struct {
	FeedURL   string
	PlacesURL string
	Timeout   time.Duration
	// Location decides which calendar day "today" is. Nil means the host's zone.
	Location *time.Location
}

// Client calls the feed and place-lookup endpoints. It is safe for concurrent use.
type Client struct {
	feedURL   string
	placesURL string
	http      *http.Client
	loc       *time.Location
	now       func() time.Time
}

// NewClient fills in defaults for any zero Config field.
func NewClient(cfg Config) *Client {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.PlacesURL == "" {
		cfg.PlacesURL = DefaultPlacesURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Client{
		feedURL:   cfg.FeedURL,
		placesURL: cfg.PlacesURL,
		http:      &http.Client{Timeout: cfg.Timeout},
		loc:       cfg.Location,
		now:       time.Now,
	}
}

// Fetch returns the raw feed text for locationID on date. A zero date means today in the
// client's Location. Transport errors, non-2xx statuses, oversized bodies and body read errors
// wrap ErrFetch; there is no retry.
func (c *Client) Fetch(ctx context.Context, locationID string, date time.Time) (*Payload, error) {
	if date.IsZero() {
		date = c.now().In(c.loc)
	}

	q := url.Values{}
	q.Set("locid", locationID)
	q.Set("dt", strconv.Itoa(date.Day()))
	q.Set("mn", strconv.Itoa(int(date.Month())))
	q.Set("yr", strconv.Itoa(date.Year()))

	body, err := c.get(ctx, c.feedURL, q)
	if err != nil {
		return nil, fmt.Errorf("%w: location %s: %w", ErrFetch, locationID, err)
	}

	return &Payload{
		RawData:    string(body),
		LocationID: locationID,
		Date:       date.Format(DateLayout),
	}, nil
}

// LookupPlaces proxies the place search for city. An empty or non-JSON response yields an
// empty list rather than an error; transport, HTTP status and oversized responses are errors.
func (c *Client) LookupPlaces(ctx context.Context, city string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("place", city)

	body, err := c.get(ctx, c.placesURL, q)
	if err != nil {
		return nil, fmt.Errorf("%w: place query %q: %w", ErrFetch, city, err)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return json.RawMessage("[]"), nil
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodySize)
	}
	return body, nil
}
