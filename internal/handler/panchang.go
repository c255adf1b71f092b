package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/panchang"
)

// PanchangSource is the upstream feed as the public routes use it.
type PanchangSource interface {
	Fetch(ctx context.Context, locationID string, date time.Time) (*panchang.Payload, error)
	LookupPlaces(ctx context.Context, city string) (json.RawMessage, error)
}

// PanchangHandler serves the public, unauthenticated feed routes.
type PanchangHandler struct {
	source PanchangSource
	logger *slog.Logger
}

func NewPanchangHandler(source PanchangSource, logger *slog.Logger) *PanchangHandler {
	return &PanchangHandler{source: source, logger: logger}
}

// HandlePanchang returns the raw feed payload.
//
// HTTP: GET /api/panchang?location_id=...&date=YYYY-MM-DD
func (h *PanchangHandler) HandlePanchang(w http.ResponseWriter, r *http.Request) {
	payload, err := h.fetch(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// HandleDigest renders the digest email for a location as an HTML page, exactly as it would
// be mailed.
//
// HTTP: GET /api/panchang/digest?location_id=...&city_name=...&date=YYYY-MM-DD
func (h *PanchangHandler) HandleDigest(w http.ResponseWriter, r *http.Request) {
	payload, err := h.fetch(r)
	if err != nil {
		writeError(w, err)
		return
	}

	city := r.URL.Query().Get("city_name")
	if city == "" {
		city = payload.LocationID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := panchang.Render(w, city, payload.Date, panchang.Parse(payload.RawData)); err != nil {
		h.logger.Error("rendering digest preview failed", slog.String("error", err.Error()))
	}
}

// HandleLocations proxies the place search. An empty or unparseable upstream answer is an
// empty list, not an error.
//
// HTTP: GET /api/locations?city=...
func (h *PanchangHandler) HandleLocations(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		writeError(w, apperror.ValidationFailed("city", "city parameter is required"))
		return
	}

	places, err := h.source.LookupPlaces(r.Context(), city)
	if err != nil {
		h.logger.Error("error fetching location data",
			slog.String("city", city),
			slog.String("error", err.Error()),
		)
		writeError(w, apperror.Upstream("Failed to fetch location data", err))
		return
	}

	writeRawJSON(w, http.StatusOK, places)
}

func (h *PanchangHandler) fetch(r *http.Request) (*panchang.Payload, error) {
	q := r.URL.Query()

	locationID := q.Get("location_id")
	if locationID == "" {
		return nil, apperror.ValidationFailed("location_id", "location_id is required")
	}

	var date time.Time
	if s := q.Get("date"); s != "" {
		d, err := time.Parse(panchang.DateLayout, s)
		if err != nil {
			return nil, apperror.ValidationFailed("date", "Invalid date format. Use YYYY-MM-DD")
		}
		date = d
	}

	payload, err := h.source.Fetch(r.Context(), locationID, date)
	if err != nil {
		h.logger.Error("fetching panchang failed",
			slog.String("location_id", locationID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("Failed to fetch panchang data", err)
	}
	return payload, nil
}
