package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/panchang/internal/apperror"
	"github.com/sakif/panchang/internal/auth"
	"github.com/sakif/panchang/internal/model"
	"github.com/sakif/panchang/internal/service"
)

const isoLayout = time.RFC3339

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Subscriptions is the part of service.SubscriptionService the routes use.
type Subscriptions interface {
	Subscribe(ctx context.Context, userID int64, in service.SubscribeInput) (*model.Subscription, error)
	List(ctx context.Context, userID int64) ([]model.Subscription, error)
	Unsubscribe(ctx context.Context, userID, subscriptionID int64) error
}

// SubscriptionHandler serves the subscription routes. All of them sit behind
// auth.RequireAPIToken.
type SubscriptionHandler struct {
	svc    Subscriptions
	logger *slog.Logger
}

func NewSubscriptionHandler(svc Subscriptions, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc, logger: logger}
}

// SubscribeResponse acknowledges a new subscription.
type SubscribeResponse struct {
	Message        string `json:"message"`
	SubscriptionID int64  `json:"subscription_id"`
}

// SubscriptionResponse is one entry of the subscription list.
type SubscriptionResponse struct {
	ID         int64  `json:"id"`
	LocationID string `json:"location_id"`
	CityName   string `json:"city_name"`
	Email      string `json:"email"`
	CreatedAt  string `json:"created_at"`
}

// HandleSubscribe creates a subscription for the token's user.
//
// HTTP: POST /api/subscribe
// Body: {"location_id": "...", "city_name": "...", "email": "..."}
func (h *SubscriptionHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("API token is missing"))
		return
	}

	var in service.SubscribeInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON request body"))
		return
	}

	sub, err := h.svc.Subscribe(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SubscribeResponse{
		Message:        "Successfully subscribed",
		SubscriptionID: sub.ID,
	})
}

// HandleList returns the token user's active subscriptions.
//
// HTTP: GET /api/subscriptions
func (h *SubscriptionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("API token is missing"))
		return
	}

	subs, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing subscriptions failed",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, SubscriptionResponse{
			ID:         s.ID,
			LocationID: s.LocationID,
			CityName:   s.CityName,
			Email:      s.Email,
			CreatedAt:  s.CreatedAt.UTC().Format(isoLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUnsubscribe deactivates one of the token user's subscriptions.
//
// HTTP: DELETE /api/subscriptions/{id}
func (h *SubscriptionHandler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("API token is missing"))
		return
	}

	idParam := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperror.NotFound("subscription", idParam))
		return
	}

	if err := h.svc.Unsubscribe(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully unsubscribed"})
}
