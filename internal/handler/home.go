package handler

import "net/http"

// HandleIndex greets API clients at the root.
func HandleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Welcome to Panchang API"})
}

// HandleHealth is the liveness probe.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
