package rest

import (
	"encoding/json"
	"net/http"
)

type userResponse struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Enabled     bool   `json:"enabled"`
	FeedUrl     string `json:"feed_url"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
