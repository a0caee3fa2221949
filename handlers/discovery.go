package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"briefplay/models"
	"briefplay/services/backend"
)

type discoveryBackend interface {
	Trending(ctx context.Context) ([]models.EpisodeCard, error)
	Search(ctx context.Context, query string) ([]models.EpisodeCard, error)
	Recommendations(ctx context.Context, podcastID string) ([]models.EpisodeCard, error)
}

var _ discoveryBackend = (*backend.Client)(nil)

// DiscoveryHandler proxies the backend's browse endpoints so the UI talks to
// a single origin.
type DiscoveryHandler struct {
	Backend discoveryBackend
}

func NewDiscoveryHandler(backend discoveryBackend) *DiscoveryHandler {
	return &DiscoveryHandler{Backend: backend}
}

func writeCards(w http.ResponseWriter, cards []models.EpisodeCard) {
	if cards == nil {
		cards = []models.EpisodeCard{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cards)
}

// Trending returns the trending feed.
func (h *DiscoveryHandler) Trending(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Backend.Trending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeCards(w, cards)
}

// Search runs a text search against the catalog.
func (h *DiscoveryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	cards, err := h.Backend.Search(r.Context(), query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeCards(w, cards)
}

// Recommendations returns episodes similar to the given one, or general
// recommendations without an id.
func (h *DiscoveryHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Backend.Recommendations(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeCards(w, cards)
}
