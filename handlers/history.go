package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"briefplay/internal/database"
	"briefplay/models"
	"briefplay/services/backend"
)

type historyBackend interface {
	History(ctx context.Context) ([]models.HistoryItem, error)
}

type historyStore interface {
	Recent(limit int) ([]models.HistoryItem, error)
}

var _ historyBackend = (*backend.Client)(nil)
var _ historyStore = (*database.DB)(nil)

// HistoryHandler serves listening history, preferring the backend and falling
// back to the local mirror when it is unreachable.
type HistoryHandler struct {
	Backend historyBackend
	Store   historyStore
}

func NewHistoryHandler(backend historyBackend, store historyStore) *HistoryHandler {
	return &HistoryHandler{Backend: backend, Store: store}
}

func parseLimit(r *http.Request) int {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}

// List returns listening history, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Backend.History(r.Context())
	if err != nil {
		log.Printf("[history-handler] backend history unavailable, using local mirror: %v", err)
		if h.Store == nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		items, err = h.Store.Recent(parseLimit(r))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if items == nil {
		items = []models.HistoryItem{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// Local returns only the locally mirrored history.
func (h *HistoryHandler) Local(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "local history is not configured", http.StatusNotFound)
		return
	}
	items, err := h.Store.Recent(parseLimit(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []models.HistoryItem{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}
