package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"briefplay/models"
	playlistssvc "briefplay/services/playlists"
)

type playlistService interface {
	List(ctx context.Context) ([]models.Playlist, error)
	Create(ctx context.Context, name, description string) (models.Playlist, error)
	Delete(ctx context.Context, playlistID string) error
	Items(ctx context.Context, playlistID string) ([]models.EpisodeCard, error)
	AddItem(ctx context.Context, playlistID, podcastID string) error
	RemoveItem(ctx context.Context, playlistID, podcastID string) error
}

var _ playlistService = (*playlistssvc.Service)(nil)

// PlaylistsHandler exposes playlist CRUD and membership.
type PlaylistsHandler struct {
	Service playlistService
}

func NewPlaylistsHandler(s playlistService) *PlaylistsHandler {
	return &PlaylistsHandler{Service: s}
}

// List returns all playlists.
func (h *PlaylistsHandler) List(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.Service.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(playlists)
}

// Create adds a playlist.
func (h *PlaylistsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	playlist, err := h.Service.Create(r.Context(), request.Name, request.Description)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(playlist)
}

// Delete removes a playlist.
func (h *PlaylistsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	playlistID := mux.Vars(r)["playlistID"]
	if err := h.Service.Delete(r.Context(), playlistID); err != nil {
		if playlistID == models.LikePlaylistID {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Items returns the episodes in a playlist.
func (h *PlaylistsHandler) Items(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.Items(r.Context(), mux.Vars(r)["playlistID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if items == nil {
		items = []models.EpisodeCard{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}

// AddItem adds an episode to a playlist.
func (h *PlaylistsHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PodcastID string `json:"podcastId"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.PodcastID == "" {
		http.Error(w, "podcastId is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.AddItem(r.Context(), mux.Vars(r)["playlistID"], request.PodcastID); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveItem removes an episode from a playlist.
func (h *PlaylistsHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.RemoveItem(r.Context(), mux.Vars(r)["playlistID"], mux.Vars(r)["podcastID"]); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
