package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"briefplay/models"
	playersvc "briefplay/services/player"
)

type playerService interface {
	Load(id string, external, autoPlay bool)
	Generate(location []float64)
	SetQueue(items []models.EpisodeCard, startIndex int, external, autoPlay bool)
	Play()
	Pause()
	Seek(position float64)
	SkipForward()
	SkipBackward()
	Next(autoPlay bool)
	Previous()
	ToggleLike() error
	ToggleDislike() error
	AddToPlaylist(playlistID string) error
	Download(ctx context.Context) error
	Snapshot() models.PlaybackState
}

// PlayerHandler exposes the playback orchestrator over HTTP. Every mutation
// responds with the fresh playback state so the UI never needs a second
// round trip.
type PlayerHandler struct {
	Service playerService
}

var _ playerService = (*playersvc.Service)(nil)

func NewPlayerHandler(s playerService) *PlayerHandler {
	return &PlayerHandler{Service: s}
}

func (h *PlayerHandler) writeState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.Snapshot())
}

// State reports the current playback snapshot.
func (h *PlayerHandler) State(w http.ResponseWriter, r *http.Request) {
	h.writeState(w)
}

// Load starts playback of one episode by id.
func (h *PlayerHandler) Load(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ID       string `json:"id"`
		External bool   `json:"external"`
		AutoPlay bool   `json:"autoPlay"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	log.Printf("[player-handler] load id=%s external=%t", request.ID, request.External)
	h.Service.Load(request.ID, request.External, request.AutoPlay)
	h.writeState(w)
}

// Generate requests a freshly generated episode for a location.
func (h *PlayerHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Location []float64 `json:"location"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Service.Generate(request.Location)
	h.writeState(w)
}

// Queue replaces the playback queue.
func (h *PlayerHandler) Queue(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Items      []models.EpisodeCard `json:"items"`
		StartIndex int                  `json:"startIndex"`
		External   bool                 `json:"external"`
		AutoPlay   bool                 `json:"autoPlay"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(request.Items) == 0 {
		http.Error(w, "items are required", http.StatusBadRequest)
		return
	}

	log.Printf("[player-handler] queue %d items start=%d", len(request.Items), request.StartIndex)
	h.Service.SetQueue(request.Items, request.StartIndex, request.External, request.AutoPlay)
	h.writeState(w)
}

// Play resumes playback.
func (h *PlayerHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.Service.Play()
	h.writeState(w)
}

// Pause halts playback.
func (h *PlayerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.Service.Pause()
	h.writeState(w)
}

// Seek jumps to a position in seconds.
func (h *PlayerHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Position float64 `json:"position"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Position < 0 {
		http.Error(w, "position must not be negative", http.StatusBadRequest)
		return
	}

	h.Service.Seek(request.Position)
	h.writeState(w)
}

// SkipForward seeks ahead by the configured skip interval.
func (h *PlayerHandler) SkipForward(w http.ResponseWriter, r *http.Request) {
	h.Service.SkipForward()
	h.writeState(w)
}

// SkipBackward seeks back by the configured skip interval.
func (h *PlayerHandler) SkipBackward(w http.ResponseWriter, r *http.Request) {
	h.Service.SkipBackward()
	h.writeState(w)
}

// Next advances to the next queue item. The body is optional; a bare POST is
// a manual skip with auto-play on.
func (h *PlayerHandler) Next(w http.ResponseWriter, r *http.Request) {
	request := struct {
		AutoPlay bool `json:"autoPlay"`
	}{AutoPlay: true}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Service.Next(request.AutoPlay)
	h.writeState(w)
}

// Previous moves back to the previous queue item.
func (h *PlayerHandler) Previous(w http.ResponseWriter, r *http.Request) {
	h.Service.Previous()
	h.writeState(w)
}

// Like toggles the like flag of the current episode.
func (h *PlayerHandler) Like(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ToggleLike(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.writeState(w)
}

// Dislike toggles the dislike flag of the current episode.
func (h *PlayerHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ToggleDislike(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	h.writeState(w)
}

// AddToPlaylist adds the current episode to a playlist.
func (h *PlayerHandler) AddToPlaylist(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PlaylistID string `json:"playlistId"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.PlaylistID == "" {
		http.Error(w, "playlistId is required", http.StatusBadRequest)
		return
	}

	if err := h.Service.AddToPlaylist(request.PlaylistID); err != nil {
		if errors.Is(err, playersvc.ErrNoEpisode) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeState(w)
}

// Download stores the current episode locally.
func (h *PlayerHandler) Download(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Download(r.Context()); err != nil {
		if errors.Is(err, playersvc.ErrNoEpisode) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeState(w)
}
