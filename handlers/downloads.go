package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	downloadssvc "briefplay/services/downloads"
)

type downloadService interface {
	List() []downloadssvc.Entry
	Delete(id string) error
}

var _ downloadService = (*downloadssvc.Service)(nil)

// DownloadsHandler lists and removes locally stored episodes.
type DownloadsHandler struct {
	Service downloadService
}

func NewDownloadsHandler(s downloadService) *DownloadsHandler {
	return &DownloadsHandler{Service: s}
}

// List returns all downloads, newest first.
func (h *DownloadsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.Service.List()
	if entries == nil {
		entries = []downloadssvc.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// Delete removes one download and its audio file.
func (h *DownloadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(mux.Vars(r)["id"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
