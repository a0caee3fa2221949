package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"briefplay/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// tokenMiddleware rejects requests without the configured API token. A blank
// token disables the check.
func tokenMiddleware(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("X-Api-Token") != token {
				http.Error(w, "invalid api token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	apiToken string,
	playerHandler *handlers.PlayerHandler,
	discoveryHandler *handlers.DiscoveryHandler,
	playlistsHandler *handlers.PlaylistsHandler,
	downloadsHandler *handlers.DownloadsHandler,
	historyHandler *handlers.HistoryHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)
	api.Use(tokenMiddleware(apiToken))

	// Player control surface
	api.HandleFunc("/player/state", playerHandler.State).Methods(http.MethodGet)
	api.HandleFunc("/player/load", playerHandler.Load).Methods(http.MethodPost)
	api.HandleFunc("/player/generate", playerHandler.Generate).Methods(http.MethodPost)
	api.HandleFunc("/player/queue", playerHandler.Queue).Methods(http.MethodPost)
	api.HandleFunc("/player/play", playerHandler.Play).Methods(http.MethodPost)
	api.HandleFunc("/player/pause", playerHandler.Pause).Methods(http.MethodPost)
	api.HandleFunc("/player/seek", playerHandler.Seek).Methods(http.MethodPost)
	api.HandleFunc("/player/skip-forward", playerHandler.SkipForward).Methods(http.MethodPost)
	api.HandleFunc("/player/skip-backward", playerHandler.SkipBackward).Methods(http.MethodPost)
	api.HandleFunc("/player/next", playerHandler.Next).Methods(http.MethodPost)
	api.HandleFunc("/player/previous", playerHandler.Previous).Methods(http.MethodPost)
	api.HandleFunc("/player/like", playerHandler.Like).Methods(http.MethodPost)
	api.HandleFunc("/player/dislike", playerHandler.Dislike).Methods(http.MethodPost)
	api.HandleFunc("/player/playlist", playerHandler.AddToPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/player/download", playerHandler.Download).Methods(http.MethodPost)

	// Discovery
	api.HandleFunc("/trending", discoveryHandler.Trending).Methods(http.MethodGet)
	api.HandleFunc("/search", discoveryHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/recommendations", discoveryHandler.Recommendations).Methods(http.MethodGet)

	// Playlists
	api.HandleFunc("/playlists", playlistsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/playlists", playlistsHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{playlistID}", playlistsHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/playlists/{playlistID}/items", playlistsHandler.Items).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{playlistID}/items", playlistsHandler.AddItem).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{playlistID}/items/{podcastID}", playlistsHandler.RemoveItem).Methods(http.MethodDelete)

	// Downloads
	api.HandleFunc("/downloads", downloadsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/downloads/{id}", downloadsHandler.Delete).Methods(http.MethodDelete)

	// History
	api.HandleFunc("/history", historyHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/history/local", historyHandler.Local).Methods(http.MethodGet)
}
