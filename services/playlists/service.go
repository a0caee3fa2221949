package playlists

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"briefplay/models"
	"briefplay/services/backend"
)

type backendClient interface {
	Playlists(ctx context.Context) ([]models.Playlist, error)
	CreatePlaylist(ctx context.Context, name, description string) (models.Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID string) error
	PlaylistItems(ctx context.Context, playlistID string) ([]models.EpisodeCard, error)
	AddToPlaylist(ctx context.Context, playlistID, podcastID string) error
	RemoveFromPlaylist(ctx context.Context, playlistID, podcastID string) error
}

var _ backendClient = (*backend.Client)(nil)

// Service caches the playlist list so the UI does not hit the backend on
// every render. Mutations go straight through and drop the cache.
type Service struct {
	backend backendClient
	ttl     time.Duration

	mu        sync.Mutex
	cached    []models.Playlist
	fetchedAt time.Time
}

// NewService creates a playlist cache with the given freshness window.
func NewService(client backendClient, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{backend: client, ttl: ttl}
}

// List returns the playlists, served from cache while fresh.
func (s *Service) List(ctx context.Context) ([]models.Playlist, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		out := make([]models.Playlist, len(s.cached))
		copy(out, s.cached)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	playlists, err := s.backend.Playlists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlists: %w", err)
	}

	s.mu.Lock()
	s.cached = playlists
	s.fetchedAt = time.Now()
	out := make([]models.Playlist, len(playlists))
	copy(out, playlists)
	s.mu.Unlock()
	return out, nil
}

// Create adds a playlist and drops the cache.
func (s *Service) Create(ctx context.Context, name, description string) (models.Playlist, error) {
	playlist, err := s.backend.CreatePlaylist(ctx, name, description)
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to create playlist: %w", err)
	}
	s.Invalidate()
	return playlist, nil
}

// Delete removes a playlist and drops the cache. The like playlist cannot be
// deleted.
func (s *Service) Delete(ctx context.Context, playlistID string) error {
	if playlistID == models.LikePlaylistID {
		return fmt.Errorf("the %s playlist cannot be deleted", models.LikePlaylistID)
	}
	if err := s.backend.DeletePlaylist(ctx, playlistID); err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	s.Invalidate()
	return nil
}

// Items returns the episodes of one playlist. Never cached; playlist
// membership changes from the player too.
func (s *Service) Items(ctx context.Context, playlistID string) ([]models.EpisodeCard, error) {
	items, err := s.backend.PlaylistItems(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist items: %w", err)
	}
	return items, nil
}

// AddItem adds an episode to a playlist and drops the cache.
func (s *Service) AddItem(ctx context.Context, playlistID, podcastID string) error {
	if err := s.backend.AddToPlaylist(ctx, playlistID, podcastID); err != nil {
		return fmt.Errorf("failed to add to playlist: %w", err)
	}
	s.Invalidate()
	return nil
}

// RemoveItem removes an episode from a playlist and drops the cache.
func (s *Service) RemoveItem(ctx context.Context, playlistID, podcastID string) error {
	if err := s.backend.RemoveFromPlaylist(ctx, playlistID, podcastID); err != nil {
		return fmt.Errorf("failed to remove from playlist: %w", err)
	}
	s.Invalidate()
	return nil
}

// Invalidate drops the cached playlist list. Called after any mutation,
// including like toggles made by the player.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
	log.Printf("[playlists] cache invalidated")
}
