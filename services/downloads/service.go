package downloads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"briefplay/models"
)

const indexFile = "downloads.json"

// Entry describes one locally stored episode.
type Entry struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	Path            string    `json:"path"`
	SizeBytes       int64     `json:"sizeBytes"`
	DownloadedAt    time.Time `json:"downloadedAt"`
}

// Service stores episode audio on a filesystem for offline playback and keeps
// a JSON index next to the files. The filesystem is abstracted so tests run
// against an in-memory one.
type Service struct {
	fs         afero.Fs
	dir        string
	httpClient *http.Client

	mu      sync.Mutex
	entries map[string]Entry
}

// NewService opens (or creates) the download directory and loads the index.
func NewService(fs afero.Fs, dir string, httpClient *http.Client) (*Service, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	s := &Service{
		fs:         fs,
		dir:        dir,
		httpClient: httpClient,
		entries:    make(map[string]Entry),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) indexPath() string {
	return filepath.Join(s.dir, indexFile)
}

func (s *Service) loadIndex() error {
	data, err := afero.ReadFile(s.fs, s.indexPath())
	if err != nil {
		// A missing index just means nothing was downloaded yet.
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse download index: %w", err)
	}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

// saveIndexLocked writes the index atomically.
func (s *Service) saveIndexLocked() error {
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DownloadedAt.After(entries[j].DownloadedAt)
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode download index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write download index: %w", err)
	}
	if err := s.fs.Rename(tmp, s.indexPath()); err != nil {
		return fmt.Errorf("failed to replace download index: %w", err)
	}
	return nil
}

// Download fetches the episode audio into the store. Already downloaded
// episodes are a no-op.
func (s *Service) Download(ctx context.Context, episode models.Episode) error {
	if episode.AudioURL == "" {
		return fmt.Errorf("episode %s has no audio url", episode.ID)
	}
	if s.IsDownloaded(episode.ID) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, episode.AudioURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", episode.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download of %s returned status %d", episode.ID, resp.StatusCode)
	}

	name := episode.ID + ".mp3"
	path := filepath.Join(s.dir, name)
	tmp := path + ".part"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	size, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("failed to store %s: %w", episode.ID, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("failed to finalize download of %s: %w", episode.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[episode.ID] = Entry{
		ID:              episode.ID,
		Title:           episode.Title,
		ImageURL:        episode.ImageURL,
		DurationSeconds: episode.DurationSeconds,
		Path:            path,
		SizeBytes:       size,
		DownloadedAt:    time.Now(),
	}
	if err := s.saveIndexLocked(); err != nil {
		return err
	}
	log.Printf("[downloads] stored %s (%d bytes)", episode.ID, size)
	return nil
}

// IsDownloaded reports whether the episode audio is stored locally.
func (s *Service) IsDownloaded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// Path returns the local audio path for a downloaded episode.
func (s *Service) Path(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return "", false
	}
	return e.Path, true
}

// List returns all downloads, newest first.
func (s *Service) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DownloadedAt.After(entries[j].DownloadedAt)
	})
	return entries
}

// Delete removes a downloaded episode and its audio file.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	if err := s.fs.Remove(e.Path); err != nil {
		log.Printf("[downloads] failed to remove audio for %s: %v", id, err)
	}
	delete(s.entries, id)
	return s.saveIndexLocked()
}
