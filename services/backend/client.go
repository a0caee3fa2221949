package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"briefplay/models"
)

// Client talks to the podcast generation backend. Responses for media that is
// still being generated come back with empty URLs and zero durations; readiness
// decisions are left to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a backend client. timeout bounds every request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("backend %s %s failed: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// FindPodcast fetches an episode by id. The result may not be ready yet.
func (c *Client) FindPodcast(ctx context.Context, id string) (models.Episode, error) {
	var episode models.Episode
	err := c.getJSON(ctx, "/podcast/"+url.PathEscape(id), &episode)
	return episode, err
}

// Generate requests a freshly generated episode, optionally for a location.
// Generation is asynchronous: the returned episode usually has no duration yet.
func (c *Client) Generate(ctx context.Context, location []float64) (models.Episode, error) {
	payload := map[string]interface{}{}
	if len(location) > 0 {
		payload["location"] = location
	}
	var episode models.Episode
	err := c.postJSON(ctx, "/generate", payload, &episode)
	return episode, err
}

// GetTransition requests the bridge clip between two episodes. The first call
// kicks off generation server-side; subsequent calls poll for readiness.
func (c *Client) GetTransition(ctx context.Context, fromID, toID string) (models.Transition, error) {
	payload := map[string]string{"id1": fromID, "id2": toID}
	var transition models.Transition
	err := c.postJSON(ctx, "/transition", payload, &transition)
	if err == nil {
		transition.FromID = fromID
		transition.ToID = toID
	}
	return transition, err
}

// Recommendations fetches the recommendations list seeded by podcastID.
func (c *Client) Recommendations(ctx context.Context, podcastID string) ([]models.EpisodeCard, error) {
	path := "/recommendations"
	if podcastID != "" {
		path += "/" + url.PathEscape(podcastID)
	}
	var cards []models.EpisodeCard
	err := c.getJSON(ctx, path, &cards)
	return cards, err
}

// MarkAsPlayed submits a completed listening session report.
func (c *Client) MarkAsPlayed(ctx context.Context, report models.SessionReport) error {
	return c.postJSON(ctx, "/played", report, nil)
}

// LogPlayingPosition pings the backend with the live playback position.
func (c *Client) LogPlayingPosition(ctx context.Context, podcastID string, position int) error {
	payload := map[string]interface{}{"podcast_id": podcastID, "position": position}
	return c.postJSON(ctx, "/playing", payload, nil)
}

// Playlists lists the user's playlists.
func (c *Client) Playlists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := c.getJSON(ctx, "/playlists", &playlists)
	return playlists, err
}

// CreatePlaylist creates a playlist and returns it.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string) (models.Playlist, error) {
	payload := map[string]string{"name": name, "description": description}
	var playlist models.Playlist
	err := c.postJSON(ctx, "/playlist", payload, &playlist)
	return playlist, err
}

// DeletePlaylist removes a playlist.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/playlist/"+url.PathEscape(playlistID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// PlaylistItems lists the episodes in a playlist.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string) ([]models.EpisodeCard, error) {
	var cards []models.EpisodeCard
	err := c.getJSON(ctx, "/playlist/"+url.PathEscape(playlistID), &cards)
	return cards, err
}

// AddToPlaylist adds an episode to a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, podcastID string) error {
	payload := map[string]string{"podcast_id": podcastID}
	return c.postJSON(ctx, "/playlist/"+url.PathEscape(playlistID), payload, nil)
}

// RemoveFromPlaylist removes an episode from a playlist.
func (c *Client) RemoveFromPlaylist(ctx context.Context, playlistID, podcastID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/playlist/"+url.PathEscape(playlistID)+"/"+url.PathEscape(podcastID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// History fetches the backend listening history.
func (c *Client) History(ctx context.Context) ([]models.HistoryItem, error) {
	var items []models.HistoryItem
	err := c.getJSON(ctx, "/history", &items)
	return items, err
}

// Trending fetches the trending list.
func (c *Client) Trending(ctx context.Context) ([]models.EpisodeCard, error) {
	var cards []models.EpisodeCard
	err := c.getJSON(ctx, "/trending", &cards)
	return cards, err
}

// Search runs a full-text search over episodes.
func (c *Client) Search(ctx context.Context, query string) ([]models.EpisodeCard, error) {
	var cards []models.EpisodeCard
	err := c.getJSON(ctx, "/search?q="+url.QueryEscape(query), &cards)
	return cards, err
}
