package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"briefplay/handlers"
	"briefplay/models"
)

// fakePlayer records calls and serves a canned snapshot.
type fakePlayer struct {
	state models.PlaybackState

	loadedID       string
	loadedExternal bool
	loadedAutoPlay bool
	generated      []float64
	queued         []models.EpisodeCard
	queueStart     int
	played         bool
	paused         bool
	seeked         float64
	skippedFwd     bool
	skippedBack    bool
	nexted         bool
	nextAutoPlay   bool
	previoused     bool
	liked          bool
	disliked       bool
	playlistID     string
	downloaded     bool

	err error
}

func (f *fakePlayer) Load(id string, external, autoPlay bool) {
	f.loadedID, f.loadedExternal, f.loadedAutoPlay = id, external, autoPlay
}
func (f *fakePlayer) Generate(location []float64) { f.generated = location }
func (f *fakePlayer) SetQueue(items []models.EpisodeCard, startIndex int, external, autoPlay bool) {
	f.queued, f.queueStart = items, startIndex
}
func (f *fakePlayer) Play()                 { f.played = true }
func (f *fakePlayer) Pause()                { f.paused = true }
func (f *fakePlayer) Seek(position float64) { f.seeked = position }
func (f *fakePlayer) SkipForward()          { f.skippedFwd = true }
func (f *fakePlayer) SkipBackward()         { f.skippedBack = true }
func (f *fakePlayer) Next(autoPlay bool)    { f.nexted, f.nextAutoPlay = true, autoPlay }
func (f *fakePlayer) Previous()             { f.previoused = true }
func (f *fakePlayer) ToggleLike() error {
	f.liked = true
	return f.err
}
func (f *fakePlayer) ToggleDislike() error {
	f.disliked = true
	return f.err
}
func (f *fakePlayer) AddToPlaylist(playlistID string) error {
	f.playlistID = playlistID
	return f.err
}
func (f *fakePlayer) Download(ctx context.Context) error {
	f.downloaded = true
	return f.err
}
func (f *fakePlayer) Snapshot() models.PlaybackState { return f.state }

func TestPlayerStateReturnsSnapshot(t *testing.T) {
	fake := &fakePlayer{state: models.PlaybackState{IsPlaying: true, Position: 42.5}}
	h := handlers.NewPlayerHandler(fake)

	rr := httptest.NewRecorder()
	h.State(rr, httptest.NewRequest(http.MethodGet, "/api/player/state", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var state models.PlaybackState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.True(t, state.IsPlaying)
	assert.Equal(t, 42.5, state.Position)
}

func TestPlayerLoadRequiresID(t *testing.T) {
	h := handlers.NewPlayerHandler(&fakePlayer{})

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"external":true}`)
	h.Load(rr, httptest.NewRequest(http.MethodPost, "/api/player/load", body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlayerLoadForwardsFlags(t *testing.T) {
	fake := &fakePlayer{}
	h := handlers.NewPlayerHandler(fake)

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"id":"p1","external":true,"autoPlay":true}`)
	h.Load(rr, httptest.NewRequest(http.MethodPost, "/api/player/load", body))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "p1", fake.loadedID)
	assert.True(t, fake.loadedExternal)
	assert.True(t, fake.loadedAutoPlay)
}

func TestPlayerLoadRejectsUnknownFields(t *testing.T) {
	h := handlers.NewPlayerHandler(&fakePlayer{})

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"id":"p1","bogus":1}`)
	h.Load(rr, httptest.NewRequest(http.MethodPost, "/api/player/load", body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlayerQueueRequiresItems(t *testing.T) {
	h := handlers.NewPlayerHandler(&fakePlayer{})

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"items":[],"startIndex":0}`)
	h.Queue(rr, httptest.NewRequest(http.MethodPost, "/api/player/queue", body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlayerQueueForwardsItems(t *testing.T) {
	fake := &fakePlayer{}
	h := handlers.NewPlayerHandler(fake)

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"items":[{"id":"a"},{"id":"b"}],"startIndex":1,"autoPlay":true}`)
	h.Queue(rr, httptest.NewRequest(http.MethodPost, "/api/player/queue", body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, fake.queued, 2)
	assert.Equal(t, "b", fake.queued[1].ID)
	assert.Equal(t, 1, fake.queueStart)
}

func TestPlayerSeekRejectsNegativePosition(t *testing.T) {
	h := handlers.NewPlayerHandler(&fakePlayer{})

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"position":-3}`)
	h.Seek(rr, httptest.NewRequest(http.MethodPost, "/api/player/seek", body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlayerNextDefaultsToAutoPlay(t *testing.T) {
	fake := &fakePlayer{}
	h := handlers.NewPlayerHandler(fake)

	rr := httptest.NewRecorder()
	h.Next(rr, httptest.NewRequest(http.MethodPost, "/api/player/next", bytes.NewReader(nil)))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, fake.nexted)
	assert.True(t, fake.nextAutoPlay)
}

func TestPlayerNextHonorsExplicitAutoPlay(t *testing.T) {
	fake := &fakePlayer{}
	h := handlers.NewPlayerHandler(fake)

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"autoPlay":false}`)
	h.Next(rr, httptest.NewRequest(http.MethodPost, "/api/player/next", body))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, fake.nexted)
	assert.False(t, fake.nextAutoPlay)
}

func TestPlayerLikeConflictWithoutEpisode(t *testing.T) {
	fake := &fakePlayer{err: assert.AnError}
	h := handlers.NewPlayerHandler(fake)

	rr := httptest.NewRecorder()
	h.Like(rr, httptest.NewRequest(http.MethodPost, "/api/player/like", nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestPlayerAddToPlaylistRequiresID(t *testing.T) {
	h := handlers.NewPlayerHandler(&fakePlayer{})

	rr := httptest.NewRecorder()
	body := bytes.NewBufferString(`{}`)
	h.AddToPlaylist(rr, httptest.NewRequest(http.MethodPost, "/api/player/playlist", body))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
