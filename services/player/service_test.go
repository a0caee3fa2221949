package player_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"briefplay/config"
	"briefplay/models"
	"briefplay/services/player"
)

// fakeBackend scripts the generation backend for orchestrator tests.
type fakeBackend struct {
	mu sync.Mutex

	episodes    map[string]models.Episode
	transitions map[string]models.Transition

	// readyAfter delays episode readiness until N FindPodcast calls.
	readyAfter map[string]int
	// transitionReadyAfter delays transition readiness until N GetTransition calls.
	transitionReadyAfter map[string]int

	recPages [][]models.EpisodeCard
	recCalls int

	findCalls       map[string]int
	transitionCalls map[string]int
	positionPings   []string
	reports         []models.SessionReport
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		episodes:             make(map[string]models.Episode),
		transitions:          make(map[string]models.Transition),
		readyAfter:           make(map[string]int),
		transitionReadyAfter: make(map[string]int),
		findCalls:            make(map[string]int),
		transitionCalls:      make(map[string]int),
	}
}

func (f *fakeBackend) addEpisode(id string, duration float64) models.Episode {
	ep := readyEpisode(id, duration)
	f.mu.Lock()
	f.episodes[id] = ep
	f.mu.Unlock()
	return ep
}

func (f *fakeBackend) addTransition(fromID, toID string, duration float64) {
	key := fromID + "|" + toID
	f.mu.Lock()
	f.transitions[key] = models.Transition{
		FromID:          fromID,
		ToID:            toID,
		AudioURL:        "https://cdn.example.com/t/" + key + ".mp3",
		DurationSeconds: duration,
	}
	f.mu.Unlock()
}

func (f *fakeBackend) FindPodcast(ctx context.Context, id string) (models.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls[id]++
	ep, ok := f.episodes[id]
	if !ok {
		return models.Episode{}, fmt.Errorf("podcast %s not found", id)
	}
	if f.findCalls[id] < f.readyAfter[id] {
		ep.DurationSeconds = 0
	}
	return ep, nil
}

func (f *fakeBackend) Generate(ctx context.Context, location []float64) (models.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes["generated"]
	if !ok {
		return models.Episode{ID: "generated"}, nil
	}
	return ep, nil
}

func (f *fakeBackend) GetTransition(ctx context.Context, fromID, toID string) (models.Transition, error) {
	key := fromID + "|" + toID
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitionCalls[key]++
	t, ok := f.transitions[key]
	if !ok {
		return models.Transition{FromID: fromID, ToID: toID}, nil
	}
	if f.transitionCalls[key] < f.transitionReadyAfter[key] {
		t.DurationSeconds = 0
		t.AudioURL = ""
	}
	return t, nil
}

func (f *fakeBackend) Recommendations(ctx context.Context, podcastID string) ([]models.EpisodeCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recPages) == 0 {
		return nil, nil
	}
	page := f.recCalls
	if page >= len(f.recPages) {
		page = len(f.recPages) - 1
	}
	f.recCalls++
	out := make([]models.EpisodeCard, len(f.recPages[page]))
	copy(out, f.recPages[page])
	return out, nil
}

func (f *fakeBackend) LogPlayingPosition(ctx context.Context, podcastID string, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionPings = append(f.positionPings, podcastID)
	return nil
}

func (f *fakeBackend) MarkAsPlayed(ctx context.Context, report models.SessionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeBackend) AddToPlaylist(ctx context.Context, playlistID, podcastID string) error {
	return nil
}

func (f *fakeBackend) RemoveFromPlaylist(ctx context.Context, playlistID, podcastID string) error {
	return nil
}

func (f *fakeBackend) transitionCallCount(fromID, toID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transitionCalls[fromID+"|"+toID]
}

func (f *fakeBackend) findCallCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls[id]
}

func (f *fakeBackend) reportedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.reports))
	for i, r := range f.reports {
		ids[i] = r.PodcastID
	}
	return ids
}

func (f *fakeBackend) reportFor(id string) (models.SessionReport, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.PodcastID == id {
			return r, true
		}
	}
	return models.SessionReport{}, false
}

func (f *fakeBackend) recCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recCalls
}

func (f *fakeBackend) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.positionPings)
}

func testSettings() config.PlaybackSettings {
	return config.PlaybackSettings{
		PositionLogIntervalSeconds:    0.02,
		ReadinessPollIntervalSeconds:  0.02,
		TransitionPollIntervalSeconds: 0.02,
		GenerationMaxAttempts:         3,
		GenerationRetryDelaySeconds:   0.02,
		RecommendationMaxAttempts:     2,
		RecommendationRetrySeconds:    0.02,
		SkipForwardSeconds:            30,
		SkipBackwardSeconds:           15,
	}
}

func newTestService(t *testing.T, backend *fakeBackend) (*player.Service, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	engine := player.NewEngine(factory.build)
	session := player.NewSessionRecorder(backend, nil, testSettings().PositionLogIntervalSeconds)
	svc := player.NewService(testSettings(), backend, engine, session, nil, nil)
	svc.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc, factory
}

func waitFor(t *testing.T, timeout time.Duration, message string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}

func playingID(svc *player.Service) string {
	state := svc.Snapshot()
	if state.Episode == nil {
		return ""
	}
	return state.Episode.ID
}

func TestLoadPlaysReadyEpisode(t *testing.T) {
	backend := newFakeBackend()
	ep := backend.addEpisode("a", 120)
	svc, factory := newTestService(t, backend)

	svc.Load("a", false, true)

	waitFor(t, 2*time.Second, "episode a never started playing", func() bool {
		state := svc.Snapshot()
		return state.Episode != nil && state.Episode.ID == "a" && state.IsPlaying
	})
	if got := factory.last().url; got != ep.AudioURL {
		t.Fatalf("engine loaded %q, want %q", got, ep.AudioURL)
	}
}

func TestLoadPollsUntilEpisodeIsReady(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 120)
	backend.mu.Lock()
	backend.readyAfter["a"] = 3
	backend.mu.Unlock()
	svc, _ := newTestService(t, backend)

	svc.Load("a", false, true)

	waitFor(t, 3*time.Second, "episode a never became ready", func() bool {
		state := svc.Snapshot()
		return state.IsPlaying && state.Episode != nil && state.Episode.DurationSeconds > 0
	})
	if calls := backend.findCallCount("a"); calls < 3 {
		t.Fatalf("expected at least 3 readiness checks, got %d", calls)
	}
}

func TestTransitionPlaysBetweenQueueItems(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	backend.addEpisode("b", 80)
	backend.addTransition("a", "b", 8)
	backend.mu.Lock()
	backend.transitionReadyAfter["a|b"] = 3
	backend.mu.Unlock()
	svc, factory := newTestService(t, backend)

	svc.SetQueue(cards("a", "b"), 0, false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a" && svc.Snapshot().IsPlaying
	})

	factory.last().events <- player.Event{Kind: player.EventEnded}

	waitFor(t, 3*time.Second, "transition a->b never started", func() bool {
		return svc.Snapshot().IsPlayingTransition
	})
	state := svc.Snapshot()
	if state.Transition == nil || state.Transition.FromID != "a" || state.Transition.ToID != "b" {
		t.Fatalf("unexpected transition in state: %+v", state.Transition)
	}
	if calls := backend.transitionCallCount("a", "b"); calls < 3 {
		t.Fatalf("expected the transition to be polled until ready, got %d calls", calls)
	}

	// Finish the transition clip; the next episode must load and play.
	factory.last().events <- player.Event{Kind: player.EventEnded}
	waitFor(t, 3*time.Second, "episode b never started after the transition", func() bool {
		return playingID(svc) == "b" && svc.Snapshot().IsPlaying && !svc.Snapshot().IsPlayingTransition
	})

	// The completed episode's session must have been reported.
	waitFor(t, 2*time.Second, "session report for a never arrived", func() bool {
		for _, id := range backend.reportedIDs() {
			if id == "a" {
				return true
			}
		}
		return false
	})
}

func TestPreviousSkipsTransitionLogic(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	backend.addEpisode("b", 80)
	svc, _ := newTestService(t, backend)

	svc.SetQueue(cards("a", "b"), 1, false, true)
	waitFor(t, 2*time.Second, "episode b never started", func() bool {
		return playingID(svc) == "b"
	})

	svc.Previous()
	waitFor(t, 2*time.Second, "episode a never started after previous", func() bool {
		return playingID(svc) == "a"
	})
	if calls := backend.transitionCallCount("b", "a"); calls != 0 {
		t.Fatalf("previous must never request a transition, got %d calls", calls)
	}
}

func TestNextDuringTransitionShortCircuits(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	backend.addEpisode("b", 80)
	backend.addTransition("a", "b", 600)
	svc, factory := newTestService(t, backend)

	svc.SetQueue(cards("a", "b"), 0, false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a" && svc.Snapshot().IsPlaying
	})

	factory.last().events <- player.Event{Kind: player.EventEnded}
	waitFor(t, 3*time.Second, "transition a->b never started", func() bool {
		return svc.Snapshot().IsPlayingTransition
	})

	// The user skips while the long clip plays: the transition ends now and
	// the next episode loads.
	svc.Next(true)
	waitFor(t, 3*time.Second, "episode b never started after skipping the transition", func() bool {
		state := svc.Snapshot()
		return state.Episode != nil && state.Episode.ID == "b" && !state.IsPlayingTransition
	})
}

func TestQueueExhaustionFallsBackToRecommendations(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("x", 100)
	backend.addEpisode("y", 100)
	backend.addEpisode("r1", 90)
	backend.addEpisode("r2", 90)
	backend.addTransition("x", "y", 5)
	backend.mu.Lock()
	backend.recPages = [][]models.EpisodeCard{cards("r1", "r2")}
	backend.mu.Unlock()
	svc, factory := newTestService(t, backend)

	// External selection of a two-item queue resets the recommendations cache.
	svc.SetQueue(cards("x", "y"), 0, true, true)
	waitFor(t, 2*time.Second, "episode x never started", func() bool {
		return playingID(svc) == "x" && svc.Snapshot().IsPlaying
	})

	// x -> transition -> y
	factory.last().events <- player.Event{Kind: player.EventEnded}
	waitFor(t, 3*time.Second, "transition x->y never started", func() bool {
		return svc.Snapshot().IsPlayingTransition
	})
	factory.last().events <- player.Event{Kind: player.EventEnded}
	waitFor(t, 3*time.Second, "episode y never started", func() bool {
		return playingID(svc) == "y" && svc.Snapshot().IsPlaying
	})

	// y is the last explicit item; its completion must jump straight into the
	// recommendations queue with no transition clip.
	factory.last().events <- player.Event{Kind: player.EventEnded}
	waitFor(t, 3*time.Second, "recommendations queue never took over", func() bool {
		return playingID(svc) == "r1" && svc.Snapshot().IsPlaying
	})
	if calls := backend.transitionCallCount("y", "r1"); calls != 0 {
		t.Fatalf("queue exhaustion must bypass transitions, got %d calls", calls)
	}

	state := svc.Snapshot()
	if len(state.Queue) != 2 || state.Queue[0].ID != "r1" || state.Queue[1].ID != "r2" {
		t.Fatalf("expected live queue [r1 r2], got %+v", state.Queue)
	}
	if state.QueueIndex != 0 {
		t.Fatalf("expected queue index 0, got %d", state.QueueIndex)
	}
}

func TestReachingLastRecommendationFetchesMore(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("r1", 90)
	backend.addEpisode("r2", 90)
	backend.addEpisode("r3", 90)
	backend.mu.Lock()
	backend.recPages = [][]models.EpisodeCard{cards("r1", "r2"), cards("r2", "r3")}
	backend.mu.Unlock()
	svc, _ := newTestService(t, backend)

	// Start on the recommendations queue itself.
	svc.Load("r1", true, true)
	waitFor(t, 2*time.Second, "episode r1 never started", func() bool {
		return playingID(svc) == "r1"
	})
	waitFor(t, 2*time.Second, "recommendations cache never filled", func() bool {
		return backend.recCallCount() >= 1
	})

	svc.SetQueue(cards("r1", "r2"), 0, false, true)
	waitFor(t, 2*time.Second, "episode r1 never restarted", func() bool {
		return playingID(svc) == "r1"
	})

	// Skipping onto the last item triggers a fetch; the overlap with the
	// fresh page is dropped and the queue grows by the genuinely new item.
	svc.Next(true)
	waitFor(t, 3*time.Second, "queue never extended past the last item", func() bool {
		state := svc.Snapshot()
		return len(state.Queue) == 3 && state.Queue[2].ID == "r3"
	})
}

func TestGenerationGivesUpAfterRetryBudget(t *testing.T) {
	backend := newFakeBackend()
	// "generated" stays without a duration, so every attempt reports not ready.
	backend.mu.Lock()
	backend.episodes["generated"] = models.Episode{ID: "generated", AudioURL: "https://cdn.example.com/generated.mp3"}
	backend.mu.Unlock()
	svc, _ := newTestService(t, backend)

	svc.Generate([]float64{52.52, 13.405})

	waitFor(t, 3*time.Second, "generation never surfaced its timeout message", func() bool {
		state := svc.Snapshot()
		return !state.IsLoading && strings.Contains(state.ErrorMessage, "generation")
	})
}

func TestPositionLoggingStopsDuringTransition(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	backend.addEpisode("b", 80)
	backend.addTransition("a", "b", 600)
	svc, factory := newTestService(t, backend)

	svc.SetQueue(cards("a", "b"), 0, false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a" && svc.Snapshot().IsPlaying
	})
	waitFor(t, 2*time.Second, "no position pings while playing", func() bool {
		return backend.pingCount() > 0
	})

	factory.last().events <- player.Event{Kind: player.EventEnded}
	waitFor(t, 3*time.Second, "transition a->b never started", func() bool {
		return svc.Snapshot().IsPlayingTransition
	})

	// One in-flight ping may still land; after that the logger stays quiet
	// for the whole clip.
	time.Sleep(30 * time.Millisecond)
	before := backend.pingCount()
	time.Sleep(100 * time.Millisecond)
	if after := backend.pingCount(); after > before {
		t.Fatalf("position pings continued during the transition: %d -> %d", before, after)
	}
}

func TestManualLoadReportsPreviousSession(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	backend.addEpisode("b", 80)
	svc, _ := newTestService(t, backend)

	svc.Load("a", false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a"
	})
	waitFor(t, 2*time.Second, "no position samples captured", func() bool {
		return backend.pingCount() > 0
	})

	svc.Load("b", false, false)
	waitFor(t, 2*time.Second, "session report for a never arrived", func() bool {
		for _, id := range backend.reportedIDs() {
			if id == "a" {
				return true
			}
		}
		return false
	})
}

func TestLikeAndDislikeAreExclusive(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	svc, _ := newTestService(t, backend)

	svc.Load("a", false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a"
	})

	if err := svc.ToggleLike(); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if state := svc.Snapshot(); !state.IsLiked || state.IsDisliked {
		t.Fatalf("expected liked only, got liked=%t disliked=%t", state.IsLiked, state.IsDisliked)
	}

	if err := svc.ToggleDislike(); err != nil {
		t.Fatalf("dislike failed: %v", err)
	}
	if state := svc.Snapshot(); state.IsLiked || !state.IsDisliked {
		t.Fatalf("expected disliked only, got liked=%t disliked=%t", state.IsLiked, state.IsDisliked)
	}
}

func TestToggleLikeWithoutEpisodeFails(t *testing.T) {
	backend := newFakeBackend()
	svc, _ := newTestService(t, backend)

	if err := svc.ToggleLike(); !errors.Is(err, player.ErrNoEpisode) {
		t.Fatalf("expected ErrNoEpisode, got %v", err)
	}
}

func TestEveryPlayedSecondCountsTowardCoverage(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 10)
	backend.addEpisode("b", 10)
	svc, factory := newTestService(t, backend)

	svc.Load("a", false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a" && svc.Snapshot().IsPlaying
	})

	// The engine reports time once per second; none of these need to line up
	// with a position sample to count.
	for i := 0; i < 10; i++ {
		factory.last().events <- player.Event{Kind: player.EventTimeUpdate, Position: float64(i)}
	}
	waitFor(t, 2*time.Second, "time updates never reached the player", func() bool {
		return svc.Snapshot().Position == 9
	})

	svc.Load("b", false, false)
	waitFor(t, 2*time.Second, "session report for a never arrived", func() bool {
		_, ok := backend.reportFor("a")
		return ok
	})
	report, _ := backend.reportFor("a")
	if report.CoveragePercentage < 90 {
		t.Fatalf("a full listen must reach completion-level coverage, got %.2f%%", report.CoveragePercentage)
	}
	if got := len(report.ListenedSeconds); got != 10 {
		t.Fatalf("expected all 10 seconds counted, got %d", got)
	}
}

func TestRapidPlayPauseKeepsOnePositionTimer(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 100)
	svc, _ := newTestService(t, backend)

	svc.Load("a", false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a" && svc.Snapshot().IsPlaying
	})

	for i := 0; i < 5; i++ {
		svc.Pause()
		svc.Play()
	}

	before := backend.pingCount()
	time.Sleep(200 * time.Millisecond)
	got := backend.pingCount() - before
	if got == 0 {
		t.Fatal("position logging stopped after play/pause toggling")
	}
	// One 20ms timer fires about 10 times in 200ms; stacked timers would at
	// least double that.
	if got > 15 {
		t.Fatalf("ping rate implies more than one position timer: %d in 200ms", got)
	}
}

func TestSeekClampsToDuration(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 20)
	svc, _ := newTestService(t, backend)

	svc.Load("a", false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a"
	})

	svc.Seek(500)
	if got := svc.Snapshot().Position; got != 20 {
		t.Fatalf("expected seek clamped to duration 20, got %.1f", got)
	}

	svc.Seek(-3)
	if got := svc.Snapshot().Position; got != 0 {
		t.Fatalf("expected seek clamped to 0, got %.1f", got)
	}
}

func TestSkipForwardClampsToDuration(t *testing.T) {
	backend := newFakeBackend()
	backend.addEpisode("a", 20)
	svc, _ := newTestService(t, backend)

	svc.Load("a", false, true)
	waitFor(t, 2*time.Second, "episode a never started", func() bool {
		return playingID(svc) == "a"
	})

	svc.SkipForward()
	if got := svc.Snapshot().Position; got != 20 {
		t.Fatalf("expected position clamped to duration 20, got %.1f", got)
	}

	svc.SkipBackward()
	if got := svc.Snapshot().Position; got != 5 {
		t.Fatalf("expected position 5 after skipping back, got %.1f", got)
	}
}
