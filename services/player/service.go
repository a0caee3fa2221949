package player

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc"

	"briefplay/config"
	"briefplay/models"
	"briefplay/services/backend"
)

// State is the orchestrator's playback state.
type State int

const (
	// StateIdle means no media is loaded.
	StateIdle State = iota
	// StatePlayingContent means a real episode owns the engine.
	StatePlayingContent
	// StateAwaitingTransition means content finished and the bridge clip is
	// being polled for.
	StateAwaitingTransition
	// StatePlayingTransition means a generated bridge clip owns the engine.
	StatePlayingTransition
)

func (s State) String() string {
	switch s {
	case StatePlayingContent:
		return "playing_content"
	case StateAwaitingTransition:
		return "awaiting_transition"
	case StatePlayingTransition:
		return "playing_transition"
	default:
		return "idle"
	}
}

type backendClient interface {
	FindPodcast(ctx context.Context, id string) (models.Episode, error)
	Generate(ctx context.Context, location []float64) (models.Episode, error)
	GetTransition(ctx context.Context, fromID, toID string) (models.Transition, error)
	Recommendations(ctx context.Context, podcastID string) ([]models.EpisodeCard, error)
	LogPlayingPosition(ctx context.Context, podcastID string, position int) error
	AddToPlaylist(ctx context.Context, playlistID, podcastID string) error
	RemoveFromPlaylist(ctx context.Context, playlistID, podcastID string) error
}

var _ backendClient = (*backend.Client)(nil)

type downloadStore interface {
	Download(ctx context.Context, episode models.Episode) error
	IsDownloaded(id string) bool
}

type playlistCache interface {
	Invalidate()
}

// ErrNotReady marks a backend response whose media is still being generated.
var ErrNotReady = errors.New("media not ready")

// ErrNoEpisode is returned for operations that need a current episode.
var ErrNoEpisode = errors.New("no episode loaded")

const generationTimeoutMessage = "Podcast generation is taking longer than expected. Please try again later."

// Service is the transition orchestrator: it owns the queue, the playback
// engine, the session recorder and every poll loop, and decides what plays
// next when media completes. All mutable state is behind one mutex; poll
// responses carry the load generation they were started under and are dropped
// when a newer load has superseded them.
type Service struct {
	settings  config.PlaybackSettings
	backend   backendClient
	engine    *Engine
	session   *SessionRecorder
	queue     *Queue
	downloads downloadStore
	playlists playlistCache

	mu      lockedState
	bg      conc.WaitGroup
	done    chan struct{}
	started bool
}

// lockedState groups everything guarded by the service mutex.
type lockedState struct {
	sync.Mutex

	state       State
	current     *models.Episode
	transition  *models.Transition
	next        *models.Episode
	isPlaying   bool
	isLoading   bool
	errMsg      string
	position    float64
	duration    float64
	liked       bool
	disliked    bool
	reloadTried bool
	refreshing  bool

	loadGen          int
	cancelLoadPoll   context.CancelFunc
	cancelTransition context.CancelFunc
	cancelPosition   context.CancelFunc
}

// NewService wires the orchestrator. downloads and playlists may be nil.
func NewService(settings config.PlaybackSettings, client backendClient, engine *Engine, session *SessionRecorder, downloads downloadStore, playlists playlistCache) *Service {
	return &Service{
		settings:  settings,
		backend:   client,
		engine:    engine,
		session:   session,
		queue:     NewQueue(),
		downloads: downloads,
		playlists: playlists,
		done:      make(chan struct{}),
	}
}

// Start begins consuming engine events. Idempotent.
func (s *Service) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.bg.Go(s.eventLoop)
	log.Printf("[player] orchestrator started")
}

// Shutdown flushes the open session, stops every poll and waits for
// background work. Called on app teardown and on SIGTERM.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancelPollsLocked()
	s.session.End(s.mu.position)
	s.mu.Unlock()

	close(s.done)
	s.engine.Close()

	finished := make(chan struct{})
	go func() {
		s.bg.Wait()
		s.session.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		log.Printf("[player] orchestrator stopped")
		return nil
	case <-ctx.Done():
		log.Printf("[player] orchestrator stopped (timeout)")
		return ctx.Err()
	}
}

func (s *Service) interval(seconds float64) time.Duration {
	if seconds <= 0 {
		seconds = 1
	}
	return time.Duration(seconds * float64(time.Second))
}

// eventLoop dispatches engine events until shutdown.
func (s *Service) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.engine.Events():
			switch ev.Kind {
			case EventTimeUpdate:
				s.mu.Lock()
				s.mu.position = ev.Position
				if s.mu.state == StatePlayingContent && s.mu.isPlaying {
					s.session.MarkListened(ev.Position)
				}
				s.mu.Unlock()
			case EventEnded:
				s.handleEnded()
			case EventFailed:
				s.handleFailed(ev.Err)
			}
		}
	}
}

// Load fetches the episode and plays it when ready, polling for readiness
// otherwise. external marks a selection made from outside the player, which
// resets the recommendations cache. Any in-flight load or transition poll is
// superseded.
func (s *Service) Load(id string, external, autoPlay bool) {
	s.mu.Lock()
	if s.mu.current != nil {
		s.session.End(s.mu.position)
	}
	s.cancelPollsLocked()
	s.engine.Pause()
	s.mu.isPlaying = false
	s.mu.state = StateIdle
	s.mu.transition = nil
	s.mu.next = nil
	s.mu.isLoading = true
	s.mu.errMsg = ""
	s.mu.loadGen++
	gen := s.mu.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.cancelLoadPoll = cancel
	if external {
		// Claim the refresh before the load goroutine can race it.
		s.mu.refreshing = true
	}
	s.mu.Unlock()

	if external {
		s.queue.ClearRecommendations()
		s.bg.Go(func() { s.runRefresh(ctx, id, gen) })
	}

	log.Printf("[player] load id=%s external=%t autoPlay=%t", id, external, autoPlay)
	s.bg.Go(func() { s.loadWithReadiness(ctx, id, autoPlay, gen) })
}

// loadWithReadiness fetches the episode once, then polls at a fixed interval
// until it is ready. The poll is unbounded; it stops on success, supersession
// or shutdown.
func (s *Service) loadWithReadiness(ctx context.Context, id string, autoPlay bool, gen int) {
	episode, err := s.backend.FindPodcast(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			s.failLoad(gen, err.Error())
		}
		return
	}
	if episode.Ready() {
		s.startPlayback(episode, autoPlay, gen)
		return
	}

	// Not generated yet: show metadata and keep polling.
	s.mu.Lock()
	if gen == s.mu.loadGen {
		ep := episode
		s.mu.current = &ep
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval(s.settings.ReadinessPollIntervalSeconds))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			episode, err := s.backend.FindPodcast(ctx, id)
			if err != nil {
				// Transport errors are expected while generation runs.
				continue
			}
			if episode.Ready() {
				s.startPlayback(episode, autoPlay, gen)
				return
			}
		}
	}
}

// Generate requests a freshly generated episode and retries on a fixed delay
// until the backend reports a duration, up to the configured attempt budget.
func (s *Service) Generate(location []float64) {
	s.mu.Lock()
	if s.mu.current != nil {
		s.session.End(s.mu.position)
	}
	s.cancelPollsLocked()
	s.engine.Pause()
	s.mu.isPlaying = false
	s.mu.state = StateIdle
	s.mu.transition = nil
	s.mu.next = nil
	s.mu.isLoading = true
	s.mu.errMsg = ""
	s.mu.loadGen++
	gen := s.mu.loadGen
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.cancelLoadPoll = cancel
	s.mu.Unlock()

	log.Printf("[player] generate location=%v", location)
	s.bg.Go(func() {
		episode, err := retry.DoWithData(func() (models.Episode, error) {
			ep, err := s.backend.Generate(ctx, location)
			if err != nil {
				return models.Episode{}, err
			}
			if !ep.Ready() {
				return models.Episode{}, ErrNotReady
			}
			return ep, nil
		},
			retry.Context(ctx),
			retry.Attempts(uint(s.settings.GenerationMaxAttempts)),
			retry.Delay(s.interval(s.settings.GenerationRetryDelaySeconds)),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			if ctx.Err() == nil {
				s.failLoad(gen, generationTimeoutMessage)
			}
			return
		}
		s.startPlayback(episode, false, gen)
	})
}

// failLoad surfaces a terminal load error unless a newer load superseded gen.
func (s *Service) failLoad(gen int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.mu.loadGen {
		return
	}
	s.mu.errMsg = message
	s.mu.isLoading = false
	log.Printf("[player] load failed: %s", message)
}

// startPlayback hands a ready episode to the engine and opens its session.
func (s *Service) startPlayback(episode models.Episode, autoPlay bool, gen int) {
	if !episode.Ready() {
		s.failLoad(gen, "episode is not ready")
		return
	}

	s.mu.Lock()
	if gen != s.mu.loadGen {
		s.mu.Unlock()
		return
	}
	if err := s.engine.Load(episode.AudioURL, episode.DurationSeconds); err != nil {
		s.mu.errMsg = err.Error()
		s.mu.isLoading = false
		s.mu.Unlock()
		return
	}
	ep := episode
	s.mu.current = &ep
	s.mu.transition = nil
	s.mu.next = nil
	s.mu.state = StatePlayingContent
	s.mu.duration = episode.DurationSeconds
	s.mu.position = 0
	s.mu.isLoading = false
	s.mu.errMsg = ""
	s.mu.reloadTried = false
	s.mu.liked = false
	s.mu.disliked = false
	s.session.Start(episode, autoPlay)
	s.playLocked()
	hasNext := s.queue.HasNext()
	needRecommendations := !s.queue.HasRecommendations()
	ctx := context.Background()
	s.mu.Unlock()

	log.Printf("[player] now playing id=%s title=%q duration=%.0fs", episode.ID, episode.Title, episode.DurationSeconds)

	// Content is ready: warm up what comes after it.
	if hasNext {
		s.bg.Go(func() { s.prefetchNext(ctx, gen) })
	}
	s.maybeFetchMoreRecommendations()
	if needRecommendations {
		s.bg.Go(func() { s.refreshRecommendations(ctx, episode.ID, gen) })
	}
}

// playLocked starts the engine and position logging; logs the play action for
// content only.
func (s *Service) playLocked() {
	if s.mu.state != StatePlayingTransition {
		from := s.mu.position
		s.session.LogAction(models.ActionPlay, &models.ActionDetails{From: &from})
	}
	s.engine.Play()
	s.mu.isPlaying = true
	s.startPositionLoggingLocked()
}

// Play resumes playback.
func (s *Service) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.current == nil && s.mu.transition == nil {
		return
	}
	s.playLocked()
}

// Pause halts playback and position logging.
func (s *Service) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.state != StatePlayingTransition {
		from := s.mu.position
		s.session.LogAction(models.ActionPause, &models.ActionDetails{From: &from})
	}
	s.engine.Pause()
	s.mu.isPlaying = false
	s.stopPositionLoggingLocked()
}

// Seek jumps to position, clamped to [0, duration].
func (s *Service) Seek(position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.mu.position
	if position < 0 {
		position = 0
	}
	if s.mu.duration > 0 && position > s.mu.duration {
		position = s.mu.duration
	}
	s.engine.Seek(position)
	s.mu.position = position
	if s.mu.state != StatePlayingTransition {
		s.session.LogAction(models.ActionSeek, &models.ActionDetails{From: &previous, To: &position})
	}
}

// SkipForward seeks ahead by the configured interval.
func (s *Service) SkipForward() {
	s.skipBy(s.settings.SkipForwardSeconds, models.ActionSkipForward)
}

// SkipBackward seeks back by the configured interval.
func (s *Service) SkipBackward() {
	s.skipBy(-s.settings.SkipBackwardSeconds, models.ActionSkipBackward)
}

func (s *Service) skipBy(seconds float64, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.mu.position
	to := from + seconds
	if to < 0 {
		to = 0
	}
	if s.mu.duration > 0 && to > s.mu.duration {
		to = s.mu.duration
	}
	s.engine.Seek(to)
	s.mu.position = to
	if s.mu.state != StatePlayingTransition {
		s.session.LogAction(action, &models.ActionDetails{From: &from, To: &to})
	}
}

// SetQueue replaces the live queue and loads the item at startIndex. external
// marks a user selection from outside the player, which resets and refreshes
// the recommendations cache so a fallback is ready when this queue ends.
func (s *Service) SetQueue(items []models.EpisodeCard, startIndex int, external, autoPlay bool) {
	s.queue.Set(items, startIndex)
	card, ok := s.queue.Current()
	if !ok {
		return
	}
	s.Load(card.ID, external, autoPlay)
}

// Next advances to the following queue item. During a transition it
// short-circuits the transition instead of stacking states.
func (s *Service) Next(autoPlay bool) {
	s.mu.Lock()
	if s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		s.finishTransition()
		return
	}
	s.mu.Unlock()

	card, ok := s.queue.Advance()
	if !ok {
		return
	}
	s.Load(card.ID, false, autoPlay)
	s.maybeFetchMoreRecommendations()
}

// Previous moves back one queue item. Backward navigation never goes through
// a transition: the item loads immediately.
func (s *Service) Previous() {
	s.mu.Lock()
	if s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		s.finishTransition()
		return
	}
	s.mu.Unlock()

	card, ok := s.queue.Retreat()
	if !ok {
		return
	}
	s.Load(card.ID, false, false)
}

// handleEnded reacts to the engine's terminal event for the current media.
func (s *Service) handleEnded() {
	s.mu.Lock()
	if s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		s.finishTransition()
		return
	}
	if s.mu.state != StatePlayingContent || s.mu.current == nil {
		s.mu.Unlock()
		return
	}

	s.mu.isPlaying = false
	s.stopPositionLoggingLocked()
	position := s.mu.position
	s.session.LogAction(models.ActionCompleted, &models.ActionDetails{To: &position})

	// A transition only makes sense when we know what comes next.
	nextID := ""
	if s.mu.next != nil {
		nextID = s.mu.next.ID
	} else if card, ok := s.queue.PeekNext(); ok {
		nextID = card.ID
	}
	if nextID != "" {
		fromID := s.mu.current.ID
		gen := s.mu.loadGen
		s.mu.state = StateAwaitingTransition
		s.startTransitionPollLocked(fromID, nextID, gen)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Queue exhausted with no known next: fall back to recommendations.
	s.proceedToRecommendations()
}

// startTransitionPollLocked polls for the bridge clip between fromID and toID
// until it is ready, then plays it. Any previous transition poll is cancelled
// first.
func (s *Service) startTransitionPollLocked(fromID, toID string, gen int) {
	if s.mu.cancelTransition != nil {
		s.mu.cancelTransition()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.cancelTransition = cancel

	log.Printf("[player] awaiting transition %s -> %s", fromID, toID)
	s.bg.Go(func() {
		ticker := time.NewTicker(s.interval(s.settings.TransitionPollIntervalSeconds))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				transition, err := s.backend.GetTransition(ctx, fromID, toID)
				if err != nil {
					// Swallowed: the poll keeps trying until cancelled.
					continue
				}
				if !transition.Ready() {
					continue
				}
				if s.playTransition(transition, gen) {
					return
				}
			}
		}
	})
}

// playTransition hands a ready clip to the engine. Telemetry stays off for
// the whole clip. Returns false when the poll result is stale.
func (s *Service) playTransition(transition models.Transition, gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.mu.loadGen || s.mu.state != StateAwaitingTransition {
		return true // superseded; stop polling either way
	}
	if err := s.engine.Load(transition.AudioURL, transition.DurationSeconds); err != nil {
		s.mu.errMsg = err.Error()
		return true
	}
	t := transition
	s.mu.transition = &t
	s.mu.state = StatePlayingTransition
	s.mu.duration = transition.DurationSeconds
	s.mu.position = 0
	s.stopPositionLoggingLocked()
	s.engine.Play()
	s.mu.isPlaying = true
	log.Printf("[player] playing transition %s -> %s (%.0fs)", transition.FromID, transition.ToID, transition.DurationSeconds)
	return true
}

// finishTransition treats the transition as complete and moves on to the next
// real episode. Also used to short-circuit a transition on manual navigation.
func (s *Service) finishTransition() {
	s.mu.Lock()
	if s.mu.state != StatePlayingTransition && s.mu.state != StateAwaitingTransition {
		s.mu.Unlock()
		return
	}
	if s.mu.cancelTransition != nil {
		s.mu.cancelTransition()
		s.mu.cancelTransition = nil
	}
	s.mu.transition = nil
	s.mu.state = StateIdle
	s.mu.isPlaying = false
	next := s.mu.next
	s.mu.next = nil
	s.mu.Unlock()

	if s.queue.HasNext() {
		if next != nil {
			// The prefetched episode goes through the normal load path so its
			// readiness is verified, not assumed.
			s.queue.Advance()
			s.Load(next.ID, false, true)
			return
		}
		s.Next(true)
		return
	}
	s.proceedToRecommendations()
}

// proceedToRecommendations switches playback to the recommendations queue
// once the explicit queue is exhausted, or extends it when already there.
func (s *Service) proceedToRecommendations() {
	recommendations := s.queue.Recommendations()
	if len(recommendations) > 0 {
		if !s.queue.IsRecommendationsQueue() {
			log.Printf("[player] queue exhausted, switching to recommendations (%d items)", len(recommendations))
			s.SetQueue(recommendations, 0, false, true)
			return
		}
		if s.queue.AtLastIndex() {
			s.fetchMoreRecommendations()
		}
		return
	}

	s.mu.Lock()
	current := s.mu.current
	gen := s.mu.loadGen
	s.mu.Unlock()
	if current != nil {
		id := current.ID
		s.bg.Go(func() { s.refreshRecommendations(context.Background(), id, gen) })
	}
}

// refreshRecommendations replaces the cache with a fresh fetch, retrying on a
// fixed delay up to the configured budget, then prefetches the first
// recommendation when nothing else is lined up. At most one refresh runs at a
// time.
func (s *Service) refreshRecommendations(ctx context.Context, podcastID string, gen int) {
	s.mu.Lock()
	if s.mu.refreshing {
		s.mu.Unlock()
		return
	}
	s.mu.refreshing = true
	s.mu.Unlock()
	s.runRefresh(ctx, podcastID, gen)
}

// runRefresh does the actual fetch; the caller must have claimed the
// refreshing flag.
func (s *Service) runRefresh(ctx context.Context, podcastID string, gen int) {
	defer func() {
		s.mu.Lock()
		s.mu.refreshing = false
		s.mu.Unlock()
	}()

	cards, err := retry.DoWithData(func() ([]models.EpisodeCard, error) {
		return s.backend.Recommendations(ctx, podcastID)
	},
		retry.Context(ctx),
		retry.Attempts(uint(s.settings.RecommendationMaxAttempts)),
		retry.Delay(s.interval(s.settings.RecommendationRetrySeconds)),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[player] recommendations refresh failed for %s: %v", podcastID, err)
		}
		return
	}
	s.queue.ReplaceRecommendations(cards)
	s.prefetchFromRecommendations(ctx, gen)
}

// fetchMoreRecommendations appends another page to the cache. At most one
// fetch is in flight at a time.
func (s *Service) fetchMoreRecommendations() {
	if !s.queue.TryBeginFetchMore() {
		return
	}
	s.mu.Lock()
	current := s.mu.current
	gen := s.mu.loadGen
	s.mu.Unlock()
	if current == nil {
		s.queue.EndFetchMore()
		return
	}
	id := current.ID

	s.bg.Go(func() {
		defer s.queue.EndFetchMore()
		ctx := context.Background()
		cards, err := retry.DoWithData(func() ([]models.EpisodeCard, error) {
			return s.backend.Recommendations(ctx, id)
		},
			retry.Attempts(uint(s.settings.RecommendationMaxAttempts)),
			retry.Delay(s.interval(s.settings.RecommendationRetrySeconds)),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			log.Printf("[player] fetch more recommendations failed: %v", err)
			return
		}
		if s.queue.AppendRecommendations(cards) {
			// The live queue grew; line up the new next item.
			s.bg.Go(func() { s.prefetchNext(ctx, gen) })
		}
	})
}

// maybeFetchMoreRecommendations auto-extends the recommendations queue when
// the play head reaches its last item.
func (s *Service) maybeFetchMoreRecommendations() {
	if s.queue.IsRecommendationsQueue() && s.queue.AtLastIndex() {
		s.fetchMoreRecommendations()
	}
}

// prefetchNext fetches the metadata of the next queue item and warms up the
// transition clip between it and the current episode.
func (s *Service) prefetchNext(ctx context.Context, gen int) {
	card, ok := s.queue.PeekNext()
	if !ok {
		return
	}
	episode, err := s.backend.FindPodcast(ctx, card.ID)
	if err != nil {
		return
	}

	s.mu.Lock()
	if gen != s.mu.loadGen || s.mu.current == nil {
		s.mu.Unlock()
		return
	}
	ep := episode
	s.mu.next = &ep
	fromID := s.mu.current.ID
	s.mu.Unlock()

	s.warmUpTransition(ctx, fromID, episode.ID)
}

// prefetchFromRecommendations lines up the first recommendation as the next
// episode when the queue has nothing after the play head.
func (s *Service) prefetchFromRecommendations(ctx context.Context, gen int) {
	if s.queue.HasNext() {
		return
	}
	recommendations := s.queue.Recommendations()
	if len(recommendations) == 0 {
		return
	}

	s.mu.Lock()
	if gen != s.mu.loadGen || s.mu.next != nil || s.mu.current == nil {
		s.mu.Unlock()
		return
	}
	currentID := s.mu.current.ID
	s.mu.Unlock()

	candidate := ""
	for _, card := range recommendations {
		if card.ID != currentID {
			candidate = card.ID
			break
		}
	}
	if candidate == "" {
		return
	}

	episode, err := s.backend.FindPodcast(ctx, candidate)
	if err != nil {
		return
	}

	s.mu.Lock()
	if gen != s.mu.loadGen || s.mu.next != nil || s.mu.current == nil {
		s.mu.Unlock()
		return
	}
	ep := episode
	s.mu.next = &ep
	fromID := s.mu.current.ID
	s.mu.Unlock()

	s.warmUpTransition(ctx, fromID, episode.ID)
}

// warmUpTransition fires one transition request so the backend starts
// generating the clip; the result is ignored.
func (s *Service) warmUpTransition(ctx context.Context, fromID, toID string) {
	if _, err := s.backend.GetTransition(ctx, fromID, toID); err != nil {
		log.Printf("[player] transition warm-up %s -> %s failed: %v", fromID, toID, err)
	}
}

// handleFailed attempts one bounded reload of the current content, restoring
// the previous play intent; a second failure is surfaced.
func (s *Service) handleFailed(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message := "playback failed"
	if cause != nil {
		message = cause.Error()
	}
	if s.mu.state == StatePlayingContent && s.mu.current != nil && !s.mu.reloadTried {
		s.mu.reloadTried = true
		wasPlaying := s.mu.isPlaying
		log.Printf("[player] playback failure, attempting one reload: %s", message)
		if err := s.engine.Load(s.mu.current.AudioURL, s.mu.current.DurationSeconds); err == nil {
			s.engine.Seek(s.mu.position)
			if wasPlaying {
				s.engine.Play()
			}
			return
		}
	}
	s.mu.errMsg = message
	s.mu.isLoading = false
	s.mu.isPlaying = false
	s.stopPositionLoggingLocked()
}

// startPositionLoggingLocked launches the periodic position reporter. Any
// running timer is stopped first so two can never log at once. Transitions
// are never logged.
func (s *Service) startPositionLoggingLocked() {
	s.stopPositionLoggingLocked()
	if !s.mu.isPlaying || s.mu.state == StatePlayingTransition || s.mu.current == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.cancelPosition = cancel

	s.bg.Go(func() {
		ticker := time.NewTicker(s.interval(s.settings.PositionLogIntervalSeconds))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.mu.isPlaying || s.mu.state == StatePlayingTransition || s.mu.current == nil {
					s.mu.Unlock()
					continue
				}
				position := s.engine.Position()
				s.mu.position = position
				id := s.mu.current.ID
				s.session.LogPosition(position)
				s.mu.Unlock()
				if err := s.backend.LogPlayingPosition(ctx, id, int(position)); err != nil {
					log.Printf("[player] position ping failed for %s: %v", id, err)
				}
			}
		}
	})
}

func (s *Service) stopPositionLoggingLocked() {
	if s.mu.cancelPosition != nil {
		s.mu.cancelPosition()
		s.mu.cancelPosition = nil
	}
}

// cancelPollsLocked stops the readiness poll, the transition poll and the
// position logger.
func (s *Service) cancelPollsLocked() {
	if s.mu.cancelLoadPoll != nil {
		s.mu.cancelLoadPoll()
		s.mu.cancelLoadPoll = nil
	}
	if s.mu.cancelTransition != nil {
		s.mu.cancelTransition()
		s.mu.cancelTransition = nil
	}
	s.stopPositionLoggingLocked()
}

// ToggleLike flips the like flag; liking clears a dislike. Each toggle fires
// one playlist call and logs one action.
func (s *Service) ToggleLike() error {
	s.mu.Lock()
	if s.mu.current == nil || s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		return ErrNoEpisode
	}
	id := s.mu.current.ID
	liking := !s.mu.liked
	s.mu.liked = liking
	if liking {
		s.mu.disliked = false
		s.session.LogAction(models.ActionLike, nil)
	} else {
		s.session.LogAction(models.ActionUnlike, nil)
	}
	s.mu.Unlock()

	s.bg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		if liking {
			err = s.backend.AddToPlaylist(ctx, models.LikePlaylistID, id)
		} else {
			err = s.backend.RemoveFromPlaylist(ctx, models.LikePlaylistID, id)
		}
		if err != nil {
			log.Printf("[player] like playlist update failed for %s: %v", id, err)
			return
		}
		if s.playlists != nil {
			s.playlists.Invalidate()
		}
	})
	return nil
}

// ToggleDislike flips the dislike flag; disliking clears a like and removes
// the episode from the like playlist.
func (s *Service) ToggleDislike() error {
	s.mu.Lock()
	if s.mu.current == nil || s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		return ErrNoEpisode
	}
	id := s.mu.current.ID
	disliking := !s.mu.disliked
	s.mu.disliked = disliking
	wasLiked := s.mu.liked
	if disliking {
		s.mu.liked = false
		s.session.LogAction(models.ActionDislike, nil)
	} else {
		s.session.LogAction(models.ActionRemoveDislike, nil)
	}
	s.mu.Unlock()

	if disliking && wasLiked {
		s.bg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.backend.RemoveFromPlaylist(ctx, models.LikePlaylistID, id); err != nil {
				log.Printf("[player] like playlist removal failed for %s: %v", id, err)
				return
			}
			if s.playlists != nil {
				s.playlists.Invalidate()
			}
		})
	}
	return nil
}

// AddToPlaylist adds the current episode to a playlist.
func (s *Service) AddToPlaylist(playlistID string) error {
	s.mu.Lock()
	if s.mu.current == nil || s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		return ErrNoEpisode
	}
	id := s.mu.current.ID
	s.session.LogAction(models.ActionAddToPlaylist, &models.ActionDetails{PlaylistID: playlistID})
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.backend.AddToPlaylist(ctx, playlistID, id); err != nil {
		return err
	}
	if s.playlists != nil {
		s.playlists.Invalidate()
	}
	return nil
}

// Download stores the current episode locally for offline playback.
func (s *Service) Download(ctx context.Context) error {
	if s.downloads == nil {
		return errors.New("downloads not configured")
	}
	s.mu.Lock()
	if s.mu.current == nil || s.mu.state == StatePlayingTransition {
		s.mu.Unlock()
		return ErrNoEpisode
	}
	episode := *s.mu.current
	s.session.LogAction(models.ActionDownload, nil)
	s.mu.Unlock()

	return s.downloads.Download(ctx, episode)
}

// Snapshot returns the current playback state for the UI.
func (s *Service) Snapshot() models.PlaybackState {
	s.mu.Lock()
	state := models.PlaybackState{
		IsPlaying:           s.mu.isPlaying,
		IsPlayingTransition: s.mu.state == StatePlayingTransition,
		IsLoading:           s.mu.isLoading,
		Position:            s.mu.position,
		Duration:            s.mu.duration,
		ErrorMessage:        s.mu.errMsg,
		IsLiked:             s.mu.liked,
		IsDisliked:          s.mu.disliked,
	}
	if s.mu.current != nil {
		ep := *s.mu.current
		state.Episode = &ep
		if s.downloads != nil {
			state.IsDownloaded = s.downloads.IsDownloaded(ep.ID)
		}
	}
	if s.mu.transition != nil {
		t := *s.mu.transition
		state.Transition = &t
	}
	s.mu.Unlock()

	state.Queue = s.queue.Items()
	state.QueueIndex = s.queue.Index()
	state.HasNext = s.queue.HasNext()
	state.HasPrevious = s.queue.HasPrevious()
	return state
}

// CurrentState exposes the orchestrator state, mainly for tests and logs.
func (s *Service) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.state
}
