package player

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"briefplay/models"
)

type sessionReporter interface {
	MarkAsPlayed(ctx context.Context, report models.SessionReport) error
}

// HistoryMirror receives a local copy of every flushed session so the history
// view keeps working without the backend.
type HistoryMirror interface {
	RecordListen(podcastID, title string, report models.SessionReport) error
}

// SessionRecorder accumulates the user actions and position samples for the
// currently loaded episode and flushes them as a single report when the
// episode changes or the app shuts down. A session is flushed at most once;
// the guard is the session id of the last submitted report. Transition clips
// never open sessions.
type SessionRecorder struct {
	reporter sessionReporter
	mirror   HistoryMirror
	wg       sync.WaitGroup

	// listen-duration accounting assumes one LogPosition call per interval
	interval float64

	sessionID      string
	episode        *models.Episode
	actions        []models.UserAction
	positionLog    []models.PositionSample
	listened       map[int]struct{}
	startedAt      time.Time
	listenDuration float64
	lastPosition   float64
	autoPlay       bool
	lastReportedID string
}

// NewSessionRecorder creates a recorder submitting through reporter.
// mirror may be nil. intervalSeconds is the position-log cadence.
func NewSessionRecorder(reporter sessionReporter, mirror HistoryMirror, intervalSeconds float64) *SessionRecorder {
	if intervalSeconds <= 0 {
		intervalSeconds = 5
	}
	return &SessionRecorder{
		reporter: reporter,
		mirror:   mirror,
		interval: intervalSeconds,
	}
}

// Start opens a session for episode. Any unflushed previous session is flushed
// first, carrying the auto-play flag it was started with.
func (s *SessionRecorder) Start(episode models.Episode, autoPlay bool) {
	s.flush()

	s.sessionID = uuid.NewString()
	s.episode = &episode
	s.actions = nil
	s.positionLog = nil
	s.listened = make(map[int]struct{})
	s.startedAt = time.Now()
	s.listenDuration = 0
	s.lastPosition = 0
	s.autoPlay = autoPlay

	s.LogAction(models.ActionSessionStart, nil)
}

// LogAction appends an action to the open session. No-op without an episode.
func (s *SessionRecorder) LogAction(action string, details *models.ActionDetails) {
	if s.episode == nil {
		return
	}
	s.actions = append(s.actions, models.UserAction{
		Timestamp: time.Now().Unix(),
		Action:    action,
		PodcastID: s.episode.ID,
		Details:   details,
	})
}

// LogPosition records one periodic position sample.
func (s *SessionRecorder) LogPosition(position float64) {
	if s.episode == nil {
		return
	}
	s.positionLog = append(s.positionLog, models.PositionSample{
		Time:     time.Now().Unix(),
		Position: position,
	})
	s.listened[int(position)] = struct{}{}
	s.listenDuration += s.interval
	s.lastPosition = position
}

// MarkListened records that the whole second containing position was heard.
// Called on every engine time update, so coverage counts every second played
// rather than only the ones that coincide with a position sample.
func (s *SessionRecorder) MarkListened(position float64) {
	if s.episode == nil {
		return
	}
	s.listened[int(position)] = struct{}{}
	s.lastPosition = position
}

// End logs a session_end at position and flushes the session. Safe to call
// from multiple teardown paths; only the first flush submits.
func (s *SessionRecorder) End(position float64) {
	if s.episode == nil || s.sessionID == s.lastReportedID {
		return
	}
	s.LogAction(models.ActionSessionEnd, &models.ActionDetails{To: &position})
	s.flush()
}

// flush submits the open session once and clears its accumulators.
func (s *SessionRecorder) flush() {
	if s.episode == nil || len(s.actions) == 0 {
		return
	}
	if s.sessionID == s.lastReportedID {
		return
	}
	s.lastReportedID = s.sessionID

	listened := make([]int, 0, len(s.listened))
	for sec := range s.listened {
		listened = append(listened, sec)
	}
	sort.Ints(listened)

	coverage := 0.0
	if s.episode.DurationSeconds > 0 {
		coverage = float64(len(listened)) / s.episode.DurationSeconds * 100
		if coverage > 100 {
			coverage = 100
		}
	}

	report := models.SessionReport{
		PodcastID:             s.episode.ID,
		Actions:               s.actions,
		ListenedSeconds:       listened,
		ListenDurationSeconds: s.listenDuration,
		TotalDurationSeconds:  s.episode.DurationSeconds,
		CoveragePercentage:    coverage,
		LastPosition:          s.lastPosition,
		PositionLog:           s.positionLog,
		ListeningTime:         int64(time.Since(s.startedAt).Seconds()),
		AutoPlay:              s.autoPlay,
	}
	podcastID, title := s.episode.ID, s.episode.Title

	s.actions = nil
	s.positionLog = nil

	// Telemetry is best-effort: a failed submit is logged and dropped.
	// The submit runs off the caller's goroutine so a slow backend never
	// stalls a track change.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.reporter.MarkAsPlayed(ctx, report); err != nil {
			log.Printf("[session] failed to submit session report for %s: %v", podcastID, err)
		}
		if s.mirror != nil {
			if err := s.mirror.RecordListen(podcastID, title, report); err != nil {
				log.Printf("[session] failed to mirror session locally for %s: %v", podcastID, err)
			}
		}
	}()
}

// Wait blocks until every in-flight report submission finishes.
func (s *SessionRecorder) Wait() {
	s.wg.Wait()
}
