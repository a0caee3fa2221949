package player

import (
	"errors"
	"log"
	"sync"
	"time"
)

// EventKind identifies an engine event.
type EventKind int

const (
	// EventTimeUpdate is a periodic position reading while media is playing.
	EventTimeUpdate EventKind = iota
	// EventEnded signals that the current media played to its end.
	EventEnded
	// EventFailed signals a playback failure on the current media.
	EventFailed
)

// Event is emitted by the engine's active media source.
type Event struct {
	Kind     EventKind
	Position float64
	Err      error
}

// MediaPlayer is one playable media source. A new instance is created per load
// and closed when the source is replaced.
type MediaPlayer interface {
	Play()
	Pause()
	Seek(position float64)
	Position() float64
	Events() <-chan Event
	Close()
}

// PlayerFactory builds a MediaPlayer for a media URL with a known duration.
type PlayerFactory func(mediaURL string, duration float64) (MediaPlayer, error)

var errEmptyMediaURL = errors.New("media URL is empty")

// Engine wraps a single media player instance. Loading a new source tears down
// the previous player and its event forwarder first, so a stale source can
// never deliver events after it has been replaced.
type Engine struct {
	factory PlayerFactory

	mu       sync.Mutex
	player   MediaPlayer
	stop     chan struct{}
	events   chan Event
	duration float64
}

// NewEngine creates an engine. A nil factory uses the wall-clock player.
func NewEngine(factory PlayerFactory) *Engine {
	if factory == nil {
		factory = NewClockPlayer
	}
	return &Engine{
		factory: factory,
		events:  make(chan Event, 32),
	}
}

// Events returns the engine's event stream. The channel is stable across
// loads; events from replaced sources are never forwarded onto it.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Load replaces the current media source. The previous source is stopped and
// detached before the new one attaches.
func (e *Engine) Load(mediaURL string, duration float64) error {
	if mediaURL == "" {
		return errEmptyMediaURL
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()

	p, err := e.factory(mediaURL, duration)
	if err != nil {
		return err
	}
	e.player = p
	e.duration = duration
	e.stop = make(chan struct{})
	go e.forward(p, e.stop)
	return nil
}

// forward copies events from one media source to the engine stream until the
// source is superseded.
func (e *Engine) forward(p MediaPlayer, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-p.Events():
			if !ok {
				return
			}
			select {
			case <-stop:
				return
			case e.events <- ev:
			}
		}
	}
}

func (e *Engine) teardownLocked() {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
	if e.player != nil {
		e.player.Pause()
		e.player.Close()
		e.player = nil
	}
	e.duration = 0
}

// Play starts playback of the current source, if any.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player != nil {
		e.player.Play()
	}
}

// Pause pauses the current source, if any.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player != nil {
		e.player.Pause()
	}
}

// Seek moves the current source to position, clamped to [0, duration].
func (e *Engine) Seek(position float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return
	}
	if position < 0 {
		position = 0
	}
	if e.duration > 0 && position > e.duration {
		position = e.duration
	}
	e.player.Seek(position)
}

// Position returns the current playback position, or 0 when nothing is loaded.
func (e *Engine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.player == nil {
		return 0
	}
	return e.player.Position()
}

// Close tears down the current source.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

const clockTick = 200 * time.Millisecond

// clockPlayer advances position against wall-clock time while playing and
// emits Ended when the known duration is reached. It stands in for a real
// audio backend, which reports time the same way.
type clockPlayer struct {
	mu       sync.Mutex
	duration float64
	position float64
	playing  bool
	events   chan Event
	done     chan struct{}
	once     sync.Once
}

// NewClockPlayer returns a wall-clock MediaPlayer for the given media.
func NewClockPlayer(mediaURL string, duration float64) (MediaPlayer, error) {
	if mediaURL == "" {
		return nil, errEmptyMediaURL
	}
	p := &clockPlayer{
		duration: duration,
		events:   make(chan Event, 32),
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

func (p *clockPlayer) run() {
	ticker := time.NewTicker(clockTick)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.tick(clockTick.Seconds())
		}
	}
}

func (p *clockPlayer) tick(elapsed float64) {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.position += elapsed
	ended := p.duration > 0 && p.position >= p.duration
	if ended {
		p.position = p.duration
		p.playing = false
	}
	position := p.position
	p.mu.Unlock()

	p.emit(Event{Kind: EventTimeUpdate, Position: position})
	if ended {
		p.emit(Event{Kind: EventEnded, Position: position})
	}
}

func (p *clockPlayer) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		log.Printf("[engine] dropping event kind=%d, consumer is behind", ev.Kind)
	}
}

func (p *clockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = true
}

func (p *clockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *clockPlayer) Seek(position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if position < 0 {
		position = 0
	}
	if p.duration > 0 && position > p.duration {
		position = p.duration
	}
	p.position = position
}

func (p *clockPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *clockPlayer) Events() <-chan Event {
	return p.events
}

func (p *clockPlayer) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}
