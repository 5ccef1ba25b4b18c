// Package refresh coalesces bursts of refresh requests. Each target has one
// debouncer: a request starts or resets its timer, and the target's action
// runs once the timer elapses with no further request.
package refresh

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// Target names a debounced action.
type Target string

const (
	Redraw    Target = "redraw"     // push the current parts to the viewer
	FitAll    Target = "fit-all"    // re-fit the viewer camera
	SaveState Target = "save-state" // persist editor state
)

// Default delays.
const (
	DefaultRedrawDelay    = 200 * time.Millisecond
	DefaultFitAllDelay    = 500 * time.Millisecond
	DefaultSaveStateDelay = 350 * time.Millisecond
)

// Requester accepts refresh requests.
type Requester interface {
	Request(t Target)
}

// Poster runs a function on the event loop. *loop.Loop implements it.
type Poster interface {
	Post(fn func()) bool
}

// Scheduler implements Requester.
type Scheduler struct {
	mu      sync.Mutex
	poster  Poster
	targets map[Target]*target
	logger  *slog.Logger
}

type target struct {
	debounced func(f func())
	action    func()
	fired     int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a scheduler that runs actions through poster. A nil poster
// runs actions on the timer goroutine.
func New(poster Poster, opts ...Option) *Scheduler {
	s := &Scheduler{
		poster:  poster,
		targets: make(map[Target]*target),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers the action for t, replacing any previous one.
func (s *Scheduler) Handle(t Target, delay time.Duration, action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[t] = &target{debounced: debounce.New(delay), action: action}
}

// Request starts or resets the debounce timer for t.
func (s *Scheduler) Request(t Target) {
	s.mu.Lock()
	tg, ok := s.targets[t]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("refresh request for unhandled target", "target", string(t))
		return
	}
	tg.debounced(func() { s.fire(t, tg) })
}

func (s *Scheduler) fire(t Target, tg *target) {
	run := func() {
		s.mu.Lock()
		tg.fired++
		s.mu.Unlock()
		s.logger.Debug("refresh", "target", string(t))
		tg.action()
	}
	if s.poster == nil {
		run()
		return
	}
	if !s.poster.Post(run) {
		s.logger.Debug("refresh dropped, loop stopped", "target", string(t))
	}
}

// Fired returns how many times the action for t has run.
func (s *Scheduler) Fired(t Target) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tg, ok := s.targets[t]; ok {
		return tg.fired
	}
	return 0
}
