// Package state scopes a subset of handlers to the active game mode
//
// A State owns a private priority-ordered handler list that never joins the
// global bus list. The Router installs exactly one State as the bus scope;
// every Broadcast then reaches that state's handlers in addition to the global
// ones, and states that are not active see nothing.
package state

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lixenwraith/cadence/event"
)

// State is an identity-bearing handler scope
// Equality is by generated id only, never by contents
type State struct {
	id       uuid.UUID
	name     string
	initiate func(*State)
	config   Config
	logger   *slog.Logger

	ready atomic.Bool

	mu          sync.Mutex
	handlers    event.HandlerList
	dispatching int
	toAdd       []*event.Handler
	toRemove    []*event.Handler

	failures atomic.Int64
}

// Option configures a State
type Option func(*State)

// WithConfig sets the engine presentation applied when the state activates
func WithConfig(cfg Config) Option {
	return func(s *State) {
		s.config = cfg
	}
}

// WithLogger routes handler failure logs to logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a state that is not ready
// initiate runs on every activation and is where the state populates its handlers
func New(name string, initiate func(*State), opts ...Option) *State {
	s := &State{
		id:       uuid.New(),
		name:     name,
		initiate: initiate,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the opaque identifier
func (s *State) ID() string {
	return s.id.String()
}

// Name returns the display name given at construction
func (s *State) Name() string {
	return s.name
}

// Config returns the presentation applied on activation
func (s *State) Config() Config {
	return s.config
}

// Equal reports nominal identity
func (s *State) Equal(other *State) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.id == other.id
}

// SetReady gates event forwarding; a state that is not ready ignores events
func (s *State) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports the gate
func (s *State) Ready() bool {
	return s.ready.Load()
}

// Initiate runs the activation callback
func (s *State) Initiate() {
	if s.initiate != nil {
		s.initiate(s)
	}
}

// AddHandler inserts h into the private list by priority
// Applied immediately, or after the current pass when called from one of this state's handlers
func (s *State) AddHandler(h *event.Handler) error {
	if h == nil {
		return fmt.Errorf("%w: state %s add nil handler", event.ErrInvalidArgument, s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatching > 0 {
		s.toAdd = append(s.toAdd, h)
		return nil
	}
	s.handlers = s.handlers.Insert(h)
	return nil
}

// RemoveHandler removes h by identity with the same timing as AddHandler
func (s *State) RemoveHandler(h *event.Handler) error {
	if h == nil {
		return fmt.Errorf("%w: state %s remove nil handler", event.ErrInvalidArgument, s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatching > 0 {
		s.toRemove = append(s.toRemove, h)
		return nil
	}
	s.handlers = s.handlers.Remove(h)
	return nil
}

// ClearHandlers drops the private list, typically before re-initiating
func (s *State) ClearHandlers() {
	s.mu.Lock()
	s.handlers = nil
	s.toAdd = nil
	s.toRemove = nil
	s.mu.Unlock()
}

// Len returns the number of handlers in the private list
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// SendEvent dispatches ev to matching handlers in priority order
// No-op while the state is not ready
func (s *State) SendEvent(ev event.Event) error {
	if !s.ready.Load() {
		return nil
	}
	if ev == nil {
		return fmt.Errorf("%w: state %s nil event", event.ErrInvalidArgument, s.name)
	}

	s.mu.Lock()
	s.dispatching++
	list := s.handlers
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.dispatching--
		if s.dispatching == 0 {
			s.applyPendingLocked()
		}
		s.mu.Unlock()
	}()

	list.Dispatch(ev, s.reportFailure)
	return nil
}

func (s *State) applyPendingLocked() {
	for _, h := range s.toAdd {
		s.handlers = s.handlers.Insert(h)
	}
	for _, h := range s.toRemove {
		s.handlers = s.handlers.Remove(h)
	}
	s.toAdd = nil
	s.toRemove = nil
}

func (s *State) reportFailure(h *event.Handler, ev event.Event, recovered any, stack []byte) {
	s.failures.Add(1)
	s.logger.Error("state handler panicked",
		"state", s.name,
		"handler", h.String(),
		"kind", ev.Kind().String(),
		"panic", fmt.Sprint(recovered),
		"stack", string(stack),
	)
}

// Failures returns the number of recovered handler panics
func (s *State) Failures() int64 {
	return s.failures.Load()
}

func (s *State) String() string {
	return s.name + "#" + s.id.String()[:8]
}

// Dump renders the state for crash reports
func (s *State) Dump() string {
	s.mu.Lock()
	list := s.handlers
	s.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "state.State %s\n", s)
	fmt.Fprintf(&sb, "  %-10s %t\n", "ready:", s.Ready())
	fmt.Fprintf(&sb, "  %-10s %d\n", "handlers:", len(list))
	fmt.Fprintf(&sb, "  %-10s %d\n", "failures:", s.Failures())
	for i, h := range list {
		fmt.Fprintf(&sb, "  %3d %s\n", i, h)
	}
	return sb.String()
}
