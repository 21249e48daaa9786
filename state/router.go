package state

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/status"
)

// Router owns the single active state and installs it as the bus scope
type Router struct {
	bus    *event.Bus
	target ConfigTarget
	logger *slog.Logger

	mu     sync.Mutex
	active *State

	statActive   *status.AtomicString
	statSwitches *atomic.Int64
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithTarget applies each activated state's Config to target
func WithTarget(target ConfigTarget) RouterOption {
	return func(r *Router) {
		r.target = target
	}
}

// WithRouterLogger routes switch logs to logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterStatus publishes the active state name and switch count into reg
func WithRouterStatus(reg *status.Registry) RouterOption {
	return func(r *Router) {
		if reg != nil {
			r.statActive = reg.Strings.Get("state.active")
			r.statSwitches = reg.Ints.Get("state.switches")
		}
	}
}

// NewRouter creates a router with no active state
func NewRouter(bus *event.Bus, opts ...RouterOption) *Router {
	reg := status.NewRegistry()
	r := &Router{
		bus:          bus,
		logger:       slog.New(slog.DiscardHandler),
		statActive:   reg.Strings.Get("state.active"),
		statSwitches: reg.Ints.Get("state.switches"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetActiveState replaces the active state
// Runs s.Initiate, installs s as the bus scope, applies s.Config to the target
// and broadcasts StateChanged
func (r *Router) SetActiveState(s *State) error {
	if s == nil {
		return fmt.Errorf("%w: activate nil state", event.ErrInvalidArgument)
	}
	if err := s.config.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.active
	r.active = s
	r.mu.Unlock()

	s.Initiate()
	r.bus.SetScope(s)

	if r.target != nil && !s.config.IsZero() {
		if err := s.config.Apply(r.target); err != nil {
			r.logger.Warn("state config not applied", "state", s.name, "error", err)
		}
	}

	r.statActive.Store(s.name)
	r.statSwitches.Add(1)
	r.logger.Info("state activated", "state", s.String(), "from", nameOf(prev))

	return r.bus.Broadcast(event.StateChanged{From: nameOf(prev), To: s.name})
}

// Deactivate clears the active state; subsequent broadcasts reach only global handlers
func (r *Router) Deactivate() {
	r.mu.Lock()
	prev := r.active
	r.active = nil
	r.mu.Unlock()

	if prev == nil {
		return
	}
	r.bus.SetScope(nil)
	r.statActive.Store("")
	r.logger.Info("state deactivated", "state", prev.String())
	_ = r.bus.Broadcast(event.StateChanged{From: prev.name})
}

// ActiveState returns the current state or nil
func (r *Router) ActiveState() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// IsActive reports whether s is the current state by identity
func (r *Router) IsActive(s *State) bool {
	return r.ActiveState().Equal(s)
}

// Dump renders the router and its active state
func (r *Router) Dump() string {
	active := r.ActiveState()
	var sb strings.Builder
	sb.WriteString("state.Router\n")
	fmt.Fprintf(&sb, "  %-10s %d\n", "switches:", r.statSwitches.Load())
	if active == nil {
		sb.WriteString("  active:    none\n")
		return sb.String()
	}
	sb.WriteString(active.Dump())
	return sb.String()
}

func nameOf(s *State) string {
	if s == nil {
		return ""
	}
	return s.name
}
