package event

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lixenwraith/cadence/status"
)

// Scope receives every broadcast before the global handler list
// state.State implements it; the bus holds at most one scope at a time
type Scope interface {
	SendEvent(ev Event) error
}

// ModHook is notified after each broadcast's global dispatch
// Implemented by extension hosts such as script.Host
type ModHook interface {
	OnEvent(ev Event)
}

// Bus is the process-wide registry of subscribed handlers
//
// Architecture:
//   - Subscribe/Unsubscribe only enqueue; queues drain at the top of Broadcast, adds before removes
//   - The active list is copy-on-write, a dispatch pass iterates a snapshot no mutation can reach
//   - Handlers run synchronously on the broadcasting goroutine, normally the scheduler loop
//   - A panicking handler is recovered, logged and counted; the pass continues
//
// Subscribe and Unsubscribe are safe from any goroutine
// Broadcast is meant for the scheduler goroutine; other goroutines hand work to
// engine.Scheduler.ExecuteWithEngine instead
type Bus struct {
	mu       sync.Mutex
	active   HandlerList
	toAdd    []*Handler
	toRemove []*Handler
	scope    Scope
	hook     ModHook

	logger *slog.Logger

	// Cached metric pointers
	statBroadcasts *atomic.Int64
	statDeliveries *atomic.Int64
	statFailures   *atomic.Int64
	statHandlers   *atomic.Int64
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithLogger routes handler failure logs to logger
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStatus publishes bus counters into reg
func WithStatus(reg *status.Registry) BusOption {
	return func(b *Bus) {
		if reg != nil {
			b.bindStatus(reg)
		}
	}
}

// WithModHook installs the extension notification hook
func WithModHook(hook ModHook) BusOption {
	return func(b *Bus) {
		b.hook = hook
	}
}

// NewBus creates an empty bus
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		logger: slog.New(slog.DiscardHandler),
	}
	b.bindStatus(status.NewRegistry())
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) bindStatus(reg *status.Registry) {
	b.statBroadcasts = reg.Ints.Get("bus.broadcasts")
	b.statDeliveries = reg.Ints.Get("bus.deliveries")
	b.statFailures = reg.Ints.Get("bus.failures")
	b.statHandlers = reg.Ints.Get("bus.handlers")
}

// Subscribe enqueues h; it becomes active at the start of the next Broadcast
func (b *Bus) Subscribe(h *Handler) error {
	if h == nil {
		return fmt.Errorf("%w: subscribe nil handler", ErrInvalidArgument)
	}
	b.mu.Lock()
	b.toAdd = append(b.toAdd, h)
	b.mu.Unlock()
	return nil
}

// Unsubscribe enqueues h for removal at the start of the next Broadcast
// Unsubscribing a handler that is not registered is a no-op once applied
func (b *Bus) Unsubscribe(h *Handler) error {
	if h == nil {
		return fmt.Errorf("%w: unsubscribe nil handler", ErrInvalidArgument)
	}
	b.mu.Lock()
	b.toRemove = append(b.toRemove, h)
	b.mu.Unlock()
	return nil
}

// Broadcast delivers ev synchronously
// Order: apply pending adds, apply pending removes, active scope, global handlers
// in priority order filtered by kind, then the mod hook
func (b *Bus) Broadcast(ev Event) error {
	if ev == nil {
		return fmt.Errorf("%w: broadcast nil event", ErrInvalidArgument)
	}

	b.mu.Lock()
	b.applyPendingLocked()
	handlers := b.active
	scope := b.scope
	hook := b.hook
	b.mu.Unlock()

	b.statBroadcasts.Add(1)

	if scope != nil {
		if err := scope.SendEvent(ev); err != nil {
			b.logger.Warn("scope rejected event", "kind", ev.Kind().String(), "error", err)
		}
	}

	delivered := handlers.Dispatch(ev, b.reportFailure)
	b.statDeliveries.Add(int64(delivered))

	if hook != nil {
		b.notifyHook(hook, ev)
	}
	return nil
}

// applyPendingLocked folds the queues into a fresh active list, adds first
func (b *Bus) applyPendingLocked() {
	if len(b.toAdd) == 0 && len(b.toRemove) == 0 {
		return
	}

	next := b.active
	for _, h := range b.toAdd {
		next = next.Insert(h)
	}
	for _, h := range b.toRemove {
		next = next.Remove(h)
	}
	b.active = next
	b.toAdd = nil
	b.toRemove = nil
	b.statHandlers.Store(int64(len(next)))
}

func (b *Bus) reportFailure(h *Handler, ev Event, recovered any, stack []byte) {
	b.statFailures.Add(1)
	b.logger.Error("event handler panicked",
		"handler", h.String(),
		"kind", ev.Kind().String(),
		"panic", fmt.Sprint(recovered),
		"stack", string(stack),
	)
}

func (b *Bus) notifyHook(hook ModHook, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.statFailures.Add(1)
			b.logger.Error("mod hook panicked", "kind", ev.Kind().String(), "panic", fmt.Sprint(r))
		}
	}()
	hook.OnEvent(ev)
}

// Reset drops every active handler and every pending mutation
// Used during crash and shutdown teardown; not reversible
func (b *Bus) Reset() {
	b.mu.Lock()
	b.active = nil
	b.toAdd = nil
	b.toRemove = nil
	b.mu.Unlock()
	b.statHandlers.Store(0)
}

// SetScope installs the active scope, nil clears it
// Takes effect from the next Broadcast
func (b *Bus) SetScope(s Scope) {
	b.mu.Lock()
	b.scope = s
	b.mu.Unlock()
}

// Scope returns the installed scope or nil
func (b *Bus) Scope() Scope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scope
}

// SetModHook replaces the extension hook, nil disables it
func (b *Bus) SetModHook(hook ModHook) {
	b.mu.Lock()
	b.hook = hook
	b.mu.Unlock()
}

// Len returns the number of active handlers, excluding pending additions
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// Pending returns queued additions and removals not yet applied
func (b *Bus) Pending() (adds, removes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.toAdd), len(b.toRemove)
}

// Handlers returns the active list snapshot in dispatch order
func (b *Bus) Handlers() HandlerList {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Dump renders the bus state for crash reports
func (b *Bus) Dump() string {
	b.mu.Lock()
	active := b.active
	adds, removes := len(b.toAdd), len(b.toRemove)
	hasScope := b.scope != nil
	b.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("event.Bus\n")
	fmt.Fprintf(&sb, "  %-16s %d\n", "handlers:", len(active))
	fmt.Fprintf(&sb, "  %-16s %d/%d\n", "pending add/rm:", adds, removes)
	fmt.Fprintf(&sb, "  %-16s %t\n", "scope:", hasScope)
	for i, h := range active {
		fmt.Fprintf(&sb, "  %3d %s\n", i, h)
	}
	return sb.String()
}
