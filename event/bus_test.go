package event

import (
	"errors"
	"reflect"
	"testing"

	"github.com/lixenwraith/cadence/status"
)

// recordingScope captures events forwarded by the bus
type recordingScope struct {
	got []Kind
}

func (s *recordingScope) SendEvent(ev Event) error {
	s.got = append(s.got, ev.Kind())
	return nil
}

// recordingHook captures mod hook notifications
type recordingHook struct {
	got []Kind
}

func (h *recordingHook) OnEvent(ev Event) {
	h.got = append(h.got, ev.Kind())
}

// TestBusExampleScenario covers the A/B/C walkthrough: only tick handlers run, B before A
func TestBusExampleScenario(t *testing.T) {
	bus := NewBus()

	counter := 0
	var log []string
	renderCalled := false

	a := NewHandler(5, func(Tick) { counter++ }, WithName("A"))
	b := NewHandler(1, func(Tick) { log = append(log, "B") }, WithName("B"))
	c := NewHandler(5, func(Render) { renderCalled = true }, WithName("C"))

	for _, h := range []*Handler{a, b, c} {
		if err := bus.Subscribe(h); err != nil {
			t.Fatalf("Subscribe(%s) error: %v", h, err)
		}
	}

	if err := bus.Broadcast(Tick{Frame: 1}); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}

	if !reflect.DeepEqual(log, []string{"B"}) {
		t.Errorf("log = %v, want [B]", log)
	}
	if counter != 1 {
		t.Errorf("counter = %d, want 1", counter)
	}
	if renderCalled {
		t.Error("render handler invoked for tick event")
	}
}

// TestBusPriorityOrdering verifies ascending priority regardless of subscription order
func TestBusPriorityOrdering(t *testing.T) {
	tests := []struct {
		name       string
		priorities []int
		want       []int
	}{
		{"already sorted", []int{1, 2, 3}, []int{1, 2, 3}},
		{"reversed", []int{9, 5, 1}, []int{1, 5, 9}},
		{"interleaved", []int{4, -2, 7, 0}, []int{-2, 0, 4, 7}},
		{"duplicates", []int{3, 1, 3, 2}, []int{1, 2, 3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			var order []int
			for _, p := range tt.priorities {
				p := p
				_ = bus.Subscribe(NewHandler(p, func(Tick) { order = append(order, p) }))
			}

			_ = bus.Broadcast(Tick{})

			if !reflect.DeepEqual(order, tt.want) {
				t.Errorf("order = %v, want %v", order, tt.want)
			}
		})
	}
}

// TestBusEqualPriorityKeepsInsertionOrder verifies ties run in subscription order
func TestBusEqualPriorityKeepsInsertionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		_ = bus.Subscribe(NewHandler(10, func(Tick) { order = append(order, name) }))
	}

	_ = bus.Broadcast(Tick{})

	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	// A later subscription at the same priority lands after the existing ones
	_ = bus.Subscribe(NewHandler(10, func(Tick) { order = append(order, "late") }))
	order = nil
	_ = bus.Broadcast(Tick{})
	want = append(want, "late")
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order after late subscribe = %v, want %v", order, want)
	}
}

// TestBusKindFiltering verifies a handler only sees its own kind
func TestBusKindFiltering(t *testing.T) {
	events := []Event{
		Tick{}, Render{}, Key{}, Mouse{}, Resize{}, Shutdown{},
		Network{Peer: "p"}, Script{}, Prompt{}, Sound{}, StateChanged{}, Custom{},
	}
	if len(events) != len(Kinds()) {
		t.Fatalf("test covers %d kinds, have %d", len(events), len(Kinds()))
	}

	for _, kind := range Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			bus := NewBus()
			var seen []Kind
			_ = bus.Subscribe(HandlerFunc(kind, 0, func(ev Event) { seen = append(seen, ev.Kind()) }))

			for _, ev := range events {
				_ = bus.Broadcast(ev)
			}

			if len(seen) != 1 || seen[0] != kind {
				t.Errorf("handler for %s saw %v", kind, seen)
			}
		})
	}
}

// TestBusSubscribeDeferredUntilNextBroadcast verifies queued additions
func TestBusSubscribeDeferredUntilNextBroadcast(t *testing.T) {
	bus := NewBus()
	_ = bus.Subscribe(NewHandler(0, func(Tick) {}))

	if got := bus.Len(); got != 0 {
		t.Errorf("Len before broadcast = %d, want 0", got)
	}
	if adds, _ := bus.Pending(); adds != 1 {
		t.Errorf("pending adds = %d, want 1", adds)
	}

	_ = bus.Broadcast(Custom{})

	if got := bus.Len(); got != 1 {
		t.Errorf("Len after broadcast = %d, want 1", got)
	}
}

// TestBusMutationDuringDispatch verifies self-unsubscribe and new subscriptions
// do not change the list observed within the same broadcast
func TestBusMutationDuringDispatch(t *testing.T) {
	bus := NewBus()
	var calls []string

	var self *Handler
	late := NewHandler(0, func(Tick) { calls = append(calls, "late") })
	self = NewHandler(1, func(Tick) {
		calls = append(calls, "self")
		_ = bus.Unsubscribe(self)
		_ = bus.Subscribe(late)
	})
	after := NewHandler(2, func(Tick) { calls = append(calls, "after") })

	_ = bus.Subscribe(self)
	_ = bus.Subscribe(after)

	_ = bus.Broadcast(Tick{})
	if want := []string{"self", "after"}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("first broadcast calls = %v, want %v", calls, want)
	}

	calls = nil
	_ = bus.Broadcast(Tick{})
	if want := []string{"late", "after"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("second broadcast calls = %v, want %v", calls, want)
	}
}

// TestBusNestedBroadcastKeepsOuterSnapshot verifies a handler publishing while
// mutations are pending does not disturb the outer pass
func TestBusNestedBroadcastKeepsOuterSnapshot(t *testing.T) {
	bus := NewBus()
	var calls []string

	removed := NewHandler(5, func(Tick) { calls = append(calls, "removed") })
	publisher := NewHandler(1, func(Tick) {
		calls = append(calls, "publisher")
		_ = bus.Unsubscribe(removed)
		_ = bus.Broadcast(Custom{Name: "nested"})
	})
	nested := NewHandler(0, func(c Custom) { calls = append(calls, "nested:"+c.Name) })

	_ = bus.Subscribe(publisher)
	_ = bus.Subscribe(removed)
	_ = bus.Subscribe(nested)

	_ = bus.Broadcast(Tick{})

	want := []string{"publisher", "nested:nested", "removed"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	if bus.Handlers().Contains(removed) {
		t.Error("removed handler still active after nested broadcast applied the queue")
	}
}

// TestBusHandlerPanicIsolated verifies a panicking handler does not stop the pass
func TestBusHandlerPanicIsolated(t *testing.T) {
	reg := status.NewRegistry()
	bus := NewBus(WithStatus(reg))

	var ran []int
	_ = bus.Subscribe(NewHandler(1, func(Tick) { ran = append(ran, 1) }))
	_ = bus.Subscribe(NewHandler(2, func(Tick) { panic("boom") }))
	_ = bus.Subscribe(NewHandler(3, func(Tick) { ran = append(ran, 3) }))

	if err := bus.Broadcast(Tick{}); err != nil {
		t.Fatalf("Broadcast returned %v", err)
	}

	if !reflect.DeepEqual(ran, []int{1, 3}) {
		t.Errorf("ran = %v, want [1 3]", ran)
	}
	if got := reg.Ints.Get("bus.failures").Load(); got != 1 {
		t.Errorf("bus.failures = %d, want 1", got)
	}
	if got := reg.Ints.Get("bus.deliveries").Load(); got != 2 {
		t.Errorf("bus.deliveries = %d, want 2", got)
	}
}

// TestBusInvalidArguments verifies nil handlers and events are rejected
func TestBusInvalidArguments(t *testing.T) {
	bus := NewBus()

	if err := bus.Subscribe(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Subscribe(nil) = %v, want ErrInvalidArgument", err)
	}
	if err := bus.Unsubscribe(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Unsubscribe(nil) = %v, want ErrInvalidArgument", err)
	}
	if err := bus.Broadcast(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Broadcast(nil) = %v, want ErrInvalidArgument", err)
	}
}

// TestBusUnsubscribeUnknownIsNoop verifies removal of unregistered handlers
func TestBusUnsubscribeUnknownIsNoop(t *testing.T) {
	bus := NewBus()
	kept := NewHandler(0, func(Tick) {})
	_ = bus.Subscribe(kept)
	_ = bus.Unsubscribe(NewHandler(0, func(Tick) {}))

	if err := bus.Broadcast(Tick{}); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
	if bus.Len() != 1 {
		t.Errorf("Len = %d, want 1", bus.Len())
	}
}

// TestBusDuplicateSubscribe verifies a handler is held once
func TestBusDuplicateSubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	h := NewHandler(0, func(Tick) { calls++ })
	_ = bus.Subscribe(h)
	_ = bus.Subscribe(h)

	_ = bus.Broadcast(Tick{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.Len() != 1 {
		t.Errorf("Len = %d, want 1", bus.Len())
	}
}

// TestBusScopeAndHookOrder verifies scope first, global handlers, then the mod hook
func TestBusScopeAndHookOrder(t *testing.T) {
	var order []string
	scope := &orderScope{order: &order}
	hook := &orderHook{order: &order}

	bus := NewBus(WithModHook(hook))
	bus.SetScope(scope)
	_ = bus.Subscribe(NewHandler(0, func(Tick) { order = append(order, "global") }))

	_ = bus.Broadcast(Tick{})

	want := []string{"scope", "global", "hook"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	bus.SetScope(nil)
	order = nil
	_ = bus.Broadcast(Tick{})
	if want := []string{"global", "hook"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order without scope = %v, want %v", order, want)
	}
}

type orderScope struct{ order *[]string }

func (s *orderScope) SendEvent(Event) error {
	*s.order = append(*s.order, "scope")
	return nil
}

type orderHook struct{ order *[]string }

func (h *orderHook) OnEvent(Event) {
	*h.order = append(*h.order, "hook")
}

// TestBusHookPanicIsolated verifies a failing mod hook does not escape Broadcast
func TestBusHookPanicIsolated(t *testing.T) {
	bus := NewBus(WithModHook(panicHook{}))
	if err := bus.Broadcast(Tick{}); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}
}

type panicHook struct{}

func (panicHook) OnEvent(Event) { panic("mod failure") }

// TestBusReset verifies teardown drops active and pending handlers
func TestBusReset(t *testing.T) {
	bus := NewBus()
	calls := 0
	_ = bus.Subscribe(NewHandler(0, func(Tick) { calls++ }))
	_ = bus.Broadcast(Tick{})
	_ = bus.Subscribe(NewHandler(1, func(Tick) { calls++ }))

	bus.Reset()
	_ = bus.Broadcast(Tick{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (only the pre-reset broadcast)", calls)
	}
	if bus.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", bus.Len())
	}
}

// TestBusScopeReceivesEvents verifies forwarding to the installed scope
func TestBusScopeReceivesEvents(t *testing.T) {
	bus := NewBus()
	scope := &recordingScope{}
	hook := &recordingHook{}
	bus.SetScope(scope)
	bus.SetModHook(hook)

	_ = bus.Broadcast(Tick{})
	_ = bus.Broadcast(Key{})

	if want := []Kind{KindTick, KindKey}; !reflect.DeepEqual(scope.got, want) {
		t.Errorf("scope got %v, want %v", scope.got, want)
	}
	if want := []Kind{KindTick, KindKey}; !reflect.DeepEqual(hook.got, want) {
		t.Errorf("hook got %v, want %v", hook.got, want)
	}
}
