package event

import (
	"fmt"
	"strconv"
)

// Handler is one subscription: a kind filter, a priority and a callback
// Identity is the pointer; the same *Handler is never held twice by one list
type Handler struct {
	kind     Kind
	priority int
	name     string
	invoke   func(Event)
}

// HandlerOption configures a Handler at construction
type HandlerOption func(*Handler)

// WithName labels the handler in logs and dumps
func WithName(name string) HandlerOption {
	return func(h *Handler) {
		h.name = name
	}
}

// NewHandler builds a handler whose kind is resolved from the concrete event type E
// The callback receives E directly; no per-dispatch reflection is involved
// E must be a concrete event value type such as Tick or Key
func NewHandler[E Event](priority int, fn func(E), opts ...HandlerOption) *Handler {
	if fn == nil {
		panic(fmt.Errorf("%w: nil callback", ErrInvalidArgument))
	}
	var zero E
	if any(zero) == nil {
		panic(fmt.Errorf("%w: handler type %T is not a concrete event", ErrInvalidArgument, zero))
	}

	h := &Handler{
		kind:     zero.Kind(),
		priority: priority,
		invoke: func(ev Event) {
			if typed, ok := ev.(E); ok {
				fn(typed)
			}
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandlerFunc builds an untyped handler for kind
// Useful for bridges that forward events without inspecting the payload
func HandlerFunc(kind Kind, priority int, fn func(Event), opts ...HandlerOption) *Handler {
	if fn == nil {
		panic(fmt.Errorf("%w: nil callback", ErrInvalidArgument))
	}
	h := &Handler{
		kind:     kind,
		priority: priority,
		invoke:   fn,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Kind returns the event kind this handler consumes
func (h *Handler) Kind() Kind {
	return h.kind
}

// Priority returns the dispatch priority, lower runs first
func (h *Handler) Priority() int {
	return h.priority
}

// Name returns the label given at construction, or empty
func (h *Handler) Name() string {
	return h.name
}

func (h *Handler) String() string {
	label := h.name
	if label == "" {
		label = fmt.Sprintf("%p", h)
	}
	return label + "[" + h.kind.String() + "@" + strconv.Itoa(h.priority) + "]"
}

// Matches reports whether ev should be delivered to h
func (h *Handler) Matches(ev Event) bool {
	return ev != nil && ev.Kind() == h.kind
}
