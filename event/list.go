package event

import (
	"runtime/debug"
	"slices"
)

// HandlerList is an immutable priority-ordered handler sequence
// Insert and Remove return a fresh list and never touch the receiver's backing
// array, so a list being dispatched stays stable for the whole pass
type HandlerList []*Handler

// Insert returns a new list with h placed after every handler of lower or equal
// priority, keeping insertion order among equal priorities
// Equal priorities therefore dispatch in subscription order, first subscribed first
// Returns the receiver unchanged if h is nil or already present
func (l HandlerList) Insert(h *Handler) HandlerList {
	if h == nil || l.Contains(h) {
		return l
	}

	at := len(l)
	for i, cur := range l {
		if cur.priority > h.priority {
			at = i
			break
		}
	}

	next := make(HandlerList, 0, len(l)+1)
	next = append(next, l[:at]...)
	next = append(next, h)
	next = append(next, l[at:]...)
	return next
}

// Remove returns a new list without h; unknown handlers are a no-op
func (l HandlerList) Remove(h *Handler) HandlerList {
	i := slices.Index(l, h)
	if i < 0 {
		return l
	}

	next := make(HandlerList, 0, len(l)-1)
	next = append(next, l[:i]...)
	next = append(next, l[i+1:]...)
	return next
}

// Contains reports identity membership
func (l HandlerList) Contains(h *Handler) bool {
	return slices.Contains(l, h)
}

// FailureFunc receives a recovered handler panic with its stack
type FailureFunc func(h *Handler, ev Event, recovered any, stack []byte)

// Dispatch invokes every handler matching ev's kind in list order
// A panicking handler is reported to onFail and the pass continues
// Returns the number of handlers that completed without panicking
func (l HandlerList) Dispatch(ev Event, onFail FailureFunc) int {
	kind := ev.Kind()
	delivered := 0
	for _, h := range l {
		if h.kind != kind {
			continue
		}
		if invokeIsolated(h, ev, onFail) {
			delivered++
		}
	}
	return delivered
}

func invokeIsolated(h *Handler, ev Event, onFail FailureFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if onFail != nil {
				onFail(h, ev, r, debug.Stack())
			}
		}
	}()
	h.invoke(ev)
	return true
}
