package status

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// MetricMap hands out one stable *T per key
// Callers resolve pointers during construction; the hot path never touches the map
type MetricMap[T any] struct {
	items sync.Map // string -> *T
	n     atomic.Int32
}

func NewMetricMap[T any]() *MetricMap[T] {
	return &MetricMap[T]{}
}

// Get returns the metric for key, creating it on first request
func (m *MetricMap[T]) Get(key string) *T {
	if v, ok := m.items.Load(key); ok {
		return v.(*T)
	}
	v, loaded := m.items.LoadOrStore(key, new(T))
	if !loaded {
		m.n.Add(1)
	}
	return v.(*T)
}

// Lookup is Get without creation
func (m *MetricMap[T]) Lookup(key string) (*T, bool) {
	v, ok := m.items.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*T), true
}

type entry[T any] struct {
	key string
	ptr *T
}

// Range calls fn for each metric, keys ascending
func (m *MetricMap[T]) Range(fn func(key string, ptr *T)) {
	var entries []entry[T]
	m.items.Range(func(k, v any) bool {
		entries = append(entries, entry[T]{k.(string), v.(*T)})
		return true
	})
	slices.SortFunc(entries, func(a, b entry[T]) int { return strings.Compare(a.key, b.key) })
	for _, e := range entries {
		fn(e.key, e.ptr)
	}
}

func (m *MetricMap[T]) Count() int {
	return int(m.n.Load())
}
