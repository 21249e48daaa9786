package status

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Registry groups typed metric maps shared by bus, scheduler, router and services
// Pointers are resolved once at construction; Snapshot and Dump read them live
type Registry struct {
	Bools   *MetricMap[atomic.Bool]
	Ints    *MetricMap[atomic.Int64]
	Floats  *MetricMap[AtomicFloat]
	Strings *MetricMap[AtomicString]
}

func NewRegistry() *Registry {
	return &Registry{
		Bools:   NewMetricMap[atomic.Bool](),
		Ints:    NewMetricMap[atomic.Int64](),
		Floats:  NewMetricMap[AtomicFloat](),
		Strings: NewMetricMap[AtomicString](),
	}
}

// TotalCount sums metrics of every type
func (r *Registry) TotalCount() int {
	return r.Bools.Count() + r.Ints.Count() + r.Floats.Count() + r.Strings.Count()
}

// visit walks every metric as (name, value), ints first, strings last
func (r *Registry) visit(fn func(name string, value any)) {
	r.Ints.Range(func(k string, v *atomic.Int64) { fn(k, v.Load()) })
	r.Floats.Range(func(k string, v *AtomicFloat) { fn(k, v.Get()) })
	r.Bools.Range(func(k string, v *atomic.Bool) { fn(k, v.Load()) })
	r.Strings.Range(func(k string, v *AtomicString) { fn(k, v.Load()) })
}

// Snapshot copies current values keyed by name
func (r *Registry) Snapshot() map[string]any {
	out := make(map[string]any, r.TotalCount())
	r.visit(func(name string, value any) { out[name] = value })
	return out
}

// Dump formats one aligned line per metric
func (r *Registry) Dump() string {
	var sb strings.Builder
	sb.WriteString("status.Registry\n")
	r.visit(func(name string, value any) {
		if f, ok := value.(float64); ok {
			fmt.Fprintf(&sb, "  %-24s %.2f\n", name, f)
			return
		}
		fmt.Fprintf(&sb, "  %-24s %v\n", name, value)
	})
	return sb.String()
}
