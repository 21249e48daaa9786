package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

var (
	ErrDuplicate          = errors.New("service already registered")
	ErrUnknownDependency  = errors.New("service depends on unregistered service")
	ErrCircularDependency = errors.New("circular dependency detected in services")
)

// Hub owns service instances and walks them through their lifecycle
//
// Init and Start follow dependency order, Stop the reverse
// StopAll reaches every service that passed Init, started or not, so a host
// that fails between InitAll and StartAll still releases the terminal
type Hub struct {
	mu       sync.Mutex
	services map[string]Service
	order    []string // dependency order, nil until resolved
	inited   []string
	started  []string
	logger   *slog.Logger
}

// NewHub creates an empty hub; nil logger discards
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		services: make(map[string]Service),
		logger:   logger,
	}
}

// Register adds svc under svc.Name()
func (h *Hub) Register(svc Service) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := svc.Name()
	if _, ok := h.services[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	h.services[name] = svc
	h.order = nil
	return nil
}

// Get looks a service up by name
func (h *Hub) Get(name string) (Service, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	svc, ok := h.services[name]
	return svc, ok
}

// MustGet returns the named service as T, panicking when absent or of another type
func MustGet[T any](h *Hub, name string) T {
	svc, ok := h.Get(name)
	if !ok {
		panic(fmt.Sprintf("service not found: %s", name))
	}
	typed, ok := svc.(T)
	if !ok {
		panic(fmt.Sprintf("service %s: type mismatch, got %T", name, svc))
	}
	return typed
}

// InitAll resolves dependency order and calls Init on each service
// A failure stops the services already initialized, newest first
func (h *Hub) InitAll() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.order == nil {
		order, err := h.resolve()
		if err != nil {
			return err
		}
		h.order = order
	}

	h.inited = h.inited[:0]
	for _, name := range h.order {
		if err := h.services[name].Init(); err != nil {
			h.stopEach(h.inited)
			h.inited = nil
			return fmt.Errorf("service %s init failed: %w", name, err)
		}
		h.inited = append(h.inited, name)
		h.logger.Debug("service initialized", "service", name)
	}
	return nil
}

// StartAll calls Start in dependency order
// A failure stops the services already started, newest first
func (h *Hub) StartAll(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.started = h.started[:0]
	for _, name := range h.inited {
		if err := h.services[name].Start(ctx); err != nil {
			h.stopEach(h.started)
			h.started = nil
			return fmt.Errorf("service %s start failed: %w", name, err)
		}
		h.started = append(h.started, name)
		h.logger.Debug("service started", "service", name)
	}
	return nil
}

// StopAll stops every initialized service in reverse order
// Errors are logged; every service gets its Stop call
func (h *Hub) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopEach(h.inited)
	h.inited = nil
	h.started = nil
}

func (h *Hub) stopEach(names []string) {
	for _, name := range slices.Backward(names) {
		if err := h.services[name].Stop(); err != nil {
			h.logger.Warn("service stop failed", "service", name, "error", err)
		}
	}
}

// resolve orders services depth-first so each follows its dependencies
// Names and dependency lists are visited sorted, the order is reproducible
func (h *Hub) resolve() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(h.services))
	order := make([]string, 0, len(h.services))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(append(path, name), " -> "))
		}
		marks[name] = visiting

		deps := slices.Sorted(slices.Values(h.services[name].Dependencies()))
		for _, dep := range deps {
			if _, ok := h.services[dep]; !ok {
				return fmt.Errorf("%w: %s needs %s", ErrUnknownDependency, name, dep)
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		marks[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range h.names() {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (h *Hub) names() []string {
	names := make([]string, 0, len(h.services))
	for name := range h.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Names returns registered service names, sorted
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.names()
}
