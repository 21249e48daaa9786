package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/cadence/core"
	"github.com/lixenwraith/cadence/event"
)

// Engine is the part of the scheduler the input goroutine may touch
type Engine interface {
	ExecuteWithEngine(fn func()) error
}

// pausable is implemented by engines that can suspend their queue; engine.Scheduler does
type pausable interface {
	Paused() bool
	Resume()
}

// Publisher broadcasts translated events; event.Bus implements it
type Publisher interface {
	Broadcast(ev event.Event) error
}

// Service manages the tcell screen lifecycle and input polling
type Service struct {
	screen     tcell.Screen
	engine     Engine
	bus        Publisher
	onShutdown func(hard bool)
	logger     *slog.Logger

	translator Translator

	mu      sync.Mutex
	inited  bool
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	received atomic.Int64
	dropped  atomic.Int64
}

// Option configures a Service
type Option func(*Service)

// WithScreen supplies the screen instead of tcell.NewScreen, e.g. a simulation screen
func WithScreen(screen tcell.Screen) Option {
	return func(s *Service) {
		s.screen = screen
	}
}

// WithShutdown is called on the engine goroutine after Shutdown is broadcast
// Input reaches the bus through the engine queue, which is held while the engine
// is paused; a shutdown key resumes a paused engine so the request is not held
func WithShutdown(fn func(hard bool)) Option {
	return func(s *Service) {
		s.onShutdown = fn
	}
}

// WithLogger routes input logs to logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a terminal service publishing on bus through engine
func NewService(engine Engine, bus Publisher, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		bus:    bus,
		logger: slog.New(slog.DiscardHandler),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Service
func (s *Service) Name() string {
	return "terminal"
}

// Dependencies implements Service
func (s *Service) Dependencies() []string {
	return nil
}

// Init implements Service, entering the alternate screen
func (s *Service) Init() error {
	if s.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("terminal screen: %w", err)
		}
		s.screen = screen
	}
	if err := s.screen.Init(); err != nil {
		return fmt.Errorf("terminal init: %w", err)
	}
	s.screen.EnableMouse()
	s.screen.HideCursor()
	s.translator.SetSize(s.screen.Size())

	s.mu.Lock()
	s.inited = true
	s.mu.Unlock()
	return nil
}

// Start implements Service - launches input polling goroutine
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.inited {
		return fmt.Errorf("terminal start: not initialized")
	}
	s.running = true

	core.Go(s.pollLoop)
	core.Go(func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopCh:
		}
	})
	return nil
}

// pollLoop reads input events until the screen is finalized
func (s *Service) pollLoop() {
	defer close(s.doneCh)

	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.dispatch(ev)
	}
}

func (s *Service) dispatch(ev tcell.Event) {
	if key, ok := ev.(*tcell.EventKey); ok {
		if hard, ok := ShutdownRequest(key); ok {
			if p, ok := s.engine.(pausable); ok && p.Paused() {
				s.logger.Info("resuming paused engine for shutdown", "hard", hard)
				p.Resume()
			}
			s.submit(func() {
				_ = s.bus.Broadcast(event.Shutdown{Hard: hard})
				if s.onShutdown != nil {
					s.onShutdown(hard)
				}
			})
			return
		}
	}
	if _, ok := ev.(*tcell.EventResize); ok {
		s.screen.Sync()
	}

	events := s.translator.Translate(ev)
	if len(events) == 0 {
		return
	}
	s.received.Add(int64(len(events)))
	s.submit(func() {
		for _, e := range events {
			_ = s.bus.Broadcast(e)
		}
	})
}

func (s *Service) submit(fn func()) {
	if err := s.engine.ExecuteWithEngine(fn); err != nil {
		s.dropped.Add(1)
		s.logger.Warn("input dropped", "error", err)
	}
}

// Stop implements Service - finalizes the screen, which unblocks PollEvent
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.inited {
		s.mu.Unlock()
		return nil
	}
	s.inited = false
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		close(s.stopCh)
	}
	s.screen.Fini()
	if wasRunning {
		<-s.doneCh
	}
	return nil
}

// Screen returns the tcell screen, the engine render surface
func (s *Service) Screen() tcell.Screen {
	return s.screen
}

// Received returns the number of engine events produced from input
func (s *Service) Received() int64 {
	return s.received.Load()
}
