package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lixenwraith/cadence/core"
	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/status"
)

const (
	// DefaultFPS is the target rate until SetTargetFPS is called
	DefaultFPS = 30
	// DefaultBehindThreshold is how far past its budget a frame may run before warning
	DefaultBehindThreshold = 50 * time.Millisecond

	tracerName = "github.com/lixenwraith/cadence/engine"
)

var (
	// ErrCrashed is returned by Run when a panic escaped the frame bookkeeping
	ErrCrashed = errors.New("engine crashed")
	// ErrAlreadyRunning is returned by Run and Start while a loop is active
	ErrAlreadyRunning = errors.New("engine already running")
)

// CrashHandler receives a panic that escaped the loop, with its stack
type CrashHandler func(recovered any, stack []byte)

// Scheduler drives tick and render broadcasts at a fixed rate
//
// Per iteration:
//  1. Apply pending target FPS, budget = 1s / fps
//  2. If not paused: broadcast Tick, drain the engine-thread queue
//  3. Fill background, broadcast Render, draw overlays, Show
//  4. Warn when the frame overran its budget by more than the behind threshold
//  5. Sleep the remainder of the budget
//  6. Once per second: broadcast fps - ticks catch-up Ticks with no render
//
// All handlers run on the loop goroutine. Other goroutines submit work with
// ExecuteWithEngine.
type Scheduler struct {
	bus             *event.Bus
	clock           Clock
	surface         event.Surface
	overlays        []Overlay
	onCrash         CrashHandler
	behindThreshold time.Duration
	logger          *slog.Logger
	tracer          trace.Tracer

	running    atomic.Bool
	paused     atomic.Bool
	targetFPS  atomic.Int64
	pendingFPS atomic.Int64
	background atomic.Uint64

	queueMu sync.Mutex
	queue   []func()

	// Loop-owned timing state
	fps           int
	windowStart   time.Time
	windowTicks   int
	windowRenders int
	windowPaused  bool

	frame       atomic.Uint64
	tickSeq     atomic.Uint64
	lastCatchUp atomic.Int64

	// Run lifecycle, guarded by mu; gen identifies the run owning running
	mu     sync.Mutex
	gen    atomic.Uint64
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
	wg     sync.WaitGroup

	// Cached metric pointers
	statTicks       *atomic.Int64
	statRenders     *atomic.Int64
	statCatchUp     *atomic.Int64
	statBehind      *atomic.Int64
	statTaskFail    *atomic.Int64
	statOverlayFail *atomic.Int64
	statQueue       *atomic.Int64
	statFPS         *status.AtomicFloat
	statPaused      *atomic.Bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock, MockClock in tests
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSurface sets the drawing target carried by Render events
func WithSurface(surface event.Surface) Option {
	return func(s *Scheduler) {
		s.surface = surface
	}
}

// WithOverlays appends overlays drawn after each render, in order
func WithOverlays(overlays ...Overlay) Option {
	return func(s *Scheduler) {
		s.overlays = append(s.overlays, overlays...)
	}
}

// WithCrashHandler receives panics that escape the loop
func WithCrashHandler(h CrashHandler) Option {
	return func(s *Scheduler) {
		s.onCrash = h
	}
}

// WithBehindThreshold sets the overrun tolerated before an "engine behind" warning
func WithBehindThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.behindThreshold = d
		}
	}
}

// WithLogger routes timing and failure logs to logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer replaces the global otel tracer
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithStatus publishes loop metrics into reg
func WithStatus(reg *status.Registry) Option {
	return func(s *Scheduler) {
		if reg != nil {
			s.bindStatus(reg)
		}
	}
}

// New creates a stopped scheduler broadcasting on bus at DefaultFPS
func New(bus *event.Bus, opts ...Option) *Scheduler {
	s := &Scheduler{
		bus:             bus,
		clock:           NewSystemClock(),
		behindThreshold: DefaultBehindThreshold,
		logger:          slog.New(slog.DiscardHandler),
		tracer:          otel.Tracer(tracerName),
	}
	s.targetFPS.Store(DefaultFPS)
	s.background.Store(uint64(tcell.ColorDefault))
	s.bindStatus(status.NewRegistry())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) bindStatus(reg *status.Registry) {
	s.statTicks = reg.Ints.Get("engine.ticks")
	s.statRenders = reg.Ints.Get("engine.renders")
	s.statCatchUp = reg.Ints.Get("engine.catchup")
	s.statBehind = reg.Ints.Get("engine.behind_ms")
	s.statTaskFail = reg.Ints.Get("engine.task_failures")
	s.statOverlayFail = reg.Ints.Get("engine.overlay_failures")
	s.statQueue = reg.Ints.Get("engine.queue")
	s.statFPS = reg.Floats.Get("engine.fps")
	s.statPaused = reg.Bools.Get("engine.paused")
}

// loopRun is one Start or Run of the loop
type loopRun struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	prev   <-chan struct{}
	done   chan struct{}
}

// acquire claims the running flag for a new run
// The run waits on prev so at most one loop goroutine broadcasts at a time
func (s *Scheduler) acquire(parent context.Context) (*loopRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	r := &loopRun{
		gen:    s.gen.Add(1),
		ctx:    ctx,
		cancel: cancel,
		prev:   s.done,
		done:   make(chan struct{}),
	}
	s.cancel = cancel
	s.done = r.done
	s.wg.Add(1)
	return r, nil
}

func (s *Scheduler) execute(r *loopRun) error {
	defer s.wg.Done()
	if r.prev != nil {
		<-r.prev
	}
	err := s.loop(r)
	s.mu.Lock()
	s.runErr = err
	s.mu.Unlock()
	return err
}

// Run executes the loop on the calling goroutine until Stop or ctx is done
// Returns nil on a clean stop and ErrCrashed after a fatal panic
// Not callable from a handler: a stopped loop that has not exited yet is waited on
func (s *Scheduler) Run(ctx context.Context) error {
	r, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	return s.execute(r)
}

// Start runs the loop on a new goroutine; Wait collects its result
// After Stop, Start succeeds at once and the new loop begins when the old one exits
func (s *Scheduler) Start(ctx context.Context) error {
	r, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	core.Go(func() { _ = s.execute(r) })
	return nil
}

// Stop clears the running flag and interrupts the current sleep
// Cooperative: an in-flight broadcast finishes; the loop exits at the top of the next iteration
// Safe to call from handlers
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the loop exits and returns its result
func (s *Scheduler) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Running reports whether the loop is active
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// current reports whether gen is the live run and has not been stopped
func (s *Scheduler) current(gen uint64) bool {
	return s.running.Load() && s.gen.Load() == gen
}

func (s *Scheduler) loop(r *loopRun) (err error) {
	defer close(r.done)
	defer func() {
		r.cancel()
		// A later run owns the flag once gen moved on
		s.mu.Lock()
		if s.gen.Load() == r.gen {
			s.running.Store(false)
		}
		s.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			s.crash(rec, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrCrashed, rec)
		}
	}()

	if !s.current(r.gen) {
		return nil
	}

	s.fps = int(s.targetFPS.Load())
	s.pendingFPS.Store(0)
	s.resetWindow(s.clock.Now())
	s.statFPS.Set(0)
	s.logger.Info("engine started", "fps", s.fps, "run", r.gen)

	for s.current(r.gen) && r.ctx.Err() == nil {
		s.iterate(r.ctx)
	}

	s.logger.Info("engine stopped", "frames", s.frame.Load(), "ticks", s.tickSeq.Load())
	return nil
}

func (s *Scheduler) iterate(ctx context.Context) {
	if fps := int(s.pendingFPS.Swap(0)); fps > 0 && fps != s.fps {
		s.logger.Debug("target fps applied", "from", s.fps, "to", fps)
		s.fps = fps
		s.resetWindow(s.clock.Now())
	}
	budget := time.Second / time.Duration(s.fps)

	start := s.clock.Now()
	frame := s.frame.Add(1)
	_, span := s.tracer.Start(ctx, "engine.frame",
		trace.WithAttributes(attribute.Int64("engine.frame", int64(frame))))

	paused := s.paused.Load()
	if paused {
		s.windowPaused = true
	} else {
		s.tick(false)
		s.drainQueue()
	}

	s.render(frame, paused)

	end := s.clock.Now()
	delta := budget - end.Sub(start)
	if delta < -s.behindThreshold {
		lag := -delta
		s.statBehind.Store(lag.Milliseconds())
		s.logger.Warn("engine behind", "lag", lag, "frame", frame, "fps", s.fps)
		span.SetAttributes(attribute.Int64("engine.behind_ms", lag.Milliseconds()))
	}
	span.End()

	if delta > 0 {
		s.clock.Sleep(ctx, delta)
	}

	s.closeWindow(ctx)
}

func (s *Scheduler) resetWindow(now time.Time) {
	s.windowStart = now
	s.windowTicks = 0
	s.windowRenders = 0
	s.windowPaused = false
}

// closeWindow issues catch-up ticks once a wall-clock second has elapsed
// A window that saw a paused frame never catches up
func (s *Scheduler) closeWindow(ctx context.Context) {
	now := s.clock.Now()
	elapsed := now.Sub(s.windowStart)
	if elapsed < time.Second {
		return
	}

	missing := s.fps - s.windowTicks
	if s.windowPaused {
		missing = 0
	}
	s.statFPS.Set(float64(s.windowRenders) / elapsed.Seconds())
	s.resetWindow(now)
	s.lastCatchUp.Store(int64(max(missing, 0)))

	if missing <= 0 {
		return
	}

	_, span := s.tracer.Start(ctx, "engine.catchup",
		trace.WithAttributes(attribute.Int("engine.catchup.ticks", missing)))
	defer span.End()

	s.logger.Debug("catch-up ticks", "count", missing, "fps", s.fps)
	for range missing {
		s.tick(true)
	}
}

func (s *Scheduler) tick(catchUp bool) {
	seq := s.tickSeq.Add(1)
	if catchUp {
		s.statCatchUp.Add(1)
	} else {
		s.windowTicks++
		s.statTicks.Add(1)
	}
	if err := s.bus.Broadcast(event.Tick{Frame: seq, CatchUp: catchUp}); err != nil {
		s.logger.Debug("tick broadcast failed", "frame", seq, "error", err)
	}
}

func (s *Scheduler) render(frame uint64, paused bool) {
	surface := s.surface
	if surface != nil {
		s.fillBackground(surface)
	}

	if err := s.bus.Broadcast(event.Render{Surface: surface, Frame: frame}); err != nil {
		s.logger.Debug("render broadcast failed", "frame", frame, "error", err)
	}
	s.windowRenders++
	s.statRenders.Add(1)

	if surface == nil {
		return
	}
	info := FrameInfo{Frame: frame, FPS: s.fps, Paused: paused}
	for _, o := range s.overlays {
		s.drawOverlay(o, surface, info)
	}
	if shower, ok := surface.(interface{ Show() }); ok {
		shower.Show()
	}
}

func (s *Scheduler) fillBackground(surface event.Surface) {
	style := tcell.StyleDefault.Background(tcell.Color(s.background.Load()))
	w, h := surface.Size()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			surface.SetContent(x, y, ' ', nil, style)
		}
	}
}

func (s *Scheduler) drawOverlay(o Overlay, surface event.Surface, info FrameInfo) {
	defer func() {
		if r := recover(); r != nil {
			s.statOverlayFail.Add(1)
			s.logger.Error("overlay panicked", "overlay", o.Name(), "panic", fmt.Sprint(r))
		}
	}()
	if err := o.Draw(surface, info); err != nil && !errors.Is(err, ErrOverlaySkipped) {
		s.statOverlayFail.Add(1)
		s.logger.Debug("overlay failed", "overlay", o.Name(), "error", err)
	}
}

// ExecuteWithEngine queues fn to run on the loop goroutine right after the next tick
// Safe from any goroutine; submissions made while the queue drains run one tick later
func (s *Scheduler) ExecuteWithEngine(fn func()) error {
	if fn == nil {
		return fmt.Errorf("%w: nil engine task", event.ErrInvalidArgument)
	}
	s.queueMu.Lock()
	s.queue = append(s.queue, fn)
	n := len(s.queue)
	s.queueMu.Unlock()
	s.statQueue.Store(int64(n))
	return nil
}

// QueueLen returns the number of tasks waiting for the next tick
func (s *Scheduler) QueueLen() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) drainQueue() {
	s.queueMu.Lock()
	tasks := s.queue
	s.queue = nil
	s.queueMu.Unlock()
	s.statQueue.Store(0)

	for _, fn := range tasks {
		s.runTask(fn)
	}
}

func (s *Scheduler) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.statTaskFail.Add(1)
			s.logger.Error("engine task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (s *Scheduler) crash(r any, stack []byte) {
	s.queueMu.Lock()
	dropped := len(s.queue)
	s.queue = nil
	s.queueMu.Unlock()
	s.statQueue.Store(0)

	s.logger.Error("engine crashed", "panic", fmt.Sprint(r), "dropped_tasks", dropped, "stack", string(stack))
	if s.onCrash != nil {
		s.onCrash(r, stack)
	}
}

// SetTargetFPS requests a new rate, applied at the top of the next iteration
// A change resets the per-second catch-up window
func (s *Scheduler) SetTargetFPS(fps int) error {
	if fps <= 0 {
		return fmt.Errorf("%w: target fps %d", event.ErrInvalidArgument, fps)
	}
	s.targetFPS.Store(int64(fps))
	s.pendingFPS.Store(int64(fps))
	return nil
}

// TargetFPS returns the most recently requested rate
func (s *Scheduler) TargetFPS() int {
	return int(s.targetFPS.Load())
}

// Pause skips ticks and the engine queue; render continues
func (s *Scheduler) Pause() {
	if s.paused.CompareAndSwap(false, true) {
		s.statPaused.Store(true)
		s.logger.Info("engine paused")
	}
}

// Resume restores ticking
func (s *Scheduler) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.statPaused.Store(false)
		s.logger.Info("engine resumed")
	}
}

// Paused reports the pause flag
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// SetBackground sets the colour cleared under each render
func (s *Scheduler) SetBackground(c tcell.Color) {
	s.background.Store(uint64(c))
}

// Background returns the render clear colour
func (s *Scheduler) Background() tcell.Color {
	return tcell.Color(s.background.Load())
}

// Frame returns the number of render passes started
func (s *Scheduler) Frame() uint64 {
	return s.frame.Load()
}

// Ticks returns every tick broadcast so far, catch-up included
func (s *Scheduler) Ticks() uint64 {
	return s.tickSeq.Load()
}

// LastCatchUp returns the catch-up count issued when the last second closed
func (s *Scheduler) LastCatchUp() int {
	return int(s.lastCatchUp.Load())
}

// Dump renders the scheduler for crash reports
func (s *Scheduler) Dump() string {
	var sb strings.Builder
	sb.WriteString("engine.Scheduler\n")
	fmt.Fprintf(&sb, "  %-14s %t\n", "running:", s.Running())
	fmt.Fprintf(&sb, "  %-14s %t\n", "paused:", s.Paused())
	fmt.Fprintf(&sb, "  %-14s %d\n", "target fps:", s.TargetFPS())
	fmt.Fprintf(&sb, "  %-14s %d\n", "frame:", s.Frame())
	fmt.Fprintf(&sb, "  %-14s %d\n", "ticks:", s.Ticks())
	fmt.Fprintf(&sb, "  %-14s %d\n", "last catchup:", s.LastCatchUp())
	fmt.Fprintf(&sb, "  %-14s %d\n", "queued:", s.QueueLen())
	fmt.Fprintf(&sb, "  %-14s %d\n", "overlays:", len(s.overlays))
	return sb.String()
}
