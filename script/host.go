// Package script hosts sandboxed Lua mods that observe and emit engine events
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/status"
)

// DefaultCallTimeout bounds a single mod callback
const DefaultCallTimeout = 20 * time.Millisecond

// ErrHostClosed is returned when loading into a stopped host
var ErrHostClosed = errors.New("script host is closed")

// Engine accepts work for the scheduler goroutine
type Engine interface {
	ExecuteWithEngine(fn func()) error
}

// Publisher broadcasts events on the bus
type Publisher interface {
	Broadcast(ev event.Event) error
}

type subscription struct {
	mod string
	fn  *lua.LFunction
}

// Host owns one Lua VM shared by every mod
//
// All Lua execution happens under mu; Go functions exposed to Lua run inside
// that execution and touch host fields without locking
// Emitted events never dispatch inline: they go through the engine queue and
// broadcast on the next tick
type Host struct {
	engine Engine
	bus    Publisher
	dir    string
	logger *slog.Logger

	callTimeout time.Duration

	mu      sync.Mutex
	L       *lua.LState
	subs    map[event.Kind][]subscription
	mods    []string
	current string
	closed  bool

	statFailures *atomic.Int64
	statCalls    *atomic.Int64
	statEmits    *atomic.Int64
}

// Option configures a Host
type Option func(*Host)

// WithDir loads every *.lua file in dir at Init
func WithDir(dir string) Option {
	return func(h *Host) {
		h.dir = dir
	}
}

// WithLogger routes mod logs and failures to logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithCallTimeout bounds each callback; zero disables the bound
func WithCallTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.callTimeout = d
	}
}

// WithStatus publishes call, emit and failure counters into reg
func WithStatus(reg *status.Registry) Option {
	return func(h *Host) {
		if reg != nil {
			h.statFailures = reg.Ints.Get("script.failures")
			h.statCalls = reg.Ints.Get("script.calls")
			h.statEmits = reg.Ints.Get("script.emits")
		}
	}
}

// NewHost creates a host with a fresh sandboxed VM
func NewHost(engine Engine, bus Publisher, opts ...Option) *Host {
	reg := status.NewRegistry()
	h := &Host{
		engine:       engine,
		bus:          bus,
		logger:       slog.New(slog.DiscardHandler),
		callTimeout:  DefaultCallTimeout,
		subs:         make(map[event.Kind][]subscription),
		statFailures: reg.Ints.Get("script.failures"),
		statCalls:    reg.Ints.Get("script.calls"),
		statEmits:    reg.Ints.Get("script.emits"),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.L = newSandbox()
	h.installAPI()
	return h
}

// newSandbox opens only libraries without filesystem or process access
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (h *Host) installAPI() {
	api := h.L.NewTable()
	h.L.SetFuncs(api, map[string]lua.LGFunction{
		"subscribe": h.luaSubscribe,
		"emit":      h.luaEmit,
		"log":       h.luaLog,
	})
	h.L.SetGlobal("engine", api)
	h.L.SetGlobal("print", h.L.NewFunction(h.luaLog))
}

func (h *Host) Name() string { return "script" }

func (h *Host) Dependencies() []string { return nil }

// Init loads mods from the configured directory in name order
// A missing directory loads nothing; a broken mod is logged and skipped
func (h *Host) Init() error {
	if h.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(h.dir)
	if errors.Is(err, os.ErrNotExist) {
		h.logger.Debug("no mod directory", "dir", h.dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read mod dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(h.dir, e.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			h.logger.Warn("mod unreadable", "path", path, "error", err)
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".lua")
		if err := h.Load(name, string(src)); err != nil {
			if errors.Is(err, ErrHostClosed) {
				return err
			}
			h.logger.Warn("mod skipped", "mod", name, "error", err)
		}
	}
	return nil
}

// Start is a no-op; mods run on the bus goroutine through OnEvent
func (h *Host) Start(ctx context.Context) error { return nil }

// Stop closes the VM and drops every subscription
func (h *Host) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.subs = make(map[event.Kind][]subscription)
	h.L.Close()
	return nil
}

// Load runs a mod's top-level chunk under name
// Subscriptions the chunk registers are attributed to name
func (h *Host) Load(name, src string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}

	h.current = name
	defer func() { h.current = "" }()

	fn, err := h.L.LoadString(src)
	if err != nil {
		h.statFailures.Add(1)
		return fmt.Errorf("compile mod %s: %w", name, err)
	}
	if err := h.call(fn); err != nil {
		h.statFailures.Add(1)
		h.dropMod(name)
		return fmt.Errorf("run mod %s: %w", name, err)
	}
	h.mods = append(h.mods, name)
	h.logger.Info("mod loaded", "mod", name)
	return nil
}

// OnEvent forwards ev to every mod callback subscribed to its kind
// Callback errors are logged and counted, never returned to the bus
func (h *Host) OnEvent(ev event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	subs := h.subs[ev.Kind()]
	if len(subs) == 0 {
		return
	}
	// Callbacks may subscribe more; iterate what existed at entry
	subs = append([]subscription(nil), subs...)

	tbl := eventTable(h.L, ev)
	for _, sub := range subs {
		h.current = sub.mod
		h.statCalls.Add(1)
		if err := h.call(sub.fn, tbl); err != nil {
			h.statFailures.Add(1)
			h.logger.Warn("mod callback failed", "mod", sub.mod, "kind", ev.Kind().String(), "error", err)
		}
	}
	h.current = ""
}

// call runs fn protected and bounded by callTimeout
func (h *Host) call(fn *lua.LFunction, args ...lua.LValue) error {
	if h.callTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), h.callTimeout)
		defer cancel()
		h.L.SetContext(ctx)
		defer h.L.RemoveContext()
	}
	return h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
}

// dropMod removes subscriptions made by a mod whose chunk failed
func (h *Host) dropMod(name string) {
	for kind, subs := range h.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s.mod != name {
				kept = append(kept, s)
			}
		}
		h.subs[kind] = kept
	}
}

// engine.subscribe(kind, fn)
func (h *Host) luaSubscribe(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	kind, ok := event.ParseKind(name)
	if !ok {
		L.ArgError(1, "unknown event kind "+name)
		return 0
	}
	h.subs[kind] = append(h.subs[kind], subscription{mod: h.current, fn: fn})
	return 0
}

// engine.emit(code, meta...)
func (h *Host) luaEmit(L *lua.LState) int {
	code := L.CheckInt(1)
	meta := make([]string, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		meta = append(meta, L.ToStringMeta(L.Get(i)).String())
	}

	ev := event.Script{Code: code, Meta: meta}
	err := h.engine.ExecuteWithEngine(func() {
		if err := h.bus.Broadcast(ev); err != nil {
			h.logger.Warn("script event not broadcast", "code", code, "error", err)
		}
	})
	if err != nil {
		L.RaiseError("emit: %s", err.Error())
		return 0
	}
	h.statEmits.Add(1)
	return 0
}

// engine.log(...) and print(...)
func (h *Host) luaLog(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	h.logger.Info("mod", "mod", h.current, "msg", strings.Join(parts, " "))
	return 0
}

// Mods returns the names of successfully loaded mods in load order
func (h *Host) Mods() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.mods...)
}

// Subscriptions returns the number of callbacks registered for kind
func (h *Host) Subscriptions(kind event.Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[kind])
}

// Failures returns compile, load and callback failures so far
func (h *Host) Failures() int64 { return h.statFailures.Load() }
