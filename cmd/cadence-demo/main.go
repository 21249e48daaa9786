// Command cadence-demo runs the engine in a terminal: a menu, a bouncing ball,
// bounce tones, Lua mods and live config reload
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lixenwraith/cadence/audio"
	"github.com/lixenwraith/cadence/config"
	"github.com/lixenwraith/cadence/core"
	"github.com/lixenwraith/cadence/engine"
	"github.com/lixenwraith/cadence/event"
	"github.com/lixenwraith/cadence/script"
	"github.com/lixenwraith/cadence/service"
	"github.com/lixenwraith/cadence/state"
	"github.com/lixenwraith/cadence/status"
	"github.com/lixenwraith/cadence/telemetry"
	"github.com/lixenwraith/cadence/terminal"
)

const statusInterval = 5 * time.Second

var (
	configFlag = flag.String("config", "cadence.toml", "Path to the TOML config file")
	debugFlag  = flag.Bool("debug", false, "Write debug logs to the log directory")
	fpsFlag    = flag.Int("fps", 0, "Override the configured frame rate")
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	// Panic Recovery: restore the terminal even if setup itself crashes
	defer func() {
		if r := recover(); r != nil {
			terminal.EmergencyReset(os.Stdout)
			core.HandleCrash(r)
		}
	}()

	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
		return 2
	}
	if *debugFlag {
		cfg.Debug = true
	}
	if *fpsFlag > 0 {
		cfg.FPS = *fpsFlag
	}

	logger, logFile := setupLogging(cfg.Debug, cfg.LogDir)
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cadence: terminal: %v\n", err)
		return 1
	}

	reg := status.NewRegistry()
	reporter := core.NewCrashReporter(cfg.LogDir, os.Stderr)
	reporter.SetTerminal(screen)
	core.Install(reporter)

	bus := event.NewBus(
		event.WithLogger(logger.With("component", "bus")),
		event.WithStatus(reg),
	)

	player := audio.NewPlayer(cfg.Audio.Volume,
		audio.WithLogger(logger.With("component", "audio")),
		audio.WithStatus(reg),
	)
	player.SetEnabled(cfg.Audio.Enabled)

	sched := engine.New(bus,
		engine.WithSurface(screen),
		engine.WithOverlays(
			engine.NewSplashOverlay("cadence", cfg.Splash.Duration),
			engine.NewStatusIconOverlay('♪', player.Available),
			&engine.PauseOverlay{Style: tcell.StyleDefault.Foreground(tcell.ColorYellow)},
		),
		engine.WithCrashHandler(func(r any, stack []byte) {
			reporter.Report(r, stack)
			bus.Reset()
		}),
		engine.WithBehindThreshold(cfg.BehindThreshold.Duration),
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithStatus(reg),
	)
	if err := sched.SetTargetFPS(cfg.FPS); err != nil {
		fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
		return 2
	}
	sched.SetBackground(cfg.BackgroundColor())

	router := state.NewRouter(bus,
		state.WithTarget(sched),
		state.WithRouterLogger(logger.With("component", "router")),
		state.WithRouterStatus(reg),
	)
	reporter.AddDumper(bus, sched, router, reg)

	host := script.NewHost(sched, bus,
		script.WithDir(cfg.Scripts.Dir),
		script.WithLogger(logger.With("component", "script")),
		script.WithStatus(reg),
	)
	bus.SetModHook(host)

	var hard atomic.Bool
	term := terminal.NewService(sched, bus,
		terminal.WithScreen(screen),
		terminal.WithLogger(logger.With("component", "terminal")),
		terminal.WithShutdown(func(h bool) {
			hard.Store(h)
			sched.Stop()
		}),
	)

	watcher := config.NewWatcher(*configFlag, func(next *config.Config) {
		_ = sched.ExecuteWithEngine(func() {
			applyConfig(next, sched, router, player)
			logger.Info("config reloaded")
		})
	}, config.WithWatcherLogger(logger.With("component", "config")))

	hub := service.NewHub(logger.With("component", "services"))
	for _, svc := range []service.Service{term, player, host, watcher} {
		if err := hub.Register(svc); err != nil {
			fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
			return 1
		}
	}
	if err := hub.InitAll(); err != nil {
		fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
		return 1
	}
	defer hub.StopAll()

	quit := func() {
		_ = bus.Broadcast(event.Shutdown{})
		sched.Stop()
	}
	d := newDemo(bus, router, sched, quit, logger.With("component", "demo"))
	if err := d.subscribe(); err != nil {
		logger.Error("demo handlers", "error", err)
		return 1
	}
	if err := bus.Subscribe(player.Handler()); err != nil {
		logger.Error("audio handler", "error", err)
		return 1
	}
	if err := router.SetActiveState(d.menu); err != nil {
		logger.Error("initial state", "error", err)
		return 1
	}

	if err := hub.StartAll(ctx); err != nil {
		logger.Error("start services", "error", err)
		return 1
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancelRun()
		return sched.Run(gctx)
	})
	if cfg.Debug {
		g.Go(func() error {
			logStatus(gctx, reg, logger)
			return nil
		})
	}

	err = g.Wait()
	switch {
	case errors.Is(err, engine.ErrCrashed):
		return 1
	case err != nil:
		logger.Error("engine stopped", "error", err)
		return 1
	}

	// Signal exits bypass the in-loop shutdown broadcast
	if ctx.Err() != nil {
		_ = bus.Broadcast(event.Shutdown{})
	}
	if hard.Load() {
		return 1
	}
	return 0
}

// applyConfig pushes reloadable settings; the active state's own overrides win
func applyConfig(next *config.Config, sched *engine.Scheduler, router *state.Router, player *audio.Player) {
	var override state.Config
	if active := router.ActiveState(); active != nil {
		override = active.Config()
	}
	if override.FPS == 0 {
		_ = sched.SetTargetFPS(next.FPS)
	}
	if override.Background == tcell.ColorDefault {
		sched.SetBackground(next.BackgroundColor())
	}
	player.SetVolume(next.Audio.Volume)
	player.SetEnabled(next.Audio.Enabled)
}

// logStatus writes a metrics snapshot to the debug log until ctx ends
func logStatus(ctx context.Context, reg *status.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("status", slog.Any("metrics", reg.Snapshot()))
		}
	}
}
