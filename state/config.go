package state

import (
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/cadence/event"
)

// Config is the engine presentation a state wants while it is active
// Zero fields leave the current engine value untouched
type Config struct {
	FPS        int
	Background tcell.Color
}

// ConfigTarget is the engine side a Config is captured from and applied to
// engine.Scheduler implements it
type ConfigTarget interface {
	TargetFPS() int
	SetTargetFPS(fps int) error
	Background() tcell.Color
	SetBackground(c tcell.Color)
}

// Snapshot captures the target's current settings
func Snapshot(t ConfigTarget) Config {
	return Config{
		FPS:        t.TargetFPS(),
		Background: t.Background(),
	}
}

// Validate rejects negative rates; zero means keep
func (c Config) Validate() error {
	if c.FPS < 0 {
		return fmt.Errorf("%w: state fps %d", event.ErrInvalidArgument, c.FPS)
	}
	return nil
}

// Apply pushes the non-zero fields into t
func (c Config) Apply(t ConfigTarget) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.FPS > 0 {
		if err := t.SetTargetFPS(c.FPS); err != nil {
			return fmt.Errorf("apply state fps: %w", err)
		}
	}
	if c.Background != tcell.ColorDefault {
		t.SetBackground(c.Background)
	}
	return nil
}

// IsZero reports whether applying c would change nothing
func (c Config) IsZero() bool {
	return c.FPS == 0 && c.Background == tcell.ColorDefault
}
