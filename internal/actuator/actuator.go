// Package actuator triggers one-shot feedback on the physical gamepad.
package actuator

import (
	"context"
	"log/slog"
	"time"
)

// Rumbler starts a rumble effect. input.SDLSource implements it.
type Rumbler interface {
	Rumble(low, high uint16, d time.Duration) error
}

// Pattern is the strength of both motors and how long they run.
type Pattern struct {
	Low, High uint16
	Duration  time.Duration
}

// Startup is played once when the virtual controller is connected.
var Startup = Pattern{Low: 0x4000, High: 0xc000, Duration: 250 * time.Millisecond}

// Pulse starts p on r and returns without waiting for it to finish.
// A failure is logged and otherwise ignored; it reports whether the effect started.
func Pulse(ctx context.Context, r Rumbler, p Pattern, logger *slog.Logger) bool {
	if r == nil || ctx.Err() != nil {
		return false
	}
	if err := r.Rumble(p.Low, p.High, p.Duration); err != nil {
		logger.Warn("Rumble failed", "error", err)
		return false
	}
	logger.Debug("Rumble started", "low", p.Low, "high", p.High, "duration", p.Duration)
	return true
}
