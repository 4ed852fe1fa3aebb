// Package bridge runs the loop that turns physical gamepad events into virtual controller state
// and owns the session that state is streamed over.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/Alia5/padproxy/apiclient"
	"github.com/Alia5/padproxy/device/switchpro"
	"github.com/Alia5/padproxy/internal/input"
	"github.com/Alia5/padproxy/internal/mapping"
)

// Controller is the virtual controller state driven by the loop.
// *switchpro.Controller implements it.
type Controller interface {
	Atomically(fn func(m switchpro.Mutator) error) error
}

// State of a Loop.
type State int32

const (
	Idle State = iota
	Running
	// Terminated is entered only when the peer connection is lost.
	Terminated
	// Stopped is entered on cancellation or a fatal error.
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Loop polls a Source and applies its events to a Controller.
//
// Axis motion is rescaled, applied and sent immediately. Button edges only
// change state and travel with the next send (axis motion or the periodic report).
type Loop struct {
	Source     input.Source
	Controller Controller
	Table      *mapping.Table
	Logger     *slog.Logger
	// PollInterval is how long the loop sleeps after each poll batch.
	// Zero only yields the processor.
	PollInterval time.Duration

	state atomic.Int32
}

// State returns the loop state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Run polls until the connection is lost, a fatal error occurs, or ctx is done.
// Connection loss is the normal end: it is logged once and Run returns nil.
// Unmapped indices and adapter failures are returned, as are other send errors.
func (l *Loop) Run(ctx context.Context) error {
	if l.Table == nil {
		l.Table = mapping.Default
	}
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	l.state.Store(int32(Running))
	defer l.state.CompareAndSwap(int32(Running), int32(Stopped))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := l.Source.Poll()
		if err != nil {
			if !errors.Is(err, input.ErrAdapter) {
				err = fmt.Errorf("%w: %w", input.ErrAdapter, err)
			}
			return fmt.Errorf("poll input: %w", err)
		}

		steps, err := l.resolve(events)
		if err != nil {
			return err
		}
		for _, st := range steps {
			if err := l.Controller.Atomically(st.apply); err != nil {
				if errors.Is(err, apiclient.ErrConnectionLost) {
					l.state.Store(int32(Terminated))
					l.Logger.Info("Connection lost, stopping gamepad loop", "error", err)
					return nil
				}
				return fmt.Errorf("send controller state: %w", err)
			}
		}

		if err := l.yield(ctx); err != nil {
			return err
		}
	}
}

// step is one resolved event, ready to be applied.
type step struct {
	kind   input.Kind
	button switchpro.Button
	axis   mapping.AxisBinding
	value  uint16
}

func (s step) apply(m switchpro.Mutator) error {
	switch s.kind {
	case input.AxisMotion:
		m.SetAxis(s.axis.Side, s.axis.Direction, s.value)
		return m.Send()
	case input.ButtonDown:
		m.Press(s.button)
	case input.ButtonUp:
		m.Release(s.button)
	}
	return nil
}

// resolve maps a whole batch before anything is applied, so an unmapped
// index leaves the controller untouched.
func (l *Loop) resolve(events []input.Event) ([]step, error) {
	steps := make([]step, 0, len(events))
	for _, ev := range events {
		st := step{kind: ev.Kind}
		switch ev.Kind {
		case input.AxisMotion:
			b, err := l.Table.AxisOf(ev.Index)
			if err != nil {
				return nil, err
			}
			st.axis = b
			st.value = mapping.RescaleAxis(b, ev.Value)
			l.Logger.Debug("Axis", "index", ev.Index, "stick", b, "raw", ev.Value, "value", st.value)
		case input.ButtonDown, input.ButtonUp:
			b, err := l.Table.ButtonOf(ev.Index)
			if err != nil {
				return nil, err
			}
			st.button = b
			l.Logger.Debug("Button", "index", ev.Index, "button", b, "edge", ev.Kind)
		default:
			continue
		}
		steps = append(steps, st)
	}
	return steps, nil
}

// yield hands the processor to other tasks between poll batches.
func (l *Loop) yield(ctx context.Context) error {
	if l.PollInterval <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	t := time.NewTimer(l.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
