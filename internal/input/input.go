// Package input reads physical gamepad events.
package input

import (
	"errors"
	"fmt"
	"math"
)

// ErrAdapter is matched by every failure of an input source: the device
// could not be opened, polled, or was unplugged.
var ErrAdapter = errors.New("input adapter failure")

// Kind discriminates an Event.
type Kind uint8

const (
	AxisMotion Kind = iota + 1
	ButtonDown
	ButtonUp
)

func (k Kind) String() string {
	switch k {
	case AxisMotion:
		return "axis"
	case ButtonDown:
		return "button-down"
	case ButtonUp:
		return "button-up"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is one physical input event.
// Index is the axis index for AxisMotion and the button index otherwise;
// Value is only meaningful for AxisMotion and lies in [-1, 1].
type Event struct {
	Kind  Kind
	Index int
	Value float64
}

func Axis(index int, value float64) Event { return Event{Kind: AxisMotion, Index: index, Value: value} }
func Down(index int) Event                { return Event{Kind: ButtonDown, Index: index} }
func Up(index int) Event                  { return Event{Kind: ButtonUp, Index: index} }

// Source yields physical input events.
type Source interface {
	// Poll returns the events pending since the previous call, in arrival order.
	// It does not block; an empty batch means nothing happened.
	Poll() ([]Event, error)
	Close() error
}

// NormalizeAxis converts a raw axis value (-32768..32767) to -1.0..1.0.
func NormalizeAxis(raw int16) float64 {
	v := float64(raw) / math.MaxInt16
	if v < -1.0 {
		v = -1.0
	}
	return v
}
