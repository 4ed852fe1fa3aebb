// Package mapping translates physical gamepad indices into virtual controller semantics.
package mapping

import (
	"errors"
	"fmt"
	"math"

	"github.com/Alia5/padproxy/device/switchpro"
)

// ErrUnmappedIndex is matched by every UnmappedIndexError.
var ErrUnmappedIndex = errors.New("unmapped index")

// IndexKind tells which table an index was looked up in.
type IndexKind string

const (
	KindButton IndexKind = "button"
	KindAxis   IndexKind = "axis"
)

// UnmappedIndexError reports a device index that has no table entry.
// It means the device does not match the table and is not recoverable.
type UnmappedIndexError struct {
	Kind  IndexKind
	Index int
}

func (e *UnmappedIndexError) Error() string {
	return fmt.Sprintf("%s index %d is not mapped", e.Kind, e.Index)
}

func (e *UnmappedIndexError) Is(target error) bool { return target == ErrUnmappedIndex }

// AxisBinding binds a physical axis to one coordinate of a virtual stick.
type AxisBinding struct {
	Side      switchpro.Side
	Direction switchpro.Direction
}

func (b AxisBinding) String() string {
	return b.Side.String() + "-" + b.Direction.String()
}

// Table is an immutable index lookup. Build one with NewTable.
type Table struct {
	buttons []switchpro.Button
	axes    []AxisBinding
	hasAxis []bool
}

// NewTable builds a table from index-ordered buttons and a sparse axis map.
// A zero Button entry leaves that index unmapped.
func NewTable(buttons []switchpro.Button, axes map[int]AxisBinding) *Table {
	t := &Table{buttons: append([]switchpro.Button(nil), buttons...)}
	n := 0
	for i := range axes {
		if i >= n {
			n = i + 1
		}
	}
	t.axes = make([]AxisBinding, n)
	t.hasAxis = make([]bool, n)
	for i, b := range axes {
		if i < 0 {
			continue
		}
		t.axes[i] = b
		t.hasAxis[i] = true
	}
	return t
}

// ButtonOf returns the logical button bound to a physical button index.
func (t *Table) ButtonOf(index int) (switchpro.Button, error) {
	if index < 0 || index >= len(t.buttons) || t.buttons[index] == 0 {
		return 0, &UnmappedIndexError{Kind: KindButton, Index: index}
	}
	return t.buttons[index], nil
}

// AxisOf returns the stick coordinate bound to a physical axis index.
func (t *Table) AxisOf(index int) (AxisBinding, error) {
	if index < 0 || index >= len(t.axes) || !t.hasAxis[index] {
		return AxisBinding{}, &UnmappedIndexError{Kind: KindAxis, Index: index}
	}
	return t.axes[index], nil
}

// Buttons returns the number of button indices the table covers.
func (t *Table) Buttons() int { return len(t.buttons) }

// Axes returns the number of axis indices the table covers.
func (t *Table) Axes() int { return len(t.axes) }

// Default is the table for the supported XInput-style pad.
var Default = NewTable(
	[]switchpro.Button{
		0:  switchpro.ButtonY,
		1:  switchpro.ButtonB,
		2:  switchpro.ButtonA,
		3:  switchpro.ButtonX,
		4:  switchpro.ButtonL,
		5:  switchpro.ButtonR,
		6:  switchpro.ButtonZL,
		7:  switchpro.ButtonZR,
		8:  switchpro.ButtonMinus,
		9:  switchpro.ButtonPlus,
		10: switchpro.ButtonLStick,
		11: switchpro.ButtonRStick,
		12: switchpro.ButtonHome,
		13: switchpro.ButtonCapture,
	},
	map[int]AxisBinding{
		0: {switchpro.SideLeft, switchpro.Horizontal},
		1: {switchpro.SideLeft, switchpro.Vertical},
		2: {switchpro.SideRight, switchpro.Horizontal},
		3: {switchpro.SideRight, switchpro.Vertical},
	},
)

const axisScale = 2047

// Rescale converts a normalized sample in [-1, 1] to a stick coordinate in [0, 4095]
// as round((raw+1)*2047). Samples outside the range are clamped, and full
// deflection maps to the top of the range.
func Rescale(raw float64) uint16 {
	if math.IsNaN(raw) {
		raw = 0
	}
	if raw >= 1 {
		return switchpro.StickMax
	}
	raw = max(-1, raw)
	return uint16(math.Round((raw + 1) * axisScale))
}

// RescaleAxis rescales raw for the given binding.
// Vertical axes are inverted first: the device reports "up" as negative.
func RescaleAxis(b AxisBinding, raw float64) uint16 {
	if b.Direction == switchpro.Vertical {
		raw = -raw
	}
	return Rescale(raw)
}
