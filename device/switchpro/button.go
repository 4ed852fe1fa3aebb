package switchpro

import (
	"fmt"
	"math/bits"
	"strings"
)

// Button is a single logical button (one bit) or a set of them.
type Button uint32

var buttonNames = []struct {
	b    Button
	name string
}{
	{ButtonY, "y"},
	{ButtonX, "x"},
	{ButtonB, "b"},
	{ButtonA, "a"},
	{ButtonRightSR, "right_sr"},
	{ButtonRightSL, "right_sl"},
	{ButtonR, "r"},
	{ButtonZR, "zr"},
	{ButtonMinus, "minus"},
	{ButtonPlus, "plus"},
	{ButtonRStick, "r_stick"},
	{ButtonLStick, "l_stick"},
	{ButtonHome, "home"},
	{ButtonCapture, "capture"},
	{ButtonChargingGrip, "charging_grip"},
	{ButtonDown, "down"},
	{ButtonUp, "up"},
	{ButtonRight, "right"},
	{ButtonLeft, "left"},
	{ButtonLeftSR, "left_sr"},
	{ButtonLeftSL, "left_sl"},
	{ButtonL, "l"},
	{ButtonZL, "zl"},
}

// ParseButton resolves a button by its lower-case name, e.g. "zl" or "l_stick".
func ParseButton(name string) (Button, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, bn := range buttonNames {
		if bn.name == n {
			return bn.b, nil
		}
	}
	return 0, fmt.Errorf("unknown button %q", name)
}

// ButtonNames lists every known button name in report bit order.
func ButtonNames() []string {
	out := make([]string, 0, len(buttonNames))
	for _, bn := range buttonNames {
		out = append(out, bn.name)
	}
	return out
}

// Split returns the names of all buttons set in b.
func (b Button) Split() []string {
	out := make([]string, 0, bits.OnesCount32(uint32(b)))
	for _, bn := range buttonNames {
		if b&bn.b != 0 {
			out = append(out, bn.name)
		}
	}
	return out
}

func (b Button) String() string {
	if b == 0 {
		return "none"
	}
	return strings.Join(b.Split(), "+")
}

// Side selects one of the two analog sticks.
type Side uint8

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// Direction selects the horizontal or vertical coordinate of a stick.
type Direction uint8

const (
	Horizontal Direction = iota
	Vertical
)

func (d Direction) String() string {
	if d == Vertical {
		return "vertical"
	}
	return "horizontal"
}
