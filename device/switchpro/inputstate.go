package switchpro

import "io"

// InputStateSize is the size of an encoded InputState on the device stream.
const InputStateSize = 9

// InputState is the controller state streamed to the peer on every send.
type InputState struct {
	// Buttons holds the 24 button bits (right, shared, left byte).
	Buttons Button
	// Sticks: 12-bit unsigned, 0-4095, centre 2048
	LX, LY uint16
	RX, RY uint16
}

// NeutralState returns a state with no buttons held and both sticks centred.
func NeutralState() InputState {
	return InputState{LX: StickCenter, LY: StickCenter, RX: StickCenter, RY: StickCenter}
}

// Held reports whether every button in b is currently held.
func (x InputState) Held(b Button) bool {
	return b != 0 && x.Buttons&b == b
}

// Axis returns the coordinate of one stick axis.
func (x InputState) Axis(side Side, dir Direction) uint16 {
	switch {
	case side == SideLeft && dir == Horizontal:
		return x.LX
	case side == SideLeft:
		return x.LY
	case dir == Horizontal:
		return x.RX
	default:
		return x.RY
	}
}

func (x *InputState) setAxis(side Side, dir Direction, v uint16) {
	switch {
	case side == SideLeft && dir == Horizontal:
		x.LX = v
	case side == SideLeft:
		x.LY = v
	case dir == Horizontal:
		x.RX = v
	default:
		x.RY = v
	}
}

// MarshalBinary encodes InputState into 9 bytes.
// Layout:
//
//	0-2: Buttons (right, shared, left)
//	3-5: left stick, two packed 12-bit values (X low 12 bits, Y high 12 bits)
//	6-8: right stick, same packing
func (x *InputState) MarshalBinary() ([]byte, error) {
	b := make([]byte, InputStateSize)
	b[0] = byte(x.Buttons)
	b[1] = byte(x.Buttons >> 8)
	b[2] = byte(x.Buttons >> 16)
	packStick(b[3:6], x.LX, x.LY)
	packStick(b[6:9], x.RX, x.RY)
	return b, nil
}

// UnmarshalBinary decodes 9 bytes into InputState.
func (x *InputState) UnmarshalBinary(data []byte) error {
	if len(data) < InputStateSize {
		return io.ErrUnexpectedEOF
	}
	x.Buttons = Button(data[0]) | Button(data[1])<<8 | Button(data[2])<<16
	x.LX, x.LY = unpackStick(data[3:6])
	x.RX, x.RY = unpackStick(data[6:9])
	return nil
}

func packStick(dst []byte, h, v uint16) {
	h &= 0x0fff
	v &= 0x0fff
	dst[0] = byte(h)
	dst[1] = byte(h>>8) | byte(v<<4)
	dst[2] = byte(v >> 4)
}

func unpackStick(src []byte) (h, v uint16) {
	h = uint16(src[0]) | uint16(src[1]&0x0f)<<8
	v = uint16(src[1]>>4) | uint16(src[2])<<4
	return h, v
}
