package switchpro

// Button bitmasks for the Switch Pro controller, laid out as the three
// button bytes of a standard input report:
//
//	| Byte       | x01  | x02 | x04     | x08     | x10  | x20     | x40 | x80           |
//	|:----------:|:----:|:---:|:-------:|:-------:|:----:|:-------:|:---:|:-------------:|
//	| 0 (Right)  | Y    | X   | B       | A       | SR   | SL      | R   | ZR            |
//	| 1 (Shared) | -    | +   | R Stick | L Stick | Home | Capture | --  | Charging Grip |
//	| 2 (Left)   | Down | Up  | Right   | Left    | SR   | SL      | L   | ZL            |
const (
	ButtonY       Button = 0x000001
	ButtonX       Button = 0x000002
	ButtonB       Button = 0x000004
	ButtonA       Button = 0x000008
	ButtonRightSR Button = 0x000010
	ButtonRightSL Button = 0x000020
	ButtonR       Button = 0x000040
	ButtonZR      Button = 0x000080

	ButtonMinus        Button = 0x000100
	ButtonPlus         Button = 0x000200
	ButtonRStick       Button = 0x000400
	ButtonLStick       Button = 0x000800
	ButtonHome         Button = 0x001000
	ButtonCapture      Button = 0x002000
	ButtonChargingGrip Button = 0x008000

	ButtonDown   Button = 0x010000
	ButtonUp     Button = 0x020000
	ButtonRight  Button = 0x040000
	ButtonLeft   Button = 0x080000
	ButtonLeftSR Button = 0x100000
	ButtonLeftSL Button = 0x200000
	ButtonL      Button = 0x400000
	ButtonZL     Button = 0x800000
)

// Stick coordinate limits. Sticks are 12 bit; the calibrated centre sits in the middle.
const (
	StickMin    uint16 = 0
	StickMax    uint16 = 4095
	StickCenter uint16 = 2048
)

// Device identity on the peer.
const (
	// DeviceType must be registered on the peer; stock VIIPER does not provide it.
	DeviceType = "switchpro"

	VendorID       uint16 = 0x057e
	ProductProCon  uint16 = 0x2009
	ProductJoyConL uint16 = 0x2006
	ProductJoyConR uint16 = 0x2007
)
