package device

// CreateOptions are optional overrides sent when a device is added to a bus.
type CreateOptions struct {
	IdVendor  *uint16
	IdProduct *uint16
	SubType   *uint8
}
