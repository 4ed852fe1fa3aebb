package apiclient

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	apitypes "github.com/Alia5/padproxy/apitypes"
	"github.com/Alia5/padproxy/device"
	"github.com/Alia5/padproxy/internal/log"
)

// ErrConnectionLost is wrapped by stream writes that failed because the peer is gone.
var ErrConnectionLost = errors.New("connection lost")

// ErrStreamClosed is returned by operations on a stream closed locally.
var ErrStreamClosed = errors.New("stream closed")

// DeviceStream is a persistent connection to one device carrying client → device input.
type DeviceStream struct {
	conn  net.Conn
	BusID uint32
	DevID string

	raw log.RawLogger

	wmu       sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// OpenStream connects to an existing device's stream channel.
// The device must already exist on the bus (use DeviceAddCtx first).
func (c *Client) OpenStream(ctx context.Context, busID uint32, devID string) (*DeviceStream, error) {
	if c.transport.mock != nil {
		return nil, fmt.Errorf("stream connections not supported with mock transport")
	}

	conn, err := c.transport.dial(ctx)
	if err != nil {
		return nil, err
	}

	streamPath := fmt.Sprintf("bus/%d/%s\x00", busID, devID)
	if _, err := conn.Write([]byte(streamPath)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write stream path: %w", err)
	}
	// The stream outlives the request deadline set while dialing.
	_ = conn.SetWriteDeadline(time.Time{})

	return newDeviceStream(conn, busID, devID), nil
}

func newDeviceStream(conn net.Conn, busID uint32, devID string) *DeviceStream {
	return &DeviceStream{
		conn:   conn,
		BusID:  busID,
		DevID:  devID,
		raw:    log.NewRaw(nil),
		closed: make(chan struct{}),
	}
}

// AddDeviceAndConnect creates a device on the bus and immediately connects to its stream.
func (c *Client) AddDeviceAndConnect(ctx context.Context, busID uint32, deviceType string, o *device.CreateOptions) (*DeviceStream, *apitypes.Device, error) {
	resp, err := c.DeviceAddCtx(ctx, busID, deviceType, o)
	if err != nil {
		return nil, nil, err
	}

	stream, err := c.OpenStream(ctx, busID, resp.DevId)
	if err != nil {
		return nil, resp, err
	}
	return stream, resp, nil
}

// SetRawLogger logs every payload written to the stream.
func (s *DeviceStream) SetRawLogger(r log.RawLogger) {
	if r == nil {
		r = log.NewRaw(nil)
	}
	s.wmu.Lock()
	s.raw = r
	s.wmu.Unlock()
}

// Write sends raw bytes to the device stream.
// Failures caused by a vanished peer wrap ErrConnectionLost.
func (s *DeviceStream) Write(data []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if s.isClosed() {
		return 0, fmt.Errorf("%w: %w", ErrConnectionLost, ErrStreamClosed)
	}
	n, err := s.conn.Write(data)
	if err != nil {
		if isConnectionLost(err) {
			return n, fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		return n, err
	}
	s.raw.Log(true, data)
	return n, nil
}

// WriteBinary marshals and sends a BinaryMarshaler, e.g. a switchpro.InputState.
func (s *DeviceStream) WriteBinary(v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = s.Write(data)
	return err
}

func (s *DeviceStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Close closes the stream. It is safe to call more than once.
func (s *DeviceStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// isConnectionLost reports whether a write error means the peer is gone.
func isConnectionLost(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return isResetErrno(err)
}
