package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Alia5/padproxy/apiclient"
	"github.com/Alia5/padproxy/device"
)

// SessionConfig selects where the virtual controller is created.
type SessionConfig struct {
	// BusID to attach to. Zero reuses the lowest existing bus or creates one.
	BusID      uint32
	DeviceType string
	Options    *device.CreateOptions
	// CloseTimeout bounds the device/bus removal requests on Close.
	CloseTimeout time.Duration
}

// Session owns a device on the peer and the stream to it.
type Session struct {
	Stream *apiclient.DeviceStream
	BusID  uint32
	DevID  string

	client     *apiclient.Client
	createdBus bool
	timeout    time.Duration
	logger     *slog.Logger

	once     sync.Once
	closeErr error
}

// OpenSession finds or creates a bus, adds the device and connects to its stream.
func OpenSession(ctx context.Context, client *apiclient.Client, cfg SessionConfig, logger *slog.Logger) (*Session, error) {
	s := &Session{client: client, timeout: cfg.CloseTimeout, logger: logger}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}

	busID, created, err := ensureBus(ctx, client, cfg.BusID)
	if err != nil {
		return nil, err
	}
	s.BusID, s.createdBus = busID, created
	if created {
		logger.Info("Created bus", "bus", busID)
	} else {
		logger.Info("Using existing bus", "bus", busID)
	}

	stream, dev, err := client.AddDeviceAndConnect(ctx, busID, cfg.DeviceType, cfg.Options)
	if err != nil {
		if dev != nil {
			s.DevID = dev.DevId
		}
		return nil, errors.Join(fmt.Errorf("add %s device: %w", cfg.DeviceType, err), s.teardown())
	}
	s.Stream, s.DevID = stream, dev.DevId
	logger.Info("Virtual controller connected", "bus", busID, "dev", dev.DevId, "type", dev.Type, "vid", dev.Vid, "pid", dev.Pid)
	return s, nil
}

func ensureBus(ctx context.Context, client *apiclient.Client, want uint32) (uint32, bool, error) {
	buses, err := client.BusListCtx(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("list buses: %w", err)
	}
	if want != 0 {
		if slices.Contains(buses.Buses, want) {
			return want, false, nil
		}
		if _, err := client.BusCreateCtx(ctx, want); err != nil {
			return 0, false, fmt.Errorf("create bus %d: %w", want, err)
		}
		return want, true, nil
	}
	if len(buses.Buses) > 0 {
		return slices.Min(buses.Buses), false, nil
	}

	var createErr error
	for try := uint32(1); try <= 100; try++ {
		r, err := client.BusCreateCtx(ctx, try)
		if err == nil {
			return r.BusID, true, nil
		}
		createErr = err
	}
	return 0, false, fmt.Errorf("create bus: %w", createErr)
}

// Close removes the device (and the bus if this session created it) and closes the stream.
// It runs once; later calls return the first result.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.logger.Info("Stopping communication...")
		s.closeErr = s.teardown()
	})
	return s.closeErr
}

func (s *Session) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var errs []error
	if s.DevID != "" {
		if _, err := s.client.DeviceRemoveCtx(ctx, s.BusID, s.DevID); err != nil {
			errs = append(errs, fmt.Errorf("remove device %d-%s: %w", s.BusID, s.DevID, err))
		} else {
			s.logger.Info("Removed device", "bus", s.BusID, "dev", s.DevID)
		}
	}
	if s.createdBus {
		if _, err := s.client.BusRemoveCtx(ctx, s.BusID); err != nil {
			errs = append(errs, fmt.Errorf("remove bus %d: %w", s.BusID, err))
		} else {
			s.logger.Info("Removed bus", "bus", s.BusID)
		}
	}
	if s.Stream != nil {
		if err := s.Stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
	}
	return errors.Join(errs...)
}
