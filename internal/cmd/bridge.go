package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/Alia5/padproxy/apiclient"
	"github.com/Alia5/padproxy/device"
	"github.com/Alia5/padproxy/device/switchpro"
	"github.com/Alia5/padproxy/internal/actuator"
	"github.com/Alia5/padproxy/internal/bridge"
	"github.com/Alia5/padproxy/internal/console"
	"github.com/Alia5/padproxy/internal/input"
	"github.com/Alia5/padproxy/internal/log"
	"github.com/Alia5/padproxy/internal/mapping"
	"github.com/Alia5/padproxy/internal/monitor"
)

type Bridge struct {
	Addr              string         `help:"VIIPER API server address; the server must provide the switchpro device type" default:"localhost:3242" env:"PADPROXY_ADDR"`
	Password          string         `help:"API server password; empty connects unauthenticated" env:"PADPROXY_PASSWORD"`
	BusID             uint32         `help:"Bus to attach the controller to; 0 reuses the lowest existing bus or creates one" default:"0" env:"PADPROXY_BUS_ID"`
	Controller        string         `help:"Emulated controller" enum:"pro-controller,joycon-l,joycon-r" default:"pro-controller" env:"PADPROXY_CONTROLLER"`
	Joystick          int            `help:"Index of the physical joystick to read" default:"0" env:"PADPROXY_JOYSTICK"`
	PollInterval      time.Duration  `help:"Pause between input polls" default:"1ms" env:"PADPROXY_POLL_INTERVAL"`
	ReportInterval    time.Duration  `help:"Interval of the periodic full report; 0 disables" default:"15ms" env:"PADPROXY_REPORT_INTERVAL"`
	Rumble            bool           `help:"Rumble the physical gamepad once connected" default:"true" negatable:"" env:"PADPROXY_RUMBLE"`
	Console           bool           `help:"Read controller commands from stdin" default:"true" negatable:"" env:"PADPROXY_CONSOLE"`
	ConnectionTimeout time.Duration  `help:"Timeout of management requests" default:"5s" env:"PADPROXY_CONNECTION_TIMEOUT"`
	Monitor           monitor.Config `embed:"" prefix:"monitor."`
}

// Run is called by Kong when the bridge command is executed.
func (b *Bridge) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := createOptions(b.Controller)
	if err != nil {
		return err
	}

	// SDL is polled from this goroutine for its whole lifetime.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	src, err := input.OpenSDL(b.Joystick, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	client := apiclient.NewWithConfig(b.Addr, &apiclient.Config{
		DialTimeout:  b.ConnectionTimeout,
		ReadTimeout:  b.ConnectionTimeout,
		WriteTimeout: b.ConnectionTimeout,
		Password:     b.Password,
	})
	logger.Info("Connecting", "addr", b.Addr, "controller", b.Controller)
	session, err := bridge.OpenSession(sigCtx, client, bridge.SessionConfig{
		BusID:        b.BusID,
		DeviceType:   switchpro.DeviceType,
		Options:      opts,
		CloseTimeout: b.ConnectionTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to clean up session", "error", err)
		}
	}()
	session.Stream.SetRawLogger(rawLogger)

	ctrl := switchpro.NewController(session.Stream)
	if b.Rumble {
		actuator.Pulse(sigCtx, src, actuator.Startup, logger)
	}

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	var (
		wg          sync.WaitGroup
		reporterErr error
		consoleDone bool
	)

	if b.Monitor.Addr != "" {
		hub := monitor.NewHub(logger)
		ctrl.SetObserver(hub.Observe)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hub.ListenAndServe(ctx, b.Monitor.Addr); err != nil {
				logger.Error("Monitor stopped", "error", err)
			}
		}()
	}

	if b.ReportInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ctrl.RunReporter(ctx, b.ReportInterval)
			if ctx.Err() == nil {
				reporterErr = err
				cancel()
			}
		}()
	}

	if b.Console {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := console.New(ctrl, os.Stdin, os.Stdout, logger).Run(ctx)
			if consoleQuit(logger, err, ctx.Err()) {
				consoleDone = true
				cancel()
			}
		}()
	}

	loop := &bridge.Loop{
		Source:       src,
		Controller:   ctrl,
		Table:        mapping.Default,
		Logger:       logger,
		PollInterval: b.PollInterval,
	}
	logger.Info("Bridging gamepad", "joystick", src.Name(), "bus", session.BusID, "dev", session.DevID)
	loopErr := loop.Run(ctx)
	cancel()
	wg.Wait()

	return b.exitReason(logger, loopErr, reporterErr, consoleDone, sigCtx.Err() != nil)
}

// consoleQuit reports whether the console ended because the user quit.
// A console failure while the bridge is still running only loses the console.
func consoleQuit(logger *slog.Logger, err, ctxErr error) bool {
	if err == nil {
		return true
	}
	if ctxErr == nil {
		logger.Warn("Console stopped", "error", err)
	}
	return false
}

// exitReason turns the way the bridge stopped into Run's result.
// Connection loss, console exit and signals are clean exits.
func (b *Bridge) exitReason(logger *slog.Logger, loopErr, reporterErr error, consoleDone, signalled bool) error {
	switch {
	case loopErr == nil:
		return nil
	case !errors.Is(loopErr, context.Canceled):
		return loopErr
	case errors.Is(reporterErr, apiclient.ErrConnectionLost):
		logger.Info("Connection lost, stopping gamepad loop", "error", reporterErr)
		return nil
	case reporterErr != nil:
		return fmt.Errorf("send controller state: %w", reporterErr)
	case consoleDone:
		logger.Info("Console closed, stopping")
		return nil
	case signalled:
		logger.Info("Interrupted, stopping")
		return nil
	default:
		return loopErr
	}
}

func createOptions(controller string) (*device.CreateOptions, error) {
	vid := switchpro.VendorID
	var pid uint16
	switch controller {
	case "", "pro-controller":
		pid = switchpro.ProductProCon
	case "joycon-l":
		pid = switchpro.ProductJoyConL
	case "joycon-r":
		pid = switchpro.ProductJoyConR
	default:
		return nil, fmt.Errorf("unknown controller %q", controller)
	}
	return &device.CreateOptions{IdVendor: &vid, IdProduct: &pid}, nil
}
