package input

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jupiterrider/purego-sdl3/sdl"
)

// SDLSource reads joystick events through SDL3.
// SDL must be driven from one OS thread: create, poll and close the source
// from the same goroutine, after runtime.LockOSThread.
type SDLSource struct {
	js     *sdl.Joystick
	id     sdl.JoystickID
	name   string
	logger *slog.Logger
	gone   bool
	buf    []Event
}

// OpenSDL initialises the SDL joystick subsystem and opens the joystick at index.
func OpenSDL(index int, logger *slog.Logger) (*SDLSource, error) {
	if !sdl.Init(sdl.InitJoystick) {
		return nil, fmt.Errorf("%w: SDL init: %s", ErrAdapter, sdl.GetError())
	}

	ids := sdl.GetJoysticks()
	if index < 0 || index >= len(ids) {
		sdl.Quit()
		return nil, fmt.Errorf("%w: joystick %d not found (%d connected)", ErrAdapter, index, len(ids))
	}

	js := sdl.OpenJoystick(ids[index])
	if js == nil {
		err := fmt.Errorf("%w: open joystick %d: %s", ErrAdapter, index, sdl.GetError())
		sdl.Quit()
		return nil, err
	}

	s := &SDLSource{
		js:     js,
		id:     sdl.GetJoystickID(js),
		name:   sdl.GetJoystickName(js),
		logger: logger,
	}
	logger.Info("Joystick opened",
		"name", s.name,
		"vid", fmt.Sprintf("%04X", sdl.GetJoystickVendor(js)),
		"pid", fmt.Sprintf("%04X", sdl.GetJoystickProduct(js)),
		"axes", sdl.GetNumJoystickAxes(js),
		"buttons", sdl.GetNumJoystickButtons(js),
	)
	return s, nil
}

// Name returns the joystick name reported by SDL.
func (s *SDLSource) Name() string { return s.name }

// Poll drains the SDL event queue and returns the events of the opened joystick.
func (s *SDLSource) Poll() ([]Event, error) {
	if s.gone {
		return nil, fmt.Errorf("%w: joystick %q removed", ErrAdapter, s.name)
	}
	s.buf = s.buf[:0]

	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventJoystickAxisMotion:
			ae := event.JAxis()
			if ae.Which == s.id {
				s.buf = append(s.buf, Axis(int(ae.Axis), NormalizeAxis(ae.Value)))
			}
		case sdl.EventJoystickButtonDown:
			be := event.JButton()
			if be.Which == s.id {
				s.buf = append(s.buf, Down(int(be.Button)))
			}
		case sdl.EventJoystickButtonUp:
			be := event.JButton()
			if be.Which == s.id {
				s.buf = append(s.buf, Up(int(be.Button)))
			}
		case sdl.EventJoystickRemoved:
			if event.JDevice().Which == s.id {
				s.gone = true
			}
		}
	}

	if s.gone {
		return nil, fmt.Errorf("%w: joystick %q removed", ErrAdapter, s.name)
	}
	out := make([]Event, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

// Rumble starts a rumble effect on the joystick.
func (s *SDLSource) Rumble(low, high uint16, d time.Duration) error {
	if !sdl.RumbleJoystick(s.js, low, high, uint32(d.Milliseconds())) {
		return fmt.Errorf("rumble %q: %s", s.name, sdl.GetError())
	}
	return nil
}

// Close closes the joystick and shuts SDL down.
func (s *SDLSource) Close() error {
	if s.js != nil {
		sdl.CloseJoystick(s.js)
		s.js = nil
		sdl.Quit()
	}
	return nil
}
