// Package console implements the interactive command interface that drives the
// virtual controller alongside the physical gamepad.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Alia5/padproxy/device/switchpro"
	"golang.org/x/term"
)

// Prompt is printed before every command when the input is a terminal.
const Prompt = "cmd >> "

// DefaultPushDuration is how long push holds its buttons when no duration is given.
const DefaultPushDuration = 100 * time.Millisecond

var errUsage = errors.New("usage")

// Console reads commands line by line and applies them to a shared controller.
type Console struct {
	Controller *switchpro.Controller
	In         io.Reader
	Out        io.Writer
	Logger     *slog.Logger
	// ShowPrompt prints Prompt before each command.
	ShowPrompt bool
}

// New returns a console on in/out. The prompt is shown only when in is a terminal.
func New(ctrl *switchpro.Controller, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	return &Console{
		Controller: ctrl,
		In:         in,
		Out:        out,
		Logger:     logger,
		ShowPrompt: isTerminal(in),
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run executes commands until exit, end of input or ctx is done.
// exit and end of input return nil.
func (c *Console) Run(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read command: %w", err)
			}
			c.Logger.Debug("Console input closed")
			return nil
		case line := <-lines:
			quit, err := c.Execute(ctx, line)
			if err != nil {
				fmt.Fprintf(c.Out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *Console) prompt() {
	if c.ShowPrompt {
		fmt.Fprint(c.Out, Prompt)
	}
}

// Execute runs a single command line. quit is true for exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.Logger.Debug("Console command", "cmd", cmd, "args", args)

	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help":
		c.help()
	case "press":
		bs, err := parseButtons(args)
		if err != nil {
			return false, err
		}
		c.Controller.Press(bs...)
	case "release":
		bs, err := parseButtons(args)
		if err != nil {
			return false, err
		}
		c.Controller.Release(bs...)
	case "push":
		return false, c.push(ctx, args)
	case "stick":
		return false, c.stick(args)
	case "send":
		return false, c.Controller.Send()
	case "state":
		st := c.Controller.State()
		fmt.Fprintf(c.Out, "buttons: %s\nleft: %d %d\nright: %d %d\n", st.Buttons, st.LX, st.LY, st.RX, st.RY)
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func (c *Console) help() {
	fmt.Fprintf(c.Out, `commands:
  press <button>...              hold buttons
  release <button>...            release buttons
  push <button>... [duration]    press, send, wait (default %s), release, send
  stick <l|r> <h|v> <0-4095>     set a stick axis
  stick <l|r> center             centre a stick
  send                           send the current state now
  state                          print the current state
  exit                           stop
buttons: %s
`, DefaultPushDuration, strings.Join(switchpro.ButtonNames(), " "))
}

func (c *Console) push(ctx context.Context, args []string) error {
	d := DefaultPushDuration
	if n := len(args); n > 1 {
		if v, err := time.ParseDuration(args[n-1]); err == nil {
			d, args = v, args[:n-1]
		}
	}
	bs, err := parseButtons(args)
	if err != nil {
		return err
	}
	err = c.Controller.Atomically(func(m switchpro.Mutator) error {
		m.Press(bs...)
		return m.Send()
	})
	if err != nil {
		return err
	}

	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
	case <-t.C:
	}
	return c.Controller.Atomically(func(m switchpro.Mutator) error {
		m.Release(bs...)
		return m.Send()
	})
}

func (c *Console) stick(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: stick <l|r> <h|v|center> [value]", errUsage)
	}
	var side switchpro.Side
	switch strings.ToLower(args[0]) {
	case "l", "left":
		side = switchpro.SideLeft
	case "r", "right":
		side = switchpro.SideRight
	default:
		return fmt.Errorf("unknown stick %q", args[0])
	}

	var dir switchpro.Direction
	switch strings.ToLower(args[1]) {
	case "center", "centre":
		c.Controller.SetAxis(side, switchpro.Horizontal, switchpro.StickCenter)
		c.Controller.SetAxis(side, switchpro.Vertical, switchpro.StickCenter)
		return nil
	case "h", "horizontal":
		dir = switchpro.Horizontal
	case "v", "vertical":
		dir = switchpro.Vertical
	default:
		return fmt.Errorf("unknown direction %q", args[1])
	}
	if len(args) != 3 {
		return fmt.Errorf("%w: stick %s %s <0-%d>", errUsage, args[0], args[1], switchpro.StickMax)
	}
	v, err := strconv.ParseUint(args[2], 10, 16)
	if err != nil || v > uint64(switchpro.StickMax) {
		return fmt.Errorf("invalid stick value %q: must be 0-%d", args[2], switchpro.StickMax)
	}
	c.Controller.SetAxis(side, dir, uint16(v))
	return nil
}

func parseButtons(names []string) ([]switchpro.Button, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: expected at least one button", errUsage)
	}
	out := make([]switchpro.Button, 0, len(names))
	for _, n := range names {
		b, err := switchpro.ParseButton(n)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
