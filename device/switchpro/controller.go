// Package switchpro provides the emulated Switch Pro controller state that is streamed to a peer.
//
// Devices are added with type DeviceType. Stock VIIPER servers do not register
// that type, so the peer must be built with a switchpro device handler; servers
// without one reject the add with a problem+json error.
package switchpro

import (
	"context"
	"encoding"
	"sync"
	"time"
)

// Sender delivers an encoded state over the session.
// apiclient.DeviceStream satisfies it.
type Sender interface {
	WriteBinary(v encoding.BinaryMarshaler) error
}

// Mutator is the set of operations that change or flush controller state.
type Mutator interface {
	Press(buttons ...Button)
	Release(buttons ...Button)
	SetAxis(side Side, dir Direction, v uint16)
	Send() error
}

// Controller is the shared virtual controller state.
// It is safe for concurrent use; every exported method is atomic, and
// Atomically groups several operations into one step.
type Controller struct {
	mu       sync.Mutex
	state    InputState
	sender   Sender
	reports  uint64
	observer func(seq uint64, st InputState)
}

// NewController returns a controller in the neutral state that sends through s.
func NewController(s Sender) *Controller {
	return &Controller{state: NeutralState(), sender: s}
}

// SetObserver registers a callback invoked after every successful send.
// The callback runs outside the state lock.
func (c *Controller) SetObserver(f func(seq uint64, st InputState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = f
}

// State returns a snapshot of the current state.
func (c *Controller) State() InputState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reports returns the number of states sent successfully.
func (c *Controller) Reports() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reports
}

func (c *Controller) Press(buttons ...Button) {
	c.mu.Lock()
	defer c.mu.Unlock()
	locked{c}.Press(buttons...)
}

func (c *Controller) Release(buttons ...Button) {
	c.mu.Lock()
	defer c.mu.Unlock()
	locked{c}.Release(buttons...)
}

// SetAxis sets one stick coordinate. Values above StickMax are clamped.
func (c *Controller) SetAxis(side Side, dir Direction, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	locked{c}.SetAxis(side, dir, v)
}

// Send writes the current state to the session. Only one send is in flight at a time.
func (c *Controller) Send() error {
	c.mu.Lock()
	seq, st, obs, err := locked{c}.send()
	c.mu.Unlock()
	if err == nil && obs != nil {
		obs(seq, st)
	}
	return err
}

// Atomically runs fn with the state locked, so no other task can mutate or send mid-step.
// fn must only use the Mutator it is given.
func (c *Controller) Atomically(fn func(m Mutator) error) error {
	c.mu.Lock()
	l := &recording{locked: locked{c}}
	err := fn(l)
	c.mu.Unlock()
	if l.obs != nil {
		for _, s := range l.sent {
			l.obs(s.seq, s.st)
		}
	}
	return err
}

// RunReporter sends the current state every interval until ctx is done or a send fails.
// It provides the regular report cadence that carries button changes to the peer.
func (c *Controller) RunReporter(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := c.Send(); err != nil {
				return err
			}
		}
	}
}

// locked operates on a Controller whose mutex is already held.
type locked struct{ c *Controller }

func (l locked) Press(buttons ...Button) {
	for _, b := range buttons {
		l.c.state.Buttons |= b
	}
}

func (l locked) Release(buttons ...Button) {
	for _, b := range buttons {
		l.c.state.Buttons &^= b
	}
}

func (l locked) SetAxis(side Side, dir Direction, v uint16) {
	if v > StickMax {
		v = StickMax
	}
	l.c.state.setAxis(side, dir, v)
}

func (l locked) send() (uint64, InputState, func(uint64, InputState), error) {
	st := l.c.state
	if err := l.c.sender.WriteBinary(&st); err != nil {
		return 0, st, nil, err
	}
	l.c.reports++
	return l.c.reports, st, l.c.observer, nil
}

type sentState struct {
	seq uint64
	st  InputState
}

// recording defers observer notifications until the lock is released.
type recording struct {
	locked
	sent []sentState
	obs  func(uint64, InputState)
}

func (r *recording) Send() error {
	seq, st, obs, err := r.locked.send()
	if err != nil {
		return err
	}
	r.obs = obs
	r.sent = append(r.sent, sentState{seq, st})
	return nil
}
