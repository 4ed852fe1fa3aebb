package bridge_test

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Alia5/padproxy/apiclient"
	"github.com/Alia5/padproxy/device/switchpro"
	"github.com/Alia5/padproxy/internal/bridge"
	"github.com/Alia5/padproxy/internal/input"
	"github.com/Alia5/padproxy/internal/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExhausted = fmt.Errorf("%w: script exhausted", input.ErrAdapter)

// scriptSource replays batches, then fails with errExhausted (or repeats forever).
type scriptSource struct {
	mu      sync.Mutex
	batches [][]input.Event
	repeat  []input.Event
	polls   int
}

func (s *scriptSource) Poll() ([]input.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if i := s.polls - 1; i < len(s.batches) {
		return s.batches[i], nil
	}
	if s.repeat != nil {
		return s.repeat, nil
	}
	return nil, errExhausted
}

func (s *scriptSource) Close() error { return nil }

func (s *scriptSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type ctrlCall struct {
	op     string
	button switchpro.Button
	side   switchpro.Side
	dir    switchpro.Direction
	value  uint16
}

// recordingController records every mutation and send.
type recordingController struct {
	calls   []ctrlCall
	sends   int
	failAt  int
	sendErr error
}

func (r *recordingController) Atomically(fn func(m switchpro.Mutator) error) error { return fn(r) }

func (r *recordingController) Press(buttons ...switchpro.Button) {
	for _, b := range buttons {
		r.calls = append(r.calls, ctrlCall{op: "press", button: b})
	}
}

func (r *recordingController) Release(buttons ...switchpro.Button) {
	for _, b := range buttons {
		r.calls = append(r.calls, ctrlCall{op: "release", button: b})
	}
}

func (r *recordingController) SetAxis(side switchpro.Side, dir switchpro.Direction, v uint16) {
	r.calls = append(r.calls, ctrlCall{op: "axis", side: side, dir: dir, value: v})
}

func (r *recordingController) Send() error {
	r.sends++
	r.calls = append(r.calls, ctrlCall{op: "send"})
	if r.failAt > 0 && r.sends >= r.failAt {
		return r.sendErr
	}
	return nil
}

// countingHandler counts records at info level and above.
type countingHandler struct {
	mu      sync.Mutex
	records []string
}

func (h *countingHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= slog.LevelInfo }
func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Message)
	return nil
}
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func newLoop(src input.Source, ctrl bridge.Controller) (*bridge.Loop, *countingHandler) {
	h := &countingHandler{}
	return &bridge.Loop{
		Source:     src,
		Controller: ctrl,
		Table:      mapping.Default,
		Logger:     slog.New(h),
	}, h
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state bridge.State
		want  string
	}{
		{bridge.Idle, "idle"},
		{bridge.Running, "running"},
		{bridge.Terminated, "terminated"},
		{bridge.Stopped, "stopped"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestLoopAxisSendsImmediately(t *testing.T) {
	src := &scriptSource{batches: [][]input.Event{{input.Axis(0, 0.5)}}}
	ctrl := &recordingController{}
	loop, _ := newLoop(src, ctrl)

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, errExhausted)

	assert.Equal(t, []ctrlCall{
		{op: "axis", side: switchpro.SideLeft, dir: switchpro.Horizontal, value: 3071},
		{op: "send"},
	}, ctrl.calls)
}

func TestLoopVerticalAxisInverted(t *testing.T) {
	src := &scriptSource{batches: [][]input.Event{{input.Axis(1, 0.5), input.Axis(3, -1)}}}
	ctrl := &recordingController{}
	loop, _ := newLoop(src, ctrl)

	assert.ErrorIs(t, loop.Run(context.Background()), errExhausted)
	assert.Equal(t, []ctrlCall{
		{op: "axis", side: switchpro.SideLeft, dir: switchpro.Vertical, value: 1024},
		{op: "send"},
		{op: "axis", side: switchpro.SideRight, dir: switchpro.Vertical, value: 4095},
		{op: "send"},
	}, ctrl.calls)
}

func TestLoopConnectionLost(t *testing.T) {
	axis := []input.Event{input.Axis(2, 0.1)}
	src := &scriptSource{repeat: axis}
	ctrl := &recordingController{
		failAt:  2,
		sendErr: fmt.Errorf("%w: write: broken pipe", apiclient.ErrConnectionLost),
	}
	loop, logs := newLoop(src, ctrl)

	err := loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, src.pollCount(), "no polling after connection loss")
	assert.Equal(t, 2, ctrl.sends)
	assert.Len(t, logs.records, 1)
	assert.Equal(t, bridge.Terminated, loop.State())
}

func TestLoopButtonsDoNotSend(t *testing.T) {
	src := &scriptSource{batches: [][]input.Event{
		{input.Down(0), input.Down(1), input.Axis(0, 0)},
		{input.Up(0), input.Up(1)},
	}}
	ctrl := &recordingController{}
	loop, _ := newLoop(src, ctrl)

	assert.ErrorIs(t, loop.Run(context.Background()), errExhausted)
	assert.Equal(t, 1, ctrl.sends)
	assert.Equal(t, []ctrlCall{
		{op: "press", button: switchpro.ButtonY},
		{op: "press", button: switchpro.ButtonB},
		{op: "axis", side: switchpro.SideLeft, dir: switchpro.Horizontal, value: 2047},
		{op: "send"},
		{op: "release", button: switchpro.ButtonY},
		{op: "release", button: switchpro.ButtonB},
	}, ctrl.calls)
}

func TestLoopUnmappedIndex(t *testing.T) {
	cases := []struct {
		name  string
		batch []input.Event
		kind  mapping.IndexKind
	}{
		{"button", []input.Event{input.Down(0), input.Axis(0, 1), input.Down(42)}, mapping.KindButton},
		{"button up", []input.Event{input.Up(14)}, mapping.KindButton},
		{"axis", []input.Event{input.Down(2), input.Axis(5, 0.3)}, mapping.KindAxis},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &scriptSource{batches: [][]input.Event{tc.batch}}
			ctrl := &recordingController{}
			loop, _ := newLoop(src, ctrl)

			err := loop.Run(context.Background())
			require.ErrorIs(t, err, mapping.ErrUnmappedIndex)
			var ue *mapping.UnmappedIndexError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tc.kind, ue.Kind)
			assert.Empty(t, ctrl.calls, "no state change before the error")
			assert.Equal(t, 1, src.pollCount())
			assert.Equal(t, bridge.Stopped, loop.State())
		})
	}
}

func TestLoopRoundTripLeavesStateUnchanged(t *testing.T) {
	ctrl := switchpro.NewController(discard{})
	before := ctrl.State()
	src := &scriptSource{batches: [][]input.Event{{input.Down(12)}, {input.Up(12)}}}
	loop, _ := newLoop(src, ctrl)

	assert.ErrorIs(t, loop.Run(context.Background()), errExhausted)
	assert.Equal(t, before, ctrl.State())
}

func TestLoopAdapterFailure(t *testing.T) {
	plain := errors.New("usb gone")
	src := failingSource{err: plain}
	loop, _ := newLoop(src, &recordingController{})

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, plain)
	assert.ErrorIs(t, err, input.ErrAdapter)
	assert.Equal(t, bridge.Stopped, loop.State())
}

func TestLoopOtherSendErrorIsFatal(t *testing.T) {
	timeout := errors.New("i/o timeout")
	src := &scriptSource{repeat: []input.Event{input.Axis(0, 0.2)}}
	ctrl := &recordingController{failAt: 1, sendErr: timeout}
	loop, logs := newLoop(src, ctrl)

	err := loop.Run(context.Background())
	assert.ErrorIs(t, err, timeout)
	assert.NotErrorIs(t, err, apiclient.ErrConnectionLost)
	assert.Empty(t, logs.records)
	assert.Equal(t, bridge.Stopped, loop.State())
}

func TestLoopCancel(t *testing.T) {
	src := &scriptSource{repeat: []input.Event{}}
	loop, _ := newLoop(src, &recordingController{})
	loop.PollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return src.pollCount() > 3 }, time.Second, time.Millisecond)
	assert.Equal(t, bridge.Running, loop.State())
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, bridge.Stopped, loop.State())
}

type failingSource struct{ err error }

func (f failingSource) Poll() ([]input.Event, error) { return nil, f.err }
func (f failingSource) Close() error                 { return nil }

type discard struct{}

func (discard) WriteBinary(v encoding.BinaryMarshaler) error {
	_, err := v.MarshalBinary()
	return err
}
