package mapping_test

import (
	"errors"
	"math"
	"testing"

	"github.com/Alia5/padproxy/device/switchpro"
	"github.com/Alia5/padproxy/internal/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescale(t *testing.T) {
	cases := []struct {
		raw  float64
		want uint16
	}{
		{-1.0, 0},
		{0.0, 2047},
		{1.0, 4095},
		{0.5, 3071},
		{-0.5, 1024},
		{-1.5, 0},
		{1.2, 4095},
		{math.NaN(), 2047},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapping.Rescale(tc.raw), "rescale(%v)", tc.raw)
	}
}

func TestRescaleRange(t *testing.T) {
	prev := uint16(0)
	for i := -1000; i <= 1000; i++ {
		raw := float64(i) / 1000
		got := mapping.Rescale(raw)
		assert.LessOrEqual(t, got, switchpro.StickMax)
		assert.GreaterOrEqual(t, got, prev, "rescale must be monotonic at %v", raw)
		prev = got
	}
}

func TestRescaleAxis(t *testing.T) {
	vertical := mapping.AxisBinding{Side: switchpro.SideLeft, Direction: switchpro.Vertical}
	horizontal := mapping.AxisBinding{Side: switchpro.SideRight, Direction: switchpro.Horizontal}

	for i := -100; i <= 100; i++ {
		raw := float64(i) / 100
		assert.Equal(t, mapping.Rescale(-raw), mapping.RescaleAxis(vertical, raw))
		assert.Equal(t, mapping.Rescale(raw), mapping.RescaleAxis(horizontal, raw))
	}
	assert.Equal(t, uint16(1024), mapping.RescaleAxis(vertical, 0.5))
	assert.Equal(t, uint16(3071), mapping.RescaleAxis(horizontal, 0.5))
}

func TestDefaultButtons(t *testing.T) {
	want := []string{"y", "b", "a", "x", "l", "r", "zl", "zr", "minus", "plus", "l_stick", "r_stick", "home", "capture"}
	require.Equal(t, len(want), mapping.Default.Buttons())
	for i, name := range want {
		b, err := mapping.Default.ButtonOf(i)
		require.NoError(t, err)
		assert.Equal(t, name, b.String(), "button index %d", i)

		again, _ := mapping.Default.ButtonOf(i)
		assert.Equal(t, b, again)
	}
}

func TestDefaultAxes(t *testing.T) {
	want := []string{"left-horizontal", "left-vertical", "right-horizontal", "right-vertical"}
	require.Equal(t, len(want), mapping.Default.Axes())
	for i, name := range want {
		b, err := mapping.Default.AxisOf(i)
		require.NoError(t, err)
		assert.Equal(t, name, b.String())
	}
}

func TestUnmappedIndex(t *testing.T) {
	cases := []struct {
		name   string
		lookup func() error
		kind   mapping.IndexKind
		index  int
	}{
		{"button past end", func() error { _, err := mapping.Default.ButtonOf(14); return err }, mapping.KindButton, 14},
		{"negative button", func() error { _, err := mapping.Default.ButtonOf(-1); return err }, mapping.KindButton, -1},
		{"axis past end", func() error { _, err := mapping.Default.AxisOf(4); return err }, mapping.KindAxis, 4},
		{"negative axis", func() error { _, err := mapping.Default.AxisOf(-3); return err }, mapping.KindAxis, -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.lookup()
			require.Error(t, err)
			assert.ErrorIs(t, err, mapping.ErrUnmappedIndex)

			var ue *mapping.UnmappedIndexError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tc.kind, ue.Kind)
			assert.Equal(t, tc.index, ue.Index)
		})
	}
}

func TestSparseTable(t *testing.T) {
	tbl := mapping.NewTable(
		[]switchpro.Button{0: switchpro.ButtonA, 2: switchpro.ButtonB},
		map[int]mapping.AxisBinding{3: {Side: switchpro.SideRight, Direction: switchpro.Vertical}},
	)

	_, err := tbl.ButtonOf(1)
	assert.ErrorIs(t, err, mapping.ErrUnmappedIndex)
	b, err := tbl.ButtonOf(2)
	require.NoError(t, err)
	assert.Equal(t, switchpro.ButtonB, b)

	_, err = tbl.AxisOf(0)
	assert.ErrorIs(t, err, mapping.ErrUnmappedIndex)
	ax, err := tbl.AxisOf(3)
	require.NoError(t, err)
	assert.Equal(t, switchpro.Vertical, ax.Direction)
}
