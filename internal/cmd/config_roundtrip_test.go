package cmd_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Alia5/padproxy/internal/cmd"
	"github.com/Alia5/padproxy/internal/config"
	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An edited template must be read back by kong for every bridge option.
func TestConfigInitTemplateLoads(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bridge.json")
	require.NoError(t, (&cmd.ConfigInit{Format: "json", Output: dest}).Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var tmpl map[string]any
	require.NoError(t, json.Unmarshal(data, &tmpl))

	edits := map[string]any{
		"addr":              "example:1",
		"password":          "pw",
		"busId":             7,
		"controller":        "joycon-r",
		"joystick":          2,
		"pollInterval":      "50ms",
		"reportInterval":    "0s",
		"rumble":            false,
		"console":           false,
		"connectionTimeout": "2s",
		"monitor":           map[string]any{"addr": "localhost:9"},
	}
	for k := range tmpl {
		require.Contains(t, edits, k, "template key %q has no edit", k)
	}
	for k := range edits {
		require.Contains(t, tmpl, k, "template lacks key %q", k)
	}
	data, err = json.Marshal(edits)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dest, data, 0o644))

	var cli config.CLI
	parser, err := kong.New(&cli, kong.Configuration(kong.JSON, dest))
	require.NoError(t, err)
	kctx, err := parser.Parse([]string{})
	require.NoError(t, err)
	assert.Equal(t, "bridge", kctx.Command())

	b := cli.Bridge
	assert.Equal(t, "example:1", b.Addr)
	assert.Equal(t, "pw", b.Password)
	assert.Equal(t, uint32(7), b.BusID)
	assert.Equal(t, "joycon-r", b.Controller)
	assert.Equal(t, 2, b.Joystick)
	assert.Equal(t, 50*time.Millisecond, b.PollInterval)
	assert.Equal(t, time.Duration(0), b.ReportInterval)
	assert.False(t, b.Rumble)
	assert.False(t, b.Console)
	assert.Equal(t, 2*time.Second, b.ConnectionTimeout)
	assert.Equal(t, "localhost:9", b.Monitor.Addr)
}
