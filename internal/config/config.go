// Package config declares the root command line of padproxy.
package config

import (
	"github.com/Alia5/padproxy/internal/cmd"
	"github.com/Alia5/padproxy/internal/log"
)

// CLI is parsed by kong. Flags and environment override config file values.
type CLI struct {
	ConfigFile string `name:"config" help:"Config file (json, yaml or toml)" type:"path" env:"PADPROXY_CONFIG"`

	Log log.Config `embed:"" prefix:"log."`

	Bridge    cmd.Bridge        `cmd:"" default:"withargs" help:"Bridge a physical gamepad to a virtual Switch controller"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Manage configuration files"`
}
