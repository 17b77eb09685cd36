// Package config defines the top-level CLI structure bound by kong from
// flags, environment variables and layered configuration files.
package config

import "github.com/g15tools/g15keys/internal/cmd"

// CLI is the root command tree.
type CLI struct {
	Run    cmd.Run           `cmd:"" default:"1" help:"Connect to g15daemon and dispatch key bindings (default)"`
	Config cmd.ConfigCommand `cmd:"" help:"Configuration helpers"`
	Log    LogConfig         `embed:"" prefix:"log."`

	// ConfigFile is consumed before kong parsing to seed the configuration
	// loaders; declared here so kong accepts the flag.
	ConfigFile string `help:"Path to a process configuration file" name:"config" env:"G15KEYS_CONFIG"`
}

// LogConfig holds the logging flags shared by all commands.
type LogConfig struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"G15KEYS_LOG_LEVEL"`
	File    string `help:"Write logs to a file instead of stdout/stderr" env:"G15KEYS_LOG_FILE"`
	RawFile string `help:"Write a hex dump of daemon traffic to a file" env:"G15KEYS_LOG_RAW_FILE"`
}
