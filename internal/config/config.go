// Package config holds the runtime settings of the temsim CLI: where the
// simulator binary lives, where run records go and how verbose logging is.
// Values come from the environment and are overridden by command-line flags.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultBinary   = "TEM-simulator"
	DefaultDataDir  = ".temsim"
	DefaultLogLevel = "info"
)

type Settings struct {
	// Binary is the TEM-simulator executable, resolved through PATH when
	// it contains no separator.
	Binary string `env:"TEMSIM_BINARY" envDefault:"TEM-simulator"`
	// BinaryArgs are passed before the input file on every invocation.
	BinaryArgs []string `env:"TEMSIM_BINARY_ARGS" envSeparator:" "`
	DataDir    string   `env:"TEMSIM_DATA_DIR" envDefault:".temsim"`
	OutputDir  string   `env:"TEMSIM_OUTPUT_DIR"`
	LogLevel   string   `env:"TEMSIM_LOG_LEVEL" envDefault:"info"`
}

// Load reads Settings from the environment.
func Load() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
