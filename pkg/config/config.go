// Package config loads the small set of knobs a deployment can override
// without recompiling: ring size and log level. It also carries the program
// page size EnqueueProgram paginates transfers into, but that is a fixed
// wire-format constant (devcmd.ProgramPageSize); cqtool simulate rejects a
// config whose value differs from it.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"hostq.dev/hostq/pkg/devcmd"
)

// Config holds the tunables a command queue is constructed with.
type Config struct {
	RingSize        uint32 `toml:"ring_size"`
	ProgramPageSize uint32 `toml:"program_page_size"`
	LogLevel        string `toml:"log_level"`
}

// Default returns the configuration a command queue uses when no override
// file is supplied.
func Default() Config {
	return Config{
		RingSize:        devcmd.HugePageSize,
		ProgramPageSize: devcmd.ProgramPageSize,
		LogLevel:        "info",
	}
}

// Load reads path as TOML, starting from Default and overriding whichever
// fields the file sets.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}
