// Package config handles garnet.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/chazu/garnet/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "garnet.toml"

// Config represents a garnet.toml file.
type Config struct {
	VM      VMConfig      `toml:"vm"`
	Logging LoggingConfig `toml:"logging"`

	// Dir is the directory containing the garnet.toml file (set at load time).
	Dir string `toml:"-"`
}

// VMConfig sizes the execution context.
type VMConfig struct {
	StackSize      int `toml:"stack-size"`
	CallInfoSize   int `toml:"callinfo-size"`
	MaxCallDepth   int `toml:"max-call-depth"`
	BacktraceLimit int `toml:"backtrace-limit"`
}

// LoggingConfig configures commonlog.
type LoggingConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no garnet.toml exists.
func Default() *Config {
	o := vm.DefaultOptions()
	return &Config{
		VM: VMConfig{
			StackSize:      o.StackSize,
			CallInfoSize:   o.CallInfoSize,
			MaxCallDepth:   o.MaxCallDepth,
			BacktraceLimit: o.BacktraceLimit,
		},
	}
}

// Load parses a garnet.toml file from the given directory. Keys missing
// from the file keep their default values.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a garnet.toml file, then
// loads and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate rejects sizes the VM cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.VM.StackSize <= 0:
		return fmt.Errorf("vm.stack-size must be positive, got %d", c.VM.StackSize)
	case c.VM.CallInfoSize <= 0:
		return fmt.Errorf("vm.callinfo-size must be positive, got %d", c.VM.CallInfoSize)
	case c.VM.MaxCallDepth < 0:
		return fmt.Errorf("vm.max-call-depth must not be negative, got %d", c.VM.MaxCallDepth)
	case c.VM.BacktraceLimit < 0:
		return fmt.Errorf("vm.backtrace-limit must not be negative, got %d", c.VM.BacktraceLimit)
	case c.Logging.Verbosity < 0:
		return fmt.Errorf("logging.verbosity must not be negative, got %d", c.Logging.Verbosity)
	}
	return nil
}

// VMOptions converts the [vm] section into VM options.
func (c *Config) VMOptions() vm.Options {
	o := vm.DefaultOptions()
	o.StackSize = c.VM.StackSize
	o.CallInfoSize = c.VM.CallInfoSize
	o.MaxCallDepth = c.VM.MaxCallDepth
	o.BacktraceLimit = c.VM.BacktraceLimit
	return o
}

// LogPath returns the log file path resolved against Dir, or "" for
// stderr.
func (c *Config) LogPath() string {
	if c.Logging.File == "" || filepath.IsAbs(c.Logging.File) || c.Dir == "" {
		return c.Logging.File
	}
	return filepath.Join(c.Dir, c.Logging.File)
}
