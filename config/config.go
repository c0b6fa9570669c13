// Package config handles jolt.toml runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/jolt/gc"
	"github.com/chazu/jolt/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "jolt.toml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents a jolt.toml file.
type Config struct {
	Heap   HeapConfig   `toml:"heap"`
	Stack  StackConfig  `toml:"stack"`
	Thread ThreadConfig `toml:"thread"`
	GC     GCConfig     `toml:"gc"`
	Log    LogConfig    `toml:"log"`

	// Dir is the directory containing the jolt.toml file (set at load time).
	Dir string `toml:"-"`
}

// HeapConfig bounds the heap. Zero means unlimited.
type HeapConfig struct {
	MaxBytes   int64 `toml:"max-bytes"`
	MaxRecords int   `toml:"max-records"`
}

// StackConfig bounds each thread's call stack.
type StackConfig struct {
	MaxDepth int `toml:"max-depth"`
}

// ThreadConfig sets per-thread defaults.
type ThreadConfig struct {
	AddressMode string `toml:"address-mode"` // "wide" or "narrow"
}

// GCConfig configures the background collector.
type GCConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"` // time.ParseDuration syntax
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no jolt.toml exists.
func Default() *Config {
	return &Config{
		Stack:  StackConfig{MaxDepth: vm.DefaultMaxStackDepth},
		Thread: ThreadConfig{AddressMode: vm.AddressWide.String()},
		GC:     GCConfig{Interval: gc.DefaultInterval.String()},
	}
}

// Load parses a jolt.toml file from the given directory. Keys the file
// omits keep their Default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a jolt.toml file, then loads
// and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	if c.Heap.MaxBytes < 0 {
		return fmt.Errorf("heap.max-bytes %d: %w", c.Heap.MaxBytes, ErrInvalidConfig)
	}
	if c.Heap.MaxRecords < 0 {
		return fmt.Errorf("heap.max-records %d: %w", c.Heap.MaxRecords, ErrInvalidConfig)
	}
	if c.Stack.MaxDepth < 0 || c.Stack.MaxDepth > vm.MaxStackDepthLimit {
		return fmt.Errorf("stack.max-depth %d: %w", c.Stack.MaxDepth, ErrInvalidConfig)
	}
	if _, err := c.addressMode(); err != nil {
		return err
	}
	if _, err := c.interval(); err != nil {
		return err
	}
	if c.Log.Verbosity < -4 || c.Log.Verbosity > 2 {
		return fmt.Errorf("log.verbosity %d: %w", c.Log.Verbosity, ErrInvalidConfig)
	}
	return nil
}

func (c *Config) addressMode() (vm.AddressMode, error) {
	switch c.Thread.AddressMode {
	case "", "wide":
		return vm.AddressWide, nil
	case "narrow":
		return vm.AddressNarrow, nil
	}
	return 0, fmt.Errorf("thread.address-mode %q: %w", c.Thread.AddressMode, ErrInvalidConfig)
}

func (c *Config) interval() (time.Duration, error) {
	if c.GC.Interval == "" {
		return gc.DefaultInterval, nil
	}
	d, err := time.ParseDuration(c.GC.Interval)
	if err != nil {
		return 0, fmt.Errorf("gc.interval: %w: %w", ErrInvalidConfig, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("gc.interval %s: %w", d, ErrInvalidConfig)
	}
	return d, nil
}

// VMOptions maps the configuration onto vm.Options. Call Validate first;
// invalid values fall back to defaults.
func (c *Config) VMOptions() vm.Options {
	mode, _ := c.addressMode()
	return vm.Options{
		Heap: vm.HeapOptions{
			MaxBytes:   c.Heap.MaxBytes,
			MaxRecords: c.Heap.MaxRecords,
		},
		MaxStackDepth: c.Stack.MaxDepth,
		AddressMode:   mode,
	}
}

// GCOptions maps the configuration onto gc.Options.
func (c *Config) GCOptions() gc.Options {
	interval, err := c.interval()
	if err != nil {
		interval = gc.DefaultInterval
	}
	return gc.Options{Interval: interval, Enabled: c.GC.Enabled}
}

// ApplyLogging configures commonlog's simple backend. A relative log file
// is resolved against Dir.
func (c *Config) ApplyLogging() {
	if c.Log.File == "" {
		commonlog.Configure(c.Log.Verbosity, nil)
		return
	}
	path := c.Log.File
	if !filepath.IsAbs(path) && c.Dir != "" {
		path = filepath.Join(c.Dir, path)
	}
	commonlog.Configure(c.Log.Verbosity, &path)
}
