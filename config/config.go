// Package config handles keel.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/inhies/go-bytesize"

	"github.com/chazu/keel/heap"
	"github.com/chazu/keel/trace"
)

// FileName is the configuration file looked for by Load and FindAndLoad.
const FileName = "keel.toml"

// Config represents a keel.toml configuration.
type Config struct {
	Heap     Heap     `toml:"heap"`
	Verifier Verifier `toml:"verifier"`
	Trace    Trace    `toml:"trace"`

	// Path is the file the configuration was read from (empty for defaults).
	Path string `toml:"-"`
}

// Heap configures the VM's object space.
type Heap struct {
	Size       Size `toml:"size"`
	StackSlots int  `toml:"stack-slots"`
}

// Verifier configures class loading.
type Verifier struct {
	Enabled bool `toml:"enabled"`
}

// Trace configures diagnostics.
type Trace struct {
	Flags     string `toml:"flags"`
	Verbosity int    `toml:"verbosity"`
	LogFile   string `toml:"log-file"`
}

// Size is a byte count written with a unit, such as "64KB" or "1MB".
type Size bytesize.ByteSize

// UnmarshalText parses a human-readable size.
func (s *Size) UnmarshalText(text []byte) error {
	b, err := bytesize.Parse(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*s = Size(b)
	return nil
}

// MarshalText formats the size with its largest whole unit.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Size) String() string {
	return bytesize.ByteSize(s).String()
}

// Bytes returns the size as a byte count.
func (s Size) Bytes() int {
	return int(s)
}

// Default returns the configuration used when no keel.toml exists.
func Default() *Config {
	return &Config{
		Heap: Heap{
			Size:       Size(64 * bytesize.KB),
			StackSlots: 1024,
		},
		Verifier: Verifier{Enabled: true},
	}
}

// Load parses keel.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file. Keys absent from the file keep
// their defaults; unknown keys are an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a keel.toml file, then loads
// it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks the ranges of every setting.
func (c *Config) Validate() error {
	if n := c.Heap.Size.Bytes(); n < heap.MinBlockSize || n > heap.MaxBlockSize {
		return fmt.Errorf("heap size %s outside [%d, %d] bytes", c.Heap.Size, heap.MinBlockSize, heap.MaxBlockSize)
	}
	if c.Heap.StackSlots <= 0 {
		return fmt.Errorf("stack-slots must be positive, got %d", c.Heap.StackSlots)
	}
	if _, err := c.TraceFlags(); err != nil {
		return err
	}
	if c.Trace.Verbosity < 0 {
		return fmt.Errorf("verbosity must not be negative, got %d", c.Trace.Verbosity)
	}
	return nil
}

// TraceFlags parses the trace flag list.
func (c *Config) TraceFlags() (trace.Flags, error) {
	return trace.ParseFlags(c.Trace.Flags)
}

// LogPath returns the log file, or nil for stderr, in the form
// commonlog.Configure expects.
func (c *Config) LogPath() *string {
	if c.Trace.LogFile == "" {
		return nil
	}
	path := c.Trace.LogFile
	if c.Path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(c.Path), path)
	}
	return &path
}
