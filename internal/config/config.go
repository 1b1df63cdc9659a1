// Package config loads the allocator settings. Sources, from lowest to
// highest precedence: built-in defaults, a TOML file, TIGERRA_*
// environment variables, command line flags.
package config

import (
	"os"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/xyproto/env/v2"

	"tigerra/internal/regalloc"
	"tigerra/internal/target"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvTarget    = "TIGERRA_TARGET"
	EnvRegisters = "TIGERRA_REGISTERS"
	EnvAllocator = "TIGERRA_ALLOCATOR"
	EnvOutDir    = "TIGERRA_OUT_DIR"
	EnvDebug     = "TIGERRA_DEBUG"
)

// Flag names shared by BindFlags and ApplyFlags.
const (
	FlagTarget      = "target"
	FlagRegisters   = "registers"
	FlagAllocator   = "ralloc"
	FlagDotCFG      = "dot-cfg"
	FlagDotWeb      = "dot-web"
	FlagCFGLiveness = "cfg-liveness"
	FlagOutDir      = "out-dir"
	FlagDebug       = "debug"
)

// Config holds every tunable of a run.
type Config struct {
	Target string `toml:"target"`
	// Registers caps the GP registers handed to coloring; 0 uses all of them.
	Registers int    `toml:"registers"`
	Allocator string `toml:"allocator"`

	DotCFG      bool   `toml:"dot-cfg"`
	DotWeb      bool   `toml:"dot-web"`
	CFGLiveness bool   `toml:"cfg-liveness"`
	OutDir      string `toml:"out-dir"`

	Debug bool `toml:"debug"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Target:    target.Default,
		Allocator: regalloc.ModeBriggs,
	}
}

// Load returns the defaults overlaid with the TOML file at path. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if err := c.Merge(data); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

// Merge overlays the TOML document data. Keys absent from data keep their
// current values; unknown keys are an error.
func (c *Config) Merge(data []byte) error {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "invalid config: %v", err)
	}
	for _, key := range tree.Keys() {
		v := tree.Get(key)
		switch key {
		case "target":
			err = setString(key, v, &c.Target)
		case "allocator":
			err = setString(key, v, &c.Allocator)
		case "out-dir":
			err = setString(key, v, &c.OutDir)
		case "registers":
			if n, ok := v.(int64); ok {
				c.Registers = int(n)
			} else {
				err = typeError(key, "an integer", v)
			}
		case "dot-cfg":
			err = setBool(key, v, &c.DotCFG)
		case "dot-web":
			err = setBool(key, v, &c.DotWeb)
		case "cfg-liveness":
			err = setBool(key, v, &c.CFGLiveness)
		case "debug":
			err = setBool(key, v, &c.Debug)
		default:
			err = errors.Wrapf(errdefs.ErrInvalidArgument, "unknown config key %q", key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// TOML renders c as a config file.
func (c *Config) TOML() ([]byte, error) {
	return toml.Marshal(*c)
}

func setString(key string, v interface{}, dst *string) error {
	s, ok := v.(string)
	if !ok {
		return typeError(key, "a string", v)
	}
	*dst = s
	return nil
}

func setBool(key string, v interface{}, dst *bool) error {
	b, ok := v.(bool)
	if !ok {
		return typeError(key, "a boolean", v)
	}
	*dst = b
	return nil
}

func typeError(key, want string, got interface{}) error {
	return errors.Wrapf(errdefs.ErrInvalidArgument, "config key %q must be %s, got %T", key, want, got)
}

// ApplyEnv overlays the TIGERRA_* variables that are set.
func (c *Config) ApplyEnv() {
	c.Target = env.Str(EnvTarget, c.Target)
	c.Allocator = env.Str(EnvAllocator, c.Allocator)
	c.OutDir = env.Str(EnvOutDir, c.OutDir)
	c.Registers = env.Int(EnvRegisters, c.Registers)
	if env.Has(EnvDebug) {
		c.Debug = env.Bool(EnvDebug)
	}
}

// BindFlags registers the configuration flags on fs. Their defaults are
// c's current values, for help output only; ApplyFlags copies just the
// flags given on the command line.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.String(FlagTarget, c.Target, "target register set ("+strings.Join(append(target.Names(), target.HostName), "|")+")")
	fs.Int(FlagRegisters, c.Registers, "number of general purpose registers to color with (0 = all)")
	fs.String(FlagAllocator, c.Allocator, "register allocation mode (briggs|naive)")
	fs.Bool(FlagDotCFG, c.DotCFG, "emit the CFG of every function as a dot file")
	fs.Bool(FlagDotWeb, c.DotWeb, "emit the web interference graph of every function as a dot file")
	fs.Bool(FlagCFGLiveness, c.CFGLiveness, "include liveness sets in CFG output")
	fs.StringP(FlagOutDir, "o", c.OutDir, "directory for generated files (default: next to the input)")
	fs.BoolP(FlagDebug, "D", c.Debug, "enable debug logging")
}

// ApplyFlags overlays the flags of fs that were set explicitly.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && fs.Changed(name) {
			*dst, err = fs.GetBool(name)
		}
	}
	str(FlagTarget, &c.Target)
	str(FlagAllocator, &c.Allocator)
	str(FlagOutDir, &c.OutDir)
	boolean(FlagDotCFG, &c.DotCFG)
	boolean(FlagDotWeb, &c.DotWeb)
	boolean(FlagCFGLiveness, &c.CFGLiveness)
	boolean(FlagDebug, &c.Debug)
	if err == nil && fs.Changed(FlagRegisters) {
		c.Registers, err = fs.GetInt(FlagRegisters)
	}
	return err
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.CFGLiveness && !c.DotCFG {
		return errors.Wrap(errdefs.ErrInvalidArgument, "--cfg-liveness cannot be used without --dot-cfg")
	}
	if c.Registers < 0 {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "registers must not be negative, got %d", c.Registers)
	}
	switch c.Allocator {
	case regalloc.ModeBriggs, regalloc.ModeNaive:
	default:
		return errors.Wrapf(errdefs.ErrInvalidArgument, "unknown register allocator %q", c.Allocator)
	}
	if _, err := target.Lookup(c.Target); err != nil {
		return err
	}
	return nil
}

// ResolveTarget returns the configured target with its GP table limited
// to Registers.
func (c *Config) ResolveTarget() (*target.Target, error) {
	t, err := target.Lookup(c.Target)
	if err != nil {
		return nil, err
	}
	return t.Limit(c.Registers), nil
}

