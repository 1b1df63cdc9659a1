package config_test

import (
	"os"
	"path/filepath"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/spf13/pflag"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"tigerra/internal/config"
	"tigerra/internal/target"
)

func TestDefaults(t *testing.T) {
	c := config.Default()
	assert.Check(t, is.Equal(c.Target, "mips"))
	assert.Check(t, is.Equal(c.Allocator, "briggs"))
	assert.Check(t, is.Equal(c.Registers, 0))
	assert.NilError(t, c.Validate())

	tg, err := c.ResolveTarget()
	assert.NilError(t, err)
	assert.Check(t, is.Equal(tg.NumRegs(), 10))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tigerra.toml")
	data := `
target = "arm64"
registers = 3
dot-web = true
`
	assert.NilError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := config.Load(path)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(c.Target, "arm64"))
	assert.Check(t, is.Equal(c.Registers, 3))
	assert.Check(t, c.DotWeb)
	// untouched keys keep their defaults
	assert.Check(t, is.Equal(c.Allocator, "briggs"))

	tg, err := c.ResolveTarget()
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(tg.GPRegs, []string{"x9", "x10", "x11"}))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Check(t, is.ErrorContains(err, "reading config"))
}

func TestLoadEmptyPath(t *testing.T) {
	c, err := config.Load("")
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(c, config.Default()))
}

func TestMergeErrors(t *testing.T) {
	tests := []struct {
		doc     string
		message string
	}{
		{`target = 3`, `config key "target" must be a string`},
		{`registers = "four"`, `config key "registers" must be an integer`},
		{`debug = 1`, `config key "debug" must be a boolean`},
		{`colour = "red"`, `unknown config key "colour"`},
		{`target = `, `invalid config`},
	}
	for _, tt := range tests {
		t.Run(tt.doc, func(t *testing.T) {
			err := config.Default().Merge([]byte(tt.doc))
			assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
			assert.Check(t, is.ErrorContains(err, tt.message))
		})
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	c := config.Default()
	c.Registers = 4
	c.DotCFG = true
	data, err := c.TOML()
	assert.NilError(t, err)

	back := &config.Config{}
	assert.NilError(t, back.Merge(data))
	assert.Check(t, is.DeepEqual(back, c))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(config.EnvTarget, "amd64")
	t.Setenv(config.EnvRegisters, "5")
	t.Setenv(config.EnvAllocator, "naive")
	t.Setenv(config.EnvDebug, "true")

	c := config.Default()
	c.ApplyEnv()
	assert.Check(t, is.Equal(c.Target, "amd64"))
	assert.Check(t, is.Equal(c.Registers, 5))
	assert.Check(t, is.Equal(c.Allocator, "naive"))
	assert.Check(t, c.Debug)
	assert.Check(t, is.Equal(c.OutDir, ""))
}

func TestFlagsOverrideEverything(t *testing.T) {
	t.Setenv(config.EnvTarget, "amd64")
	t.Setenv(config.EnvRegisters, "5")

	c := config.Default()
	c.ApplyEnv()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)
	assert.NilError(t, fs.Parse([]string{"--registers", "2", "--dot-cfg", "--cfg-liveness", "-o", "out"}))
	assert.NilError(t, c.ApplyFlags(fs))

	assert.Check(t, is.Equal(c.Registers, 2))
	assert.Check(t, is.Equal(c.Target, "amd64"), "unset flags leave env values alone")
	assert.Check(t, c.DotCFG)
	assert.Check(t, c.CFGLiveness)
	assert.Check(t, is.Equal(c.OutDir, "out"))
	assert.NilError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		message string
	}{
		{"liveness without cfg", func(c *config.Config) { c.CFGLiveness = true }, "--cfg-liveness cannot be used without --dot-cfg"},
		{"negative registers", func(c *config.Config) { c.Registers = -1 }, "registers must not be negative"},
		{"unknown allocator", func(c *config.Config) { c.Allocator = "chaitin" }, `unknown register allocator "chaitin"`},
		{"unknown target", func(c *config.Config) { c.Target = "z80" }, `unknown target "z80"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			tt.mutate(c)
			err := c.Validate()
			assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
			assert.Check(t, is.ErrorContains(err, tt.message))
		})
	}
}

func TestResolveHostTarget(t *testing.T) {
	c := config.Default()
	c.Target = target.HostName
	c.Registers = 2
	assert.NilError(t, c.Validate())
	tg, err := c.ResolveTarget()
	assert.NilError(t, err)
	assert.Check(t, is.Equal(tg.Name, target.Host().Name))
	assert.Check(t, is.Equal(tg.NumRegs(), 2))
}
