package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/containerd/log"
	"github.com/moby/sys/atomicwriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tigerra/internal/backend"
	"tigerra/internal/config"
	"tigerra/internal/dot"
	"tigerra/internal/parser"
)

const VERSION = "0.2.0"

type rootOptions struct {
	configFile  string
	printConfig bool
	summary     bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:           "tigerra [OPTIONS] FILE",
		Short:         "Graph coloring register allocation for IR listings",
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.printConfig {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if opts.printConfig {
				data, err := cfg.TOML()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "configuration file (TOML)")
	flags.BoolVar(&opts.printConfig, "print-config", false, "print the effective configuration and exit")
	flags.BoolVar(&opts.summary, "summary", false, "print a per-function allocation summary")
	defaults.BindFlags(flags)
	return cmd
}

// loadConfig layers the sources: defaults, file, environment, flags.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, nil
}

func run(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, opts *rootOptions, path string) error {
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("file", path))

	tg, err := cfg.ResolveTarget()
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "could not read file")
	}

	log.G(ctx).WithField("target", tg.Name).Debug("parsing listing")
	listing, err := parser.ParseSource(string(src), tg.WordSize)
	if err != nil {
		var srcErr *parser.SourceError
		if errors.As(err, &srcErr) {
			for _, e := range srcErr.Lex {
				fmt.Fprintf(stderr, "%s:%s\n", path, e.Error())
			}
			for _, e := range srcErr.Parse {
				fmt.Fprintf(stderr, "%s:%s\n", path, e.Error())
			}
			return errors.Errorf("%s: stopped due to syntax errors", path)
		}
		return err
	}

	res, err := backend.Allocate(ctx, listing, &backend.Options{Target: tg, Allocator: cfg.Allocator})
	if res != nil {
		for _, d := range res.Diagnostics {
			fmt.Fprintf(stderr, "%s:%s\n", path, d.Error())
		}
	}
	if err != nil {
		return err
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	} else if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	for _, fn := range listing.Funcs {
		if cfg.DotCFG {
			withLiveness := cfg.CFGLiveness
			if err := writeDot(ctx, filepath.Join(outDir, dot.CFGFile(fn.Name())), func(w io.Writer) error {
				return dot.WriteCFG(w, fn, withLiveness)
			}); err != nil {
				return err
			}
		}
		if cfg.DotWeb {
			webs := res.Coloring.Func(fn).Webs
			if err := writeDot(ctx, filepath.Join(outDir, dot.WebFile(fn.Name())), func(w io.Writer) error {
				return dot.WriteWebs(w, webs)
			}); err != nil {
				return err
			}
		}
	}

	if opts.summary {
		fmt.Fprint(stderr, res.Summary())
	}
	_, err = io.WriteString(stdout, res.Dump())
	return err
}

// writeDot replaces path atomically with the output of render.
func writeDot(ctx context.Context, path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return errors.Wrapf(err, "rendering %s", path)
	}
	if err := atomicwriter.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	log.G(ctx).WithField("path", path).Info("dot file saved")
	return nil
}

func main() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
