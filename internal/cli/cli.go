// Package cli provides the command-line interface for dxnodes.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dxnodes/internal/config"
	"github.com/klauern/dxnodes/internal/localdx"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/nodes"
	"github.com/klauern/dxnodes/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return run(ctx, args, os.Stdout, os.Stdin)
}

func run(ctx context.Context, args []string, out io.Writer, in io.Reader) error {
	app := &cli.Command{
		Name:    "dxnodes",
		Usage:   "Inspect, upload and download data exchange geometry",
		Version: Version,
		Writer:  out,
		Reader:  in,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"o"},
				Usage:   "Output format: text, json, yaml (default from config)",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML or TOML config file",
				Sources: cli.EnvVars("DXNODES_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "diagnostics",
				Usage: "Most verbose diagnostics level kept in results: error, warning, info, debug",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			st, err := loadState(cmd)
			if err != nil {
				return ctx, err
			}
			configureColors(cmd, st.cfg)
			logger := configureLogging(cmd, st.cfg)
			return withState(logging.NewContext(ctx, logger), st), nil
		},
		Commands: []*cli.Command{
			versionCommand(),
			configCommand(),
			exchangesCommand(),
			createCommand(),
			selectCommand(),
			inspectCommand(),
			uploadCommand(),
			downloadCommand(),
			bundleCommand(),
			unbundleCommand(),
			unitsCommand(),
			packageCommand(),
		},
	}
	return app.Run(ctx, args)
}

// state is what every command needs after global flags are applied.
type state struct {
	cfg        *config.Config
	configPath string
	format     string
}

type stateKey struct{}

func withState(ctx context.Context, st *state) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// stateFrom returns the state set up by the root command, or the defaults.
func stateFrom(ctx context.Context) *state {
	if st, ok := ctx.Value(stateKey{}).(*state); ok {
		return st
	}
	return &state{cfg: config.Default(), configPath: config.FilePath(), format: "text"}
}

func loadState(cmd *cli.Command) (*state, error) {
	st := &state{configPath: cmd.String("config")}
	var err error
	if st.configPath != "" {
		st.cfg, err = config.LoadFromPath(st.configPath)
	} else {
		st.configPath = config.FilePath()
		st.cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if lvl := cmd.String("diagnostics"); lvl != "" {
		st.cfg.Diagnostics.Level = lvl
	}
	if f := cmd.String("format"); f != "" {
		st.cfg.Output.Format = f
	}
	if err := st.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	st.format = st.cfg.Output.Format
	return st, nil
}

// store opens the local exchange store.
func (st *state) store() *localdx.Store {
	return localdx.New(st.cfg.StorePath(), st.cfg.StoreOptions())
}

// nodes builds the operations over the local store.
func (st *state) nodes() (*nodes.Nodes, *localdx.Store) {
	store := st.store()
	return nodes.New(nodes.NewLocalClient(store), nodes.Config{
		DiagnosticsLevel: st.cfg.DiagnosticsLevel(),
		Fulfillment:      st.cfg.FulfillmentOptions(),
		ExportDir:        st.cfg.ExportDir(),
		ExportExtension:  st.cfg.Export.Extension,
	}), store
}

// configureColors sets up color output based on CLI flags and config.
func configureColors(cmd *cli.Command, cfg *config.Config) {
	switch {
	case cmd.Bool("no-color"), cfg.Output.Color == "never":
		ui.DisableColors()
	case cfg.Output.Color == "always":
		ui.EnableColors()
	}
}

// configureLogging sets up the logging level based on CLI flags and
// returns the configured logger.
func configureLogging(cmd *cli.Command, cfg *config.Config) *slog.Logger {
	opts := logging.DefaultOptions()

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") || cfg.Output.Verbose {
		opts.Level = slog.LevelInfo
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logger.Debug("logging configured", slog.String("level", opts.Level.String()))

	return logger
}
