package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dxnodes/internal/config"
	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/pkgbuild"
	"github.com/klauern/dxnodes/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display or initialize configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "toml", Usage: "Print as TOML"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st := stateFrom(ctx)
					data, err := st.cfg.Marshal(cmd.Bool("toml"))
					if err != nil {
						return err
					}
					_, err = cmd.Root().Writer.Write(data)
					return err
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file path",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintln(cmd.Root().Writer, stateFrom(ctx).configPath)
					return err
				},
			},
			{
				Name:  "init",
				Usage: "Write the default configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					path := stateFrom(ctx).configPath
					if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
						return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
					}
					if err := config.Default().SaveToPath(path); err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.Root().Writer, ui.StatusSuccess("wrote "+path))
					return nil
				},
			},
		},
	}
}

func packageCommand() *cli.Command {
	hostFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "host-version",
			Usage:    "Full host version the binaries were built for, e.g. 4.1.0-beta3200",
			Required: true,
		}
	}
	rootFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "root",
			Usage: "Base directory for relative package paths (default: current directory)",
		}
	}

	return &cli.Command{
		Name:  "package",
		Usage: "Assemble and deploy the host package",
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Assemble the package from the template and build output",
				Flags: []cli.Flag{
					hostFlag(),
					rootFlag(),
					&cli.StringFlag{Name: "package-version", Usage: "Package version (default from config)"},
					&cli.BoolFlag{Name: "deploy", Usage: "Deploy after building"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st := stateFrom(ctx)
					opts, err := packageOptions(st.cfg, cmd)
					if err != nil {
						return err
					}
					deploy := cmd.Bool("deploy")

					log := diagnostics.New(st.cfg.DiagnosticsLevel()).WithLogger(logging.WithContext(ctx))
					env := diagnostics.Guard(log, "package build", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
						res, err := pkgbuild.Build(opts)
						if err != nil {
							return nil, err
						}
						log.Infof("built %s %s with %d binaries", pkgbuild.PackageName, res.Version, len(res.Binaries))
						fields := []diagnostics.Field{
							diagnostics.F("targetDir", res.TargetDir),
							diagnostics.F("manifest", res.Manifest),
							diagnostics.F("version", res.Version),
							diagnostics.F("binaries", res.Binaries),
						}
						if deploy {
							deployed, err := deployTo(st.cfg, res.TargetDir, opts.InstallVersion, log)
							if err != nil {
								return nil, err
							}
							fields = append(fields, diagnostics.F("deployed", deployed))
						}
						return diagnostics.Succeed(log, fields...), nil
					})
					return render(cmd.Root().Writer, st.format, "package build", env)
				},
			},
			{
				Name:  "deploy",
				Usage: "Copy a built package into the host package folders",
				Flags: []cli.Flag{hostFlag(), rootFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st := stateFrom(ctx)
					opts, err := packageOptions(st.cfg, cmd)
					if err != nil {
						return err
					}
					log := diagnostics.New(st.cfg.DiagnosticsLevel()).WithLogger(logging.WithContext(ctx))
					env := diagnostics.Guard(log, "package deploy", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
						if _, err := os.Stat(filepath.Join(opts.TargetDir, pkgbuild.ManifestFile)); err != nil {
							return nil, fmt.Errorf("%w: run package build first", pkgbuild.ErrMissingManifest)
						}
						deployed, err := deployTo(st.cfg, opts.TargetDir, opts.InstallVersion, log)
						if err != nil {
							return nil, err
						}
						return diagnostics.Succeed(log, diagnostics.F("deployed", deployed)), nil
					})
					return render(cmd.Root().Writer, st.format, "package deploy", env)
				},
			},
		},
	}
}

func packageOptions(cfg *config.Config, cmd *cli.Command) (pkgbuild.Options, error) {
	host := strings.TrimSpace(cmd.String("host-version"))
	if host == "" {
		return pkgbuild.Options{}, errors.New("--host-version is required")
	}
	base := cmd.String("root")
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return pkgbuild.Options{}, err
		}
		base = wd
	}
	opts := cfg.PackageOptions(host, base)
	if v := cmd.String("package-version"); v != "" {
		opts.Version = v
	}
	return opts, nil
}

func deployTo(cfg *config.Config, packageDir, installVersion string, log *diagnostics.Log) ([]string, error) {
	roots := cfg.DeployRoots()
	if len(roots) == 0 {
		log.Warnf("no deploy roots configured and APPDATA is unset; nothing deployed")
		return nil, nil
	}
	return pkgbuild.Deploy(packageDir, roots, installVersion)
}
