package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/localdx"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/nodes"
	"github.com/klauern/dxnodes/internal/progress"
	"github.com/klauern/dxnodes/internal/ui"
	"github.com/klauern/dxnodes/internal/ui/tui"
)

// errExchangeArg is returned when a command is missing its exchange argument.
var errExchangeArg = errors.New("an exchange is required: collection/exchange[@hub] or a selection .json file")

// resolveExchange turns a command argument into an exchange record. The
// argument is either a selection JSON file or an identifier; identifiers
// are looked up in the store for their display fields.
func resolveExchange(store *localdx.Store, arg string) (model.Exchange, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return model.Exchange{}, errExchangeArg
	}
	if strings.HasSuffix(strings.ToLower(arg), ".json") {
		data, err := os.ReadFile(arg) // #nosec G304 - user-provided selection file
		if err != nil {
			return model.Exchange{}, fmt.Errorf("failed to read selection: %w", err)
		}
		return model.ParseExchange(data)
	}

	id, err := model.ParseIdentifier(arg)
	if err != nil {
		return model.Exchange{}, err
	}
	m, err := store.Load(id)
	if err != nil {
		logging.Debug("exchange not in store, using identifier only",
			logging.Exchange(id.String()), logging.Err(err))
		return model.Exchange{ExchangeID: id.ExchangeID, CollectionID: id.CollectionID, HubID: id.HubID}, nil
	}
	e := m.Exchange
	if id.HubID != "" {
		e.HubID = id.HubID
	}
	return e, nil
}

func exchangesCommand() *cli.Command {
	return &cli.Command{
		Name:  "exchanges",
		Usage: "List exchanges in the local store",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"i"},
				Usage:   "Pick an exchange and print its selection JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			w := cmd.Root().Writer
			exchanges, err := st.store().Exchanges()
			if err != nil {
				return err
			}

			if cmd.Bool("interactive") {
				res, err := tui.RunExchangePicker(exchanges)
				if err != nil {
					return err
				}
				if !res.Selected {
					return nil
				}
				data, err := res.Exchange.JSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}

			switch st.format {
			case "json":
				return writeJSON(w, exchanges)
			case "yaml":
				return writeYAML(w, exchanges)
			}
			if len(exchanges) == 0 {
				_, _ = fmt.Fprintf(w, "No exchanges in %s\n", st.cfg.StorePath())
				return nil
			}
			for _, e := range exchanges {
				_, _ = fmt.Fprintf(w, "%s  %s\n", ui.Info(e.Identifier().String()), e.DisplayTitle())
			}
			return nil
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create an empty exchange in the local store",
		UsageText: "dxnodes create [options] <collection/exchange[@hub]>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "Exchange title"},
			&cli.StringFlag{Name: "project", Usage: "Project name"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			if cmd.Args().Len() != 1 {
				return errExchangeArg
			}
			id, err := model.ParseIdentifier(cmd.Args().First())
			if err != nil {
				return err
			}
			e := model.Exchange{
				ExchangeID:   id.ExchangeID,
				CollectionID: id.CollectionID,
				HubID:        id.HubID,
				Title:        cmd.String("title"),
				ProjectName:  cmd.String("project"),
			}
			if err := st.store().Seed(e, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer, ui.StatusSuccess("created "+id.String()))
			return nil
		},
	}
}

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "Parse and validate an exchange selection",
		UsageText: "dxnodes select [file|-]",
		Description: `Reads an exchange selection JSON object from a file, or from stdin
   when the argument is "-" or absent.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			n, _ := st.nodes()

			var (
				data []byte
				err  error
			)
			switch arg := cmd.Args().First(); arg {
			case "", "-":
				data, err = io.ReadAll(cmd.Root().Reader)
			default:
				data, err = os.ReadFile(arg) // #nosec G304 - user-provided selection file
			}
			if err != nil {
				return fmt.Errorf("failed to read selection: %w", err)
			}
			return render(cmd.Root().Writer, st.format, "select exchange", n.SelectExchange(data))
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the asset and element structure of an exchange",
		UsageText: "dxnodes inspect [options] <exchange>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "browse",
				Aliases: []string{"b"},
				Usage:   "Browse the structure interactively",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			n, store := st.nodes()
			e, err := resolveExchange(store, cmd.Args().First())
			if err != nil {
				return err
			}

			env := n.InspectStructure(ctx, e)

			if cmd.Bool("browse") && env.Success {
				if tree, ok := treeOf(env); ok && !tree.IsEmpty() {
					return browse(cmd, tree, e)
				}
			}
			return render(cmd.Root().Writer, st.format, "inspect structure", env)
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Add STEP geometry to an exchange and commit it",
		UsageText: "dxnodes upload [options] <exchange> <file>...",
		Description: `Adds one geometry element per file and commits the change through a
   fulfillment. Local files are backed up while uploading and restored if
   the upload fails.

   Examples:
     dxnodes upload co.xyz/ex-1 beam.stp column.stp
     dxnodes upload --replace-mode replaceByName --replace beam co.xyz/ex-1 beam.stp`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "replace-mode",
				Aliases: []string{"m"},
				Value:   string(model.ReplaceAppend),
				Usage:   "append, replaceAll or replaceByName",
			},
			&cli.StringSliceFlag{
				Name:  "replace",
				Usage: "Element name removed before upload (replaceByName)",
			},
			&cli.StringFlag{
				Name:    "unit",
				Aliases: []string{"u"},
				Usage:   "Length unit tag or short name (default from config)",
			},
			&cli.StringSliceFlag{
				Name:  "count",
				Usage: "Geometry body count per file, in file order",
			},
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Fulfillment description",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Do not draw a progress bar",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			n, store := st.nodes()
			if cmd.Args().Len() < 2 {
				return errors.New("upload requires an exchange and at least one file")
			}
			e, err := resolveExchange(store, cmd.Args().First())
			if err != nil {
				return err
			}
			counts, err := parseCounts(cmd.StringSlice("count"))
			if err != nil {
				return err
			}

			req := nodes.UploadRequest{
				Paths:          cmd.Args().Tail(),
				ReplaceMode:    cmd.String("replace-mode"),
				ReplaceNames:   cmd.StringSlice("replace"),
				Unit:           cmd.String("unit"),
				GeometryCounts: counts,
				Description:    cmd.String("description"),
			}
			if st.format == "text" && !cmd.Bool("no-progress") {
				req.Progress = progress.ForFulfillment(os.Stderr).Fulfillment()
			}

			env := n.UploadGeometry(ctx, e, req)
			return render(cmd.Root().Writer, st.format, "upload geometry", env)
		},
	}
}

func parseCounts(values []string) ([]int, error) {
	var counts []int
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			c, err := strconv.Atoi(part)
			if err != nil || c < 0 {
				return nil, fmt.Errorf("invalid geometry count %q", part)
			}
			counts = append(counts, c)
		}
	}
	return counts, nil
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Export the geometry of an exchange as STEP files",
		UsageText: "dxnodes download [options] <exchange>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output directory (default from config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			n, store := st.nodes()
			e, err := resolveExchange(store, cmd.Args().First())
			if err != nil {
				return err
			}

			env := n.DownloadGeometry(ctx, e, cmd.String("out"))
			return render(cmd.Root().Writer, st.format, "download geometry", env)
		},
	}
}

func unitsCommand() *cli.Command {
	return &cli.Command{
		Name:      "units",
		Usage:     "Show the millimeter scale of a length unit",
		UsageText: "dxnodes units [unit]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			n, _ := st.nodes()
			w := cmd.Root().Writer

			if cmd.Args().Len() == 0 {
				var envs []*diagnostics.Envelope
				for _, u := range model.AllUnits() {
					envs = append(envs, n.UnitScale(u.String()))
				}
				switch st.format {
				case "json":
					return writeJSON(w, envs)
				case "yaml":
					return writeYAML(w, envs)
				}
				for _, u := range model.AllUnits() {
					_, _ = fmt.Fprintf(w, "%-12s %-22s %g mm\n", u.ShortName(), ui.Dim(u.String()), u.MillimetersPerUnit())
				}
				return nil
			}
			return render(w, st.format, "unit scale", n.UnitScale(cmd.Args().First()))
		},
	}
}
