package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dxnodes/internal/archive"
	"github.com/klauern/dxnodes/internal/localdx"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/nodes"
	"github.com/klauern/dxnodes/internal/ui"
)

func bundleCommand() *cli.Command {
	return &cli.Command{
		Name:      "bundle",
		Usage:     "Write the geometry of an exchange to a tar.gz bundle",
		UsageText: "dxnodes bundle <exchange> <file.tar.gz>",
		Action: func(ctx context.Context, cmd *cli.Command) (err error) {
			st := stateFrom(ctx)
			if cmd.Args().Len() != 2 {
				return errors.New("bundle requires an exchange and an output file")
			}
			store := st.store()
			e, err := resolveExchange(store, cmd.Args().Get(0))
			if err != nil {
				return err
			}
			files, err := store.GeometryFiles(ctx, e.Identifier())
			if err != nil {
				return err
			}

			out := cmd.Args().Get(1)
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			f, err := os.Create(out) // #nosec G304 - user-provided output path
			if err != nil {
				return fmt.Errorf("failed to create bundle: %w", err)
			}
			defer func() {
				err = errors.Join(err, f.Close())
				if err != nil {
					_ = os.Remove(out)
				}
			}()
			if err := archive.Create(f, e, files); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.Root().Writer,
				ui.StatusSuccess(fmt.Sprintf("bundled %d file(s) of %s to %s", len(files), e.Identifier(), out)))
			return nil
		},
	}
}

func unbundleCommand() *cli.Command {
	return &cli.Command{
		Name:      "unbundle",
		Usage:     "Upload the geometry of a bundle into an exchange",
		UsageText: "dxnodes unbundle <file.tar.gz> [collection/exchange[@hub]]",
		Description: `Creates the exchange recorded in the bundle, or the one given, when it
   does not exist yet, then uploads every bundled file through a fulfillment.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			st := stateFrom(ctx)
			if cmd.Args().Len() < 1 {
				return errors.New("unbundle requires a bundle file")
			}
			n, store := st.nodes()

			f, err := os.Open(cmd.Args().First()) // #nosec G304 - user-provided bundle
			if err != nil {
				return fmt.Errorf("failed to open bundle: %w", err)
			}
			defer func() { _ = f.Close() }()

			tmp, err := os.MkdirTemp("", "dxnodes-bundle-")
			if err != nil {
				return err
			}
			defer func() { _ = os.RemoveAll(tmp) }()

			manifest, paths, err := archive.Extract(f, tmp)
			if err != nil {
				return err
			}
			e := manifest.Exchange
			if arg := cmd.Args().Get(1); arg != "" {
				id, err := model.ParseIdentifier(arg)
				if err != nil {
					return err
				}
				e.ExchangeID, e.CollectionID, e.HubID = id.ExchangeID, id.CollectionID, id.HubID
			}
			if err := store.Seed(e, nil); err != nil && !errors.Is(err, localdx.ErrExchangeExists) {
				return err
			}

			counts := make([]int, len(manifest.Files))
			for i, mf := range manifest.Files {
				counts[i] = mf.GeometryCount
			}
			env := n.UploadGeometry(ctx, e, nodes.UploadRequest{
				Paths:          paths,
				GeometryCounts: counts,
				Description:    "unbundle " + filepath.Base(cmd.Args().First()),
			})
			return render(cmd.Root().Writer, st.format, "unbundle", env)
		},
	}
}
