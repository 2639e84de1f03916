package nodes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/util"
)

// DownloadGeometry writes every geometry file of the exchange to outDir,
// named after the exchange. The second file on gets a _N suffix. An empty
// outDir uses the configured export directory.
//
// Fields: paths, stepFilePaths, geometryCount.
func (n *Nodes) DownloadGeometry(ctx context.Context, e model.Exchange, outDir string) *diagnostics.Envelope {
	return diagnostics.Guard(n.newLog(ctx, "download geometry"), "download geometry", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
		client, id, err := n.target(e)
		if err != nil {
			return nil, err
		}
		dir := n.exportDir(outDir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", err)
		}

		files, err := client.GeometryFiles(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			log.Warnf("exchange %s has no geometry", id)
		}

		base := model.ExportFileName(e, n.Config.ExportExtension)
		paths := make([]string, 0, len(files))
		total := 0
		for i, f := range files {
			dst := filepath.Join(dir, numbered(base, i))
			if err := copyFile(f.Path, dst); err != nil {
				return nil, err
			}
			paths = append(paths, dst)
			total += f.GeometryCount
			log.Debugf("exported asset %s to %s", f.AssetID, dst)
		}

		return diagnostics.Succeed(log,
			diagnostics.F("paths", paths),
			diagnostics.F("stepFilePaths", paths),
			diagnostics.F("geometryCount", total),
		), nil
	})
}

func (n *Nodes) exportDir(outDir string) string {
	if d := strings.TrimSpace(outDir); d != "" {
		return util.ExpandPath(d, "")
	}
	if n.Config.ExportDir != "" {
		return n.Config.ExportDir
	}
	return util.DefaultExportDir()
}

// numbered inserts _N before the extension for every file after the first.
func numbered(name string, index int) string {
	if index == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), index+1, ext)
}

func copyFile(src, dst string) error {
	// #nosec G304 - src is a geometry blob reported by the client
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open geometry %q: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 - dst is inside the export directory
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %q: %w", dst, err)
	}
	return out.Close()
}
