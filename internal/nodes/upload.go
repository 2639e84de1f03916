package nodes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/fulfillment"
	"github.com/klauern/dxnodes/internal/model"
)

var (
	// ErrNoFiles is returned when an upload names no geometry files.
	ErrNoFiles = errors.New("no geometry files to upload")
	// ErrMissingFile is returned when a geometry file does not exist.
	ErrMissingFile = errors.New("geometry file does not exist")
)

// UploadRequest describes geometry to add to an exchange.
type UploadRequest struct {
	Paths        []string
	ReplaceMode  string
	ReplaceNames []string
	// Unit is a unit tag or short name; empty uses the configured default.
	Unit string
	// GeometryCounts holds the body count of each path. Missing entries count 1.
	GeometryCounts []int
	Description    string
	// Progress receives fulfillment state changes.
	Progress func(fulfillment.ProgressEvent)
}

// UploadGeometry adds one geometry element per file to the exchange, after
// applying the replace mode, and commits the change through a fulfillment.
//
// Fields: paths, stepFilePaths, geometryCount, fulfillmentId, revisionId,
// removedElements.
func (n *Nodes) UploadGeometry(ctx context.Context, e model.Exchange, req UploadRequest) *diagnostics.Envelope {
	return diagnostics.Guard(n.newLog(ctx, "upload geometry"), "upload geometry", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
		client, id, err := n.target(e)
		if err != nil {
			return nil, err
		}
		paths, counts, err := checkFiles(req.Paths, req.GeometryCounts, log)
		if err != nil {
			return nil, err
		}
		mode, err := model.ParseReplaceMode(req.ReplaceMode)
		if err != nil {
			return nil, err
		}
		opts := n.Config.Fulfillment
		if req.Unit != "" {
			unit, err := model.ParseUnit(req.Unit)
			if err != nil {
				return nil, err
			}
			opts.LengthUnit = unit
		}
		if req.Description != "" {
			opts.Description = req.Description
		}
		if req.Progress != nil {
			opts.Progress = req.Progress
		}

		dm, err := client.ElementDataModel(ctx, id)
		if err != nil {
			return nil, err
		}
		committed := false
		defer func() {
			if committed {
				return
			}
			// drop staged edits so the next operation starts from the committed state
			if _, err := client.ClearLocalState(context.WithoutCancel(ctx), id); err != nil {
				log.Debugf("failed to clear local state of %s: %v", id, err)
			}
		}()

		removed, err := applyReplaceMode(ctx, client, id, dm, mode, req.ReplaceNames, log)
		if err != nil {
			return nil, err
		}

		session := fulfillment.NewSession(id)
		for i, p := range paths {
			count := counts[i]
			assetID := dm.AddGeometryElement(elementName(p), count)
			session.RegisterAsset(assetID, p, count)
			log.Debugf("staged %s as asset %s", p, assetID)
		}

		out, err := fulfillment.NewCoordinator(client, opts, log).Run(ctx, session)
		if err != nil {
			env := diagnostics.Fail(log, err, diagnostics.F("paths", paths))
			if out != nil {
				env.Field("fulfillmentId", out.FulfillmentID)
			}
			return env, nil
		}
		committed = true

		return diagnostics.Succeed(log,
			diagnostics.F("paths", paths),
			diagnostics.F("stepFilePaths", paths),
			diagnostics.F("geometryCount", session.TotalGeometry()),
			diagnostics.F("fulfillmentId", out.FulfillmentID),
			diagnostics.F("revisionId", out.RevisionID),
			diagnostics.F("removedElements", removed),
		), nil
	})
}

// applyReplaceMode stages the removals a mode asks for.
func applyReplaceMode(ctx context.Context, client Client, id model.Identifier, dm EditableModel, mode model.ReplaceMode, names []string, log *diagnostics.Log) (int, error) {
	switch mode {
	case model.ReplaceAll:
		removed := dm.RemoveAll()
		log.Infof("replaceAll: removed %d elements", removed)
		// The container state is refreshed before reuse after a full
		// removal. Whether the collaborator needs this is unverified.
		if err := client.RefreshExchange(ctx, id); err != nil {
			return removed, fmt.Errorf("failed to refresh exchange after removing all elements: %w", err)
		}
		return removed, nil
	case model.ReplaceByName:
		set := model.NewNameSet(names...)
		if len(set) == 0 {
			log.Warnf("replaceByName without names; nothing removed")
			return 0, nil
		}
		removed := dm.RemoveElements(set)
		log.Infof("replaceByName: removed %d elements", removed)
		return removed, nil
	default:
		return 0, nil
	}
}

// checkFiles resolves paths to absolute form and checks they exist. It
// returns the geometry count of each path, 1 when none is given. A path
// named more than once is uploaded once, with its first count.
func checkFiles(paths []string, geometryCounts []int, log *diagnostics.Log) ([]string, []int, error) {
	var (
		out    []string
		counts []int
	)
	seen := make(map[string]bool, len(paths))
	for i, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid path %q: %w", p, err)
		}
		if seen[abs] {
			log.Warnf("%s listed more than once; uploading it once", abs)
			continue
		}
		seen[abs] = true
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingFile, abs)
		}
		if !model.IsStepFile(abs) {
			log.Warnf("%s does not have a STEP extension", abs)
		}
		count := 1
		if i < len(geometryCounts) && geometryCounts[i] > 0 {
			count = geometryCounts[i]
		}
		out = append(out, abs)
		counts = append(counts, count)
	}
	if len(out) == 0 {
		return nil, nil, ErrNoFiles
	}
	return out, counts, nil
}

// elementName derives an element name from a file name.
func elementName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
