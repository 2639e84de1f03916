package localdx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/klauern/dxnodes/internal/fulfillment"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
)

var _ fulfillment.Client = (*Store)(nil)

// pendingFulfillment tracks one open fulfillment. Guarded by Store.mu.
type pendingFulfillment struct {
	id          string
	exchange    model.Identifier
	model       *Model
	description string
	uploaded    map[string]string
	acked       map[string]bool
	processed   bool
	finished    bool
	polls       int
}

func (s *Store) fulfillment(fid string) (*pendingFulfillment, error) {
	p, ok := s.pending[fid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFulfillment, fid)
	}
	return p, nil
}

func (s *Store) stagingPath(p *pendingFulfillment) (string, error) {
	dir, err := s.exchangeDir(p.exchange)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, stagingDir, p.id), nil
}

// StartFulfillment opens a fulfillment bound to the open model of id.
func (s *Store) StartFulfillment(ctx context.Context, id model.Identifier, req fulfillment.StartRequest) (string, error) {
	m, err := s.DataModel(ctx, id)
	if err != nil {
		return "", err
	}
	fid := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[fid] = &pendingFulfillment{
		id:          fid,
		exchange:    id,
		model:       m,
		description: req.Description,
		uploaded:    make(map[string]string),
		acked:       make(map[string]bool),
	}
	logging.Debug("fulfillment started",
		logging.Fulfillment(fid),
		logging.Exchange(id.String()),
		"execution_order", req.ExecutionOrder,
	)
	return fid, nil
}

// AssetInfoBatches returns one info per staged geometry asset, sorted by id.
func (s *Store) AssetInfoBatches(_ context.Context, fid string) ([][]*fulfillment.AssetInfo, error) {
	s.mu.Lock()
	p, err := s.fulfillment(fid)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	assets := p.model.pendingAssets()
	ids := make([]string, 0, len(assets))
	for id := range assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]*fulfillment.AssetInfo, 0, len(ids))
	for _, id := range ids {
		infos = append(infos, &fulfillment.AssetInfo{ID: id, Name: assets[id]})
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return [][]*fulfillment.AssetInfo{infos}, nil
}

// UploadGeometries copies each info's output file into the fulfillment's
// staging area. With ConsumeUploads the local file is deleted afterwards.
func (s *Store) UploadGeometries(_ context.Context, fid string, infos []*fulfillment.AssetInfo) error {
	s.mu.Lock()
	p, err := s.fulfillment(fid)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	staging, err := s.stagingPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(staging, 0o750); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	for _, info := range infos {
		if info.OutputPath == "" {
			continue
		}
		dst := filepath.Join(staging, info.ID+model.ExportExtension)
		if err := copyBlob(info.OutputPath, dst); err != nil {
			return err
		}
		s.mu.Lock()
		p.uploaded[info.ID] = dst
		s.mu.Unlock()

		if s.opts.ConsumeUploads {
			if err := os.Remove(info.OutputPath); err != nil {
				logging.Warn("failed to consume uploaded file", logging.Path(info.OutputPath), logging.Err(err))
			}
		}
		logging.Debug("geometry uploaded", logging.Asset(info.ID), logging.Path(info.OutputPath))
	}
	return nil
}

// SyncRequest returns the staged changes of the fulfillment's model.
func (s *Store) SyncRequest(_ context.Context, fid, schema string) (*fulfillment.SyncRequest, error) {
	s.mu.Lock()
	p, err := s.fulfillment(fid)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fulfillment.SyncRequest{Schema: schema, Items: p.model.Changes()}, nil
}

// SendSyncBatch acknowledges the items of a batch.
func (s *Store) SendSyncBatch(_ context.Context, fid string, batch fulfillment.SyncBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.fulfillment(fid)
	if err != nil {
		return err
	}
	for _, item := range batch.Items {
		p.acked[item.ID+"/"+item.Operation] = true
	}
	return nil
}

// ProcessGeometries checks that every staged geometry asset was uploaded.
func (s *Store) ProcessGeometries(_ context.Context, fid string) error {
	s.mu.Lock()
	p, err := s.fulfillment(fid)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	var missing []error
	assets := p.model.pendingAssets()
	s.mu.Lock()
	for id, name := range assets {
		if _, ok := p.uploaded[id]; !ok {
			missing = append(missing, fmt.Errorf("geometry asset %s (%s) has no uploaded file", id, name))
		}
	}
	if len(missing) == 0 {
		p.processed = true
	}
	s.mu.Unlock()
	return errors.Join(missing...)
}

// FinishFulfillment commits the staged edits and uploaded blobs, appending
// a revision to the manifest.
func (s *Store) FinishFulfillment(_ context.Context, fid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.fulfillment(fid)
	if err != nil {
		return err
	}
	if p.finished {
		return nil
	}
	if !p.processed {
		return fmt.Errorf("fulfillment %s: geometries were not processed", fid)
	}
	for _, item := range p.model.Changes() {
		if !p.acked[item.ID+"/"+item.Operation] {
			return fmt.Errorf("fulfillment %s: change %s %s was never synced", fid, item.Operation, item.ID)
		}
	}

	dir, err := s.exchangeDir(p.exchange)
	if err != nil {
		return err
	}
	manifest := p.model.Manifest()

	for assetID, staged := range p.uploaded {
		rel := path.Join(geometryDir, assetID+model.ExportExtension)
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return fmt.Errorf("failed to create geometry directory: %w", err)
		}
		if err := os.Rename(staged, dst); err != nil {
			return fmt.Errorf("failed to commit geometry %s: %w", assetID, err)
		}
		if rec, ok := manifest.asset(assetID); ok {
			rec.File = rel
		}
	}
	s.pruneBlobs(dir, manifest)

	manifest.Revisions = append(manifest.Revisions, Revision{
		ID:            uuid.NewString(),
		FulfillmentID: fid,
		Description:   p.description,
		CreatedAt:     time.Now().UTC(),
	})
	if err := writeManifest(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}
	_ = os.RemoveAll(filepath.Join(dir, stagingDir, fid))

	p.finished = true
	delete(s.open, p.exchange.String())
	logging.Info("fulfillment committed",
		logging.Fulfillment(fid),
		logging.Exchange(p.exchange.String()),
		logging.Count(len(p.uploaded)),
	)
	return nil
}

// pruneBlobs deletes committed blobs whose asset no longer exists.
func (s *Store) pruneBlobs(dir string, m *Manifest) {
	entries, err := os.ReadDir(filepath.Join(dir, geometryDir))
	if err != nil {
		return
	}
	keep := make(map[string]bool, len(m.Assets))
	for _, a := range m.Assets {
		if a.File != "" {
			keep[path.Base(a.File)] = true
		}
	}
	for _, e := range entries {
		if !keep[e.Name()] {
			_ = os.Remove(filepath.Join(dir, geometryDir, e.Name()))
		}
	}
}

// FulfillmentStatus reports Processing until finish plus SettleAfter
// checks, then Completed.
func (s *Store) FulfillmentStatus(_ context.Context, fid string) (fulfillment.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.fulfillment(fid)
	if err != nil {
		return "", err
	}
	if !p.finished {
		return fulfillment.StatusProcessing, nil
	}
	p.polls++
	if p.polls <= s.opts.SettleAfter {
		return fulfillment.StatusProcessing, nil
	}
	return fulfillment.StatusCompleted, nil
}

// DiscardFulfillment drops staged blobs and edits.
func (s *Store) DiscardFulfillment(_ context.Context, fid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.fulfillment(fid)
	if err != nil {
		return err
	}
	if staging, err := s.stagingPath(p); err == nil {
		_ = os.RemoveAll(staging)
	}
	if !p.finished {
		delete(s.open, p.exchange.String())
	}
	delete(s.pending, fid)
	logging.Info("fulfillment discarded", logging.Fulfillment(fid))
	return nil
}

// RegenerateViewables stamps the manifest with the regeneration time.
func (s *Store) RegenerateViewables(_ context.Context, id model.Identifier) error {
	mpath, err := s.manifestPath(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := readManifest(mpath)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	m.ViewablesAt = &now
	return writeManifest(mpath, m)
}

// ClearLocalState drops the open model and finished fulfillments of id and
// returns the latest committed revision.
func (s *Store) ClearLocalState(_ context.Context, id model.Identifier) (string, error) {
	m, err := s.Load(id)
	if err != nil {
		return "", err
	}
	s.forget(id)

	s.mu.Lock()
	for fid, p := range s.pending {
		if p.finished && p.exchange == id {
			delete(s.pending, fid)
		}
	}
	s.mu.Unlock()
	return m.LatestRevision(), nil
}

func copyBlob(src, dst string) error {
	// #nosec G304 - src is a caller-registered geometry file
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 - dst is inside the store's staging directory
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %q: %w", src, err)
	}
	return out.Close()
}
