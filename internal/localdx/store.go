// Package localdx is a filesystem-backed exchange collaborator. It stores
// each exchange as a JSON manifest plus geometry blobs and implements the
// fulfillment protocol against that layout, so the node operations can run
// end to end without a remote service.
//
// Layout:
//
//	<root>/<collectionId>/<exchangeId>/exchange.json
//	<root>/<collectionId>/<exchangeId>/geometry/<assetId>.stp
package localdx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
)

const (
	geometryDir = "geometry"
	stagingDir  = "staging"
)

var (
	// ErrExchangeNotFound is returned when no manifest exists for an identifier.
	ErrExchangeNotFound = errors.New("exchange not found")
	// ErrExchangeExists is returned by Seed when the exchange is already stored.
	ErrExchangeExists = errors.New("exchange already exists")
	// ErrUnknownFulfillment is returned for fulfillment ids the store did not issue.
	ErrUnknownFulfillment = errors.New("unknown fulfillment")
	// ErrInvalidID is returned for ids that cannot name a directory.
	ErrInvalidID = errors.New("invalid id")
)

// Options configures a Store.
type Options struct {
	// ConsumeUploads deletes local files after UploadGeometries copied them,
	// matching the remote collaborator.
	ConsumeUploads bool
	// SettleAfter is how many status checks after finish report Processing
	// before Completed.
	SettleAfter int
}

// DefaultOptions returns store defaults.
func DefaultOptions() Options {
	return Options{ConsumeUploads: true}
}

// Store is a directory of exchanges. It is safe for concurrent use.
type Store struct {
	root string
	opts Options

	mu      sync.Mutex
	open    map[string]*Model
	pending map[string]*pendingFulfillment
}

// New creates a store rooted at root. The directory is created on first write.
func New(root string, opts Options) *Store {
	return &Store{
		root:    root,
		opts:    opts,
		open:    make(map[string]*Model),
		pending: make(map[string]*pendingFulfillment),
	}
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// exchangeDir returns the directory of id after validating it.
func (s *Store) exchangeDir(id model.Identifier) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	for _, part := range []string{id.CollectionID, id.ExchangeID} {
		if !validPathID(part) {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, part)
		}
	}
	return filepath.Join(s.root, id.CollectionID, id.ExchangeID), nil
}

func validPathID(id string) bool {
	if id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

func (s *Store) manifestPath(id model.Identifier) (string, error) {
	dir, err := s.exchangeDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ManifestFile), nil
}

// Seed stores a new exchange. m may be nil for an empty container. The
// manifest's exchange record is replaced by e.
func (s *Store) Seed(e model.Exchange, m *Manifest) error {
	path, err := s.manifestPath(e.Identifier())
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExchangeExists, e.Identifier())
	}
	if m == nil {
		m = &Manifest{}
	} else {
		m = m.clone()
	}
	m.Exchange = e
	if err := writeManifest(path, m); err != nil {
		return err
	}
	logging.Debug("seeded exchange", logging.Exchange(e.Identifier().String()), logging.Path(path))
	return nil
}

// Load reads the committed manifest of id.
func (s *Store) Load(id model.Identifier) (*Manifest, error) {
	path, err := s.manifestPath(id)
	if err != nil {
		return nil, err
	}
	m, err := readManifest(path)
	if err != nil {
		if errors.Is(err, ErrExchangeNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrExchangeNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

// Exchanges lists every stored exchange record, sorted by collection then
// exchange id.
func (s *Store) Exchanges() ([]model.Exchange, error) {
	collections, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store %q: %w", s.root, err)
	}

	var out []model.Exchange
	for _, c := range collections {
		if !c.IsDir() {
			continue
		}
		exchanges, err := os.ReadDir(filepath.Join(s.root, c.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read collection %q: %w", c.Name(), err)
		}
		for _, x := range exchanges {
			if !x.IsDir() {
				continue
			}
			m, err := readManifest(filepath.Join(s.root, c.Name(), x.Name(), ManifestFile))
			if err != nil {
				logging.Warn("skipping unreadable exchange",
					logging.Path(filepath.Join(c.Name(), x.Name())),
					logging.Err(err),
				)
				continue
			}
			out = append(out, m.Exchange)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CollectionID != out[j].CollectionID {
			return out[i].CollectionID < out[j].CollectionID
		}
		return out[i].ExchangeID < out[j].ExchangeID
	})
	return out, nil
}

// DataModel returns the editable model of id. Repeated calls return the
// same model until its edits are committed, discarded or cleared.
func (s *Store) DataModel(_ context.Context, id model.Identifier) (*Model, error) {
	key := id.String()
	s.mu.Lock()
	if m, ok := s.open[key]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	manifest, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.open[key]; ok {
		return m, nil
	}
	m := newModel(id, manifest)
	s.open[key] = m
	return m, nil
}

// RefreshExchange reloads the exchange record and revision history of an
// open model from disk, keeping its staged edits.
func (s *Store) RefreshExchange(ctx context.Context, id model.Identifier) error {
	disk, err := s.Load(id)
	if err != nil {
		return err
	}
	m, err := s.DataModel(ctx, id)
	if err != nil {
		return err
	}
	m.refresh(disk)
	return nil
}

// GeometryFiles lists the committed geometry blobs of id in asset order.
func (s *Store) GeometryFiles(_ context.Context, id model.Identifier) ([]model.GeometryFile, error) {
	dir, err := s.exchangeDir(id)
	if err != nil {
		return nil, err
	}
	m, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	var out []model.GeometryFile
	for _, a := range m.Assets {
		if a.File == "" {
			continue
		}
		out = append(out, model.GeometryFile{
			AssetID:       a.ID,
			Name:          a.Name,
			Path:          filepath.Join(dir, filepath.FromSlash(a.File)),
			GeometryCount: a.GeometryCount,
		})
	}
	return out, nil
}

// forget drops the open model of id.
func (s *Store) forget(id model.Identifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, id.String())
}
