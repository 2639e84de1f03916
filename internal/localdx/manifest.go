package localdx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauern/dxnodes/internal/model"
)

// ManifestFile is the name of an exchange's manifest inside its directory.
const ManifestFile = "exchange.json"

// AssetRecord is one node of the stored asset graph. Children are listed by
// id and may form cycles.
type AssetRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	TypeName      string   `json:"typeName"`
	ChildIDs      []string `json:"childIds,omitempty"`
	HasGeometry   bool     `json:"hasGeometry,omitempty"`
	GeometryCount int      `json:"geometryCount,omitempty"`
	// File is the geometry blob path relative to the exchange directory.
	File string `json:"file,omitempty"`
}

// ElementRecord is one entry of the flat element list.
type ElementRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	TypeName string `json:"typeName,omitempty"`
	AssetID  string `json:"assetId,omitempty"`
}

// Revision records one committed fulfillment.
type Revision struct {
	ID            string    `json:"id"`
	FulfillmentID string    `json:"fulfillmentId"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Manifest is the stored content of one exchange.
type Manifest struct {
	Exchange    model.Exchange  `json:"exchange"`
	RootAssetID string          `json:"rootAssetId,omitempty"`
	Assets      []AssetRecord   `json:"assets,omitempty"`
	Elements    []ElementRecord `json:"elements,omitempty"`
	Revisions   []Revision      `json:"revisions,omitempty"`
	// ViewablesAt is set whenever viewables were last regenerated.
	ViewablesAt *time.Time `json:"viewablesAt,omitempty"`
}

// LatestRevision returns the id of the newest revision, or "".
func (m *Manifest) LatestRevision() string {
	if len(m.Revisions) == 0 {
		return ""
	}
	return m.Revisions[len(m.Revisions)-1].ID
}

func (m *Manifest) asset(id string) (*AssetRecord, bool) {
	for i := range m.Assets {
		if m.Assets[i].ID == id {
			return &m.Assets[i], true
		}
	}
	return nil, false
}

// clone returns a deep copy so staged edits never touch the loaded manifest.
func (m *Manifest) clone() *Manifest {
	out := *m
	out.Assets = make([]AssetRecord, len(m.Assets))
	for i, a := range m.Assets {
		a.ChildIDs = append([]string(nil), a.ChildIDs...)
		out.Assets[i] = a
	}
	out.Elements = append([]ElementRecord(nil), m.Elements...)
	out.Revisions = append([]Revision(nil), m.Revisions...)
	if m.ViewablesAt != nil {
		t := *m.ViewablesAt
		out.ViewablesAt = &t
	}
	return &out
}

func readManifest(path string) (*Manifest, error) {
	// #nosec G304 - path is built from the store root and validated ids
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrExchangeNotFound
		}
		return nil, fmt.Errorf("failed to read manifest %q: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %q: %w", path, err)
	}
	return &m, nil
}

// writeManifest replaces the manifest atomically.
func writeManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create exchange directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
