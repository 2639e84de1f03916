package localdx

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/klauern/dxnodes/internal/fulfillment"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/structure"
)

// Stored type names.
const (
	TypeTopLevelAssembly = "TopLevelAssembly"
	TypeGeometryAsset    = "GeometryAsset"
	TypeGeometryElement  = "GeometryElement"
)

// Sync operations produced by staged edits.
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// Model is the element-data model of one exchange. Reads see staged edits;
// the edits reach disk only when a fulfillment commits them.
type Model struct {
	mu      sync.RWMutex
	id      model.Identifier
	work    *Manifest
	changes []fulfillment.SyncItem
	// pending maps staged geometry asset ids to their element name.
	pending map[string]string
}

func newModel(id model.Identifier, m *Manifest) *Model {
	return &Model{id: id, work: m.clone(), pending: make(map[string]string)}
}

// Identifier returns the exchange the model belongs to.
func (m *Model) Identifier() model.Identifier {
	return m.id
}

// Manifest returns a copy of the working manifest.
func (m *Model) Manifest() *Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.work.clone()
}

// RootAsset implements structure.DataModel.
func (m *Model) RootAsset() structure.Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.work.asset(m.work.RootAssetID)
	if !ok {
		return nil
	}
	return &assetView{model: m, rec: *rec}
}

// Elements implements structure.DataModel.
func (m *Model) Elements() ([]structure.Element, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]structure.Element, 0, len(m.work.Elements))
	for _, e := range m.work.Elements {
		out = append(out, &elementView{model: m, rec: e})
	}
	return out, nil
}

// AddGeometryElement stages a new element backed by a geometry asset and
// returns the asset id the geometry file must be registered under.
func (m *Model) AddGeometryElement(name string, geometryCount int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := m.ensureRoot()
	assetID := uuid.NewString()
	elementID := uuid.NewString()

	m.work.Assets = append(m.work.Assets, AssetRecord{
		ID:            assetID,
		Name:          name,
		TypeName:      TypeGeometryAsset,
		HasGeometry:   true,
		GeometryCount: geometryCount,
	})
	// ensureRoot may have grown the slice; look the root up again
	if r, ok := m.work.asset(root); ok {
		r.ChildIDs = append(r.ChildIDs, assetID)
	}
	m.work.Elements = append(m.work.Elements, ElementRecord{
		ID:       elementID,
		Name:     name,
		TypeName: TypeGeometryElement,
		AssetID:  assetID,
	})
	m.pending[assetID] = name
	m.changes = append(m.changes,
		fulfillment.SyncItem{ID: assetID, Operation: OpAdd},
		fulfillment.SyncItem{ID: elementID, Operation: OpAdd},
	)
	return assetID
}

// RemoveElements stages removal of every element whose name is in names
// and returns how many were removed.
func (m *Model) RemoveElements(names model.NameSet) int {
	return m.removeWhere(func(e ElementRecord) bool { return names.Contains(e.Name) })
}

// RemoveAll stages removal of every element.
func (m *Model) RemoveAll() int {
	return m.removeWhere(func(ElementRecord) bool { return true })
}

func (m *Model) removeWhere(match func(ElementRecord) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.work.Elements[:0]
	var removed []ElementRecord
	for _, e := range m.work.Elements {
		if match(e) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	m.work.Elements = kept

	for _, e := range removed {
		m.changes = append(m.changes, fulfillment.SyncItem{ID: e.ID, Operation: OpRemove})
		if e.AssetID != "" && !m.referenced(e.AssetID) {
			m.dropGeometryAsset(e.AssetID)
		}
	}
	return len(removed)
}

// referenced reports whether any element still points at assetID.
func (m *Model) referenced(assetID string) bool {
	for _, e := range m.work.Elements {
		if e.AssetID == assetID {
			return true
		}
	}
	return false
}

// dropGeometryAsset removes a geometry asset no element references and
// detaches it from its parents. Structural assets are kept.
func (m *Model) dropGeometryAsset(assetID string) {
	rec, ok := m.work.asset(assetID)
	if !ok || rec.TypeName != TypeGeometryAsset {
		return
	}
	assets := m.work.Assets[:0]
	for _, a := range m.work.Assets {
		if a.ID == assetID {
			continue
		}
		a.ChildIDs = without(a.ChildIDs, assetID)
		assets = append(assets, a)
	}
	m.work.Assets = assets
	delete(m.pending, assetID)
	m.changes = append(m.changes, fulfillment.SyncItem{ID: assetID, Operation: OpRemove})
}

// ensureRoot returns the root asset id, creating a top-level assembly for
// an empty exchange.
func (m *Model) ensureRoot() string {
	if _, ok := m.work.asset(m.work.RootAssetID); ok {
		return m.work.RootAssetID
	}
	id := uuid.NewString()
	m.work.Assets = append(m.work.Assets, AssetRecord{
		ID:       id,
		Name:     m.work.Exchange.DisplayTitle(),
		TypeName: TypeTopLevelAssembly,
	})
	m.work.RootAssetID = id
	m.changes = append(m.changes, fulfillment.SyncItem{ID: id, Operation: OpAdd})
	return id
}

// Changes returns the staged sync items in order.
func (m *Model) Changes() []fulfillment.SyncItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]fulfillment.SyncItem(nil), m.changes...)
}

// HasChanges reports whether any edit is staged.
func (m *Model) HasChanges() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.changes) > 0
}

// pendingAssets returns staged geometry assets as id to name.
func (m *Model) pendingAssets() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.pending))
	for k, v := range m.pending {
		out[k] = v
	}
	return out
}

// refresh replaces the exchange record and revision history from disk while
// keeping staged edits.
func (m *Model) refresh(disk *Manifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.work.Exchange = disk.Exchange
	m.work.Revisions = append([]Revision(nil), disk.Revisions...)
}

func without(ids []string, drop string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

// assetView adapts a stored asset to structure.Asset.
type assetView struct {
	model *Model
	rec   AssetRecord
}

func (a *assetView) ID() string        { return a.rec.ID }
func (a *assetView) TypeName() string  { return a.rec.TypeName }
func (a *assetView) Name() string      { return a.rec.Name }
func (a *assetView) HasGeometry() bool { return a.rec.HasGeometry }

func (a *assetView) Children() ([]structure.Asset, error) {
	a.model.mu.RLock()
	defer a.model.mu.RUnlock()
	out := make([]structure.Asset, 0, len(a.rec.ChildIDs))
	for _, id := range a.rec.ChildIDs {
		rec, ok := a.model.work.asset(id)
		if !ok {
			return out, fmt.Errorf("asset %s references unknown child %s", a.rec.ID, id)
		}
		out = append(out, &assetView{model: a.model, rec: *rec})
	}
	return out, nil
}

// elementView adapts a stored element to structure.Element.
type elementView struct {
	model *Model
	rec   ElementRecord
}

func (e *elementView) ID() string       { return e.rec.ID }
func (e *elementView) Name() string     { return e.rec.Name }
func (e *elementView) TypeName() string { return e.rec.TypeName }

func (e *elementView) Asset() structure.Asset {
	if e.rec.AssetID == "" {
		return nil
	}
	e.model.mu.RLock()
	defer e.model.mu.RUnlock()
	rec, ok := e.model.work.asset(e.rec.AssetID)
	if !ok {
		return nil
	}
	return &assetView{model: e.model, rec: *rec}
}
