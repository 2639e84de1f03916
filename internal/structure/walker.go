// Package structure builds a deduplicated tree of an exchange's assets and
// elements from an element-data model.
//
// The walk never mutates the source and never fails as a whole: problems
// with a single asset or element are recorded in the diagnostics log and
// that node is skipped.
package structure

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/klauern/dxnodes/internal/diagnostics"
)

// DefaultRootID is the id of the synthetic root when none is given.
const DefaultRootID = "exchange"

// geometryTypeHints mark kernel type names that always carry geometry.
var geometryTypeHints = []string{"Geometry", "BRep", "Mesh", "Solid"}

// Options configures a walk.
type Options struct {
	// RootID is the id of the synthetic root node.
	RootID string
	// RootName is the display name of the synthetic root node.
	RootName string
}

type walker struct {
	tree *Tree
	log  *diagnostics.Log
}

// Walk builds the exchange tree of model. A nil model or a model without a
// root asset yields an empty tree. log may be nil.
func Walk(model DataModel, opts Options, log *diagnostics.Log) *Tree {
	if log == nil {
		log = diagnostics.NewDefault()
	}
	w := &walker{tree: NewTree(), log: log}

	if isNil(model) {
		log.Infof("no element-data model; exchange is empty")
		return w.tree
	}

	var root Asset
	if err := guard(func() error {
		root = model.RootAsset()
		return nil
	}); err != nil {
		log.Errorf("failed to read root asset: %v", err)
		return w.tree
	}
	if isNil(root) {
		log.Infof("exchange has no root asset; tree is empty")
		return w.tree
	}

	var elements []Element
	elemErr := guard(func() error {
		var err error
		elements, err = model.Elements()
		return err
	})
	if errors.Is(elemErr, ErrNoElementEnumeration) {
		log.Errorf("element-data model cannot enumerate elements; returning empty tree")
		return w.tree
	}

	rootID := opts.RootID
	if rootID == "" {
		rootID = DefaultRootID
	}
	rootName := opts.RootName
	if rootName == "" {
		rootName = rootID
	}
	w.tree.RootID = rootID
	w.tree.add(&Node{
		ID:        rootID,
		Name:      rootName,
		AssetType: TypeExchange,
		Depth:     0,
	})

	w.visitAsset(root, rootID, 1)

	if elemErr != nil {
		log.Errorf("failed to enumerate elements: %v", elemErr)
	} else {
		for _, e := range elements {
			w.visitElement(e, rootID)
		}
	}

	w.tree.countGeometry()
	log.Debugf("walked %d nodes, %d elements, %d with geometry",
		w.tree.Len(), w.tree.ElementCount, w.tree.GeometryCount)
	return w.tree
}

func (w *walker) visitAsset(a Asset, parentID string, depth int) {
	var node *Node
	err := guard(func() error {
		id := a.ID()
		if id == "" {
			return errors.New("asset has no id")
		}
		if w.tree.Has(id) {
			return nil
		}
		typeName := a.TypeName()
		node = &Node{
			ID:          id,
			Name:        resolveName(a, typeName, id),
			ParentID:    parentID,
			AssetType:   assetType(typeName),
			HasGeometry: hasGeometry(a, typeName),
			Depth:       depth,
			Properties:  map[string]string{PropTypeName: typeName},
		}
		return nil
	})
	if err != nil {
		w.log.Errorf("skipping asset under %s: %v", parentID, err)
		return
	}
	if node == nil {
		// already registered: reached through a second parent or a cycle
		w.log.Debugf("asset %s already in tree, reusing existing node", safeID(a))
		return
	}
	w.tree.add(node)

	var children []Asset
	if err := guard(func() error {
		var cerr error
		children, cerr = a.Children()
		return cerr
	}); err != nil {
		w.log.Errorf("failed to read children of asset %s: %v", node.ID, err)
		return
	}
	for _, c := range children {
		if isNil(c) {
			continue
		}
		w.visitAsset(c, node.ID, depth+1)
	}
}

func (w *walker) visitElement(e Element, rootID string) {
	if isNil(e) {
		return
	}
	var (
		node      *Node
		duplicate string
	)
	err := guard(func() error {
		id := e.ID()
		if id == "" {
			return errors.New("element has no id")
		}
		if w.tree.Has(id) {
			duplicate = id
			return nil
		}

		typeName := TypeElement
		if tn, ok := e.(TypeNamer); ok && tn.TypeName() != "" {
			typeName = tn.TypeName()
		}
		node = &Node{
			ID:         id,
			Name:       resolveName(e, typeName, id),
			ParentID:   rootID,
			AssetType:  TypeElement,
			Depth:      1,
			Properties: map[string]string{},
		}
		if gb, ok := e.(GeometryBearer); ok && gb.HasGeometry() {
			node.HasGeometry = true
		}

		asset := e.Asset()
		if isNil(asset) {
			return nil
		}
		assetID := asset.ID()
		node.Properties[PropAssetID] = assetID
		if existing, ok := w.tree.Node(assetID); ok {
			node.HasGeometry = node.HasGeometry || existing.HasGeometry
		} else {
			node.HasGeometry = node.HasGeometry || hasGeometry(asset, asset.TypeName())
		}
		return nil
	})
	if err != nil {
		w.log.Errorf("skipping element: %v", err)
		return
	}
	if duplicate != "" {
		w.log.Warnf("element %s shares an id with an existing node, skipping", duplicate)
		return
	}
	w.tree.add(node)
	w.tree.ElementCount++
}

// resolveName prefers the object-info name, then the direct name, then the
// type name, then the id.
func resolveName(src any, typeName, id string) string {
	if n, ok := src.(ObjectInfoNamer); ok {
		if name := strings.TrimSpace(n.ObjectInfoName()); name != "" {
			return name
		}
	}
	if n, ok := src.(Namer); ok {
		if name := strings.TrimSpace(n.Name()); name != "" {
			return name
		}
	}
	if typeName != "" {
		return typeName
	}
	return id
}

func hasGeometry(a Asset, typeName string) bool {
	if gb, ok := a.(GeometryBearer); ok && gb.HasGeometry() {
		return true
	}
	return isGeometryType(typeName)
}

func isGeometryType(typeName string) bool {
	for _, hint := range geometryTypeHints {
		if strings.Contains(typeName, hint) {
			return true
		}
	}
	return false
}

func assetType(typeName string) string {
	if typeName == "" {
		return "Asset"
	}
	return typeName
}

func safeID(a Asset) string {
	id := "?"
	_ = guard(func() error {
		id = a.ID()
		return nil
	})
	return id
}

// isNil reports whether v is nil or a typed nil behind an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// guard runs fn and converts a panic raised by a collaborator into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
