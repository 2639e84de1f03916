package structure

import "strings"

// Node types assigned by the walker.
const (
	TypeExchange      = "Exchange"
	TypeElement       = "Element"
	TypeGeometryAsset = "GeometryAsset"
)

// Property keys set by the walker.
const (
	// PropAssetID is the backreference from an element to its asset.
	PropAssetID = "assetId"
	// PropTypeName records the structural type name of an asset.
	PropTypeName = "typeName"
)

// Node is one entry of an exchange tree. Children are referenced by id;
// the tree's node map is their only owner.
type Node struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	ParentID    string            `json:"parentId" yaml:"parentId"`
	AssetType   string            `json:"assetType" yaml:"assetType"`
	HasGeometry bool              `json:"hasGeometry" yaml:"hasGeometry"`
	Depth       int               `json:"depth" yaml:"depth"`
	ChildIDs    []string          `json:"childIds" yaml:"childIds"`
	Properties  map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// IsRoot reports whether the node is the synthetic root.
func (n *Node) IsRoot() bool {
	return n.ParentID == ""
}

// Tree is a deduplicated, read-only view of an exchange's asset and element
// hierarchy. An empty tree has no nodes and an empty RootID.
type Tree struct {
	Nodes         map[string]*Node `json:"nodes" yaml:"nodes"`
	RootID        string           `json:"rootId" yaml:"rootId"`
	ElementCount  int              `json:"elementCount" yaml:"elementCount"`
	GeometryCount int              `json:"geometryCount" yaml:"geometryCount"`
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{Nodes: make(map[string]*Node)}
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.Nodes)
}

// IsEmpty reports whether the tree has no nodes.
func (t *Tree) IsEmpty() bool {
	return len(t.Nodes) == 0
}

// Has reports whether id is registered.
func (t *Tree) Has(id string) bool {
	_, ok := t.Nodes[id]
	return ok
}

// Node returns the node with id.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.Nodes[id]
	return n, ok
}

// Root returns the synthetic root, or nil for an empty tree.
func (t *Tree) Root() *Node {
	return t.Nodes[t.RootID]
}

// Children returns the child nodes of id in order.
func (t *Tree) Children(id string) []*Node {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.ChildIDs))
	for _, cid := range n.ChildIDs {
		if c, ok := t.Nodes[cid]; ok {
			out = append(out, c)
		}
	}
	return out
}

// add registers n and links it under its parent.
func (t *Tree) add(n *Node) {
	t.Nodes[n.ID] = n
	if n.ParentID == "" {
		return
	}
	if p, ok := t.Nodes[n.ParentID]; ok {
		p.ChildIDs = append(p.ChildIDs, n.ID)
	}
}

// countGeometry recomputes GeometryCount from the node map.
func (t *Tree) countGeometry() {
	count := 0
	for _, n := range t.Nodes {
		if n.HasGeometry {
			count++
		}
	}
	t.GeometryCount = count
}

// Walk visits nodes depth-first from the root in child order. Returning
// false from fn stops descent below that node. Each node is visited once.
func (t *Tree) Walk(fn func(n *Node) bool) {
	root := t.Root()
	if root == nil {
		return
	}
	seen := make(map[string]bool, len(t.Nodes))
	var visit func(n *Node)
	visit = func(n *Node) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		if !fn(n) {
			return
		}
		for _, c := range t.Children(n.ID) {
			visit(c)
		}
	}
	visit(root)
}

// Ordered returns nodes in depth-first order.
func (t *Tree) Ordered() []*Node {
	out := make([]*Node, 0, len(t.Nodes))
	t.Walk(func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// DisplayList renders the tree depth-first, one line per node, indented
// two spaces per depth level. Geometry nodes carry a trailing " *".
func (t *Tree) DisplayList() []string {
	lines := make([]string, 0, len(t.Nodes))
	t.Walk(func(n *Node) bool {
		lines = append(lines, DisplayLine(n))
		return true
	})
	return lines
}

// DisplayLine renders a single node as it appears in DisplayList.
func DisplayLine(n *Node) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", n.Depth))
	b.WriteString(n.Name)
	b.WriteString(" [")
	b.WriteString(n.AssetType)
	b.WriteString("]")
	if n.HasGeometry {
		b.WriteString(" *")
	}
	return b.String()
}
