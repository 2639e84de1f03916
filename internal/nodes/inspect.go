package nodes

import (
	"context"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/structure"
)

// InspectStructure builds the structure tree of an exchange. An empty
// exchange succeeds with an empty tree.
//
// Fields: tree, displayList, elementCount, geometryCount, log.
func (n *Nodes) InspectStructure(ctx context.Context, e model.Exchange) *diagnostics.Envelope {
	return diagnostics.Guard(n.newLog(ctx, "inspect structure"), "inspect structure", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
		client, id, err := n.target(e)
		if err != nil {
			return nil, err
		}
		dm, err := client.ElementDataModel(ctx, id)
		if err != nil {
			return nil, err
		}

		tree := structure.Walk(dm, structure.Options{RootName: e.DisplayTitle()}, log)
		if tree.IsEmpty() {
			log.Infof("exchange %s is empty", id)
		}
		return diagnostics.Succeed(log,
			diagnostics.F("tree", tree),
			diagnostics.F("displayList", tree.DisplayList()),
			diagnostics.F("elementCount", tree.ElementCount),
			diagnostics.F("geometryCount", tree.GeometryCount),
			diagnostics.F("log", log.Lines()),
		), nil
	})
}
