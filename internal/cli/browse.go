package cli

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/structure"
	"github.com/klauern/dxnodes/internal/ui"
	"github.com/klauern/dxnodes/internal/ui/tui"
)

// treeOf returns the tree field of an inspect envelope.
func treeOf(env *diagnostics.Envelope) (*structure.Tree, bool) {
	v, ok := env.Get("tree")
	if !ok {
		return nil, false
	}
	tree, ok := v.(*structure.Tree)
	return tree, ok
}

// browse opens the structure browser and prints the chosen node.
func browse(cmd *cli.Command, tree *structure.Tree, e model.Exchange) error {
	res, err := tui.RunStructureBrowser(tree, e.DisplayTitle())
	if err != nil {
		return err
	}
	if res.Node == nil {
		return nil
	}
	w := cmd.Root().Writer
	_, _ = fmt.Fprintf(w, "%s %s\n", ui.Bold(res.Node.Name), ui.Dim("["+res.Node.AssetType+"]"))
	_, _ = fmt.Fprintf(w, "  id: %s\n", res.Node.ID)
	if res.Node.ParentID != "" {
		_, _ = fmt.Fprintf(w, "  parent: %s\n", res.Node.ParentID)
	}
	_, _ = fmt.Fprintf(w, "  geometry: %t\n", res.Node.HasGeometry)
	if len(res.Node.Properties) > 0 {
		_, _ = fmt.Fprintf(w, "  properties: %s\n", textValue(res.Node.Properties))
	}
	return nil
}
