package nodes

import (
	"context"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/model"
)

// UnitScale reports the millimeters per unit of a unit tag. Unrecognized
// or empty tags resolve to the default unit.
//
// Fields: unit, mmPerUnit.
func (n *Nodes) UnitScale(tag string) *diagnostics.Envelope {
	return diagnostics.Guard(n.newLog(context.Background(), "unit scale"), "unit scale", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
		unit := model.Unit(tag)
		if !unit.IsValid() {
			if tag != "" {
				log.Warnf("unrecognized unit %q, using %s", tag, model.DefaultUnit)
			}
			unit = model.DefaultUnit
		}
		return diagnostics.Succeed(log,
			diagnostics.F("unit", unit.String()),
			diagnostics.F("mmPerUnit", model.MillimetersPerUnit(tag)),
		), nil
	})
}
