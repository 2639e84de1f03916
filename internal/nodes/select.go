package nodes

import (
	"context"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/model"
)

// SelectExchange parses an exchange selection JSON object.
//
// Fields: exchange, identifier.
func (n *Nodes) SelectExchange(data []byte) *diagnostics.Envelope {
	return diagnostics.Guard(n.newLog(context.Background(), "select exchange"), "select exchange", func(log *diagnostics.Log) (*diagnostics.Envelope, error) {
		e, err := model.ParseExchange(data)
		if err != nil {
			return nil, err
		}
		if err := e.Identifier().Validate(); err != nil {
			return nil, err
		}
		log.Infof("selected exchange %s (%s)", e.Identifier(), e.DisplayTitle())
		return diagnostics.Succeed(log,
			diagnostics.F("exchange", e),
			diagnostics.F("identifier", e.Identifier()),
		), nil
	})
}
