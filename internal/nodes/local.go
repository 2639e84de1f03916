package nodes

import (
	"context"

	"github.com/klauern/dxnodes/internal/localdx"
	"github.com/klauern/dxnodes/internal/model"
)

// localClient serves the operations from a filesystem store.
type localClient struct {
	*localdx.Store
}

// NewLocalClient wraps a filesystem store as a Client.
func NewLocalClient(store *localdx.Store) Client {
	return localClient{Store: store}
}

func (c localClient) ElementDataModel(ctx context.Context, id model.Identifier) (EditableModel, error) {
	m, err := c.Store.DataModel(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}
