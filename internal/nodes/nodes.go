// Package nodes exposes the exchange operations as self-contained calls
// that always answer with a diagnostics envelope. No operation returns an
// error or panics across this boundary.
package nodes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/fulfillment"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/structure"
)

// ErrClientNotInitialized is reported when an operation needs a
// collaborator and none was configured.
var ErrClientNotInitialized = errors.New("exchange client is not initialized")

// EditableModel is an element-data model that accepts staged edits.
type EditableModel interface {
	structure.DataModel
	// AddGeometryElement stages an element and returns its geometry asset id.
	AddGeometryElement(name string, geometryCount int) string
	RemoveElements(names model.NameSet) int
	RemoveAll() int
}

// Client is the exchange collaborator the operations drive.
type Client interface {
	fulfillment.Client
	ElementDataModel(ctx context.Context, id model.Identifier) (EditableModel, error)
	// RefreshExchange reloads the container state while keeping staged edits.
	RefreshExchange(ctx context.Context, id model.Identifier) error
	GeometryFiles(ctx context.Context, id model.Identifier) ([]model.GeometryFile, error)
}

// Config holds the settings the operations read.
type Config struct {
	// DiagnosticsLevel is the most verbose level kept in envelopes.
	DiagnosticsLevel diagnostics.Level
	Fulfillment      fulfillment.Options
	// ExportDir is the default download directory.
	ExportDir string
	// ExportExtension is ".stp" or ".step".
	ExportExtension string
	// Logger receives every diagnostic. Nil uses the logger carried by the
	// operation's context.
	Logger *slog.Logger
}

// DefaultConfig returns the operation defaults.
func DefaultConfig() Config {
	return Config{
		DiagnosticsLevel: diagnostics.DefaultLevel,
		Fulfillment:      fulfillment.DefaultOptions(),
		ExportExtension:  model.ExportExtension,
	}
}

// Nodes runs operations against one client.
type Nodes struct {
	Client Client
	Config Config
}

// New creates Nodes with the given client and config.
func New(client Client, cfg Config) *Nodes {
	return &Nodes{Client: client, Config: cfg}
}

// newLog returns the diagnostics log of one operation. Entries are mirrored
// to the configured logger, or else to the logger carried by ctx.
func (n *Nodes) newLog(ctx context.Context, operation string) *diagnostics.Log {
	log := diagnostics.New(n.Config.DiagnosticsLevel)
	logger := n.Config.Logger
	if logger == nil {
		logger = logging.WithContext(ctx)
	}
	return log.WithLogger(logger.With(logging.Operation(operation)))
}

// client returns the collaborator or ErrClientNotInitialized.
func (n *Nodes) client() (Client, error) {
	if n == nil || n.Client == nil {
		return nil, ErrClientNotInitialized
	}
	return n.Client, nil
}

// target validates the exchange identifier and returns the client.
func (n *Nodes) target(e model.Exchange) (Client, model.Identifier, error) {
	id := e.Identifier()
	if err := id.Validate(); err != nil {
		return nil, id, err
	}
	c, err := n.client()
	if err != nil {
		return nil, id, err
	}
	return c, id, nil
}
