// Package fulfillment drives a fulfillment, the collaborator's unit of work
// for committing local changes back to a remote exchange.
//
// The lifecycle is a linear state machine (see State) with a single
// compensating edge: any failure after the collaborator assigned a
// fulfillment id discards that fulfillment before the error is returned.
package fulfillment

import (
	"context"

	"github.com/klauern/dxnodes/internal/model"
)

// Metadata keys synthesized on asset infos during preparation.
const (
	MetaBodyCount  = "BodyCount"
	MetaLengthUnit = "LengthUnit"
)

// Status is the collaborator-reported state of a finished fulfillment.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// StartRequest opens a fulfillment.
type StartRequest struct {
	ExecutionOrder string `json:"executionOrder" yaml:"executionOrder"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
}

// AssetInfo describes one pending geometry asset of a fulfillment.
type AssetInfo struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	OutputPath string            `json:"outputPath,omitempty" yaml:"outputPath,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// SyncItem is one change carried by a sync request.
type SyncItem struct {
	ID        string `json:"id" yaml:"id"`
	Operation string `json:"operation" yaml:"operation"`
}

// SyncRequest is the per-schema set of changes the collaborator expects.
type SyncRequest struct {
	Schema string     `json:"schema" yaml:"schema"`
	Items  []SyncItem `json:"items" yaml:"items"`
}

// SyncBatch is a contiguous slice of a sync request.
type SyncBatch struct {
	Index  int        `json:"index" yaml:"index"`
	Schema string     `json:"schema" yaml:"schema"`
	Items  []SyncItem `json:"items" yaml:"items"`
}

// Batches splits the request into batches of at most size items. A request
// with no items still yields one empty batch so the schema is acknowledged.
func (r *SyncRequest) Batches(size int) []SyncBatch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(r.Items) == 0 {
		return []SyncBatch{{Index: 0, Schema: r.Schema}}
	}
	batches := make([]SyncBatch, 0, (len(r.Items)+size-1)/size)
	for start := 0; start < len(r.Items); start += size {
		end := min(start+size, len(r.Items))
		batches = append(batches, SyncBatch{
			Index:  len(batches),
			Schema: r.Schema,
			Items:  r.Items[start:end],
		})
	}
	return batches
}

// Client is the collaborator surface a fulfillment needs. Implementations
// must be safe for concurrent SendSyncBatch and ProcessGeometries calls.
type Client interface {
	StartFulfillment(ctx context.Context, id model.Identifier, req StartRequest) (string, error)
	AssetInfoBatches(ctx context.Context, fulfillmentID string) ([][]*AssetInfo, error)
	// UploadGeometries may delete the local files it uploads.
	UploadGeometries(ctx context.Context, fulfillmentID string, infos []*AssetInfo) error
	SyncRequest(ctx context.Context, fulfillmentID, schema string) (*SyncRequest, error)
	SendSyncBatch(ctx context.Context, fulfillmentID string, batch SyncBatch) error
	ProcessGeometries(ctx context.Context, fulfillmentID string) error
	FinishFulfillment(ctx context.Context, fulfillmentID string) error
	FulfillmentStatus(ctx context.Context, fulfillmentID string) (Status, error)
	DiscardFulfillment(ctx context.Context, fulfillmentID string) error
	RegenerateViewables(ctx context.Context, id model.Identifier) error
	ClearLocalState(ctx context.Context, id model.Identifier) (revisionID string, err error)
}
