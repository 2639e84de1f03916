package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/klauern/dxnodes/internal/backup"
	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
)

// Defaults for Options.
const (
	DefaultExecutionOrder = "InsertFirst"
	DefaultSchema         = "exchange.geometry"
	DefaultBatchSize      = 100
	DefaultPollAttempts   = 60
	DefaultPollInterval   = 2 * time.Second
)

var (
	// ErrMissingAssetFile is returned when a mapped local file is absent at upload time.
	ErrMissingAssetFile = errors.New("asset file does not exist")
	// ErrFulfillmentFailed is returned when the collaborator reports a failed fulfillment.
	ErrFulfillmentFailed = errors.New("fulfillment reported failed")
	// ErrNoFulfillmentID is returned when start succeeds without assigning an id.
	ErrNoFulfillmentID = errors.New("collaborator returned an empty fulfillment id")
)

// Pipeline step names reported by PipelineError.
const (
	StepStart    = "start"
	StepPrepare  = "prepare assets"
	StepUpload   = "upload geometries"
	StepSync     = "send sync requests"
	StepAwait    = "await tasks"
	StepFinish   = "finish"
	StepPoll     = "poll status"
	StepClear    = "clear local state"
	StepValidate = "validate"
)

// PipelineError reports the step at which a fulfillment failed.
type PipelineError struct {
	Step          string
	FulfillmentID string
	Err           error
}

func (e *PipelineError) Error() string {
	if e.FulfillmentID == "" {
		return fmt.Sprintf("fulfillment %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("fulfillment %s failed at %s: %v", e.FulfillmentID, e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ProgressEvent is emitted on every state transition.
type ProgressEvent struct {
	State         State
	Step          int
	Total         int
	FulfillmentID string
}

// totalSteps counts forward transitions from Idle to Finished.
const totalSteps = int(Finished)

// Options configures a Coordinator.
type Options struct {
	ExecutionOrder string
	Description    string
	Schema         string
	// BatchSize bounds the items per sync batch.
	BatchSize int
	// MaxConcurrency bounds in-flight sync tasks. Zero means unbounded.
	MaxConcurrency int
	PollAttempts   int
	PollInterval   time.Duration
	// LengthUnit is attached to prepared assets that carry none.
	LengthUnit model.Unit
	Backup     backup.Options
	Progress   func(ProgressEvent)
}

// DefaultOptions returns the coordinator defaults.
func DefaultOptions() Options {
	return Options{
		ExecutionOrder: DefaultExecutionOrder,
		Schema:         DefaultSchema,
		BatchSize:      DefaultBatchSize,
		PollAttempts:   DefaultPollAttempts,
		PollInterval:   DefaultPollInterval,
		LengthUnit:     model.DefaultUnit,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ExecutionOrder == "" {
		o.ExecutionOrder = d.ExecutionOrder
	}
	if o.Schema == "" {
		o.Schema = d.Schema
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.PollAttempts <= 0 {
		o.PollAttempts = d.PollAttempts
	}
	if o.PollInterval < 0 {
		o.PollInterval = 0
	}
	if o.LengthUnit == "" {
		o.LengthUnit = d.LengthUnit
	}
	return o
}

// Outcome summarizes a completed run.
type Outcome struct {
	FulfillmentID string       `json:"fulfillmentId" yaml:"fulfillmentId"`
	RevisionID    string       `json:"revisionId" yaml:"revisionId"`
	State         State        `json:"state" yaml:"state"`
	History       []Transition `json:"history" yaml:"history"`
	PollTimedOut  bool         `json:"pollTimedOut" yaml:"pollTimedOut"`
	Batches       int          `json:"batches" yaml:"batches"`
	Assets        int          `json:"assets" yaml:"assets"`
}

// Coordinator runs fulfillment sessions against a client.
type Coordinator struct {
	client Client
	opts   Options
	log    *diagnostics.Log
}

// NewCoordinator creates a coordinator. log may be nil.
func NewCoordinator(client Client, opts Options, log *diagnostics.Log) *Coordinator {
	if log == nil {
		log = diagnostics.NewDefault()
	}
	return &Coordinator{client: client, opts: opts.withDefaults(), log: log}
}

// run carries the values passed between steps of one Run.
type run struct {
	session *Session
	infos   []*AssetInfo
	outcome *Outcome
	logger  *slog.Logger
}

// Run drives the session from Idle to Finished. On any failure after the
// fulfillment was started it discards the fulfillment and returns a
// *PipelineError. The returned outcome is non-nil whenever a fulfillment id
// was assigned.
func (c *Coordinator) Run(ctx context.Context, s *Session) (*Outcome, error) {
	if err := s.Identifier().Validate(); err != nil {
		return nil, &PipelineError{Step: StepValidate, Err: err}
	}
	if s.State() != Idle {
		return nil, &PipelineError{
			Step: StepValidate,
			Err:  fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State()),
		}
	}
	stop := logging.Timer("fulfillment")
	defer stop()

	fid, err := c.client.StartFulfillment(ctx, s.Identifier(), StartRequest{
		ExecutionOrder: c.opts.ExecutionOrder,
		Description:    c.opts.Description,
	})
	if err == nil && fid == "" {
		err = ErrNoFulfillmentID
	}
	if err != nil {
		return nil, &PipelineError{Step: StepStart, Err: err}
	}
	s.fulfillmentID = fid
	r := &run{
		session: s,
		outcome: &Outcome{FulfillmentID: fid},
		logger: logging.WithContext(ctx).With(
			logging.Exchange(s.Identifier().String()),
			logging.Fulfillment(fid),
		),
	}
	c.log.Infof("started fulfillment %s for %s", fid, s.Identifier())

	if err := c.advance(r, Started); err != nil {
		return c.abort(ctx, r, StepStart, err)
	}

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
		next State
	}{
		{StepPrepare, c.prepare, AssetsPrepared},
		{StepUpload, c.upload, Uploaded},
		{StepSync, c.dispatch, AllTasksAwaited},
		{StepFinish, c.finish, Finished},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, r, step.name, err)
		}
		if err := step.fn(ctx, r); err != nil {
			var pe *PipelineError
			if errors.As(err, &pe) {
				return c.abort(ctx, r, pe.Step, pe.Err)
			}
			return c.abort(ctx, r, step.name, err)
		}
		if err := c.advance(r, step.next); err != nil {
			return c.abort(ctx, r, step.name, err)
		}
	}

	c.complete(r)
	c.log.Infof("fulfillment %s finished, revision %s", fid, r.outcome.RevisionID)
	return r.outcome, nil
}

// prepare matches asset infos against the session's file mapping.
func (c *Coordinator) prepare(ctx context.Context, r *run) error {
	fid := r.session.FulfillmentID()
	batches, err := c.client.AssetInfoBatches(ctx, fid)
	if err != nil {
		return err
	}
	unit := c.opts.LengthUnit.String()
	for _, batch := range batches {
		for _, info := range batch {
			if info == nil {
				continue
			}
			r.infos = append(r.infos, info)
			path, ok := r.session.AssetFile(info.ID)
			if !ok {
				c.log.Debugf("asset %s has no local file mapping, leaving it untouched", info.ID)
				continue
			}
			info.OutputPath = path
			if info.Metadata == nil {
				info.Metadata = make(map[string]string)
			}
			if _, ok := info.Metadata[MetaBodyCount]; !ok {
				info.Metadata[MetaBodyCount] = strconv.Itoa(r.session.GeometryCount(info.ID))
			}
			if _, ok := info.Metadata[MetaLengthUnit]; !ok {
				info.Metadata[MetaLengthUnit] = unit
			}
			r.outcome.Assets++
		}
	}
	c.log.Debugf("prepared %d asset infos, %d mapped", len(r.infos), r.outcome.Assets)
	return nil
}

// upload sends the asset infos while the mapped files are held by a
// backup guard. The collaborator may delete what it uploads; the guard puts
// the files back either way.
func (c *Coordinator) upload(ctx context.Context, r *run) error {
	var paths []string
	for _, info := range r.infos {
		if _, ok := r.session.AssetFile(info.ID); !ok {
			continue
		}
		if _, err := os.Stat(info.OutputPath); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingAssetFile, info.OutputPath)
		}
		paths = append(paths, info.OutputPath)
	}

	fid := r.session.FulfillmentID()
	return backup.Protect(paths, c.opts.Backup, func() error {
		r.logger.Debug("uploading geometries", logging.Count(len(r.infos)))
		return c.client.UploadGeometries(ctx, fid, r.infos)
	})
}

// dispatch sends every sync batch and the geometry processing task
// concurrently and waits for all of them.
func (c *Coordinator) dispatch(ctx context.Context, r *run) error {
	fid := r.session.FulfillmentID()
	req, err := c.client.SyncRequest(ctx, fid, c.opts.Schema)
	if err != nil {
		return err
	}
	if req == nil {
		req = &SyncRequest{Schema: c.opts.Schema}
	}
	batches := req.Batches(c.opts.BatchSize)
	r.outcome.Batches = len(batches)

	g, gctx := errgroup.WithContext(ctx)
	if c.opts.MaxConcurrency > 0 {
		g.SetLimit(c.opts.MaxConcurrency)
	}
	for _, batch := range batches {
		g.Go(func() error {
			if err := c.client.SendSyncBatch(gctx, fid, batch); err != nil {
				return fmt.Errorf("sync batch %d: %w", batch.Index, err)
			}
			c.log.Debugf("sync batch %d sent (%d items)", batch.Index, len(batch.Items))
			return nil
		})
	}
	g.Go(func() error {
		if err := c.client.ProcessGeometries(gctx, fid); err != nil {
			return fmt.Errorf("process geometries: %w", err)
		}
		return nil
	})

	if err := c.advance(r, SyncRequestsSent); err != nil {
		_ = g.Wait()
		return err
	}
	if err := g.Wait(); err != nil {
		return &PipelineError{Step: StepAwait, Err: err}
	}
	return nil
}

// finish commits the fulfillment, waits for the collaborator to settle it
// and runs the post-commit calls.
func (c *Coordinator) finish(ctx context.Context, r *run) error {
	fid := r.session.FulfillmentID()
	if err := c.client.FinishFulfillment(ctx, fid); err != nil {
		return err
	}
	if err := c.poll(ctx, r); err != nil {
		return &PipelineError{Step: StepPoll, Err: err}
	}

	id := r.session.Identifier()
	if err := c.client.RegenerateViewables(ctx, id); err != nil {
		c.log.Warnf("viewable regeneration failed for %s: %v", id, err)
	}
	revision, err := c.client.ClearLocalState(ctx, id)
	if err != nil {
		return &PipelineError{Step: StepClear, Err: err}
	}
	r.outcome.RevisionID = revision
	return nil
}

// poll waits for a terminal status. Running out of attempts is not an
// error since the commit was already requested.
func (c *Coordinator) poll(ctx context.Context, r *run) error {
	fid := r.session.FulfillmentID()
	limiter := rate.NewLimiter(rate.Every(c.opts.PollInterval), 1)

	for attempt := 1; attempt <= c.opts.PollAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		status, err := c.client.FulfillmentStatus(ctx, fid)
		if err != nil {
			c.log.Warnf("status check %d for fulfillment %s failed: %v", attempt, fid, err)
			continue
		}
		switch status {
		case StatusCompleted:
			c.log.Debugf("fulfillment %s completed after %d status checks", fid, attempt)
			return nil
		case StatusFailed:
			return ErrFulfillmentFailed
		}
	}

	r.outcome.PollTimedOut = true
	c.log.Warnf("fulfillment %s still processing after %d status checks; continuing", fid, c.opts.PollAttempts)
	return nil
}

// abort discards the fulfillment and wraps err. Discard failures are
// logged and dropped so the original error survives.
func (c *Coordinator) abort(ctx context.Context, r *run, step string, err error) (*Outcome, error) {
	s := r.session
	fid := s.FulfillmentID()
	r.logger.Error("fulfillment failed", slog.String("step", step), logging.Err(err))

	if derr := c.client.DiscardFulfillment(context.WithoutCancel(ctx), fid); derr != nil {
		c.log.Warnf("discard of fulfillment %s failed: %v", fid, derr)
	}
	if terr := c.advance(r, Discarded); terr != nil {
		r.logger.Warn("could not mark session discarded", logging.Err(terr))
	}

	c.complete(r)
	return r.outcome, &PipelineError{Step: step, FulfillmentID: fid, Err: err}
}

func (c *Coordinator) complete(r *run) {
	r.outcome.State = r.session.State()
	r.outcome.History = r.session.History()
}

// advance moves the session and reports progress.
func (c *Coordinator) advance(r *run, next State) error {
	s := r.session
	if err := s.transition(next); err != nil {
		return err
	}
	r.logger.Debug("fulfillment state changed", logging.State(next.String()))
	if c.opts.Progress != nil {
		step := int(next)
		if next == Discarded {
			step = totalSteps
		}
		c.opts.Progress(ProgressEvent{
			State:         next,
			Step:          step,
			Total:         totalSteps,
			FulfillmentID: s.FulfillmentID(),
		})
	}
	return nil
}
