package fulfillment

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/util"
)

var testID = model.Identifier{ExchangeID: "ex-1", CollectionID: "col-1"}

func quietLog() *diagnostics.Log {
	return diagnostics.New(diagnostics.Debug).WithLogger(logging.New(logging.Options{Output: &bytes.Buffer{}}))
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.PollInterval = 0
	opts.PollAttempts = 3
	opts.BatchSize = 2
	return opts
}

// setup writes two asset files, registers them and configures matching infos.
func setup(t *testing.T) (*fakeClient, *Session, []string) {
	t.Helper()
	dir := util.CreateTempDir(t)
	a := filepath.Join(dir, "a.stp")
	b := filepath.Join(dir, "b.stp")
	util.WriteFile(t, a, "geometry a")
	util.WriteFile(t, b, "geometry b")

	s := NewSession(testID)
	s.RegisterAsset("asset-a", a, 2)
	s.RegisterAsset("asset-b", b, 5)

	client := newFakeClient()
	client.consume = true
	client.infos = [][]*AssetInfo{
		{{ID: "asset-a"}, {ID: "asset-b", Metadata: map[string]string{MetaLengthUnit: "kUnitType_Meter"}}},
		{{ID: "unmapped", OutputPath: "/remote/keep.stp"}},
	}
	client.sync = &SyncRequest{Schema: DefaultSchema, Items: []SyncItem{
		{ID: "1", Operation: "add"}, {ID: "2", Operation: "add"}, {ID: "3", Operation: "add"},
	}}
	return client, s, []string{a, b}
}

func TestCoordinator_Run(t *testing.T) {
	client, s, paths := setup(t)

	var events []ProgressEvent
	opts := fastOptions()
	opts.Description = "bridge rework"
	opts.Progress = func(e ProgressEvent) { events = append(events, e) }

	out, err := NewCoordinator(client, opts, quietLog()).Run(context.Background(), s)
	util.AssertNoError(t, err)

	util.AssertEqual(t, out.FulfillmentID, "ful-1")
	util.AssertEqual(t, out.RevisionID, "rev-1")
	util.AssertEqual(t, out.State, Finished)
	util.AssertEqual(t, out.Batches, 2)
	util.AssertEqual(t, out.Assets, 2)
	util.AssertEqual(t, out.PollTimedOut, false)
	util.AssertEqual(t, s.State(), Finished)
	util.AssertEqual(t, client.start.ExecutionOrder, DefaultExecutionOrder)
	util.AssertEqual(t, client.start.Description, "bridge rework")

	t.Run("assets prepared", func(t *testing.T) {
		infos := client.uploaded
		util.AssertEqual(t, len(infos), 3)
		util.AssertEqual(t, infos[0].OutputPath, paths[0])
		util.AssertEqual(t, infos[0].Metadata[MetaBodyCount], "2")
		util.AssertEqual(t, infos[0].Metadata[MetaLengthUnit], string(model.DefaultUnit))
		util.AssertEqual(t, infos[1].Metadata[MetaBodyCount], "5")
		util.AssertEqual(t, infos[1].Metadata[MetaLengthUnit], "kUnitType_Meter")
		util.AssertEqual(t, infos[2].OutputPath, "/remote/keep.stp")
		if infos[2].Metadata != nil {
			t.Errorf("expected unmapped asset untouched, got %v", infos[2].Metadata)
		}
	})

	t.Run("files backed up and restored", func(t *testing.T) {
		for _, p := range paths {
			if !client.filesAtUp[p] {
				t.Errorf("expected backup of %s before upload", p)
			}
			util.AssertExists(t, p)
			util.AssertNotExists(t, p+".backup")
		}
	})

	t.Run("sync fan-out", func(t *testing.T) {
		util.AssertEqual(t, client.called("syncBatch"), 2)
		util.AssertEqual(t, client.called("process"), 1)
		util.AssertEqual(t, client.called("discard"), 0)
	})

	t.Run("progress per transition", func(t *testing.T) {
		want := []State{Started, AssetsPrepared, Uploaded, SyncRequestsSent, AllTasksAwaited, Finished}
		util.AssertEqual(t, len(events), len(want))
		for i, e := range events {
			util.AssertEqual(t, e.State, want[i])
			util.AssertEqual(t, e.Step, i+1)
			util.AssertEqual(t, e.Total, 6)
		}
		util.AssertEqual(t, len(out.History), len(want))
	})
}

func TestCoordinator_RunFailures(t *testing.T) {
	tests := map[string]struct {
		configure   func(c *fakeClient, paths []string)
		wantStep    string
		wantErr     error
		wantDiscard bool
	}{
		"upload failure": {
			configure:   func(c *fakeClient, _ []string) { c.errs["upload"] = errors.New("upload rejected") },
			wantStep:    StepUpload,
			wantDiscard: true,
		},
		"asset listing failure": {
			configure:   func(c *fakeClient, _ []string) { c.errs["assets"] = errors.New("timeout") },
			wantStep:    StepPrepare,
			wantDiscard: true,
		},
		"sync batch failure": {
			configure:   func(c *fakeClient, _ []string) { c.errs["syncBatch"] = errors.New("conflict") },
			wantStep:    StepAwait,
			wantDiscard: true,
		},
		"process failure": {
			configure:   func(c *fakeClient, _ []string) { c.errs["process"] = errors.New("kernel error") },
			wantStep:    StepAwait,
			wantDiscard: true,
		},
		"finish failure": {
			configure:   func(c *fakeClient, _ []string) { c.errs["finish"] = errors.New("gone") },
			wantStep:    StepFinish,
			wantDiscard: true,
		},
		"fulfillment failed": {
			configure: func(c *fakeClient, _ []string) {
				c.statuses = []Status{StatusProcessing, StatusFailed}
			},
			wantStep:    StepPoll,
			wantErr:     ErrFulfillmentFailed,
			wantDiscard: true,
		},
		"clear local state failure": {
			configure:   func(c *fakeClient, _ []string) { c.errs["clear"] = errors.New("locked") },
			wantStep:    StepClear,
			wantDiscard: true,
		},
		"missing asset file": {
			configure: func(_ *fakeClient, paths []string) {
				_ = removeFile(paths[1])
			},
			wantStep:    StepUpload,
			wantErr:     ErrMissingAssetFile,
			wantDiscard: true,
		},
		"start failure": {
			configure: func(c *fakeClient, _ []string) { c.errs["start"] = errors.New("unauthorized") },
			wantStep:  StepStart,
		},
		"empty fulfillment id": {
			configure: func(c *fakeClient, _ []string) { c.fid = "" },
			wantStep:  StepStart,
			wantErr:   ErrNoFulfillmentID,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			client, s, paths := setup(t)
			tt.configure(client, paths)

			out, err := NewCoordinator(client, fastOptions(), quietLog()).Run(context.Background(), s)
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *PipelineError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PipelineError, got %T: %v", err, err)
			}
			util.AssertEqual(t, pe.Step, tt.wantStep)
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}

			if !tt.wantDiscard {
				util.AssertEqual(t, client.called("discard"), 0)
				if out != nil {
					t.Errorf("expected nil outcome before start, got %+v", out)
				}
				return
			}
			util.AssertEqual(t, len(client.discarded), 1)
			util.AssertEqual(t, client.discarded[0], "ful-1")
			util.AssertEqual(t, pe.FulfillmentID, "ful-1")
			util.AssertEqual(t, out.State, Discarded)
			util.AssertEqual(t, s.State(), Discarded)

			for _, p := range paths {
				util.AssertNotExists(t, p+".backup")
			}
		})
	}
}

func TestCoordinator_UploadFailureRestoresFiles(t *testing.T) {
	client, s, paths := setup(t)
	client.errs["upload"] = errors.New("upload rejected")

	_, err := NewCoordinator(client, fastOptions(), quietLog()).Run(context.Background(), s)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, p := range paths {
		util.AssertExists(t, p)
		util.AssertNotExists(t, p+".backup")
	}
	util.AssertEqual(t, util.ReadFile(t, paths[0]), "geometry a")
}

func TestCoordinator_DiscardFailureKeepsOriginalError(t *testing.T) {
	client, s, _ := setup(t)
	sentinel := errors.New("upload rejected")
	client.errs["upload"] = sentinel
	client.errs["discard"] = errors.New("discard unavailable")

	_, err := NewCoordinator(client, fastOptions(), quietLog()).Run(context.Background(), s)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected original error, got %v", err)
	}
	if strings.Contains(err.Error(), "discard unavailable") {
		t.Errorf("expected discard failure to be swallowed, got %v", err)
	}
}

func TestCoordinator_PollTimeoutIsNotFatal(t *testing.T) {
	client, s, _ := setup(t)
	client.statuses = []Status{StatusProcessing}
	log := quietLog()

	out, err := NewCoordinator(client, fastOptions(), log).Run(context.Background(), s)
	util.AssertNoError(t, err)
	util.AssertEqual(t, out.PollTimedOut, true)
	util.AssertEqual(t, out.State, Finished)
	util.AssertEqual(t, client.called("status"), 3)
	util.AssertEqual(t, client.called("clear"), 1)
	if !strings.Contains(log.Joined(), "still processing") {
		t.Errorf("expected timeout warning in log, got %q", log.Joined())
	}
}

func TestCoordinator_StatusErrorsKeepPolling(t *testing.T) {
	client, s, _ := setup(t)
	client.errs["status"] = errors.New("503")

	out, err := NewCoordinator(client, fastOptions(), quietLog()).Run(context.Background(), s)
	util.AssertNoError(t, err)
	util.AssertEqual(t, out.PollTimedOut, true)
	util.AssertEqual(t, client.called("status"), 3)
}

func TestCoordinator_ViewablesFailureIsBestEffort(t *testing.T) {
	client, s, _ := setup(t)
	client.errs["viewables"] = errors.New("viewer offline")

	out, err := NewCoordinator(client, fastOptions(), quietLog()).Run(context.Background(), s)
	util.AssertNoError(t, err)
	util.AssertEqual(t, out.RevisionID, "rev-1")
}

func TestCoordinator_InvalidIdentifier(t *testing.T) {
	client := newFakeClient()
	s := NewSession(model.Identifier{CollectionID: "col"})

	_, err := NewCoordinator(client, fastOptions(), quietLog()).Run(context.Background(), s)
	if !errors.Is(err, model.ErrMissingExchangeID) {
		t.Fatalf("expected ErrMissingExchangeID, got %v", err)
	}
	util.AssertEqual(t, client.called("start"), 0)
}

func TestCoordinator_SessionRunsOnce(t *testing.T) {
	client, s, _ := setup(t)
	c := NewCoordinator(client, fastOptions(), quietLog())
	_, err := c.Run(context.Background(), s)
	util.AssertNoError(t, err)

	_, err = c.Run(context.Background(), s)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on reuse, got %v", err)
	}
}

func TestCoordinator_CancelledContextDiscards(t *testing.T) {
	client, s, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastOptions()
	opts.Progress = func(e ProgressEvent) {
		if e.State == Started {
			cancel()
		}
	}

	_, err := NewCoordinator(client, opts, quietLog()).Run(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	util.AssertEqual(t, client.discarded[0], "ful-1")
	util.AssertEqual(t, client.called("upload"), 0)
}

func TestCoordinator_FailureGoesToContextLogger(t *testing.T) {
	client, s, _ := setup(t)
	client.errs["upload"] = errors.New("upload rejected")
	var buf bytes.Buffer
	ctx := logging.NewContext(context.Background(), logging.New(logging.Options{
		Level:  logging.LevelDebug,
		Output: &buf,
	}))
	log := quietLog()

	_, err := NewCoordinator(client, fastOptions(), log).Run(ctx, s)
	if err == nil {
		t.Fatal("expected upload failure")
	}

	out := buf.String()
	for _, want := range []string{"fulfillment failed", "upload rejected", "fulfillment=ful-1", "state=Discarded"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in context logger output, got:\n%s", want, out)
		}
	}
	// the caller reports the returned error; the run log does not repeat it
	if strings.Contains(log.Joined(), "upload rejected") {
		t.Errorf("expected failure to stay out of the diagnostics log, got %q", log.Joined())
	}
}
