package fulfillment

import (
	"context"
	"os"
	"sync"

	"github.com/klauern/dxnodes/internal/model"
)

// fakeClient records calls and returns configured results.
type fakeClient struct {
	mu sync.Mutex

	fid      string
	infos    [][]*AssetInfo
	sync     *SyncRequest
	statuses []Status
	revision string
	consume  bool

	errs map[string]error

	calls      []string
	uploaded   []*AssetInfo
	batches    []SyncBatch
	discarded  []string
	statusHits int
	start      StartRequest
	filesAtUp  map[string]bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		fid:      "ful-1",
		statuses: []Status{StatusCompleted},
		revision: "rev-1",
		errs:     map[string]error{},
	}
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeClient) called(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeClient) StartFulfillment(_ context.Context, _ model.Identifier, req StartRequest) (string, error) {
	f.start = req
	if err := f.record("start"); err != nil {
		return "", err
	}
	return f.fid, nil
}

func (f *fakeClient) AssetInfoBatches(context.Context, string) ([][]*AssetInfo, error) {
	if err := f.record("assets"); err != nil {
		return nil, err
	}
	return f.infos, nil
}

func (f *fakeClient) UploadGeometries(_ context.Context, _ string, infos []*AssetInfo) error {
	f.uploaded = infos
	f.filesAtUp = map[string]bool{}
	for _, info := range infos {
		if info.OutputPath == "" {
			continue
		}
		_, err := os.Stat(info.OutputPath + ".backup")
		f.filesAtUp[info.OutputPath] = err == nil
		if f.consume {
			_ = os.Remove(info.OutputPath)
		}
	}
	return f.record("upload")
}

func (f *fakeClient) SyncRequest(context.Context, string, string) (*SyncRequest, error) {
	if err := f.record("syncRequest"); err != nil {
		return nil, err
	}
	return f.sync, nil
}

func (f *fakeClient) SendSyncBatch(_ context.Context, _ string, batch SyncBatch) error {
	f.mu.Lock()
	f.batches = append(f.batches, batch)
	f.mu.Unlock()
	return f.record("syncBatch")
}

func (f *fakeClient) ProcessGeometries(context.Context, string) error {
	return f.record("process")
}

func (f *fakeClient) FinishFulfillment(context.Context, string) error {
	return f.record("finish")
}

func (f *fakeClient) FulfillmentStatus(context.Context, string) (Status, error) {
	if err := f.record("status"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusHits
	f.statusHits++
	if i >= len(f.statuses) {
		return f.statuses[len(f.statuses)-1], nil
	}
	return f.statuses[i], nil
}

func (f *fakeClient) DiscardFulfillment(_ context.Context, fid string) error {
	f.mu.Lock()
	f.discarded = append(f.discarded, fid)
	f.mu.Unlock()
	return f.record("discard")
}

func (f *fakeClient) RegenerateViewables(context.Context, model.Identifier) error {
	return f.record("viewables")
}

func (f *fakeClient) ClearLocalState(context.Context, model.Identifier) (string, error) {
	if err := f.record("clear"); err != nil {
		return "", err
	}
	return f.revision, nil
}

func removeFile(path string) error {
	return os.Remove(path)
}
