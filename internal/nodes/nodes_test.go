package nodes

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauern/dxnodes/internal/diagnostics"
	"github.com/klauern/dxnodes/internal/fulfillment"
	"github.com/klauern/dxnodes/internal/localdx"
	"github.com/klauern/dxnodes/internal/logging"
	"github.com/klauern/dxnodes/internal/model"
	"github.com/klauern/dxnodes/internal/structure"
	"github.com/klauern/dxnodes/internal/util"
)

var tower = model.Exchange{
	ExchangeID:   "ex-tower-0001",
	CollectionID: "col-1",
	Title:        "Tower: North",
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DiagnosticsLevel = diagnostics.Warning
	cfg.Logger = logging.New(logging.Options{Output: &bytes.Buffer{}})
	cfg.Fulfillment.PollInterval = 0
	cfg.Fulfillment.PollAttempts = 3
	cfg.ExportDir = filepath.Join(util.CreateTempDir(t), "export")
	return cfg
}

// newTestNodes seeds a store with one exchange holding a single beam.
func newTestNodes(t *testing.T) (*Nodes, *localdx.Store) {
	t.Helper()
	store := localdx.New(filepath.Join(util.CreateTempDir(t), "store"), localdx.DefaultOptions())
	util.AssertNoError(t, store.Seed(tower, &localdx.Manifest{
		RootAssetID: "top",
		Assets: []localdx.AssetRecord{
			{ID: "top", Name: "Top", TypeName: localdx.TypeTopLevelAssembly, ChildIDs: []string{"beam-geo"}},
			{ID: "beam-geo", TypeName: localdx.TypeGeometryAsset, HasGeometry: true, GeometryCount: 1},
		},
		Elements: []localdx.ElementRecord{
			{ID: "beam", Name: "Beam", AssetID: "beam-geo"},
		},
	}))
	return New(NewLocalClient(store), testConfig(t)), store
}

func field[T any](t *testing.T, env *diagnostics.Envelope, name string) T {
	t.Helper()
	v, ok := env.Get(name)
	if !ok {
		t.Fatalf("envelope has no field %q", name)
	}
	out, ok := v.(T)
	if !ok {
		t.Fatalf("field %q is %T", name, v)
	}
	return out
}

func stepFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	util.WriteFile(t, p, "ISO-10303-21; "+name)
	return p
}

func TestSelectExchange(t *testing.T) {
	n := New(nil, testConfig(t))

	tests := map[string]struct {
		input      string
		wantOK     bool
		wantDetail string
	}{
		"valid": {
			input:  `{"exchangeId":"ex","collectionId":"col","hubId":null,"title":"Bridge"}`,
			wantOK: true,
		},
		"missing collection": {
			input:      `{"exchangeId":"ex"}`,
			wantDetail: "collection id is required",
		},
		"malformed": {
			input:      `{"exchangeId":`,
			wantDetail: "failed to parse exchange JSON",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := n.SelectExchange([]byte(tt.input))
			util.AssertEqual(t, env.Success, tt.wantOK)
			if !tt.wantOK {
				if !strings.Contains(env.Diagnostics, tt.wantDetail) {
					t.Errorf("expected %q in diagnostics, got %q", tt.wantDetail, env.Diagnostics)
				}
				return
			}
			e := field[model.Exchange](t, env, "exchange")
			util.AssertEqual(t, e.Title, "Bridge")
			util.AssertEqual(t, field[model.Identifier](t, env, "identifier").String(), "col/ex")
		})
	}
}

func TestInspectStructure(t *testing.T) {
	ctx := context.Background()

	t.Run("client not initialized", func(t *testing.T) {
		env := New(nil, testConfig(t)).InspectStructure(ctx, tower)
		util.AssertEqual(t, env.Success, false)
		if !errors.Is(env.Err, ErrClientNotInitialized) {
			t.Errorf("expected ErrClientNotInitialized, got %v", env.Err)
		}
	})

	t.Run("invalid identifier", func(t *testing.T) {
		n, _ := newTestNodes(t)
		env := n.InspectStructure(ctx, model.Exchange{CollectionID: "col-1"})
		if !errors.Is(env.Err, model.ErrMissingExchangeID) {
			t.Errorf("expected ErrMissingExchangeID, got %v", env.Err)
		}
	})

	t.Run("populated exchange", func(t *testing.T) {
		n, _ := newTestNodes(t)
		env := n.InspectStructure(ctx, tower)
		util.AssertEqual(t, env.Success, true)
		util.AssertEqual(t, field[int](t, env, "elementCount"), 1)
		util.AssertEqual(t, field[int](t, env, "geometryCount"), 2)
		lines := field[[]string](t, env, "displayList")
		util.AssertEqual(t, lines[0], "Tower: North [Exchange]")
	})

	t.Run("empty exchange", func(t *testing.T) {
		n, store := newTestNodes(t)
		empty := model.Exchange{ExchangeID: "ex-empty", CollectionID: "col-1"}
		util.AssertNoError(t, store.Seed(empty, nil))

		env := n.InspectStructure(ctx, empty)
		util.AssertEqual(t, env.Success, true)
		util.AssertEqual(t, field[int](t, env, "elementCount"), 0)
		util.AssertEqual(t, field[int](t, env, "geometryCount"), 0)
		tree := field[*structure.Tree](t, env, "tree")
		if tree == nil || !tree.IsEmpty() {
			t.Fatalf("expected non-nil empty tree, got %+v", tree)
		}
	})

	t.Run("unknown exchange", func(t *testing.T) {
		n, _ := newTestNodes(t)
		env := n.InspectStructure(ctx, model.Exchange{ExchangeID: "nope", CollectionID: "col-1"})
		if !errors.Is(env.Err, localdx.ErrExchangeNotFound) {
			t.Errorf("expected ErrExchangeNotFound, got %v", env.Err)
		}
	})
}

func TestUploadGeometry(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		mode         string
		names        []string
		wantElements int
		wantRemoved  int
	}{
		"append keeps existing":      {mode: "append", wantElements: 3, wantRemoved: 0},
		"default mode appends":       {mode: "", wantElements: 3, wantRemoved: 0},
		"replace by name":            {mode: "replaceByName", names: []string{"BEAM"}, wantElements: 2, wantRemoved: 1},
		"replace by name no matches": {mode: "replaceByName", names: []string{"Girder"}, wantElements: 3},
		"replace all":                {mode: "replaceAll", wantElements: 2, wantRemoved: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			n, store := newTestNodes(t)
			dir := util.CreateTempDir(t)
			a := stepFile(t, dir, "Column.stp")
			b := stepFile(t, dir, "Slab.step")

			var events []fulfillment.ProgressEvent
			env := n.UploadGeometry(ctx, tower, UploadRequest{
				Paths:          []string{a, b},
				ReplaceMode:    tt.mode,
				ReplaceNames:   tt.names,
				Unit:           "Meter",
				GeometryCounts: []int{3},
				Description:    "level 3 columns",
				Progress:       func(e fulfillment.ProgressEvent) { events = append(events, e) },
			})
			if !env.Success {
				t.Fatalf("upload failed: %s", env.Diagnostics)
			}

			util.AssertEqual(t, field[int](t, env, "geometryCount"), 4)
			util.AssertEqual(t, field[int](t, env, "removedElements"), tt.wantRemoved)
			util.AssertEqual(t, len(field[[]string](t, env, "stepFilePaths")), 2)
			if field[string](t, env, "revisionId") == "" {
				t.Error("expected revision id")
			}
			util.AssertEqual(t, events[len(events)-1].State, fulfillment.Finished)

			util.AssertExists(t, a)
			util.AssertExists(t, b)
			util.AssertNotExists(t, a+".backup")

			m, err := store.Load(tower.Identifier())
			util.AssertNoError(t, err)
			util.AssertEqual(t, len(m.Elements), tt.wantElements)
			util.AssertEqual(t, m.Revisions[0].Description, "level 3 columns")
		})
	}
}

func TestUploadGeometry_Preconditions(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNodes(t)
	dir := util.CreateTempDir(t)
	good := stepFile(t, dir, "Column.stp")

	tests := map[string]struct {
		req     UploadRequest
		wantErr error
		wantMsg string
	}{
		"no files": {
			req:     UploadRequest{},
			wantErr: ErrNoFiles,
		},
		"missing file": {
			req:     UploadRequest{Paths: []string{filepath.Join(dir, "gone.stp")}},
			wantErr: ErrMissingFile,
		},
		"bad unit": {
			req:     UploadRequest{Paths: []string{good}, Unit: "furlong"},
			wantMsg: "unknown unit",
		},
		"bad mode": {
			req:     UploadRequest{Paths: []string{good}, ReplaceMode: "merge"},
			wantMsg: "unknown replace mode",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := n.UploadGeometry(ctx, tower, tt.req)
			util.AssertEqual(t, env.Success, false)
			if tt.wantErr != nil && !errors.Is(env.Err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, env.Err)
			}
			if tt.wantMsg != "" && !strings.Contains(env.Diagnostics, tt.wantMsg) {
				t.Errorf("expected %q in diagnostics, got %q", tt.wantMsg, env.Diagnostics)
			}
		})
	}
}

// rejectingClient fails every upload.
type rejectingClient struct {
	Client
}

func (rejectingClient) UploadGeometries(context.Context, string, []*fulfillment.AssetInfo) error {
	return errors.New("quota exceeded")
}

func TestUploadGeometry_PipelineFailure(t *testing.T) {
	ctx := context.Background()
	n, store := newTestNodes(t)
	n.Client = rejectingClient{Client: n.Client}
	file := stepFile(t, util.CreateTempDir(t), "Column.stp")

	env := n.UploadGeometry(ctx, tower, UploadRequest{Paths: []string{file}, ReplaceMode: "replaceAll"})
	util.AssertEqual(t, env.Success, false)

	var pe *fulfillment.PipelineError
	if !errors.As(env.Err, &pe) {
		t.Fatalf("expected pipeline error, got %v", env.Err)
	}
	util.AssertEqual(t, pe.Step, fulfillment.StepUpload)
	if field[string](t, env, "fulfillmentId") == "" {
		t.Error("expected fulfillment id on failure")
	}
	if got := strings.Count(env.Diagnostics, "quota exceeded"); got != 1 {
		t.Errorf("expected cause once in diagnostics, got %d in %q", got, env.Diagnostics)
	}
	util.AssertExists(t, file)

	// staged removals were discarded
	inspect := n.InspectStructure(ctx, tower)
	util.AssertEqual(t, field[int](t, inspect, "elementCount"), 1)
	m, err := store.Load(tower.Identifier())
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(m.Revisions), 0)
}

func TestOperationsLogThroughContextLogger(t *testing.T) {
	n, _ := newTestNodes(t)
	n.Config.Logger = nil
	var buf bytes.Buffer
	ctx := logging.NewContext(context.Background(), logging.New(logging.Options{
		Level:  logging.LevelDebug,
		Output: &buf,
	}))

	env := n.InspectStructure(ctx, tower)
	if !env.Success {
		t.Fatalf("inspect failed: %s", env.Diagnostics)
	}
	out := buf.String()
	if !strings.Contains(out, `operation="inspect structure"`) || !strings.Contains(out, "walked") {
		t.Errorf("expected walk diagnostics on the context logger, got:\n%s", out)
	}
}

func TestUploadGeometry_RepeatedPath(t *testing.T) {
	ctx := context.Background()
	n, store := newTestNodes(t)
	dir := util.CreateTempDir(t)
	column := stepFile(t, dir, "Column.stp")
	slab := stepFile(t, dir, "Slab.stp")

	env := n.UploadGeometry(ctx, tower, UploadRequest{
		Paths:          []string{column, slab, filepath.Join(dir, ".", "Column.stp")},
		GeometryCounts: []int{2, 3, 9},
	})
	if !env.Success {
		t.Fatalf("upload failed: %s", env.Diagnostics)
	}

	util.AssertEqual(t, len(field[[]string](t, env, "paths")), 2)
	util.AssertEqual(t, field[int](t, env, "geometryCount"), 5)
	if !strings.Contains(env.Diagnostics, "listed more than once") {
		t.Errorf("expected repeated path warning, got %q", env.Diagnostics)
	}
	util.AssertExists(t, column)

	m, err := store.Load(tower.Identifier())
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(m.Elements), 3)
}

func TestDownloadGeometry(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNodes(t)
	dir := util.CreateTempDir(t)

	up := n.UploadGeometry(ctx, tower, UploadRequest{
		Paths:          []string{stepFile(t, dir, "A.stp"), stepFile(t, dir, "B.stp")},
		GeometryCounts: []int{2, 5},
	})
	if !up.Success {
		t.Fatalf("upload failed: %s", up.Diagnostics)
	}

	t.Run("explicit directory", func(t *testing.T) {
		out := filepath.Join(util.CreateTempDir(t), "out")
		env := n.DownloadGeometry(ctx, tower, out)
		if !env.Success {
			t.Fatalf("download failed: %s", env.Diagnostics)
		}
		paths := field[[]string](t, env, "paths")
		util.AssertEqual(t, len(paths), 2)
		util.AssertEqual(t, filepath.Base(paths[0]), "Tower_ North_ex-tower.stp")
		util.AssertEqual(t, filepath.Base(paths[1]), "Tower_ North_ex-tower_2.stp")
		util.AssertEqual(t, field[int](t, env, "geometryCount"), 7)

		contents := []string{util.ReadFile(t, paths[0]), util.ReadFile(t, paths[1])}
		joined := strings.Join(contents, "|")
		if !strings.Contains(joined, "A.stp") || !strings.Contains(joined, "B.stp") {
			t.Errorf("unexpected exported content %q", joined)
		}
	})

	t.Run("configured default directory", func(t *testing.T) {
		env := n.DownloadGeometry(ctx, tower, "")
		if !env.Success {
			t.Fatalf("download failed: %s", env.Diagnostics)
		}
		paths := field[[]string](t, env, "paths")
		util.AssertEqual(t, filepath.Dir(paths[0]), n.Config.ExportDir)
	})

	t.Run("step extension", func(t *testing.T) {
		n.Config.ExportExtension = ".step"
		defer func() { n.Config.ExportExtension = model.ExportExtension }()
		env := n.DownloadGeometry(ctx, tower, util.CreateTempDir(t))
		paths := field[[]string](t, env, "paths")
		util.AssertEqual(t, filepath.Ext(paths[0]), ".step")
	})
}

func TestDownloadGeometry_NoGeometry(t *testing.T) {
	n, _ := newTestNodes(t)
	env := n.DownloadGeometry(context.Background(), tower, util.CreateTempDir(t))
	util.AssertEqual(t, env.Success, true)
	util.AssertEqual(t, len(field[[]string](t, env, "paths")), 0)
	util.AssertEqual(t, field[int](t, env, "geometryCount"), 0)
	if !strings.Contains(env.Diagnostics, "has no geometry") {
		t.Errorf("expected warning in diagnostics, got %q", env.Diagnostics)
	}
}

func TestUnitScale(t *testing.T) {
	n := New(nil, testConfig(t))

	tests := map[string]struct {
		tag      string
		wantUnit string
		wantMM   float64
	}{
		"meter":        {tag: "kUnitType_Meter", wantUnit: "kUnitType_Meter", wantMM: 1000.0},
		"centimeter":   {tag: "kUnitType_CentiMeter", wantUnit: "kUnitType_CentiMeter", wantMM: 10.0},
		"feet":         {tag: "kUnitType_Feet", wantUnit: "kUnitType_Feet", wantMM: 304.8},
		"inch":         {tag: "kUnitType_Inch", wantUnit: "kUnitType_Inch", wantMM: 25.4},
		"unrecognized": {tag: "kUnitType_Furlong", wantUnit: "kUnitType_CentiMeter", wantMM: 10.0},
		"empty":        {tag: "", wantUnit: "kUnitType_CentiMeter", wantMM: 10.0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := n.UnitScale(tt.tag)
			util.AssertEqual(t, env.Success, true)
			util.AssertEqual(t, field[string](t, env, "unit"), tt.wantUnit)
			util.AssertEqual(t, field[float64](t, env, "mmPerUnit"), tt.wantMM)
		})
	}
}
