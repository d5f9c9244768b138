package bulk

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/internal/storage/objectstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected copy failure")

// flakyBackend fails CopyObject for one source key until healed.
type flakyBackend struct {
	storage.Backend
	failKey string
	copies  int
}

func (f *flakyBackend) CopyObject(ctx context.Context, src storage.RemoteObject, dst string) (storage.RemoteObject, error) {
	if src.Key == f.failKey {
		return storage.RemoteObject{}, storage.WrapBackend("s3", "copy", src.Key, errInjected)
	}
	f.copies++
	return f.Backend.CopyObject(ctx, src, dst)
}

// memJournal stores plans as JSON so every read is a fresh copy.
type memJournal struct {
	mu    sync.Mutex
	plans map[string][]byte
	order []string
}

func newMemJournal() *memJournal {
	return &memJournal{plans: make(map[string][]byte)}
}

func (j *memJournal) CreatePlan(_ context.Context, p *plan.Plan) error {
	j.mu.Lock()
	j.order = append(j.order, p.ID)
	j.mu.Unlock()
	return j.UpdatePlan(context.Background(), p)
}

func (j *memJournal) UpdatePlan(_ context.Context, p *plan.Plan) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.plans[p.ID] = b
	return nil
}

func (j *memJournal) UpdateStep(ctx context.Context, planID string, step plan.Step) error {
	p, err := j.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	p.Steps[step.Index] = step
	return j.UpdatePlan(ctx, p)
}

func (j *memJournal) GetPlan(_ context.Context, id string) (*plan.Plan, error) {
	j.mu.Lock()
	b, ok := j.plans[id]
	j.mu.Unlock()
	if !ok {
		return nil, errors.Wrap(storage.ErrNotFound, id)
	}
	var p plan.Plan
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (j *memJournal) ListPlans(ctx context.Context, _ int) ([]plan.Summary, error) {
	var out []plan.Summary
	for _, id := range j.order {
		p, err := j.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Summary())
	}
	return out, nil
}

func newStore(t *testing.T, keys ...string) (*objectstore.Store, *objectstore.MemoryClient) {
	t.Helper()
	mc := objectstore.NewMemoryClient("bkt")
	for _, k := range keys {
		_, err := mc.Put(context.Background(), k, strings.NewReader(k), -1)
		require.NoError(t, err)
	}
	return objectstore.NewWithClient(mc, "bkt"), mc
}

func TestRenamePrefix(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "docs/a~b.txt", "docs/c.txt", "docs/x~y~z.txt", "other/a~b.txt")
	engine := NewEngine(store, nil)

	p, err := engine.Rename(ctx, storage.Prefix("docs/"), "~", "_", false)
	require.NoError(t, err)

	assert.Equal(t, plan.StatusCompleted, p.Status)
	assert.Equal(t, [][2]string{
		{"docs/a~b.txt", "docs/a_b.txt"},
		{"docs/x~y~z.txt", "docs/x_y_z.txt"},
	}, p.Pairs())
	assert.Equal(t, []string{"docs/a_b.txt", "docs/c.txt", "docs/x_y_z.txt", "other/a~b.txt"}, mc.Keys())
}

func TestRenameExact(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "docs/2023-report.pdf", "docs/2023-summary.pdf")
	engine := NewEngine(store, nil)

	p, err := engine.Rename(ctx, storage.Exact("docs/2023-report.pdf"), "2023", "2024", false)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, []string{"docs/2023-summary.pdf", "docs/2024-report.pdf"}, mc.Keys())
}

func TestRenameRejectsEmptyFrom(t *testing.T) {
	store, _ := newStore(t, "a.txt")
	_, err := NewEngine(store, nil).Rename(context.Background(), storage.Prefix(""), "", "x", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestRenameSkipsUnchangedKeys(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "keep/a.txt")
	engine := NewEngine(store, nil)

	// "a" -> "a" would copy onto itself and then delete the only copy
	p, err := engine.Rename(ctx, storage.Prefix("keep"), "a", "a", false)
	require.NoError(t, err)
	assert.Zero(t, p.Len())
	assert.Equal(t, []string{"keep/a.txt"}, mc.Keys())
}

func TestDryRunLeavesListingUntouched(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "docs/a~b.txt", "docs/c~d.txt")
	journal := newMemJournal()
	engine := NewEngine(store, journal)
	before := mc.Keys()

	p, err := engine.Rename(ctx, storage.Prefix("docs"), "~", "_", true)
	require.NoError(t, err)
	assert.True(t, p.DryRun)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, plan.StatusPending, p.Status)
	assert.Equal(t, before, mc.Keys())

	p, err = engine.Move(ctx, storage.Prefix("docs"), storage.Prefix("archive"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, before, mc.Keys())

	plans, err := journal.ListPlans(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, plans, "dry runs are never journaled")
}

func TestMove(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		src      storage.PathRef
		dst      storage.PathRef
		wantKeys []string
	}{
		{
			name:     "exact_into_prefix",
			keys:     []string{"docs/report.pdf", "docs/other.pdf"},
			src:      storage.Exact("docs/report.pdf"),
			dst:      storage.Prefix("archive"),
			wantKeys: []string{"archive/report.pdf", "docs/other.pdf"},
		},
		{
			name:     "exact_to_exact",
			keys:     []string{"docs/report.pdf"},
			src:      storage.Exact("docs/report.pdf"),
			dst:      storage.Exact("archive/2024.pdf"),
			wantKeys: []string{"archive/2024.pdf"},
		},
		{
			name:     "prefix_flattens_depth",
			keys:     []string{"src/a.txt", "src/deep/b.txt", "elsewhere/c.txt"},
			src:      storage.Prefix("src"),
			dst:      storage.Prefix("dst"),
			wantKeys: []string{"dst/a.txt", "dst/b.txt", "elsewhere/c.txt"},
		},
		{
			name:     "prefix_into_root",
			keys:     []string{"src/a.txt"},
			src:      storage.Prefix("src"),
			dst:      storage.Prefix(""),
			wantKeys: []string{"a.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mc := newStore(t, tt.keys...)
			_, err := NewEngine(store, nil).Move(context.Background(), tt.src, tt.dst, false)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKeys, mc.Keys())
		})
	}
}

func TestEmptyResolutionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "docs/a.txt")
	engine := NewEngine(store, newMemJournal())

	p, err := engine.Rename(ctx, storage.Prefix("nothing"), "a", "b", false)
	require.NoError(t, err)
	assert.Zero(t, p.Len())

	p, err = engine.Move(ctx, storage.Prefix("nothing"), storage.Prefix("dst"), false)
	require.NoError(t, err)
	assert.Zero(t, p.Len())
	assert.Equal(t, plan.StatusCompleted, p.Status)

	assert.Equal(t, []string{"docs/a.txt"}, mc.Keys())
}

func TestCopyFailureDeletesNothing(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "in/1.txt", "in/2.txt", "in/3.txt")
	backend := &flakyBackend{Backend: store, failKey: "in/2.txt"}
	journal := newMemJournal()
	engine := NewEngine(backend, journal)

	p, err := engine.Move(ctx, storage.Prefix("in"), storage.Prefix("out"), false)
	require.Error(t, err)

	var pbf *PartialBatchFailure
	require.ErrorAs(t, err, &pbf)
	assert.Equal(t, p.ID, pbf.PlanID)
	assert.Equal(t, 1, pbf.Index)
	assert.Equal(t, "in/2.txt", pbf.Source)
	assert.Equal(t, "out/2.txt", pbf.Destination)
	assert.Equal(t, 1, pbf.Completed)
	assert.ErrorIs(t, err, errInjected)

	var be *storage.BackendError
	assert.ErrorAs(t, err, &be)

	// the first copy stays, no source is gone, the third was never attempted
	assert.Equal(t, []string{"in/1.txt", "in/2.txt", "in/3.txt", "out/1.txt"}, mc.Keys())
	assert.Equal(t, 1, backend.copies)

	stored, err := journal.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
	assert.Equal(t, plan.StepCopied, stored.Steps[0].State)
	assert.Equal(t, plan.StepFailed, stored.Steps[1].State)
	assert.Equal(t, plan.StepPending, stored.Steps[2].State)
}

func TestResumeCompletesFailedPlan(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "in/1.txt", "in/2.txt", "in/3.txt")
	backend := &flakyBackend{Backend: store, failKey: "in/2.txt"}
	journal := newMemJournal()

	p, err := NewEngine(backend, journal).Move(ctx, storage.Prefix("in"), storage.Prefix("out"), false)
	require.Error(t, err)

	backend.failKey = ""
	resumed, err := NewEngine(backend, journal).Resume(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, plan.StatusCompleted, resumed.Status)
	assert.True(t, resumed.Done())
	assert.Equal(t, []string{"out/1.txt", "out/2.txt", "out/3.txt"}, mc.Keys())
	// only the two outstanding steps were copied on resume
	assert.Equal(t, 3, backend.copies)

	stored, err := journal.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	// resuming a finished plan is a no-op
	again, err := NewEngine(backend, journal).Resume(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, again.Status)
	assert.Equal(t, 3, backend.copies)
}

func TestResumeToleratesAlreadyDeletedSources(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "in/1.txt", "in/2.txt")
	journal := newMemJournal()
	engine := NewEngine(store, journal)

	p, err := engine.PlanMove(ctx, storage.Prefix("in"), storage.Prefix("out"))
	require.NoError(t, err)
	require.NoError(t, journal.CreatePlan(ctx, p))

	// simulate a crash after every copy and one delete
	for _, s := range p.Steps {
		_, err := store.CopyObject(ctx, s.Source, s.Destination)
		require.NoError(t, err)
		s.State = plan.StepCopied
		require.NoError(t, journal.UpdateStep(ctx, p.ID, s))
	}
	require.NoError(t, mc.Remove(ctx, "in/1.txt"))

	resumed, err := engine.Resume(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Done())
	assert.Equal(t, []string{"out/1.txt", "out/2.txt"}, mc.Keys())
}

func TestResumeErrors(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	_, err := NewEngine(store, nil).Resume(ctx, "any")
	assert.ErrorIs(t, err, ErrNoJournal)

	_, err = NewEngine(store, newMemJournal()).Resume(ctx, "missing")
	assert.True(t, storage.IsNotFound(err))

	journal := newMemJournal()
	foreign := plan.New("drive", plan.OpMove, "x/")
	require.NoError(t, journal.CreatePlan(ctx, foreign))
	_, err = NewEngine(store, journal).Resume(ctx, foreign.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
}

func TestCancelledContextStopsCopyPhase(t *testing.T) {
	store, mc := newStore(t, "in/1.txt", "in/2.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(store, nil).Move(ctx, storage.Prefix("in"), storage.Prefix("out"), false)
	var pbf *PartialBatchFailure
	require.ErrorAs(t, err, &pbf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"in/1.txt", "in/2.txt"}, mc.Keys())
}

func readKey(t *testing.T, mc *objectstore.MemoryClient, key string) string {
	t.Helper()
	rc, err := mc.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestRenameChainKeepsOverwrittenSources(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "docs/a.txt", "docs/aa.txt")
	journal := newMemJournal()

	p, err := NewEngine(store, journal).Rename(ctx, storage.Prefix("docs/"), "a.txt", "aa.txt", false)
	require.NoError(t, err)

	// aa.txt moves out of the way before a.txt lands on it
	assert.Equal(t, [][2]string{
		{"docs/aa.txt", "docs/aaa.txt"},
		{"docs/a.txt", "docs/aa.txt"},
	}, p.Pairs())
	assert.Equal(t, []int{0, 1}, []int{p.Steps[0].Index, p.Steps[1].Index})

	assert.Equal(t, []string{"docs/aa.txt", "docs/aaa.txt"}, mc.Keys())
	assert.Equal(t, "docs/a.txt", readKey(t, mc, "docs/aa.txt"))
	assert.Equal(t, "docs/aa.txt", readKey(t, mc, "docs/aaa.txt"))

	stored, err := journal.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, stored.Status)
	assert.True(t, stored.Done())
}

func TestRenameLongChain(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "v/x", "v/xx", "v/xxx")

	_, err := NewEngine(store, nil).Rename(ctx, storage.Prefix("v/"), "x", "xx", false)
	require.NoError(t, err)

	assert.Equal(t, []string{"v/xx", "v/xxxx", "v/xxxxxx"}, mc.Keys())
	assert.Equal(t, "v/x", readKey(t, mc, "v/xx"))
	assert.Equal(t, "v/xx", readKey(t, mc, "v/xxxx"))
	assert.Equal(t, "v/xxx", readKey(t, mc, "v/xxxxxx"))
}

func TestMoveRejectsCollidingDestinations(t *testing.T) {
	store, mc := newStore(t, "src/a.txt", "src/deep/a.txt")

	_, err := NewEngine(store, nil).Move(context.Background(), storage.Prefix("src"), storage.Prefix("dst"), false)
	assert.ErrorIs(t, err, storage.ErrInvalidArgument)
	assert.Equal(t, []string{"src/a.txt", "src/deep/a.txt"}, mc.Keys())
}

func TestSequence(t *testing.T) {
	step := func(src, dst string) plan.Step {
		return plan.Step{Source: storage.RemoteObject{Key: src}, Destination: dst}
	}

	t.Run("independent_steps_keep_order", func(t *testing.T) {
		p := &plan.Plan{Steps: []plan.Step{step("a", "b"), step("c", "d")}}
		require.NoError(t, sequence(p))
		assert.Equal(t, [][2]string{{"a", "b"}, {"c", "d"}}, p.Pairs())
	})

	t.Run("chain_runs_back_to_front", func(t *testing.T) {
		p := &plan.Plan{Steps: []plan.Step{step("a", "b"), step("b", "c"), step("c", "d")}}
		require.NoError(t, sequence(p))
		assert.Equal(t, [][2]string{{"c", "d"}, {"b", "c"}, {"a", "b"}}, p.Pairs())
		for i, s := range p.Steps {
			assert.Equal(t, i, s.Index)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		p := &plan.Plan{Steps: []plan.Step{step("a", "b"), step("b", "a")}}
		assert.ErrorIs(t, sequence(p), storage.ErrInvalidArgument)
	})

	t.Run("duplicate_destination", func(t *testing.T) {
		p := &plan.Plan{Steps: []plan.Step{step("a", "z"), step("b", "z")}}
		assert.ErrorIs(t, sequence(p), storage.ErrInvalidArgument)
	})
}

// stoppingDeleter removes sources one by one and fails at failKey.
type stoppingDeleter struct {
	storage.Backend
	failKey string
}

func (s *stoppingDeleter) DeleteObjects(ctx context.Context, objs []storage.RemoteObject) error {
	var deleted []string
	for _, o := range objs {
		if o.Key == s.failKey {
			return &storage.PartialDeleteError{Deleted: deleted, Err: errInjected}
		}
		if err := s.Backend.DeleteObject(ctx, o); err != nil {
			return err
		}
		deleted = append(deleted, o.Key)
	}
	return nil
}

func TestDeleteProgressIsJournaled(t *testing.T) {
	ctx := context.Background()
	store, mc := newStore(t, "in/1.txt", "in/2.txt", "in/3.txt")
	backend := &stoppingDeleter{Backend: store, failKey: "in/2.txt"}
	journal := newMemJournal()

	p, err := NewEngine(backend, journal).Move(ctx, storage.Prefix("in"), storage.Prefix("out"), false)
	require.ErrorIs(t, err, errInjected)

	stored, err := journal.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusFailed, stored.Status)
	assert.Equal(t, []plan.StepState{plan.StepDeleted, plan.StepCopied, plan.StepCopied},
		[]plan.StepState{stored.Steps[0].State, stored.Steps[1].State, stored.Steps[2].State})

	backend.failKey = ""
	resumed, err := NewEngine(backend, journal).Resume(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Done())
	assert.Equal(t, []string{"out/1.txt", "out/2.txt", "out/3.txt"}, mc.Keys())
}
