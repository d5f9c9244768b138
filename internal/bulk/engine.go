package bulk

import (
	"context"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/metrics"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNoJournal is returned by Resume when the engine has no journal.
var ErrNoJournal = errors.New("no plan journal configured")

// Journal persists plans so an interrupted run can be resumed.
// GetPlan returns storage.ErrNotFound (possibly wrapped) for unknown ids.
type Journal interface {
	CreatePlan(ctx context.Context, p *plan.Plan) error
	UpdatePlan(ctx context.Context, p *plan.Plan) error
	UpdateStep(ctx context.Context, planID string, step plan.Step) error
	GetPlan(ctx context.Context, id string) (*plan.Plan, error)
	ListPlans(ctx context.Context, limit int) ([]plan.Summary, error)
}

// Engine runs bulk rename and move as copy-all-then-delete-all over one
// backend.
type Engine struct {
	backend storage.Backend
	journal Journal
	log     zerolog.Logger
}

// NewEngine builds an engine. journal may be nil, in which case plans live
// only for the duration of the call.
func NewEngine(backend storage.Backend, journal Journal) *Engine {
	return &Engine{
		backend: backend,
		journal: journal,
		log:     logger.With("bulk").With().Str("backend", backend.Name()).Logger(),
	}
}

// PlanRename resolves ref and maps every matching key K to
// strings.ReplaceAll(K, from, to). Prefix refs only consider keys that
// contain from.
func (e *Engine) PlanRename(ctx context.Context, ref storage.PathRef, from, to string) (*plan.Plan, error) {
	if from == "" {
		return nil, errors.Wrap(storage.ErrInvalidArgument, "rename: from must not be empty")
	}

	var match storage.Predicate
	if ref.IsPrefix() {
		match = storage.Contains(from)
	}
	objs, err := e.backend.Resolve(ctx, ref, match)
	if err != nil {
		return nil, err
	}

	p := plan.New(e.backend.Name(), plan.OpRename, ref.String())
	p.From, p.To = from, to
	for _, obj := range objs {
		e.addStep(p, obj, strings.ReplaceAll(obj.Key, from, to))
	}
	if err := sequence(p); err != nil {
		return nil, err
	}
	return p, nil
}

// PlanMove resolves src and re-roots each object under dst. A prefix src
// lands every object directly in dst by name, flattening deeper levels.
// An exact src goes to dst/name when dst is a prefix and to dst otherwise.
func (e *Engine) PlanMove(ctx context.Context, src, dst storage.PathRef) (*plan.Plan, error) {
	objs, err := e.backend.Resolve(ctx, src, nil)
	if err != nil {
		return nil, err
	}

	p := plan.New(e.backend.Name(), plan.OpMove, src.String())
	p.Destination = dst.String()
	for _, obj := range objs {
		target := dst.Path
		if src.IsPrefix() || dst.IsPrefix() {
			target = storage.JoinPath(dst.Path, obj.Name)
		}
		e.addStep(p, obj, target)
	}
	if err := sequence(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) addStep(p *plan.Plan, obj storage.RemoteObject, dst string) {
	dst = storage.NormalizePath(dst)
	switch {
	case obj.IsFolder():
		e.log.Debug().Str("key", obj.Key).Msg("skipping folder entry")
	case dst == obj.Key:
		e.log.Debug().Str("key", obj.Key).Msg("destination equals source, skipping")
	case dst == "":
		e.log.Warn().Str("key", obj.Key).Msg("empty destination, skipping")
	default:
		p.Add(obj, dst)
	}
}

// Rename plans and, unless dryRun, executes a rename. The plan is returned
// alongside any execution error.
func (e *Engine) Rename(ctx context.Context, ref storage.PathRef, from, to string, dryRun bool) (*plan.Plan, error) {
	p, err := e.PlanRename(ctx, ref, from, to)
	if err != nil {
		return nil, err
	}
	return p, e.start(ctx, p, dryRun)
}

// Move plans and, unless dryRun, executes a move.
func (e *Engine) Move(ctx context.Context, src, dst storage.PathRef, dryRun bool) (*plan.Plan, error) {
	p, err := e.PlanMove(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return p, e.start(ctx, p, dryRun)
}

func (e *Engine) start(ctx context.Context, p *plan.Plan, dryRun bool) error {
	if dryRun {
		p.DryRun = true
		for _, s := range p.Steps {
			e.log.Info().Str("plan", p.ID).Str("src", s.Source.Key).Str("dst", s.Destination).Msg("dry run")
		}
		return nil
	}
	if p.Len() == 0 {
		p.Finish(plan.StatusCompleted, nil)
		return nil
	}

	if e.journal != nil {
		if err := e.journal.CreatePlan(ctx, p); err != nil {
			return errors.Wrap(err, "journal plan")
		}
	}
	return e.Execute(ctx, p)
}

// Resume loads a journaled plan and finishes it: steps not yet copied are
// copied, then every source not yet deleted is deleted.
func (e *Engine) Resume(ctx context.Context, planID string) (*plan.Plan, error) {
	if e.journal == nil {
		return nil, ErrNoJournal
	}
	p, err := e.journal.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.Backend != e.backend.Name() {
		return nil, errors.Wrapf(storage.ErrInvalidArgument, "plan %s belongs to backend %s", p.ID, p.Backend)
	}
	if p.Status == plan.StatusCompleted {
		e.log.Info().Str("plan", p.ID).Msg("plan already completed")
		return p, nil
	}

	e.log.Info().Str("plan", p.ID).
		Int("copied", p.Count(plan.StepCopied)).
		Int("deleted", p.Count(plan.StepDeleted)).
		Int("steps", p.Len()).
		Msg("resuming plan")
	return p, e.Execute(ctx, p)
}

// Execute runs the copy phase in step order, halting on the first failure,
// then deletes every source. Nothing is deleted unless every copy landed.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) error {
	p.Status = plan.StatusProcessing
	p.Error = ""
	if err := e.savePlan(ctx, p); err != nil {
		return err
	}

	if err := e.copyPhase(ctx, p); err != nil {
		e.fail(ctx, p, err)
		return err
	}
	if err := e.deletePhase(ctx, p); err != nil {
		e.fail(ctx, p, err)
		return err
	}

	p.Finish(plan.StatusCompleted, nil)
	metrics.Plans.WithLabelValues(p.Backend, string(p.Operation), string(p.Status)).Inc()
	e.log.Info().Str("plan", p.ID).Int("steps", p.Len()).Msg("plan completed")
	return e.savePlan(ctx, p)
}

func (e *Engine) copyPhase(ctx context.Context, p *plan.Plan) error {
	completed := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Copied() {
			completed++
			continue
		}
		if err := ctx.Err(); err != nil {
			return e.partial(p, step, completed, err)
		}

		if _, err := e.backend.CopyObject(ctx, step.Source, step.Destination); err != nil {
			step.State = plan.StepFailed
			step.Error = err.Error()
			e.saveStep(ctx, p.ID, *step)
			return e.partial(p, step, completed, err)
		}

		step.State = plan.StepCopied
		step.Error = ""
		completed++
		metrics.ObjectsCopied.WithLabelValues(p.Backend).Inc()
		e.log.Info().Str("plan", p.ID).Str("src", step.Source.Key).Str("dst", step.Destination).Msg("copied")
		if err := e.saveStep(ctx, p.ID, *step); err != nil {
			return err
		}
	}
	return nil
}

// deletePhase removes every source not yet deleted. On key-addressed
// stores a source whose id is another step's destination now holds that
// step's copy, so it is kept.
func (e *Engine) deletePhase(ctx context.Context, p *plan.Plan) error {
	written := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		written[s.Destination] = true
	}

	var (
		sources []storage.RemoteObject
		idx     []int
	)
	for i := range p.Steps {
		step := &p.Steps[i]
		switch {
		case step.State == plan.StepDeleted:
		case written[step.Source.BackendID]:
			step.State = plan.StepDeleted
			if err := e.saveStep(ctx, p.ID, *step); err != nil {
				return err
			}
		default:
			sources = append(sources, step.Source)
			idx = append(idx, i)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	err := e.backend.DeleteObjects(ctx, sources)
	deleted := make(map[string]bool, len(sources))
	var pde *storage.PartialDeleteError
	switch {
	case err == nil:
		for _, s := range sources {
			deleted[s.Key] = true
		}
	case errors.As(err, &pde):
		for _, key := range pde.Deleted {
			deleted[key] = true
		}
	}

	n := 0
	for _, i := range idx {
		step := &p.Steps[i]
		if !deleted[step.Source.Key] {
			continue
		}
		step.State = plan.StepDeleted
		n++
		if serr := e.saveStep(ctx, p.ID, *step); serr != nil && err == nil {
			err = serr
		}
	}
	metrics.ObjectsDeleted.WithLabelValues(p.Backend).Add(float64(n))
	e.log.Info().Str("plan", p.ID).Int("count", n).Msg("deleted sources")
	return err
}

// sequence reorders p so a source is copied before any step overwrites it,
// then renumbers the steps. Two steps writing one key, or steps that
// overwrite each other's sources in a cycle, cannot run without losing data.
func sequence(p *plan.Plan) error {
	n := len(p.Steps)
	writer := make(map[string]int, n)
	for i, s := range p.Steps {
		if j, dup := writer[s.Destination]; dup {
			return errors.Wrapf(storage.ErrInvalidArgument, "%s and %s both map to %s",
				p.Steps[j].Source.Key, s.Source.Key, s.Destination)
		}
		writer[s.Destination] = i
	}

	// blocker[w] is the step whose source step w overwrites
	blocker := make([]int, n)
	for i := range blocker {
		blocker[i] = -1
	}
	for i, s := range p.Steps {
		if w, ok := writer[s.Source.Key]; ok {
			blocker[w] = i
		}
	}

	const (
		unvisited = iota
		visiting
		placed
	)
	state := make([]int, n)
	ordered := make([]plan.Step, 0, n)
	for start := range p.Steps {
		var chain []int
		for i := start; i >= 0 && state[i] != placed; i = blocker[i] {
			if state[i] == visiting {
				return errors.Wrapf(storage.ErrInvalidArgument, "%s is part of a cycle of overwrites", p.Steps[i].Source.Key)
			}
			state[i] = visiting
			chain = append(chain, i)
		}
		for k := len(chain) - 1; k >= 0; k-- {
			state[chain[k]] = placed
			ordered = append(ordered, p.Steps[chain[k]])
		}
	}

	for i := range ordered {
		ordered[i].Index = i
	}
	p.Steps = ordered
	return nil
}

func (e *Engine) partial(p *plan.Plan, step *plan.Step, completed int, err error) error {
	return &PartialBatchFailure{
		PlanID:      p.ID,
		Index:       step.Index,
		Source:      step.Source.Key,
		Destination: step.Destination,
		Completed:   completed,
		Err:         err,
	}
}

func (e *Engine) fail(ctx context.Context, p *plan.Plan, err error) {
	p.Finish(plan.StatusFailed, err)
	metrics.Plans.WithLabelValues(p.Backend, string(p.Operation), string(p.Status)).Inc()
	e.log.Error().Err(err).Str("plan", p.ID).Msg("plan failed")
	if jerr := e.savePlan(ctx, p); jerr != nil {
		e.log.Error().Err(jerr).Str("plan", p.ID).Msg("failed to journal plan failure")
	}
}

func (e *Engine) savePlan(ctx context.Context, p *plan.Plan) error {
	if e.journal == nil {
		return nil
	}
	// the plan must be recorded even if the caller's context is gone
	if err := e.journal.UpdatePlan(context.WithoutCancel(ctx), p); err != nil {
		return errors.Wrap(err, "journal plan")
	}
	return nil
}

func (e *Engine) saveStep(ctx context.Context, planID string, step plan.Step) error {
	if e.journal == nil {
		return nil
	}
	if err := e.journal.UpdateStep(context.WithoutCancel(ctx), planID, step); err != nil {
		return errors.Wrapf(err, "journal step %d", step.Index)
	}
	return nil
}
