package flow

import (
	"context"
	"log"
	"sync"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/store"
)

// Branch is one conditional step of a flow body: a condition plus the
// actions to dispatch when it matches. Else() is valid only as the
// last branch of a flow.
type Branch struct {
	Condition Expr
	Actions   []Action
}

// Flow binds a body of unconditional actions and conditional branches
// to a record type and, optionally, a single triggering status.
type Flow struct {
	Name          string
	RecordType    string
	StatusTrigger *store.RecordStatus // nil matches every status transition
	Unconditional []Action
	Branches      []Branch
}

// Engine holds the registered flows and dispatches them whenever a
// record's status changes, grounded structurally on l1_engine.go's
// Engine: a mutex-guarded registry grouped by a lookup key, matched in
// registration order.
type Engine struct {
	mu    sync.RWMutex
	flows map[string][]*Flow // keyed by RecordType

	store    *store.DB
	executor *ActionExecutor
}

// New constructs an Engine backed by db for context loading and action
// dispatch, and executor for running registered actions.
func New(db *store.DB, executor *ActionExecutor) *Engine {
	return &Engine{
		flows:    make(map[string][]*Flow),
		store:    db,
		executor: executor,
	}
}

// RegisterFlow validates f and adds it to the registry. Validation
// requires every non-else branch to carry at least one action; an
// invalid flow is rejected and never reaches dispatch.
func (e *Engine) RegisterFlow(f *Flow) error {
	for i, b := range f.Branches {
		if isElse(b.Condition) {
			if i != len(f.Branches)-1 {
				return clarineterr.Validationf("flow %q: else branch must be last", f.Name)
			}
			continue
		}
		if len(b.Actions) == 0 {
			return clarineterr.Validationf("flow %q: branch %d has no actions", f.Name, i)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.flows[f.RecordType] = append(e.flows[f.RecordType], f)
	return nil
}

// HandleRecordStatusChange is the engine's single entry point, called
// whenever a record's status transitions from oldStatus. It looks up
// every flow registered for the record's type whose status_trigger is
// nil or equal to the new status, builds a context, and dispatches
// each matching flow in registration order.
func (e *Engine) HandleRecordStatusChange(ctx context.Context, rec *store.Record, oldStatus store.RecordStatus) {
	e.mu.RLock()
	flows := append([]*Flow(nil), e.flows[rec.RecordTypeName]...)
	e.mu.RUnlock()

	if len(flows) == 0 {
		return
	}

	flowCtx := e.buildContext(ctx, rec)

	for _, f := range flows {
		if f.StatusTrigger != nil && *f.StatusTrigger != rec.Status {
			continue
		}
		e.runFlow(ctx, f, flowCtx, rec)
	}
}

// buildContext assembles the mapping from record-type-name to the
// latest record of that type in scope: every record sharing the
// study is loaded first, then overlaid by every record sharing the
// series (series-scoped records win on type collision), then the
// triggering record itself is inserted last so it always reflects the
// post-transition state regardless of load-order races.
func (e *Engine) buildContext(ctx context.Context, rec *store.Record) Context {
	out := make(Context)

	if rec.StudyUID != nil {
		studyRecords, err := e.store.Records.FindByCriteria(ctx, store.RecordSearchCriteria{StudyUID: rec.StudyUID})
		if err != nil {
			log.Printf("[flow] load study context for record %d: %v", rec.ID, err)
		}
		for _, r := range studyRecords {
			out[r.RecordTypeName] = r
		}
	}
	if rec.SeriesUID != nil {
		seriesRecords, err := e.store.Records.FindByCriteria(ctx, store.RecordSearchCriteria{SeriesUID: rec.SeriesUID})
		if err != nil {
			log.Printf("[flow] load series context for record %d: %v", rec.ID, err)
		}
		for _, r := range seriesRecords {
			out[r.RecordTypeName] = r
		}
	}

	out[rec.RecordTypeName] = rec
	return out
}

// runFlow dispatches one matching flow's body: unconditional actions
// first, then branches in order with else semantics.
func (e *Engine) runFlow(ctx context.Context, f *Flow, flowCtx Context, trigger *store.Record) {
	for _, a := range f.Unconditional {
		e.executor.Dispatch(ctx, a, flowCtx, trigger)
	}

	prevMatched := false
	for _, b := range f.Branches {
		if isElse(b.Condition) {
			if !prevMatched {
				for _, a := range b.Actions {
					e.executor.Dispatch(ctx, a, flowCtx, trigger)
				}
			}
			return // evaluation stops after an else branch, matched or not
		}

		matched, err := b.Condition.eval(flowCtx)
		if err != nil {
			log.Printf("[flow] %s: branch condition error: %v", f.Name, err)
			matched = false
		}
		if matched {
			for _, a := range b.Actions {
				e.executor.Dispatch(ctx, a, flowCtx, trigger)
			}
		}
		prevMatched = matched
	}
}

func statusPtr(s store.RecordStatus) *store.RecordStatus { return &s }

// OnStatus builds the *store.RecordStatus pointer a Flow.StatusTrigger
// needs, a small convenience since Go has no literal-address-of for
// constants.
func OnStatus(s store.RecordStatus) *store.RecordStatus { return statusPtr(s) }
