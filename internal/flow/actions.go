package flow

import (
	"context"
	"log"
	"time"

	"github.com/radionest/clarinet/internal/store"
)

// ActionKind distinguishes the three action types §4.F permits.
type ActionKind string

const (
	ActionCreateRecord ActionKind = "create_record"
	ActionUpdateRecord ActionKind = "update_record"
	ActionCallFunction ActionKind = "call_function"
)

// Action is one step a flow branch dispatches.
type Action struct {
	Kind ActionKind

	// create_record / update_record
	RecordTypeName string // target for create_record
	RecordName     string // context key to update_record
	SeriesUID      *string
	UserID         *string
	Info           *string
	Status         *store.RecordStatus

	// call_function
	FuncName string
	Args     []any
	Kwargs   map[string]any
}

// ActionFunc is a registered callable invoked by call_function actions.
// It receives the triggering record, the context built for this flow
// execution, and the action's args/kwargs. Work that must outlive the
// action timeout should start its own goroutine; the executor does not
// block on it beyond ActionTimeout.
type ActionFunc func(ctx context.Context, trigger *store.Record, flowCtx Context, args []any, kwargs map[string]any) error

// ActionExecutor is the thin adapter translating flow.Action values
// into store calls and registered callables, grounded on
// internal/orders/processor.go's Process: look up by declared type,
// invoke, log-and-continue on error.
type ActionExecutor struct {
	store         *store.DB
	handlers      map[string]ActionFunc
	actionTimeout time.Duration
}

// NewActionExecutor constructs an executor backed by db. actionTimeout
// bounds each call_function invocation; zero means no deadline beyond
// the caller's context.
func NewActionExecutor(db *store.DB, actionTimeout time.Duration) *ActionExecutor {
	return &ActionExecutor{
		store:         db,
		handlers:      make(map[string]ActionFunc),
		actionTimeout: actionTimeout,
	}
}

// RegisterHandler adds or replaces the callable registered under name.
func (e *ActionExecutor) RegisterHandler(name string, fn ActionFunc) {
	e.handlers[name] = fn
}

// Dispatch executes a single action. Errors are logged and never
// propagated: a failing action must not abort its flow's remaining
// actions.
func (e *ActionExecutor) Dispatch(ctx context.Context, a Action, flowCtx Context, trigger *store.Record) {
	var err error
	switch a.Kind {
	case ActionCreateRecord:
		err = e.createRecord(ctx, a, trigger)
	case ActionUpdateRecord:
		err = e.updateRecord(ctx, a, flowCtx)
	case ActionCallFunction:
		err = e.callFunction(ctx, a, flowCtx, trigger)
	default:
		log.Printf("[flow] unknown action kind %q", a.Kind)
		return
	}
	if err != nil {
		log.Printf("[flow] action %s failed: %v", a.Kind, err)
	}
}

// createRecord builds a new record of a.RecordTypeName, inheriting
// patient_id, study_uid and series_uid from the triggering record for
// any field the action did not explicitly supply.
func (e *ActionExecutor) createRecord(ctx context.Context, a Action, trigger *store.Record) error {
	rec := &store.Record{
		PatientID:      trigger.PatientID,
		StudyUID:       trigger.StudyUID,
		SeriesUID:      trigger.SeriesUID,
		RecordTypeName: a.RecordTypeName,
		Status:         store.StatusPending,
	}
	if a.SeriesUID != nil {
		rec.SeriesUID = a.SeriesUID
	}
	if a.UserID != nil {
		rec.UserID = a.UserID
	}
	if a.Info != nil {
		rec.ContextInfo = a.Info
	}

	rt, err := e.store.RecordTypes.Get(ctx, a.RecordTypeName)
	if err != nil {
		return err
	}
	_, err = e.store.Records.CreateWithRelations(ctx, rec, rt.Level)
	return err
}

// updateRecord applies a status override to the record named
// a.RecordName within the current flow context.
func (e *ActionExecutor) updateRecord(ctx context.Context, a Action, flowCtx Context) error {
	rec, ok := flowCtx[a.RecordName]
	if !ok {
		log.Printf("[flow] update_record: %q not present in context", a.RecordName)
		return nil
	}
	if a.Status == nil {
		return nil
	}
	_, _, err := e.store.Records.UpdateStatus(ctx, rec.ID, *a.Status)
	return err
}

// callFunction invokes the registered handler for a.FuncName, passing
// the triggering record and the flow context as arguments alongside the
// action's args and kwargs (kwargs itself is passed through unchanged).
func (e *ActionExecutor) callFunction(ctx context.Context, a Action, flowCtx Context, trigger *store.Record) error {
	fn, ok := e.handlers[a.FuncName]
	if !ok {
		log.Printf("[flow] call_function: no handler registered for %q", a.FuncName)
		return nil
	}

	kwargs := a.Kwargs
	if kwargs == nil {
		kwargs = make(map[string]any)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if e.actionTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
	}
	return fn(callCtx, trigger, flowCtx, a.Args, kwargs)
}
