package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/store"
)

func TestDispatchCallFunctionPassesTriggerAndContext(t *testing.T) {
	executor := NewActionExecutor(nil, 0)
	trigger := &store.Record{ID: 42, RecordTypeName: "order"}
	flowCtx := Context{"order": trigger}

	var gotTrigger *store.Record
	var gotCtx Context
	executor.RegisterHandler("inspect", func(_ context.Context, rec *store.Record, ctx Context, _ []any, _ map[string]any) error {
		gotTrigger = rec
		gotCtx = ctx
		return nil
	})

	executor.Dispatch(context.Background(), Action{Kind: ActionCallFunction, FuncName: "inspect"}, flowCtx, trigger)

	require.Same(t, trigger, gotTrigger, "expected the triggering record to be injected")
	require.Same(t, trigger, gotCtx["order"], "expected the flow context to be passed through")
}

func TestDispatchCallFunctionUnknownHandlerDoesNotPanic(t *testing.T) {
	executor := NewActionExecutor(nil, 0)
	trigger := &store.Record{ID: 1, RecordTypeName: "order"}

	executor.Dispatch(context.Background(), Action{Kind: ActionCallFunction, FuncName: "missing"}, Context{}, trigger)
	// no assertion beyond "did not panic": unknown handlers are logged and skipped.
}

func TestDispatchCallFunctionRespectsActionTimeout(t *testing.T) {
	executor := NewActionExecutor(nil, 10*time.Millisecond)
	trigger := &store.Record{ID: 1, RecordTypeName: "order"}

	var deadlineErr error
	executor.RegisterHandler("slow", func(ctx context.Context, _ *store.Record, _ Context, _ []any, _ map[string]any) error {
		<-ctx.Done()
		deadlineErr = ctx.Err()
		return ctx.Err()
	})

	executor.Dispatch(context.Background(), Action{Kind: ActionCallFunction, FuncName: "slow"}, Context{}, trigger)

	require.ErrorIs(t, deadlineErr, context.DeadlineExceeded, "expected the action's context to be cancelled by the configured timeout")
}

func TestDispatchUpdateRecordMissingFromContextIsNoOp(t *testing.T) {
	executor := NewActionExecutor(nil, 0)
	trigger := &store.Record{ID: 1, RecordTypeName: "order"}

	executor.Dispatch(context.Background(), Action{Kind: ActionUpdateRecord, RecordName: "missing"}, Context{}, trigger)
	// no assertion beyond "did not panic": a record absent from context is logged and skipped.
}
