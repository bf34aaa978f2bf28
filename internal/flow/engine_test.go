package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/store"
)

func TestRegisterFlowRejectsEmptyBranch(t *testing.T) {
	e := New(nil, NewActionExecutor(nil, 0))
	err := e.RegisterFlow(&Flow{
		Name:       "bad",
		RecordType: "order",
		Branches: []Branch{
			{Condition: FieldRef("order", "x").Eq("y"), Actions: nil},
		},
	})
	require.Error(t, err, "expected validation error for a branch with no actions")
}

func TestRegisterFlowRejectsElseNotLast(t *testing.T) {
	e := New(nil, NewActionExecutor(nil, 0))
	err := e.RegisterFlow(&Flow{
		Name:       "bad",
		RecordType: "order",
		Branches: []Branch{
			{Condition: Else(), Actions: []Action{{Kind: ActionCallFunction, FuncName: "noop"}}},
			{Condition: FieldRef("order", "x").Eq("y"), Actions: []Action{{Kind: ActionCallFunction, FuncName: "noop"}}},
		},
	})
	require.Error(t, err, "expected validation error when else is not the last branch")
}

func TestRegisterFlowAcceptsValidBody(t *testing.T) {
	e := New(nil, NewActionExecutor(nil, 0))
	err := e.RegisterFlow(&Flow{
		Name:       "good",
		RecordType: "order",
		Branches: []Branch{
			{Condition: FieldRef("order", "x").Eq("y"), Actions: []Action{{Kind: ActionCallFunction, FuncName: "noop"}}},
			{Condition: Else(), Actions: []Action{{Kind: ActionCallFunction, FuncName: "noop"}}},
		},
	})
	require.NoError(t, err, "expected valid flow to register")
}

func TestRunFlowDispatchesElseOnlyWhenPreviousBranchFailed(t *testing.T) {
	executor := NewActionExecutor(nil, 0)
	var called []string
	executor.RegisterHandler("mark", func(_ context.Context, _ *store.Record, _ Context, args []any, _ map[string]any) error {
		called = append(called, args[0].(string))
		return nil
	})

	e := New(nil, executor)
	f := &Flow{
		Name:       "f",
		RecordType: "order",
		Branches: []Branch{
			{
				Condition: FieldRef("order", "modality").Eq("MR"), // false
				Actions:   []Action{{Kind: ActionCallFunction, FuncName: "mark", Args: []any{"branch"}}},
			},
			{
				Condition: Else(),
				Actions:   []Action{{Kind: ActionCallFunction, FuncName: "mark", Args: []any{"else"}}},
			},
		},
	}
	require.NoError(t, e.RegisterFlow(f))

	trigger := &store.Record{ID: 1, RecordTypeName: "order", Data: []byte(`{"modality":"CT"}`)}
	flowCtx := Context{"order": trigger}
	e.runFlow(context.Background(), f, flowCtx, trigger)

	require.Equal(t, []string{"else"}, called, "expected only the else branch to fire")
}

func TestRunFlowStopsDispatchAfterElse(t *testing.T) {
	executor := NewActionExecutor(nil, 0)
	var calls int
	executor.RegisterHandler("count", func(context.Context, *store.Record, Context, []any, map[string]any) error {
		calls++
		return nil
	})

	e := New(nil, executor)
	f := &Flow{
		Name:       "f",
		RecordType: "order",
		Branches: []Branch{
			{Condition: Else(), Actions: []Action{{Kind: ActionCallFunction, FuncName: "count"}}},
		},
	}
	require.NoError(t, e.RegisterFlow(f))

	trigger := &store.Record{ID: 1, RecordTypeName: "order", Data: []byte(`{}`)}
	e.runFlow(context.Background(), f, Context{"order": trigger}, trigger)

	require.Equal(t, 1, calls, "expected else branch to fire exactly once")
}

func TestRunFlowDispatchesUnconditionalActionsFirst(t *testing.T) {
	executor := NewActionExecutor(nil, 0)
	var order []string
	executor.RegisterHandler("mark", func(_ context.Context, _ *store.Record, _ Context, args []any, _ map[string]any) error {
		order = append(order, args[0].(string))
		return nil
	})

	e := New(nil, executor)
	f := &Flow{
		Name:          "f",
		RecordType:    "order",
		Unconditional: []Action{{Kind: ActionCallFunction, FuncName: "mark", Args: []any{"unconditional"}}},
		Branches: []Branch{
			{Condition: Else(), Actions: []Action{{Kind: ActionCallFunction, FuncName: "mark", Args: []any{"else"}}}},
		},
	}
	require.NoError(t, e.RegisterFlow(f))

	trigger := &store.Record{ID: 1, RecordTypeName: "order", Data: []byte(`{}`)}
	e.runFlow(context.Background(), f, Context{"order": trigger}, trigger)

	require.Equal(t, []string{"unconditional", "else"}, order)
}
