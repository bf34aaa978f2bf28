// Package flow implements the record-flow engine (§4.F/§4.G): a
// deterministic DSL for "when a record's status changes, conditionally
// create/update records or call back into application code", and the
// engine that evaluates it against an entity-store context.
package flow

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/radionest/clarinet/internal/store"
)

// Context maps a record-type-name to the record of that type currently
// in scope for a flow evaluation.
type Context map[string]*store.Record

// Expr is a condition in the flow DSL: an immutable tagged-variant
// expression tree built via the chained constructors below, mirroring
// the value-comparison shape of internal/healing/l1_engine.go's
// RuleCondition but generalized from a flat data map to record-typed
// field references resolved against a Context.
type Expr interface {
	eval(ctx Context) (bool, error)
}

// Field references a JSON path inside a named record's data.
type Field struct {
	RecordName string
	Path       string
}

// FieldRef builds a Field for use with the comparison builders below.
func FieldRef(recordName, path string) Field { return Field{RecordName: recordName, Path: path} }

func (f Field) resolve(ctx Context) (any, bool) {
	rec, ok := ctx[f.RecordName]
	if !ok {
		return nil, false
	}
	return walkJSONPath(rec.Data, f.Path)
}

// compareOp is the set of comparison operators the DSL supports.
type compareOp string

const (
	opEq compareOp = "=="
	opNe compareOp = "!="
	opLt compareOp = "<"
	opLe compareOp = "<="
	opGt compareOp = ">"
	opGe compareOp = ">="
)

// comparison is a leaf expression comparing a field against a constant
// or another field.
type comparison struct {
	left  Field
	op    compareOp
	right any // either a Go scalar constant or a Field
}

func (c comparison) eval(ctx Context) (bool, error) {
	left, ok := c.left.resolve(ctx)
	if !ok {
		// unresolved path: logged and treated as false; eval returns no error
		log.Printf("[flow] unresolved field %s.%s; condition treated as false", c.left.RecordName, c.left.Path)
		return false, nil
	}
	right := c.right
	if rf, ok := c.right.(Field); ok {
		v, ok := rf.resolve(ctx)
		if !ok {
			log.Printf("[flow] unresolved field %s.%s; condition treated as false", rf.RecordName, rf.Path)
			return false, nil
		}
		right = v
	}

	switch c.op {
	case opEq:
		return valuesEqual(left, right), nil
	case opNe:
		return !valuesEqual(left, right), nil
	case opLt, opLe, opGt, opGe:
		lf, lok := toFloat(left)
		rf, rok := toFloat(right)
		if !lok || !rok {
			return false, nil
		}
		switch c.op {
		case opLt:
			return lf < rf, nil
		case opLe:
			return lf <= rf, nil
		case opGt:
			return lf > rf, nil
		case opGe:
			return lf >= rf, nil
		}
	}
	return false, nil
}

// Eq builds an equality comparison against a constant or another Field.
func (f Field) Eq(v any) Expr { return comparison{left: f, op: opEq, right: v} }

// Ne builds an inequality comparison.
func (f Field) Ne(v any) Expr { return comparison{left: f, op: opNe, right: v} }

// Lt builds a less-than comparison.
func (f Field) Lt(v any) Expr { return comparison{left: f, op: opLt, right: v} }

// Le builds a less-than-or-equal comparison.
func (f Field) Le(v any) Expr { return comparison{left: f, op: opLe, right: v} }

// Gt builds a greater-than comparison.
func (f Field) Gt(v any) Expr { return comparison{left: f, op: opGt, right: v} }

// Ge builds a greater-than-or-equal comparison.
func (f Field) Ge(v any) Expr { return comparison{left: f, op: opGe, right: v} }

type andExpr struct{ left, right Expr }

func (e andExpr) eval(ctx Context) (bool, error) {
	l, err := e.left.eval(ctx)
	if err != nil || !l {
		return false, err
	}
	return e.right.eval(ctx)
}

// And combines two expressions, short-circuiting on a false left side.
func And(left, right Expr) Expr { return andExpr{left, right} }

type orExpr struct{ left, right Expr }

func (e orExpr) eval(ctx Context) (bool, error) {
	l, err := e.left.eval(ctx)
	if err != nil || l {
		return l, err
	}
	return e.right.eval(ctx)
}

// Or combines two expressions, short-circuiting on a true left side.
func Or(left, right Expr) Expr { return orExpr{left, right} }

// elseExpr always evaluates true; valid only as a branch's condition
// when that branch is the final one in a flow.
type elseExpr struct{}

func (elseExpr) eval(Context) (bool, error) { return true, nil }

// Else is the sentinel condition for a flow's trailing default branch.
func Else() Expr { return elseExpr{} }

func isElse(e Expr) bool {
	_, ok := e.(elseExpr)
	return ok
}

// walkJSONPath walks a dot-separated path through a JSON-encoded
// record payload, mirroring l1_engine.go's getFieldValue but starting
// from raw JSON bytes instead of an already-decoded map.
func walkJSONPath(raw []byte, path string) (any, bool) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false
	}
	current := data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func valuesEqual(a, b any) bool {
	if ab, aOK := a.(bool); aOK {
		if bb, bOK := b.(bool); bOK {
			return ab == bb
		}
	}
	if af, aOK := toFloat(a); aOK {
		if bf, bOK := toFloat(b); bOK {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
