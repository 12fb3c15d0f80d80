// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logaggregator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

// conditionCompiler precompiles structured-query conjunctions into expr
// programs, cached by expression string so repeated queries skip
// compilation.
type conditionCompiler struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

var compiler = conditionCompiler{programs: make(map[string]*vm.Program)}

func (c *conditionCompiler) compile(expression string) (*vm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	p, err := expr.Compile(expression, expr.Env(map[string]any{}), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	c.programs[expression] = p
	return p, nil
}

var opExprTemplates = map[string]string{
	"=":          "%s == %s",
	"==":         "%s == %s",
	"≠":          "%s != %s",
	"!=":         "%s != %s",
	"<":          "%s < %s",
	"≤":          "%s <= %s",
	"<=":         "%s <= %s",
	">":          "%s > %s",
	"≥":          "%s >= %s",
	">=":         "%s >= %s",
	"contains":   "%s contains %s",
	"startsWith": "%s startsWith %s",
	"endsWith":   "%s endsWith %s",
}

// compileConditions translates a conjunction of {field, op, value} clauses
// into one expr expression, one precompiled program per distinct
// expression string.
func compileConditions(conditions []Condition) (*vm.Program, error) {
	if len(conditions) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(conditions))
	for _, c := range conditions {
		tmpl, ok := opExprTemplates[c.Op]
		if !ok {
			return nil, cerrors.New(cerrors.InvalidParameter, "unsupported structured query operator: "+c.Op, map[string]any{"op": c.Op})
		}
		fieldRef := fmt.Sprintf("attrs[%q]", c.Field)
		valueLiteral, numeric := literalFor(c.Value)
		if isNumericOp(c.Op) && !numeric {
			return nil, cerrors.New(cerrors.InvalidParameter, "numeric operator requires numeric operands", map[string]any{"field": c.Field, "op": c.Op})
		}
		clause := fmt.Sprintf(tmpl, fieldRef, valueLiteral)
		if c.Op != "=" && c.Op != "==" && c.Op != "≠" && c.Op != "!=" {
			// Ordered and string operators error on an absent (nil) field;
			// an entry without the field simply does not match.
			clause = fmt.Sprintf("%s != nil and (%s)", fieldRef, clause)
		}
		clauses = append(clauses, "("+clause+")")
	}

	expression := strings.Join(clauses, " and ")
	return compiler.compile(expression)
}

func isNumericOp(op string) bool {
	switch op {
	case "<", "≤", "<=", ">", "≥", ">=":
		return true
	default:
		return false
	}
}

func literalFor(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val), false
	case bool:
		return strconv.FormatBool(val), false
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return strconv.Quote(fmt.Sprint(val)), false
	}
}

// flatten projects an entry into the attribute map structured query
// conditions address, supporting both top-level fields and metadata.<name>
// paths.
func flatten(e *Entry) map[string]any {
	attrs := map[string]any{
		"id":         e.ID,
		"functionId": e.FunctionID,
		"level":      string(e.Level),
		"message":    e.Message,
		"requestId":  e.RequestID,
		"timestamp":  e.Timestamp.UnixMilli(),
	}
	if e.DurationMs != nil {
		attrs["durationMs"] = float64(*e.DurationMs)
	}
	for k, v := range e.Metadata {
		attrs["metadata."+k] = v
	}
	return attrs
}

// StructuredQuery evaluates a conjunction of field/op/value conditions
// against functionID's entries (or every entry, if functionID is empty).
func (a *Aggregator) StructuredQuery(conditions []Condition, functionID string, limit int) ([]Entry, error) {
	program, err := compileConditions(conditions)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}

	var source []*Entry
	if functionID != "" {
		source = a.sortedByFunction(functionID)
	} else {
		source = a.sortedAll()
	}

	var out []Entry
	for _, e := range source {
		if program == nil {
			out = append(out, e.clone())
		} else {
			env := map[string]any{"attrs": flatten(e)}
			result, err := expr.Run(program, env)
			if err != nil {
				return nil, fmt.Errorf("cascade: evaluate structured query: %w", err)
			}
			ok, _ := result.(bool)
			if ok {
				out = append(out, e.clone())
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
