package dataguard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oarkflow/dataguard/utils"
)

// ============================================================================
// ROW CONDITION EVALUATION
// ============================================================================

// Operator is the comparison applied by a RowCondition. The operator
// vocabulary is intentionally closed; there is no nested boolean logic beyond
// AND-within-rule and OR-across-rules.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

func validOperator(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// compiledCondition is a RowCondition with its placeholder path (if any)
// split once at policy registration time, so evaluation never parses strings.
type compiledCondition struct {
	field   string
	op      Operator
	literal any      // nil when the condition references the context
	path    []string // placeholder path segments, e.g. ["user", "department"]
}

// compileCondition precompiles the condition value. A string value of the
// form "{path.to.value}" becomes a context lookup; everything else is kept as
// a literal.
func compileCondition(rc RowCondition) compiledCondition {
	cc := compiledCondition{field: rc.Field, op: rc.Operator}
	if s, ok := rc.Value.(string); ok && len(s) > 2 && s[0] == '{' && s[len(s)-1] == '}' {
		cc.path = utils.SplitPath(s[1 : len(s)-1])
		return cc
	}
	cc.literal = rc.Value
	return cc
}

// eval evaluates the condition against one row and the caller context. Any
// malformed input (unknown operator, unresolvable placeholder, uncoercible
// types) evaluates to false rather than failing the whole filter pass; the
// engine logs these as configuration warnings.
func (c compiledCondition) eval(row Record, evalCtx Context) (ok bool, malformed string) {
	if !validOperator(c.op) {
		return false, "unknown operator: " + string(c.op)
	}
	actual, present := row[c.field]
	if !present {
		return false, ""
	}
	expected := c.literal
	if c.path != nil {
		v, found := utils.LookupPath(evalCtx, c.path)
		if !found {
			return false, "context path not found: " + strings.Join(c.path, ".")
		}
		expected = v
	}

	switch c.op {
	case OpEq:
		cmp, comparable := coerceCompare(actual, expected)
		return comparable && cmp == 0, ""
	case OpNeq:
		cmp, comparable := coerceCompare(actual, expected)
		return comparable && cmp != 0, ""
	case OpGt:
		cmp, comparable := coerceCompare(actual, expected)
		if !comparable {
			return false, "incomparable values for gt"
		}
		return cmp > 0, ""
	case OpLt:
		cmp, comparable := coerceCompare(actual, expected)
		if !comparable {
			return false, "incomparable values for lt"
		}
		return cmp < 0, ""
	case OpContains:
		return strings.Contains(coerceString(actual), coerceString(expected)), ""
	case OpStartsWith:
		return strings.HasPrefix(coerceString(actual), coerceString(expected)), ""
	case OpEndsWith:
		return strings.HasSuffix(coerceString(actual), coerceString(expected)), ""
	}
	return false, ""
}

// coerceCompare compares two values with light type coercion: numbers of any
// width compare numerically (including numeric strings against numbers),
// strings and bools compare directly. The second return reports whether the
// pair was comparable at all.
func coerceCompare(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af == bf:
				return 0, true
			case af < bf:
				return -1, true
			}
			return 1, true
		}
	}
	switch av := a.(type) {
	case string:
		if bs, ok := b.(string); ok {
			return strings.Compare(av, bs), true
		}
	case bool:
		if bb, ok := b.(bool); ok {
			if av == bb {
				return 0, true
			}
			if !av {
				return -1, true
			}
			return 1, true
		}
	}
	// last resort: textual equality only
	if coerceString(a) == coerceString(b) {
		return 0, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
