package dataguard

import "testing"

func evalCond(t *testing.T, rc RowCondition, row Record, evalCtx Context) bool {
	t.Helper()
	ok, _ := compileCondition(rc).eval(row, evalCtx)
	return ok
}

func TestConditionOperators(t *testing.T) {
	row := Record{
		"department": "Sales",
		"headcount":  25,
		"email":      "lead@example.com",
		"active":     true,
	}
	cases := []struct {
		name string
		cond RowCondition
		want bool
	}{
		{"eq match", RowCondition{Field: "department", Operator: OpEq, Value: "Sales"}, true},
		{"eq mismatch", RowCondition{Field: "department", Operator: OpEq, Value: "Engineering"}, false},
		{"neq", RowCondition{Field: "department", Operator: OpNeq, Value: "Engineering"}, true},
		{"gt", RowCondition{Field: "headcount", Operator: OpGt, Value: 10}, true},
		{"lt false", RowCondition{Field: "headcount", Operator: OpLt, Value: 10}, false},
		{"numeric string coercion", RowCondition{Field: "headcount", Operator: OpGt, Value: "10"}, true},
		{"bool eq", RowCondition{Field: "active", Operator: OpEq, Value: true}, true},
		{"contains", RowCondition{Field: "email", Operator: OpContains, Value: "@example"}, true},
		{"startsWith", RowCondition{Field: "email", Operator: OpStartsWith, Value: "lead"}, true},
		{"endsWith", RowCondition{Field: "email", Operator: OpEndsWith, Value: ".com"}, true},
	}
	for _, tc := range cases {
		if got := evalCond(t, tc.cond, row, nil); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestConditionContextPlaceholder(t *testing.T) {
	cond := RowCondition{Field: "department", Operator: OpEq, Value: "{user.department}"}
	evalCtx := Context{"user": map[string]any{"department": "Sales"}}

	if !evalCond(t, cond, Record{"department": "Sales"}, evalCtx) {
		t.Fatalf("row in caller's department must pass")
	}
	if evalCond(t, cond, Record{"department": "Engineering"}, evalCtx) {
		t.Fatalf("row outside caller's department must fail")
	}
}

func TestConditionMissingContextPathIsFalse(t *testing.T) {
	cond := RowCondition{Field: "department", Operator: OpEq, Value: "{user.division}"}
	ok, malformed := compileCondition(cond).eval(Record{"department": "Sales"}, Context{"user": map[string]any{}})
	if ok {
		t.Fatalf("unresolvable placeholder must evaluate false")
	}
	if malformed == "" {
		t.Fatalf("expected configuration warning detail")
	}
}

func TestConditionMissingRowFieldIsFalse(t *testing.T) {
	cond := RowCondition{Field: "region", Operator: OpEq, Value: "EU"}
	if evalCond(t, cond, Record{"department": "Sales"}, nil) {
		t.Fatalf("missing row field must evaluate false")
	}
}

func TestConditionUnknownOperatorIsFalseNotPanic(t *testing.T) {
	cond := RowCondition{Field: "department", Operator: "matches", Value: "S.*"}
	ok, malformed := compileCondition(cond).eval(Record{"department": "Sales"}, nil)
	if ok {
		t.Fatalf("unknown operator must evaluate false")
	}
	if malformed == "" {
		t.Fatalf("unknown operator should be flagged as malformed")
	}
}

func TestConditionIncomparableTypesAreFalse(t *testing.T) {
	cond := RowCondition{Field: "headcount", Operator: OpGt, Value: []string{"not", "a", "number"}}
	ok, malformed := compileCondition(cond).eval(Record{"headcount": 10}, nil)
	if ok {
		t.Fatalf("uncoercible comparison must evaluate false")
	}
	if malformed == "" {
		t.Fatalf("uncoercible comparison should be flagged")
	}
}

func TestConditionEvaluationIsPure(t *testing.T) {
	cond := RowCondition{Field: "department", Operator: OpEq, Value: "{user.department}"}
	row := Record{"department": "Sales"}
	evalCtx := Context{"user": map[string]any{"department": "Sales"}}
	compiled := compileCondition(cond)
	for i := 0; i < 100; i++ {
		ok, _ := compiled.eval(row, evalCtx)
		if !ok {
			t.Fatalf("identical inputs must always yield identical results (iteration %d)", i)
		}
	}
}
