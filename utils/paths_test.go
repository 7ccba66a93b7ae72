package utils

import (
	"reflect"
	"testing"
)

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"user.department", []string{"user", "department"}},
		{"user", []string{"user"}},
		{"user..department", []string{"user", "department"}},
		{".user.department.", []string{"user", "department"}},
		{" user . department ", []string{"user", "department"}},
		{"", nil},
		{"...", nil},
	}
	for _, tc := range cases {
		got := SplitPath(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitPath(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLookupPath(t *testing.T) {
	ctx := map[string]any{
		"user": map[string]any{
			"department": "Sales",
			"attrs":      map[string]string{"region": "EU"},
		},
		"tenant": "acme",
	}

	if v, ok := LookupPath(ctx, []string{"user", "department"}); !ok || v != "Sales" {
		t.Fatalf("nested lookup: %v %v", v, ok)
	}
	if v, ok := LookupPath(ctx, []string{"tenant"}); !ok || v != "acme" {
		t.Fatalf("top-level lookup: %v %v", v, ok)
	}
	if v, ok := LookupPath(ctx, []string{"user", "attrs", "region"}); !ok || v != "EU" {
		t.Fatalf("string map lookup: %v %v", v, ok)
	}
	if _, ok := LookupPath(ctx, []string{"user", "division"}); ok {
		t.Fatalf("missing segment must report false")
	}
	if _, ok := LookupPath(ctx, []string{"tenant", "name"}); ok {
		t.Fatalf("non-map intermediate must report false")
	}
	if _, ok := LookupPath(ctx, nil); ok {
		t.Fatalf("empty path must report false")
	}
	if _, ok := LookupPath(nil, []string{"user"}); ok {
		t.Fatalf("nil context must report false")
	}
}
