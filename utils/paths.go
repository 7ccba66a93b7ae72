package utils

import "strings"

// SplitPath splits a dot-separated context path ("user.department") into its
// segments. Empty segments produced by leading, trailing or doubled dots are
// dropped so "user..department" and "user.department" compile identically.
func SplitPath(path string) []string {
	parts := strings.Split(path, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LookupPath walks nested string-keyed maps by the given segments and returns
// the value at the end of the path. Any missing segment or non-map
// intermediate yields (nil, false). Both map[string]any and
// map[string]string intermediates are supported, since contexts often arrive
// from JSON decoding or from hand-built literals.
func LookupPath(m map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return nil, false
	}
	var cur any = m
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}
