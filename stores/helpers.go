package stores

import (
	"time"

	"github.com/oarkflow/date"
)

// SQL drivers hand timestamps back in whatever shape the column produced;
// date.Parse accepts the common ones.
func parseFlexibleTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		parsed, err := date.Parse(t)
		if err != nil {
			return time.Time{}
		}
		return parsed
	case []byte:
		parsed, err := date.Parse(string(t))
		if err != nil {
			return time.Time{}
		}
		return parsed
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
