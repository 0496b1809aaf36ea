package model

import (
	"strings"
	"time"
)

// DateLayout is the canonical date form value layout.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	DateLayout,
	"2006/01/02",
}

// ParseDate interprets a fetched date value: layout strings, time.Time, or a
// number of milliseconds since the epoch.
func ParseDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// NormalizeDate renders value as YYYY-MM-DD in the zone it was written in.
// Missing or unparseable values yield "".
func NormalizeDate(value any) string {
	t, ok := ParseDate(value)
	if !ok {
		return ""
	}
	return t.Format(DateLayout)
}
