package timefmt

import (
	"strings"
	"time"
)

// Layout is the on-disk timestamp format: UTC, second precision.
const Layout = "2006-01-02T15:04:05Z"

var sgt = time.FixedZone("SGT", 8*60*60)

// Format renders t in Layout.
func Format(t time.Time) string { return t.UTC().Format(Layout) }

// Parse reads a stored timestamp. Blank or malformed input reports false.
func Parse(s string) (time.Time, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(Layout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SGT converts a stored UTC timestamp to "02-Jan-2006 15:04:05 SGT".
// Blank input gives "", anything unparseable is returned trimmed.
func SGT(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	t, ok := Parse(raw)
	if !ok {
		return raw
	}
	return t.In(sgt).Format("02-Jan-2006 15:04:05") + " SGT"
}

// SGTPtr is SGT for nullable columns.
func SGTPtr(s *string) string {
	if s == nil {
		return ""
	}
	return SGT(*s)
}
