// Package sequence decides how a gate's door-scan progress moves when a scan
// matches one or more of its doors. Doors must be scanned in door_no order;
// any out-of-order scan discards progress.
package sequence

import "time"

// Kind is the transition a scan causes on a gate.
type Kind int

const (
	// Advance records the expected door and waits for the next one.
	Advance Kind = iota
	// Complete records the last door; the gate's sequence is done.
	Complete
	// Restart discards progress but keeps the scan as the first door.
	Restart
	// Reset discards progress entirely.
	Reset
)

func (k Kind) String() string {
	switch k {
	case Advance:
		return "advance"
	case Complete:
		return "complete"
	case Restart:
		return "restart"
	case Reset:
		return "reset"
	}
	return "unknown"
}

// Outcome is the result of Step.
type Outcome struct {
	Kind Kind
	// Door is the door_no recorded by this scan, 0 when nothing is recorded.
	Door int
	// Next is the 1-based position expected after this scan.
	Next int
}

// Step applies a scan that matched the doors in matched to a gate whose doors,
// in scan order, are required. expected is the 1-based position the gate is
// waiting on; out-of-range values are treated as 1.
func Step(required []int, expected int, matched map[int]bool) Outcome {
	n := len(required)
	if n == 0 {
		return Outcome{Kind: Reset, Next: 1}
	}
	if expected < 1 || expected > n {
		expected = 1
	}
	door := required[expected-1]
	if matched[door] {
		if expected >= n {
			return Outcome{Kind: Complete, Door: door, Next: 1}
		}
		return Outcome{Kind: Advance, Door: door, Next: expected + 1}
	}
	if first := required[0]; matched[first] {
		return Outcome{Kind: Restart, Door: first, Next: 2}
	}
	return Outcome{Kind: Reset, Next: 1}
}

// Elapsed returns whole seconds from first to current, never negative.
func Elapsed(first, current time.Time) int {
	d := int(current.Sub(first) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// RedCard reports whether the second door of a two-door gate came too late.
func RedCard(elapsed int, limit time.Duration) bool {
	return time.Duration(elapsed)*time.Second > limit
}
