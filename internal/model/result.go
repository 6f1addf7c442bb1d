package model

import "fmt"

// Outcome classifies how one unit of work (a scan pair, an alert) ended.
type Outcome int

const (
	OutcomeOK    Outcome = iota // work done, Value is meaningful
	OutcomeSkip                 // nothing to do this cycle, not an error
	OutcomeFatal                // failed for this item only
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkip:
		return "skip"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the per-item return value of the detector and the matcher.
// Callers branch on Outcome instead of recovering from panics or inspecting errors.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Reason  string
	Err     error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Outcome: OutcomeOK, Value: v}
}

// Skip reports that the item was intentionally not processed.
func Skip[T any](format string, args ...any) Result[T] {
	return Result[T]{Outcome: OutcomeSkip, Reason: fmt.Sprintf(format, args...)}
}

// Fatal reports that the item failed. The owning loop logs it and moves on.
func Fatal[T any](err error) Result[T] {
	return Result[T]{Outcome: OutcomeFatal, Err: err, Reason: err.Error()}
}
