package runner

import (
	"fmt"

	"rigor/internal/outcome"
)

// AbortError stops the remaining non-cleanup phases of an instance and
// records Outcome with Reason.
type AbortError struct {
	Outcome outcome.Outcome
	Reason  string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted (%s): %s", e.Outcome, e.Reason)
}

// Abort returns an AbortError recording o. An invalid o records FAILED.
func Abort(o outcome.Outcome, format string, args ...any) error {
	if !o.Valid() {
		o = outcome.Failed
	}
	return &AbortError{Outcome: o, Reason: fmt.Sprintf(format, args...)}
}

// Skip stops the instance and records SKIPPED.
func Skip(format string, args ...any) error {
	return &AbortError{Outcome: outcome.Skipped, Reason: fmt.Sprintf(format, args...)}
}
