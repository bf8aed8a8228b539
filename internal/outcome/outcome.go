// Package outcome defines test outcomes and reduces the events an instance
// records into its final result.
package outcome

import (
	"fmt"
	"strings"
)

// Outcome is the classified result of a test instance. The zero value is
// invalid; use the declared constants.
type Outcome uint8

// Declared from worst to best. Severity comparisons rely on this order.
const (
	invalid Outcome = iota
	Blocked
	DumpedCore
	TimedOut
	Failed
	Inspect
	NotVerified
	Skipped
	Passed
)

var names = [...]string{
	invalid:     "INVALID",
	Blocked:     "BLOCKED",
	DumpedCore:  "DUMPEDCORE",
	TimedOut:    "TIMEDOUT",
	Failed:      "FAILED",
	Inspect:     "INSPECT",
	NotVerified: "NOTVERIFIED",
	Skipped:     "SKIPPED",
	Passed:      "PASSED",
}

// All lists every outcome from worst to best.
func All() []Outcome {
	return []Outcome{Blocked, DumpedCore, TimedOut, Failed, Inspect, NotVerified, Skipped, Passed}
}

func (o Outcome) String() string {
	if int(o) < len(names) {
		return names[o]
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Valid reports whether o is one of the declared outcomes.
func (o Outcome) Valid() bool {
	return o >= Blocked && o <= Passed
}

// WorseThan reports whether o takes precedence over other.
func (o Outcome) WorseThan(other Outcome) bool {
	return o < other
}

// IsFailure reports whether o counts as a failing result: FAILED or worse.
func (o Outcome) IsFailure() bool {
	return o.Valid() && o <= Failed
}

// Parse converts a name such as "FAILED" (any case) back into an Outcome.
func Parse(s string) (Outcome, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, o := range All() {
		if names[o] == upper {
			return o, nil
		}
	}
	return invalid, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid outcome %d", uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
