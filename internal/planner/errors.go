package planner

import (
	"fmt"
	"strings"
)

// DuplicateIDError reports two or more descriptors sharing an id.
type DuplicateIDError struct {
	ID    string
	Paths []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate test id %q defined in %s", e.ID, strings.Join(e.Paths, ", "))
}

// SelectionError reports a selection argument that cannot be satisfied.
type SelectionError struct {
	Arg        string
	Candidates []string
	Message    string
}

func (e *SelectionError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%s: %q", e.Message, e.Arg)
	}
	return fmt.Sprintf("%s: %q matches %s", e.Message, e.Arg, strings.Join(e.Candidates, ", "))
}
