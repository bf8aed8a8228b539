package descriptor

import (
	"fmt"
	"strings"
)

// LoadError is a problem with a single descriptor or directory config file.
type LoadError struct {
	Path         string
	DescriptorID string
	Message      string
}

func (e *LoadError) Error() string {
	if e.DescriptorID != "" {
		return fmt.Sprintf("%s (test %s): %s", e.Path, e.DescriptorID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadErrors collects every file that failed to load.
type LoadErrors []*LoadError

func (le LoadErrors) Error() string {
	if len(le) == 1 {
		return le[0].Error()
	}
	parts := make([]string, 0, len(le))
	for _, e := range le {
		parts = append(parts, "- "+e.Error())
	}
	return fmt.Sprintf("%d descriptor errors:\n%s", len(le), strings.Join(parts, "\n"))
}
