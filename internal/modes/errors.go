package modes

import (
	"fmt"
	"strings"
)

// ModeError is a load-time error in a descriptor's mode configuration.
type ModeError struct {
	DescriptorID string
	Names        []string
	Message      string
}

func (e *ModeError) Error() string {
	if len(e.Names) == 0 {
		return fmt.Sprintf("test %s: %s", e.DescriptorID, e.Message)
	}
	return fmt.Sprintf("test %s: %s: %s", e.DescriptorID, e.Message, strings.Join(e.Names, ", "))
}
