package planner

import (
	"fmt"
	"regexp"

	"rigor/internal/config"
	"rigor/internal/descriptor"
	"rigor/internal/modes"
)

// pattern matches a value either literally or as a full-match regular
// expression.
type pattern struct {
	literal string
	re      *regexp.Regexp
}

func compilePattern(p string, caseInsensitive bool) pattern {
	expr := "^(?:" + p + ")$"
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// Not a valid expression: literal comparison only.
		re = nil
	}
	return pattern{literal: p, re: re}
}

func (p pattern) match(s string) bool {
	if s == p.literal {
		return true
	}
	return p.re != nil && p.re.MatchString(s)
}

// Rule is a compiled config.OrderRule.
type Rule struct {
	Hint   float64
	groups *pattern
	modes  *pattern
}

// CompileRules prepares the project's execution order rules.
func CompileRules(rules []config.OrderRule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		compiled := Rule{Hint: r.Hint}
		if r.ForGroups != "" {
			if _, err := regexp.Compile(r.ForGroups); err != nil {
				return nil, fmt.Errorf("executionOrder[%d].forGroups: %w", i, err)
			}
			p := compilePattern(r.ForGroups, false)
			compiled.groups = &p
		}
		if r.ForModes != "" {
			if _, err := regexp.Compile(r.ForModes); err != nil {
				return nil, fmt.Errorf("executionOrder[%d].forModes: %w", i, err)
			}
			p := compilePattern(r.ForModes, false)
			compiled.modes = &p
		}
		out = append(out, compiled)
	}
	return out, nil
}

func (r Rule) matches(groups []string, modeName string) bool {
	if r.groups != nil {
		found := false
		for _, g := range groups {
			if r.groups.match(g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.modes != nil && !r.modes.match(modeName) {
		return false
	}
	return true
}

// ComputeHint returns the execution order hint of a (test, mode) pair.
//
// The base is the descriptor's own hint, else its nearest directory hint,
// else zero. Every matching rule's hint is added, then delta once per
// secondary mode position.
func ComputeHint(desc *descriptor.TestDescriptor, mode *modes.ModeSpec, modeIndex int, rules []Rule, delta float64) float64 {
	var hint float64
	switch {
	case desc.ExecutionOrderHint != nil:
		hint = *desc.ExecutionOrderHint
	case desc.DirectoryHint != nil:
		hint = *desc.DirectoryHint
	}

	modeName := ""
	if mode != nil {
		modeName = mode.Name
	}
	for _, r := range rules {
		if r.matches(desc.Groups, modeName) {
			hint += r.Hint
		}
	}

	return hint + delta*float64(modeIndex)
}

// ModeIndices assigns each mode of a resolved list its hint index: zero for
// primary modes, then 1, 2, ... for secondary modes in declared order.
func ModeIndices(list []modes.ModeSpec) []int {
	indices := make([]int, len(list))
	next := 1
	for i, m := range list {
		if m.Primary {
			continue
		}
		indices[i] = next
		next++
	}
	return indices
}
