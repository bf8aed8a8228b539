package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rigor/internal/descriptor"
	"rigor/internal/modes"
)

// Type filter values.
const (
	TypeFilterAuto   = "auto"
	TypeFilterManual = "manual"
	TypeFilterAll    = "all"
)

// Selection carries the run-time selection criteria.
type Selection struct {
	// IDs are explicit test ids, exact or an unambiguous suffix, optionally
	// followed by "~ModeRegex".
	IDs []string
	// Modes holds the --mode specifiers. Nil means the flag was not given and
	// only primary modes run.
	Modes         []string
	IncludeGroups []string
	ExcludeGroups []string
	// Grep is a case-insensitive regular expression matched against id or title.
	Grep string
	// Type is auto (default), manual or all.
	Type string
}

// ParseModeFilter splits a comma-separated --mode value.
func ParseModeFilter(s string) []string {
	var specs []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			specs = append(specs, part)
		}
	}
	return specs
}

type modeSpecifier struct {
	raw      string
	negative bool
	all      bool
	primary  bool
	pattern  pattern
}

type modeFilter struct {
	positives []modeSpecifier
	negatives []modeSpecifier
	// primaryOnly is set when no --mode was given.
	primaryOnly bool
}

func newModeFilter(specs []string) modeFilter {
	if specs == nil {
		return modeFilter{primaryOnly: true}
	}
	var f modeFilter
	for _, raw := range specs {
		s := modeSpecifier{raw: raw}
		body := raw
		if strings.HasPrefix(body, "!") {
			s.negative = true
			body = body[1:]
		}
		switch strings.ToUpper(body) {
		case "ALL":
			s.all = true
		case "PRIMARY":
			s.primary = true
		default:
			s.pattern = compilePattern(body, true)
		}
		if s.negative {
			f.negatives = append(f.negatives, s)
		} else {
			f.positives = append(f.positives, s)
		}
	}
	// Only negative specifiers: start from every mode.
	if len(f.positives) == 0 {
		f.positives = []modeSpecifier{{raw: "ALL", all: true}}
	}
	return f
}

func (s modeSpecifier) matches(mode *modes.ModeSpec) bool {
	switch {
	case s.all:
		return true
	case s.primary:
		return mode == nil || mode.Primary
	case mode == nil:
		return false
	default:
		return s.pattern.match(mode.Name) || strings.EqualFold(s.pattern.literal, mode.Name)
	}
}

func (f modeFilter) includes(mode *modes.ModeSpec) bool {
	if f.primaryOnly {
		return mode == nil || mode.Primary
	}
	matched := false
	for _, s := range f.positives {
		if s.matches(mode) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, s := range f.negatives {
		if s.matches(mode) {
			return false
		}
	}
	return true
}

// checkUsed rejects literal or regex specifiers that match no mode of any
// test, which almost always indicates a typo.
func (f modeFilter) checkUsed(all [][]modes.ModeSpec) error {
	specs := append(append([]modeSpecifier(nil), f.positives...), f.negatives...)
	for _, s := range specs {
		if s.all || s.primary {
			continue
		}
		used := false
		for _, list := range all {
			for i := range list {
				if s.matches(&list[i]) {
					used = true
					break
				}
			}
			if used {
				break
			}
		}
		if !used {
			return &SelectionError{Arg: s.raw, Message: "mode filter matches no mode of any test"}
		}
	}
	return nil
}

var idSeparators = []string{".", "/", `\`}

// idRequest is one parsed explicit id argument.
type idRequest struct {
	arg       string
	id        string
	modeRegex *regexp.Regexp
}

func parseIDArg(arg string) (idRequest, error) {
	req := idRequest{arg: arg}
	idPart, modePart, hasMode := strings.Cut(arg, "~")
	req.id = strings.TrimRight(idPart, `/\`)
	if req.id == "" {
		return req, &SelectionError{Arg: arg, Message: "empty test id"}
	}
	if hasMode {
		re, err := regexp.Compile("(?i)^(?:" + modePart + ")$")
		if err != nil {
			return req, &SelectionError{Arg: arg, Message: fmt.Sprintf("invalid mode expression: %v", err)}
		}
		req.modeRegex = re
	}
	return req, nil
}

// matchID resolves an id argument to exactly one descriptor: an exact match
// first, else a unique match on the part after a separator.
func matchID(req idRequest, byID map[string]*descriptor.TestDescriptor, ids []string) (*descriptor.TestDescriptor, error) {
	if d, ok := byID[req.id]; ok {
		return d, nil
	}

	var candidates []string
	for _, id := range ids {
		for _, sep := range idSeparators {
			if strings.HasSuffix(id, sep+req.id) {
				candidates = append(candidates, id)
				break
			}
		}
	}

	switch len(candidates) {
	case 0:
		return nil, &SelectionError{Arg: req.arg, Message: "unknown test id"}
	case 1:
		return byID[candidates[0]], nil
	default:
		sort.Strings(candidates)
		return nil, &SelectionError{Arg: req.arg, Candidates: candidates, Message: "ambiguous test id"}
	}
}

func matchesAnyGroup(groups, filter []string) bool {
	for _, g := range groups {
		for _, f := range filter {
			if strings.EqualFold(g, f) {
				return true
			}
		}
	}
	return false
}
