package planner

import (
	"fmt"
	"regexp"
	"sort"

	"rigor/internal/descriptor"
	"rigor/internal/modes"
	"rigor/pkg/logging"
)

// BuildOptions carries the resolved configuration values the plan depends on.
type BuildOptions struct {
	Cycles                  int
	Threads                 int
	AbortOnError            bool
	OutputRoot              string
	Rules                   []Rule
	SecondaryModesHintDelta float64
	ModeOptions             modes.Options
}

// candidate is a selected (test, mode) pair before cycle expansion.
type candidate struct {
	desc      *descriptor.TestDescriptor
	mode      *modes.ModeSpec
	modeIndex int
	hint      float64
}

// Build produces the run plan. Duplicate ids, mode errors and unsatisfiable
// selections are returned as errors before any instance exists; selecting
// nothing yields an empty plan.
func Build(descriptors []*descriptor.TestDescriptor, sel Selection, opts BuildOptions) (*RunPlan, error) {
	if opts.Cycles < 1 {
		opts.Cycles = 1
	}

	byID, ids, err := indexDescriptors(descriptors)
	if err != nil {
		return nil, err
	}

	resolved := make(map[*descriptor.TestDescriptor][]modes.ModeSpec, len(descriptors))
	allModes := make([][]modes.ModeSpec, 0, len(descriptors))
	for _, d := range descriptors {
		list, err := d.ResolveModes(opts.ModeOptions)
		if err != nil {
			return nil, err
		}
		resolved[d] = list
		allModes = append(allModes, list)
	}

	filter := newModeFilter(sel.Modes)
	if err := filter.checkUsed(allModes); err != nil {
		return nil, err
	}

	var grep *regexp.Regexp
	if sel.Grep != "" {
		if grep, err = regexp.Compile("(?i)" + sel.Grep); err != nil {
			return nil, &SelectionError{Arg: sel.Grep, Message: fmt.Sprintf("invalid regular expression: %v", err)}
		}
	}

	typeFilter := sel.Type
	if typeFilter == "" {
		typeFilter = TypeFilterAuto
	}
	switch typeFilter {
	case TypeFilterAuto, TypeFilterManual, TypeFilterAll:
	default:
		return nil, &SelectionError{Arg: sel.Type, Message: "unknown test type filter"}
	}

	// Explicit ids narrow the universe; nil means every descriptor.
	var explicit map[*descriptor.TestDescriptor][]*regexp.Regexp
	if len(sel.IDs) > 0 {
		explicit = map[*descriptor.TestDescriptor][]*regexp.Regexp{}
		bare := map[*descriptor.TestDescriptor]bool{}
		for _, arg := range sel.IDs {
			req, err := parseIDArg(arg)
			if err != nil {
				return nil, err
			}
			d, err := matchID(req, byID, ids)
			if err != nil {
				return nil, err
			}
			switch {
			case req.modeRegex == nil:
				// A bare id always widens to the mode filter.
				bare[d] = true
				explicit[d] = nil
			case !anyModeMatches(resolved[d], req.modeRegex):
				return nil, &SelectionError{Arg: arg, Message: "mode expression matches no mode of the test"}
			case !bare[d]:
				explicit[d] = append(explicit[d], req.modeRegex)
			}
		}
	}

	var candidates []candidate
	for _, d := range descriptors {
		modeRegexes, named := explicit[d]
		if explicit != nil && !named {
			continue
		}
		if !named && !typeSelected(d, typeFilter) {
			continue
		}
		if len(sel.IncludeGroups) > 0 && !matchesAnyGroup(d.Groups, sel.IncludeGroups) {
			continue
		}
		if matchesAnyGroup(d.Groups, sel.ExcludeGroups) {
			continue
		}
		if grep != nil && !grep.MatchString(d.ID) && !grep.MatchString(d.Title) {
			continue
		}

		list := resolved[d]
		if len(list) == 0 {
			if filter.includes(nil) {
				candidates = append(candidates, candidate{
					desc: d,
					hint: ComputeHint(d, nil, 0, opts.Rules, opts.SecondaryModesHintDelta),
				})
			}
			continue
		}

		indices := ModeIndices(list)
		for i := range list {
			mode := &list[i]
			if modeRegexes != nil {
				if !anyRegexMatches(modeRegexes, mode.Name) {
					continue
				}
			} else if !filter.includes(mode) {
				continue
			}
			candidates = append(candidates, candidate{
				desc:      d,
				mode:      mode,
				modeIndex: indices[i],
				hint:      ComputeHint(d, mode, indices[i], opts.Rules, opts.SecondaryModesHintDelta),
			})
		}
	}

	sortCandidates(candidates)

	plan := &RunPlan{
		cycles:       opts.Cycles,
		threads:      opts.Threads,
		abortOnError: opts.AbortOnError,
		outputRoot:   opts.OutputRoot,
		instances:    make([]TestInstance, 0, len(candidates)*opts.Cycles),
	}
	for cycle := 1; cycle <= opts.Cycles; cycle++ {
		for _, c := range candidates {
			plan.instances = append(plan.instances, TestInstance{
				Descriptor: c.desc,
				Mode:       c.mode,
				ModeIndex:  c.modeIndex,
				Cycle:      cycle,
				Hint:       c.hint,
				PlanIndex:  len(plan.instances),
			})
		}
	}

	logging.Info("Planner", "Selected %d instances (%d tests x modes, %d cycles)",
		len(plan.instances), len(candidates), opts.Cycles)
	return plan, nil
}

func indexDescriptors(descriptors []*descriptor.TestDescriptor) (map[string]*descriptor.TestDescriptor, []string, error) {
	byID := make(map[string]*descriptor.TestDescriptor, len(descriptors))
	paths := map[string][]string{}
	for _, d := range descriptors {
		paths[d.ID] = append(paths[d.ID], d.File)
		byID[d.ID] = d
	}

	ids := make([]string, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if len(paths[id]) > 1 {
			dup := append([]string(nil), paths[id]...)
			sort.Strings(dup)
			return nil, nil, &DuplicateIDError{ID: id, Paths: dup}
		}
	}
	return byID, ids, nil
}

func typeSelected(d *descriptor.TestDescriptor, filter string) bool {
	switch filter {
	case TypeFilterManual:
		return d.IsManual()
	case TypeFilterAll:
		return true
	default:
		return !d.IsManual()
	}
}

func anyModeMatches(list []modes.ModeSpec, re *regexp.Regexp) bool {
	for _, m := range list {
		if re.MatchString(m.Name) {
			return true
		}
	}
	return false
}

func anyRegexMatches(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// sortCandidates orders pairs by hint, then descriptor file path. The sort is
// stable so that modes of one test keep their declared order on ties.
func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].hint != cs[j].hint {
			return cs[i].hint < cs[j].hint
		}
		return cs[i].desc.File < cs[j].desc.File
	})
}
