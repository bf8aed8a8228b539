package modes

import (
	"fmt"
	"strings"
)

// Helper is passed to a Generator.
type Helper struct {
	InheritedModes []ModeSpec
}

// Combine forwards to the package-level Combine.
func (h *Helper) Combine(dimensions ...[]ModeSpec) ([]ModeSpec, error) {
	return Combine(dimensions...)
}

// AllPrimary forwards to the package-level AllPrimary.
func (h *Helper) AllPrimary(list []ModeSpec) []ModeSpec {
	return AllPrimary(list)
}

// AllPrimary returns a copy of list with every mode explicitly primary.
func AllPrimary(list []ModeSpec) []ModeSpec {
	out := make([]ModeSpec, len(list))
	for i, m := range list {
		out[i] = m.WithPrimary(true)
	}
	return out
}

// Combine returns the Cartesian product of the given dimensions.
//
// Each combination merges the parameters of its chosen entries; a key may
// only appear in one dimension. Its name joins each entry's name (or its
// key=value pairs when unnamed) with "_". A combination is primary only when
// every chosen entry is primary; within a dimension where nothing is marked,
// the first entry counts as primary.
func Combine(dimensions ...[]ModeSpec) ([]ModeSpec, error) {
	if len(dimensions) == 0 {
		return nil, nil
	}

	primaries := make([][]bool, len(dimensions))
	for d, dim := range dimensions {
		if len(dim) == 0 {
			return nil, fmt.Errorf("dimension %d is empty", d+1)
		}
		primaries[d] = dimensionPrimaries(dim)
	}

	total := 1
	for _, dim := range dimensions {
		total *= len(dim)
	}

	result := make([]ModeSpec, 0, total)
	index := make([]int, len(dimensions))
	for n := 0; n < total; n++ {
		combined, err := combineOne(dimensions, primaries, index)
		if err != nil {
			return nil, err
		}
		result = append(result, combined)

		// advance the odometer, last dimension fastest
		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < len(dimensions[d]) {
				break
			}
			index[d] = 0
		}
	}
	return result, nil
}

func dimensionPrimaries(dim []ModeSpec) []bool {
	flags := make([]bool, len(dim))
	anyExplicit := false
	for _, m := range dim {
		if m.primaryExplicit {
			anyExplicit = true
			break
		}
	}
	for i, m := range dim {
		if anyExplicit {
			flags[i] = m.primaryExplicit && m.Primary
		} else {
			flags[i] = i == 0
		}
	}
	return flags
}

func combineOne(dimensions [][]ModeSpec, primaries [][]bool, index []int) (ModeSpec, error) {
	var (
		names   []string
		params  Params
		seen    = map[string]int{}
		primary = true
		derived = false
	)
	for d, i := range index {
		entry := dimensions[d][i]
		for _, p := range entry.Params {
			if prev, ok := seen[p.Key]; ok {
				return ModeSpec{}, fmt.Errorf("parameter %q from dimension %d overwrites dimension %d", p.Key, d+1, prev+1)
			}
			seen[p.Key] = d
			params = append(params, p)
		}

		part := entry.Name
		if part == "" {
			part = entry.Params.String()
		}
		if entry.Name == "" || entry.derived {
			derived = true
		}
		names = append(names, part)
		primary = primary && primaries[d][i]
	}

	m := ModeSpec{Name: strings.Join(names, "_"), Params: params, derived: derived}
	return m.WithPrimary(primary), nil
}
