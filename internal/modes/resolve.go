package modes

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Resolve turns a descriptor's mode configuration into its ordered mode list.
//
// Static lists get the inherited modes prepended unless cfg.NoInherit is set.
// A Generator is called exactly once and decides for itself what to do with
// the inherited modes. The result is validated and has its primary flags
// settled; an empty result means the test has no modes.
func Resolve(descriptorID string, cfg Config, inherited []ModeSpec, opts Options) ([]ModeSpec, error) {
	var list []ModeSpec

	if cfg.Generator != nil {
		generated, err := callGenerator(cfg.Generator, &Helper{InheritedModes: clone(inherited)})
		if err != nil {
			return nil, &ModeError{DescriptorID: descriptorID, Message: fmt.Sprintf("mode generator failed: %v", err)}
		}
		list = generated
	} else {
		if !cfg.NoInherit {
			list = append(list, inherited...)
		}
		list = append(list, cfg.Static...)
	}

	if len(list) == 0 {
		return nil, nil
	}

	if err := Validate(descriptorID, list, opts); err != nil {
		return nil, err
	}
	return settlePrimary(clone(list)), nil
}

func callGenerator(gen Generator, h *Helper) (list []ModeSpec, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return gen(h)
}

// Validate checks names for presence, uniqueness ignoring case and, when
// enforced, a leading upper-case letter. Names built by Combine from
// parameter values are exempt from the capitalisation rule.
func Validate(descriptorID string, list []ModeSpec, opts Options) error {
	byFold := make(map[string]string, len(list))
	var (
		duplicates []string
		lowercase  []string
	)
	for i, m := range list {
		if strings.TrimSpace(m.Name) == "" {
			return &ModeError{DescriptorID: descriptorID, Message: fmt.Sprintf("mode %d has no name", i+1)}
		}
		key := strings.ToLower(m.Name)
		if prev, ok := byFold[key]; ok {
			if prev == m.Name {
				duplicates = append(duplicates, m.Name)
			} else {
				duplicates = append(duplicates, prev+"/"+m.Name)
			}
			continue
		}
		byFold[key] = m.Name

		if opts.EnforceCapitalization && !m.derived {
			r, _ := utf8.DecodeRuneInString(m.Name)
			if unicode.IsLetter(r) && !unicode.IsUpper(r) {
				lowercase = append(lowercase, m.Name)
			}
		}
	}

	if len(duplicates) > 0 {
		return &ModeError{DescriptorID: descriptorID, Names: duplicates, Message: "conflicting mode names"}
	}
	if len(lowercase) > 0 {
		return &ModeError{DescriptorID: descriptorID, Names: lowercase, Message: "mode names must start with an upper-case letter"}
	}
	return nil
}

// settlePrimary applies the implicit-first rule: if no mode is explicitly
// primary, the first one is.
func settlePrimary(list []ModeSpec) []ModeSpec {
	anyPrimary := false
	for _, m := range list {
		if m.primaryExplicit && m.Primary {
			anyPrimary = true
			break
		}
	}
	for i := range list {
		switch {
		case anyPrimary:
			list[i].Primary = list[i].primaryExplicit && list[i].Primary
		default:
			list[i].Primary = i == 0
		}
	}
	return list
}

func clone(list []ModeSpec) []ModeSpec {
	if list == nil {
		return nil
	}
	out := make([]ModeSpec, len(list))
	copy(out, list)
	return out
}
