package modes

import (
	"fmt"
	"strings"
)

// Param is a single mode parameter. Values keep the primitive type they were
// declared with (string, int, float64, bool).
type Param struct {
	Key   string
	Value any
}

// Params is an ordered parameter mapping.
type Params []Param

// Get returns the value stored under key.
func (p Params) Get(key string) (any, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return nil, false
}

// Map returns the parameters as an unordered map, for templates.
func (p Params) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, param := range p {
		m[param.Key] = param.Value
	}
	return m
}

// String renders the parameters as key=value pairs joined by "_".
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, param := range p {
		parts = append(parts, fmt.Sprintf("%s=%v", param.Key, param.Value))
	}
	return strings.Join(parts, "_")
}

// ModeSpec is a named execution variant of a test.
type ModeSpec struct {
	Name    string
	Params  Params
	Primary bool

	// primaryExplicit records that Primary was set by the author rather than
	// defaulted, so that implicit-first resolution leaves it alone.
	primaryExplicit bool
	// derived marks names built by Combine from parameter values.
	derived bool
}

// NewMode builds a mode with no explicit primary marking.
func NewMode(name string, params ...Param) ModeSpec {
	return ModeSpec{Name: name, Params: params}
}

// WithPrimary returns a copy explicitly marked primary or secondary.
func (m ModeSpec) WithPrimary(primary bool) ModeSpec {
	m.Primary = primary
	m.primaryExplicit = true
	return m
}

// PrimaryExplicit reports whether the primary flag was set by the author.
func (m ModeSpec) PrimaryExplicit() bool {
	return m.primaryExplicit
}

func (m ModeSpec) String() string {
	return m.Name
}

// Generator produces a descriptor's mode list at plan-build time.
type Generator func(h *Helper) ([]ModeSpec, error)

// Config is the mode configuration attached to a descriptor.
type Config struct {
	// Static modes, used when Generator is nil.
	Static []ModeSpec
	// Generator, if set, replaces Static entirely.
	Generator Generator
	// NoInherit stops inherited modes being prepended to Static.
	NoInherit bool
}

// Options controls validation.
type Options struct {
	EnforceCapitalization bool
}
