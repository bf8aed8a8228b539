package modes

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfig converts the YAML mode configuration of a descriptor or a
// directory config into a Config.
//
// Two forms are accepted. A sequence is a static list:
//
//	modes:
//	  - MySQL
//	  - {mode: Postgres, primary: true, port: 5432}
//
// A mapping may combine dimensions and is turned into a Generator:
//
//	modes:
//	  inherit: false
//	  list: [Smoke]
//	  combine:
//	    - [{db: mysql}, {db: postgres}]
//	    - [{browser: chrome}, {browser: firefox}]
//	  allPrimary: false
//
// Inside an entry, "mode" is the name, "primary" the explicit flag and every
// other key a parameter, in declared order.
func ParseConfig(node *yaml.Node) (Config, error) {
	if node == nil || node.Kind == 0 {
		return Config{}, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}

	switch node.Kind {
	case yaml.SequenceNode:
		list, err := parseList(node)
		if err != nil {
			return Config{}, err
		}
		return Config{Static: list}, nil
	case yaml.MappingNode:
		return parseMapping(node)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return Config{}, nil
		}
	}
	return Config{}, fmt.Errorf("line %d: modes must be a list or a mapping", node.Line)
}

type modeBlock struct {
	Inherit    *bool       `yaml:"inherit"`
	List       yaml.Node   `yaml:"list"`
	Combine    []yaml.Node `yaml:"combine"`
	AllPrimary bool        `yaml:"allPrimary"`
}

func parseMapping(node *yaml.Node) (Config, error) {
	var block modeBlock
	if err := node.Decode(&block); err != nil {
		return Config{}, err
	}

	var list []ModeSpec
	if block.List.Kind != 0 {
		var err error
		if list, err = parseList(&block.List); err != nil {
			return Config{}, err
		}
	}

	dims := make([][]ModeSpec, 0, len(block.Combine))
	for i := range block.Combine {
		dim, err := parseList(&block.Combine[i])
		if err != nil {
			return Config{}, fmt.Errorf("combine[%d]: %w", i, err)
		}
		dims = append(dims, dim)
	}

	inherit := block.Inherit == nil || *block.Inherit
	if len(dims) == 0 && !block.AllPrimary {
		return Config{Static: list, NoInherit: !inherit}, nil
	}

	gen := func(h *Helper) ([]ModeSpec, error) {
		var out []ModeSpec
		if inherit {
			out = append(out, h.InheritedModes...)
		}
		out = append(out, list...)
		if len(dims) > 0 {
			combined, err := h.Combine(dims...)
			if err != nil {
				return nil, err
			}
			out = append(out, combined...)
		}
		if block.AllPrimary {
			out = h.AllPrimary(out)
		}
		return out, nil
	}
	return Config{Generator: gen, NoInherit: !inherit}, nil
}

func parseList(node *yaml.Node) ([]ModeSpec, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of modes", node.Line)
	}
	list := make([]ModeSpec, 0, len(node.Content))
	for _, item := range node.Content {
		m, err := parseEntry(item)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, nil
}

func parseEntry(node *yaml.Node) (ModeSpec, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return NewMode(node.Value), nil
	case yaml.MappingNode:
	default:
		return ModeSpec{}, fmt.Errorf("line %d: mode entry must be a name or a mapping", node.Line)
	}

	var m ModeSpec
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "mode":
			m.Name = value.Value
		case "primary":
			var primary bool
			if err := value.Decode(&primary); err != nil {
				return ModeSpec{}, fmt.Errorf("line %d: primary: %w", value.Line, err)
			}
			m = m.WithPrimary(primary)
		default:
			var v any
			if err := value.Decode(&v); err != nil {
				return ModeSpec{}, fmt.Errorf("line %d: %s: %w", value.Line, key.Value, err)
			}
			m.Params = append(m.Params, Param{Key: key.Value, Value: v})
		}
	}
	if m.Name == "" && len(m.Params) > 0 {
		m.Name = m.Params.String()
		m.derived = true
	}
	return m, nil
}
