// Package template renders the command strings and environment values of
// test descriptors with Go templates and the sprig function library.
package template

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders templates against a data context. Extra functions, such as
// per-instance port allocation, are supplied when the engine is created.
type Engine struct {
	funcs template.FuncMap
	// Matches simple references like {{ .Name }} or {{ Name }} for ExtractVariables.
	variablePattern *regexp.Regexp
}

// New creates an engine with the sprig functions plus extra.
func New(extra template.FuncMap) *Engine {
	funcs := sprig.TxtFuncMap()
	for name, fn := range extra {
		funcs[name] = fn
	}
	return &Engine{
		funcs:           funcs,
		variablePattern: regexp.MustCompile(`\{\{-?\s*\.([a-zA-Z_][a-zA-Z0-9_]*)`),
	}
}

// Render executes text against data. Referencing a missing map key is an
// error. Text without actions is returned unchanged.
func (e *Engine) Render(name, text string, data any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New(name).Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderAll renders each string of texts, naming errors by index.
func (e *Engine) RenderAll(name string, texts []string, data any) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		rendered, err := e.Render(fmt.Sprintf("%s[%d]", name, i), text, data)
		if err != nil {
			return nil, err
		}
		out[i] = rendered
	}
	return out, nil
}

// RenderMap renders every value of m. Keys are processed in sorted order so
// that functions with side effects run deterministically.
func (e *Engine) RenderMap(name string, m map[string]string, data any) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(m))
	for _, k := range keys {
		rendered, err := e.Render(name+"."+k, m[k], data)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

// ExtractVariables lists the top-level fields referenced by texts, sorted.
func (e *Engine) ExtractVariables(texts ...string) []string {
	seen := map[string]bool{}
	for _, text := range texts {
		for _, match := range e.variablePattern.FindAllStringSubmatch(text, -1) {
			seen[match[1]] = true
		}
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// ValidateContext reports the variables texts reference that are missing
// from context.
func (e *Engine) ValidateContext(context map[string]any, texts ...string) error {
	var missing []string
	for _, v := range e.ExtractVariables(texts...) {
		if _, ok := context[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
