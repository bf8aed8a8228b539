package scheduler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"rigor/internal/planner"

	"github.com/Masterminds/sprig/v3"
)

// outputDirData is what the output subdirectory template sees.
type outputDirData struct {
	DisplayID string
	ID        string
	Mode      string
	Cycle     int
	Params    map[string]any
}

var pathUnsafe = strings.NewReplacer("/", "_", `\`, "_", ":", "_")

func parseOutputTemplate(text string) (*template.Template, error) {
	if text == "" {
		text = "{{ .DisplayID }}"
	}
	return template.New("outputSubdir").Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
}

// outputDir derives the instance's output directory. A "cycleN" level is
// added when the plan has more than one cycle.
func outputDir(tmpl *template.Template, root string, inst planner.TestInstance, cycles int) (string, error) {
	data := outputDirData{
		DisplayID: pathUnsafe.Replace(inst.DisplayID()),
		ID:        inst.Descriptor.ID,
		Cycle:     inst.Cycle,
		Params:    inst.Params().Map(),
	}
	if inst.Mode != nil {
		data.Mode = inst.Mode.Name
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering output directory for %s: %w", inst.DisplayID(), err)
	}
	sub := strings.TrimSpace(buf.String())
	if sub == "" || filepath.IsAbs(sub) || strings.Contains(filepath.ToSlash(sub), "..") {
		return "", fmt.Errorf("output directory %q for %s must be a non-empty relative path", sub, inst.DisplayID())
	}

	dir := filepath.Join(root, sub)
	if cycles > 1 {
		dir = filepath.Join(dir, fmt.Sprintf("cycle%d", inst.Cycle))
	}
	return dir, nil
}

// purge empties dir, creating it if needed.
func purge(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
