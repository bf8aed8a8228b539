package descriptor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"rigor/internal/config"
	"rigor/internal/modes"
	"rigor/pkg/logging"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Options controls discovery.
type Options struct {
	DescriptorFile string
	DirConfigFile  string
	// Exclude holds doublestar patterns relative to the test root.
	Exclude []string
	// SkipDirs are absolute directories never descended into, typically the
	// output root.
	SkipDirs    []string
	ModeOptions modes.Options
	// Workers bounds parallel parsing; zero means GOMAXPROCS.
	Workers int
}

// OptionsFromConfig derives loader options from the project configuration.
func OptionsFromConfig(cfg config.ProjectConfig) Options {
	return Options{
		DescriptorFile: cfg.DescriptorFile,
		DirConfigFile:  cfg.DirConfigFile,
		Exclude:        cfg.Exclude,
		SkipDirs:       []string{cfg.OutputRootPath()},
		ModeOptions:    modes.Options{EnforceCapitalization: cfg.EnforceModeCapitalization},
	}
}

type rawDescriptor struct {
	ID                 string        `yaml:"id"`
	Title              string        `yaml:"title"`
	Groups             []string      `yaml:"groups"`
	Modes              yaml.Node     `yaml:"modes"`
	ExecutionOrderHint *float64      `yaml:"executionOrderHint"`
	Skip               string        `yaml:"skip"`
	Type               string        `yaml:"type"`
	Timeout            time.Duration `yaml:"timeout"`
	Command            CommandSpec   `yaml:"command"`
	Expect             Expectation   `yaml:"expect"`
}

type rawDirConfig struct {
	IDPrefix           string    `yaml:"idPrefix"`
	Groups             []string  `yaml:"groups"`
	ExecutionOrderHint *float64  `yaml:"executionOrderHint"`
	Modes              yaml.Node `yaml:"modes"`
}

// dirState is the effective configuration for a directory after applying
// every rigordir.yaml from the root down to it.
type dirState struct {
	idPrefix string
	groups   []string
	hint     *float64
	modes    []modes.ModeSpec
}

// Loader discovers descriptors below a root directory.
type Loader struct {
	opts Options
}

// NewLoader creates a loader, filling in default file names.
func NewLoader(opts Options) *Loader {
	if opts.DescriptorFile == "" {
		opts.DescriptorFile = config.DefaultDescriptorFile
	}
	if opts.DirConfigFile == "" {
		opts.DirConfigFile = config.DefaultDirConfigFile
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Loader{opts: opts}
}

// Load walks root and returns every descriptor sorted by file path. All file
// problems are collected and returned together as LoadErrors.
func (l *Loader) Load(ctx context.Context, root string) ([]*TestDescriptor, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	descriptorFiles, dirConfigs, err := l.discover(root)
	if err != nil {
		return nil, err
	}
	logging.Debug("DescriptorLoader", "Found %d descriptor files and %d directory configs below %s",
		len(descriptorFiles), len(dirConfigs), root)

	var loadErrs LoadErrors

	rawDirs := make(map[string]*rawDirConfig, len(dirConfigs))
	for _, path := range dirConfigs {
		raw, err := l.parseDirConfig(path)
		if err != nil {
			loadErrs = append(loadErrs, asLoadError(path, err))
			continue
		}
		rawDirs[filepath.Dir(path)] = raw
	}

	raws := make([]*rawDescriptor, len(descriptorFiles))
	errs := make([]error, len(descriptorFiles))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, path := range descriptorFiles {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			raws[i], errs[i] = l.parseDescriptor(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	states := map[string]*dirState{}
	descriptors := make([]*TestDescriptor, 0, len(descriptorFiles))
	for i, path := range descriptorFiles {
		if errs[i] != nil {
			loadErrs = append(loadErrs, asLoadError(path, errs[i]))
			continue
		}
		dir := filepath.Dir(path)
		state, err := l.stateFor(dir, root, rawDirs, states)
		if err != nil {
			loadErrs = append(loadErrs, asLoadError(dir, err))
			continue
		}
		d, err := l.build(path, raws[i], state)
		if err != nil {
			loadErrs = append(loadErrs, &LoadError{Path: path, DescriptorID: d.ID, Message: err.Error()})
			continue
		}
		descriptors = append(descriptors, d)
	}

	if len(loadErrs) > 0 {
		return nil, dedupe(loadErrs)
	}

	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].File < descriptors[j].File
	})
	logging.Info("DescriptorLoader", "Loaded %d test descriptors", len(descriptors))
	return descriptors, nil
}

func (l *Loader) discover(root string) (descriptorFiles, dirConfigs []string, err error) {
	skip := make(map[string]bool, len(l.opts.SkipDirs))
	for _, d := range l.opts.SkipDirs {
		skip[filepath.Clean(d)] = true
	}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relSlash := filepath.ToSlash(rel)

		if entry.IsDir() {
			if path != root && (skip[path] || l.excluded(relSlash)) {
				return filepath.SkipDir
			}
			return nil
		}
		if l.excluded(relSlash) {
			return nil
		}
		switch entry.Name() {
		case l.opts.DescriptorFile:
			descriptorFiles = append(descriptorFiles, path)
		case l.opts.DirConfigFile:
			dirConfigs = append(dirConfigs, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return descriptorFiles, dirConfigs, nil
}

func (l *Loader) excluded(relPath string) bool {
	for _, pattern := range l.opts.Exclude {
		if matched, err := doublestar.Match(pattern, relPath); err == nil && matched {
			return true
		}
	}
	return false
}

func (l *Loader) parseDescriptor(path string) (*rawDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateYAMLWithSchema(DescriptorSchema(), data); err != nil {
		return nil, err
	}
	var raw rawDescriptor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

func (l *Loader) parseDirConfig(path string) (*rawDirConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateYAMLWithSchema(DirConfigSchema(), data); err != nil {
		return nil, err
	}
	var raw rawDirConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// stateFor computes the effective directory settings for dir, memoising every
// ancestor on the way.
func (l *Loader) stateFor(dir, root string, raws map[string]*rawDirConfig, states map[string]*dirState) (*dirState, error) {
	if s, ok := states[dir]; ok {
		return s, nil
	}

	parent := &dirState{}
	if dir != root {
		up := filepath.Dir(dir)
		if up != dir {
			var err error
			if parent, err = l.stateFor(up, root, raws, states); err != nil {
				return nil, err
			}
		}
	}

	raw, ok := raws[dir]
	if !ok {
		states[dir] = parent
		return parent, nil
	}

	s := &dirState{
		idPrefix: parent.idPrefix + raw.IDPrefix,
		groups:   appendUnique(append([]string(nil), parent.groups...), raw.Groups...),
		hint:     parent.hint,
		modes:    parent.modes,
	}
	if raw.ExecutionOrderHint != nil {
		s.hint = raw.ExecutionOrderHint
	}
	if raw.Modes.Kind != 0 {
		file := filepath.Join(dir, l.opts.DirConfigFile)
		cfg, err := modes.ParseConfig(&raw.Modes)
		if err != nil {
			return nil, &LoadError{Path: file, Message: fmt.Sprintf("modes: %v", err)}
		}
		resolved, err := modes.Resolve(dir, cfg, parent.modes, l.opts.ModeOptions)
		if err != nil {
			return nil, &LoadError{Path: file, Message: err.Error()}
		}
		s.modes = resolved
	}
	states[dir] = s
	return s, nil
}

func (l *Loader) build(path string, raw *rawDescriptor, state *dirState) (*TestDescriptor, error) {
	dir := filepath.Dir(path)
	d := &TestDescriptor{
		ID:                 raw.ID,
		Title:              raw.Title,
		TestDir:            dir,
		File:               path,
		Groups:             appendUnique(append([]string(nil), state.groups...), raw.Groups...),
		InheritedModes:     state.modes,
		ExecutionOrderHint: raw.ExecutionOrderHint,
		DirectoryHint:      state.hint,
		Skipped:            raw.Skip != "",
		SkipReason:         raw.Skip,
		Type:               raw.Type,
		Timeout:            raw.Timeout,
		Command:            raw.Command,
		Expect:             raw.Expect,
	}
	if d.ID == "" {
		d.ID = filepath.Base(dir)
	}
	d.ID = state.idPrefix + d.ID
	if d.Title == "" {
		d.Title = d.ID
	}
	if d.Type == "" {
		d.Type = TypeAuto
	}

	cfg, err := modes.ParseConfig(&raw.Modes)
	if err != nil {
		return d, fmt.Errorf("modes: %w", err)
	}
	d.Modes = cfg
	return d, nil
}

func asLoadError(path string, err error) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	var me *modes.ModeError
	if errors.As(err, &me) {
		return &LoadError{Path: path, DescriptorID: me.DescriptorID, Message: me.Error()}
	}
	return &LoadError{Path: path, Message: err.Error()}
}

// dedupe drops repeated errors that stem from one bad directory config
// inherited by several tests.
func dedupe(errs LoadErrors) LoadErrors {
	seen := map[string]bool{}
	out := errs[:0]
	for _, e := range errs {
		key := e.Error()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
