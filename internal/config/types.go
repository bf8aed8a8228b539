package config

import (
	"path/filepath"
	"time"
)

// ProjectConfig is the top-level configuration structure for a rigor project.
type ProjectConfig struct {
	// Root is the directory holding rigor.yaml. It is never read from the file.
	Root string `yaml:"-"`
	// File is the path the configuration was read from, empty for defaults.
	File string `yaml:"-"`

	TestRoot                  string        `yaml:"testRoot,omitempty"`
	OutputDir                 string        `yaml:"outputDir,omitempty"`
	OutputSubdirTemplate      string        `yaml:"outputSubdirTemplate,omitempty"`
	Threads                   string        `yaml:"threads,omitempty"`
	DefaultTimeout            time.Duration `yaml:"defaultTimeout,omitempty"`
	TimeoutGrace              time.Duration `yaml:"timeoutGrace,omitempty"`
	SecondaryModesHintDelta   float64       `yaml:"secondaryModesHintDelta"`
	ExecutionOrder            []OrderRule   `yaml:"executionOrder,omitempty"`
	EnforceModeCapitalization bool          `yaml:"enforceModeCapitalization"`
	Ports                     PortsConfig   `yaml:"ports,omitempty"`
	AbortOnError              bool          `yaml:"abortOnError,omitempty"`
	Reporters                 []string      `yaml:"reporters,omitempty"`
	DescriptorFile            string        `yaml:"descriptorFile,omitempty"`
	DirConfigFile             string        `yaml:"dirConfigFile,omitempty"`
	Exclude                   []string      `yaml:"exclude,omitempty"`
}

// OrderRule adds Hint to every (test, mode) pair it matches.
// ForGroups and ForModes are full-match regular expressions; an empty pattern
// matches anything.
type OrderRule struct {
	Hint      float64 `yaml:"hint"`
	ForGroups string  `yaml:"forGroups,omitempty"`
	ForModes  string  `yaml:"forModes,omitempty"`
}

// PortsConfig bounds the shared TCP port pool.
type PortsConfig struct {
	Min         int           `yaml:"min,omitempty"`
	Max         int           `yaml:"max,omitempty"`
	WaitTimeout time.Duration `yaml:"waitTimeout,omitempty"`
}

// TestRootPath returns the absolute directory scanned for descriptors.
func (c ProjectConfig) TestRootPath() string {
	return c.resolve(c.TestRoot)
}

// OutputRootPath returns the absolute directory instances write their output under.
func (c ProjectConfig) OutputRootPath() string {
	return c.resolve(c.OutputDir)
}

func (c ProjectConfig) resolve(p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}
