package config

import "time"

const (
	// ProjectFileName is the name of the project configuration file.
	ProjectFileName = "rigor.yaml"

	DefaultDescriptorFile       = "rigortest.yaml"
	DefaultDirConfigFile        = "rigordir.yaml"
	DefaultOutputDir            = "rigor-output"
	DefaultOutputSubdirTemplate = "{{ .DisplayID }}"
	DefaultThreads              = "auto"
	DefaultTimeout              = 10 * time.Minute
	DefaultTimeoutGrace         = 10 * time.Second
	DefaultSecondaryHintDelta   = 100.0
	DefaultPortMin              = 21000
	DefaultPortMax              = 29999
	DefaultPortWaitTimeout      = 30 * time.Second
)

// DefaultProjectConfig returns the configuration used when rigor.yaml is absent
// and the base that a loaded file is merged over.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		TestRoot:                  ".",
		OutputDir:                 DefaultOutputDir,
		OutputSubdirTemplate:      DefaultOutputSubdirTemplate,
		Threads:                   DefaultThreads,
		DefaultTimeout:            DefaultTimeout,
		TimeoutGrace:              DefaultTimeoutGrace,
		SecondaryModesHintDelta:   DefaultSecondaryHintDelta,
		EnforceModeCapitalization: true,
		Ports: PortsConfig{
			Min:         DefaultPortMin,
			Max:         DefaultPortMax,
			WaitTimeout: DefaultPortWaitTimeout,
		},
		Reporters:      []string{"console"},
		DescriptorFile: DefaultDescriptorFile,
		DirConfigFile:  DefaultDirConfigFile,
	}
}
