package config

import (
	"fmt"
	"regexp"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/bmatcuk/doublestar/v4"
)

var threadsPattern = regexp.MustCompile(`^(auto|[0-9]+|x[0-9]+(\.[0-9]+)?)$`)

// Validate checks a configuration and returns a ConfigurationErrorCollection
// describing every problem found, or nil.
func Validate(cfg ProjectConfig) error {
	var errs ConfigurationErrorCollection
	file := cfg.File

	if cfg.Threads != "" && !threadsPattern.MatchString(cfg.Threads) {
		errs.AddValidation(file, "threads", fmt.Sprintf("invalid thread specification %q", cfg.Threads),
			"Use a number, 'auto' or a CPU multiplier such as 'x1.5'")
	}
	if cfg.DefaultTimeout <= 0 {
		errs.AddValidation(file, "defaultTimeout", "must be positive")
	}
	if cfg.TimeoutGrace < 0 {
		errs.AddValidation(file, "timeoutGrace", "must not be negative")
	}

	if cfg.Ports.Min < 1 || cfg.Ports.Max > 65535 || cfg.Ports.Min > cfg.Ports.Max {
		errs.AddValidation(file, "ports", fmt.Sprintf("invalid port range %d-%d", cfg.Ports.Min, cfg.Ports.Max),
			"min and max must lie within 1-65535 with min <= max")
	}
	if cfg.Ports.WaitTimeout < 0 {
		errs.AddValidation(file, "ports.waitTimeout", "must not be negative")
	}

	for i, rule := range cfg.ExecutionOrder {
		if _, err := regexp.Compile(rule.ForGroups); err != nil {
			errs.AddValidation(file, fmt.Sprintf("executionOrder[%d].forGroups", i), err.Error())
		}
		if _, err := regexp.Compile(rule.ForModes); err != nil {
			errs.AddValidation(file, fmt.Sprintf("executionOrder[%d].forModes", i), err.Error())
		}
	}

	if cfg.OutputSubdirTemplate != "" {
		if _, err := template.New("outdir").Funcs(sprig.TxtFuncMap()).Parse(cfg.OutputSubdirTemplate); err != nil {
			errs.AddValidation(file, "outputSubdirTemplate", err.Error())
		}
	}

	for i, pattern := range cfg.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs.AddValidation(file, fmt.Sprintf("exclude[%d]", i), fmt.Sprintf("invalid glob %q", pattern))
		}
	}

	if cfg.DescriptorFile == "" {
		errs.AddValidation(file, "descriptorFile", "must not be empty")
	}

	return errs.ErrOrNil()
}
