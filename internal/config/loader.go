package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rigor/pkg/logging"

	"gopkg.in/yaml.v3"
)

// FindProjectFile walks upward from startDir looking for rigor.yaml.
// It returns an empty string when the filesystem root is reached without a match.
func FindProjectFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", startDir, err)
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Discover locates the project file above startDir and loads it. Without a
// project file the defaults apply, rooted at startDir.
func Discover(startDir string) (ProjectConfig, error) {
	path, err := FindProjectFile(startDir)
	if err != nil {
		return ProjectConfig{}, err
	}
	if path == "" {
		root, err := filepath.Abs(startDir)
		if err != nil {
			return ProjectConfig{}, err
		}
		logging.Info("ConfigLoader", "No %s found above %s, using defaults", ProjectFileName, root)
		cfg := DefaultProjectConfig()
		cfg.Root = root
		return cfg, nil
	}
	return LoadConfig(path)
}

// LoadConfig reads a single project file. Missing files yield the defaults
// rooted at the file's directory.
func LoadConfig(configFilePath string) (ProjectConfig, error) {
	absPath, err := filepath.Abs(configFilePath)
	if err != nil {
		return ProjectConfig{}, err
	}

	config := DefaultProjectConfig() // Start with default config
	config.Root = filepath.Dir(absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config found at %s, using defaults", absPath)
			return config, nil
		}
		return ProjectConfig{}, ConfigurationError{
			FilePath:  absPath,
			ErrorType: "io",
			Message:   "cannot read configuration",
			Details:   err.Error(),
		}
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return ProjectConfig{}, ConfigurationError{
			FilePath:    absPath,
			ErrorType:   "parse",
			Message:     "malformed YAML",
			Details:     err.Error(),
			Suggestions: []string{"Durations use Go syntax, for example 90s or 10m"},
		}
	}
	config.File = absPath

	if err := Validate(config); err != nil {
		return ProjectConfig{}, err
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", absPath)
	return config, nil
}
