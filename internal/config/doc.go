// Package config loads the rigor project configuration.
//
// A project is rooted at the directory containing rigor.yaml. The file is found
// by walking upward from the working directory (FindProjectFile); when no file
// exists the defaults from DefaultProjectConfig apply, rooted at the starting
// directory.
//
// # File Format
//
//	testRoot: tests
//	outputDir: rigor-output
//	outputSubdirTemplate: "{{ .DisplayID }}"
//	threads: auto            # N, auto or xMULT
//	defaultTimeout: 10m
//	timeoutGrace: 10s
//	secondaryModesHintDelta: 100
//	enforceModeCapitalization: true
//	abortOnError: false
//	reporters: [console, json]
//	executionOrder:
//	  - hint: -10
//	    forGroups: smoke
//	  - hint: 50
//	    forModes: "Mysql.*"
//	ports:
//	  min: 21000
//	  max: 29999
//	  waitTimeout: 30s
//	exclude:
//	  - "**/testdata/**"
//
// Relative paths are resolved against the project root.
//
// # Environment
//
// RIGOR_THREADS and RIGOR_PORTS are read by the scheduler and the port pool,
// RIGOR_LOG by pkg/logging. Command-line flags override file values.
//
// # Errors
//
// Validate returns a ConfigurationErrorCollection; each ConfigurationError names
// the file, the offending field and, where possible, a suggestion.
package config
