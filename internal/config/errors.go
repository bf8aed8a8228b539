package config

import (
	"fmt"
	"strings"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	FilePath    string   `json:"filePath"`    // Full path to the file that caused the error
	Field       string   `json:"field"`       // Offending field, empty for whole-file errors
	ErrorType   string   `json:"errorType"`   // parse, validation, io
	Message     string   `json:"message"`     // Human-readable error message
	Details     string   `json:"details"`     // Additional details about the error
	Suggestions []string `json:"suggestions"` // Actionable suggestions to fix the error
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	name := ce.FilePath
	if name == "" {
		name = ProjectFileName
	}
	if ce.Field == "" {
		return fmt.Sprintf("%s: %s", name, ce.Message)
	}
	return fmt.Sprintf("%s: %s: %s", name, ce.Field, ce.Message)
}

// DetailedError returns a detailed error message with all context
func (ce ConfigurationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Configuration Error: %s", ce.Message))
	if ce.FilePath != "" {
		parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	}
	if ce.Field != "" {
		parts = append(parts, fmt.Sprintf("  Field: %s", ce.Field))
	}
	parts = append(parts, fmt.Sprintf("  Type: %s", ce.ErrorType))

	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec ConfigurationErrorCollection) Error() string {
	if len(cec.Errors) == 0 {
		return "no configuration errors"
	}

	if len(cec.Errors) == 1 {
		return cec.Errors[0].Error()
	}

	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Count returns the number of errors in the collection
func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

// Add adds a new error to the collection
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// AddValidation records a validation failure for a single field.
func (cec *ConfigurationErrorCollection) AddValidation(filePath, field, message string, suggestions ...string) {
	cec.Add(ConfigurationError{
		FilePath:    filePath,
		Field:       field,
		ErrorType:   "validation",
		Message:     message,
		Suggestions: suggestions,
	})
}

// ErrOrNil returns the collection as an error, or nil when it is empty.
func (cec ConfigurationErrorCollection) ErrOrNil() error {
	if len(cec.Errors) == 0 {
		return nil
	}
	return cec
}

// GetSummary lists every error on its own line.
func (cec *ConfigurationErrorCollection) GetSummary() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors"
	}

	parts := []string{fmt.Sprintf("Configuration Error Summary (%d total errors):", len(cec.Errors))}
	for _, err := range cec.Errors {
		parts = append(parts, "  - "+err.Error())
	}
	return strings.Join(parts, "\n")
}
