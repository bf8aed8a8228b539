package descriptor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const durationPattern = `^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var modeEntrySchema = `{
	"oneOf": [
		{"type": "string", "minLength": 1},
		{
			"type": "object",
			"properties": {
				"mode": {"type": "string"},
				"primary": {"type": "boolean"}
			},
			"additionalProperties": {"type": ["string", "number", "boolean", "null"]}
		}
	]
}`

var modesSchema = `{
	"oneOf": [
		{"type": "null"},
		{"type": "array", "items": ` + modeEntrySchema + `},
		{
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"inherit": {"type": "boolean"},
				"allPrimary": {"type": "boolean"},
				"list": {"type": "array", "items": ` + modeEntrySchema + `},
				"combine": {
					"type": "array",
					"items": {"type": "array", "minItems": 1, "items": ` + modeEntrySchema + `}
				}
			}
		}
	]
}`

// DescriptorSchema is the JSON schema every rigortest.yaml must satisfy.
func DescriptorSchema() string {
	return `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"id": {"type": "string", "pattern": "^[^\\s~]+$"},
			"title": {"type": "string"},
			"groups": {"type": "array", "items": {"type": "string", "minLength": 1}},
			"modes": ` + modesSchema + `,
			"executionOrderHint": {"type": "number"},
			"skip": {"type": "string"},
			"type": {"type": "string", "enum": ["auto", "manual"]},
			"timeout": {"type": "string", "pattern": "` + durationPattern + `"},
			"command": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"setup": {"type": "string"},
					"execute": {"type": "string"},
					"validate": {"type": "string"},
					"cleanup": {"type": "string"},
					"env": {"type": "object", "additionalProperties": {"type": ["string", "number", "boolean"]}},
					"background": {"type": "array", "items": {"type": "string"}}
				}
			},
			"expect": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"exitCode": {"type": "integer"},
					"stdoutContains": {"type": "array", "items": {"type": "string"}},
					"stdoutNotContains": {"type": "array", "items": {"type": "string"}}
				}
			}
		}
	}`
}

// DirConfigSchema is the JSON schema for rigordir.yaml.
func DirConfigSchema() string {
	return `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"idPrefix": {"type": "string"},
			"groups": {"type": "array", "items": {"type": "string", "minLength": 1}},
			"executionOrderHint": {"type": "number"},
			"modes": ` + modesSchema + `
		}
	}`
}

// ValidateYAMLWithSchema checks a YAML payload against a JSON schema. An empty
// document is treated as an empty object.
func ValidateYAMLWithSchema(schema string, yamlPayload []byte) error {
	var data interface{}
	if err := yaml.Unmarshal(yamlPayload, &data); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate schema: %w", err)
	}

	if !result.Valid() {
		var errMsg strings.Builder
		for _, desc := range result.Errors() {
			errMsg.WriteString(fmt.Sprintf("- %s\n", desc))
		}
		return fmt.Errorf("schema validation failed:\n%s", errMsg.String())
	}

	return nil
}
