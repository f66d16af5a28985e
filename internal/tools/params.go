// internal/tools/params.go
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParamType is the JSON type accepted for a parameter.
type ParamType string

const (
	TypeString      ParamType = "string"
	TypeStringArray ParamType = "array"
)

// Param declares one named argument of an operation.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// NonEmpty rejects "" for string parameters.
	NonEmpty bool
}

// Property is a JSON Schema property.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	MinLength   *int      `json:"minLength,omitempty"`
}

// Schema is the JSON Schema of an operation's arguments.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

func schemaFor(params []Param) Schema {
	s := Schema{
		Type:       "object",
		Properties: make(map[string]Property, len(params)),
	}
	one := 1
	for _, p := range params {
		prop := Property{Type: string(p.Type), Description: p.Description}
		if p.Type == TypeStringArray {
			prop.Items = &Property{Type: string(TypeString)}
		}
		if p.NonEmpty {
			prop.MinLength = &one
		}
		s.Properties[p.Name] = prop
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// declaredArgs returns the subset of args named by params. Undeclared keys are
// dropped so they can never reach a handler, not even through encoding/json's
// case-insensitive field matching.
func declaredArgs(params []Param, args map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for _, p := range params {
		if v, ok := args[p.Name]; ok {
			out[p.Name] = v
		}
	}
	return out
}

// validateArgs checks args against params: missing required arguments, wrong
// JSON types and empty required strings are rejected. Undeclared names are
// ignored.
func validateArgs(op string, params []Param, args map[string]any) error {
	for _, p := range params {
		v, present := args[p.Name]
		if !present || v == nil {
			if p.Required {
				return &ArgumentError{Operation: op, Field: p.Name, Reason: "is required"}
			}
			continue
		}

		switch p.Type {
		case TypeString:
			s, ok := v.(string)
			if !ok {
				return &ArgumentError{Operation: op, Field: p.Name, Reason: "must be a string, got " + jsonTypeName(v)}
			}
			if p.NonEmpty && strings.TrimSpace(s) == "" {
				return &ArgumentError{Operation: op, Field: p.Name, Reason: "must not be empty"}
			}
		case TypeStringArray:
			items, ok := v.([]any)
			if !ok {
				if _, typed := v.([]string); typed {
					continue
				}
				return &ArgumentError{Operation: op, Field: p.Name, Reason: "must be an array of strings, got " + jsonTypeName(v)}
			}
			for i, item := range items {
				if _, ok := item.(string); !ok {
					return &ArgumentError{
						Operation: op,
						Field:     fmt.Sprintf("%s[%d]", p.Name, i),
						Reason:    "must be a string, got " + jsonTypeName(item),
					}
				}
			}
		}
	}
	return nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// mapToStruct converts validated arguments into a typed parameter struct.
func mapToStruct[T any](m map[string]any) (T, error) {
	var result T
	if len(m) == 0 {
		return result, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return result, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to decode arguments: %w", err)
	}
	return result, nil
}
