package extension

import "fmt"

// FieldType is the declared type of a config field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldList    FieldType = "list"
)

// Field declares one config field.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Schema is an explicit config shape: a flat set of declared fields
// paired with a pure validate function. No reflection is involved.
type Schema struct {
	Fields []Field `json:"fields,omitempty"`
}

// FieldError reports one config field that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate checks payload against the schema and returns per-field
// errors. Keys not declared in the schema are allowed through for
// forward compatibility.
func (s Schema) Validate(payload map[string]any) []FieldError {
	var errs []FieldError

	for _, f := range s.Fields {
		val, ok := payload[f.Name]
		if !ok || val == nil {
			if f.Required {
				errs = append(errs, FieldError{Field: f.Name, Message: "required field is missing"})
			}
			continue
		}

		if msg := checkType(f.Type, val); msg != "" {
			errs = append(errs, FieldError{Field: f.Name, Message: msg})
		}
	}

	return errs
}

// checkType verifies a decoded JSON value against a declared type.
// Returns an empty string when the value conforms.
func checkType(t FieldType, val any) string {
	switch t {
	case FieldString:
		if _, ok := val.(string); !ok {
			return fmt.Sprintf("expected a string, got %T", val)
		}
	case FieldNumber:
		switch val.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Sprintf("expected a number, got %T", val)
		}
	case FieldBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Sprintf("expected a boolean, got %T", val)
		}
	case FieldObject:
		if _, ok := val.(map[string]any); !ok {
			return fmt.Sprintf("expected an object, got %T", val)
		}
	case FieldList:
		if _, ok := val.([]any); !ok {
			return fmt.Sprintf("expected a list, got %T", val)
		}
	}
	return ""
}

// Definition renders the schema for inclusion in a manifest document.
func (s Schema) Definition() map[string]any {
	fields := make([]any, 0, len(s.Fields))
	for _, f := range s.Fields {
		field := map[string]any{
			"name": f.Name,
			"type": string(f.Type),
		}
		if f.Required {
			field["required"] = true
		}
		if f.Description != "" {
			field["description"] = f.Description
		}
		fields = append(fields, field)
	}
	return map[string]any{"fields": fields}
}
