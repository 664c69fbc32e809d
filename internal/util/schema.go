package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrNoJSONObject is returned when model output contains no JSON object.
var ErrNoJSONObject = errors.New("no JSON object found")

// ValidationError reports a field of a decoded object that does not match
// its schema.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// CreateSchema derives a JSON schema from a Go struct using reflection. The
// schema is embedded in prompts that ask a model for structured output, and
// later used by ValidateObject to check what came back.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if name := strings.Split(jsonTag, ",")[0]; name != "" {
				fieldName = name
			}
		}

		fieldSchema := map[string]any{"type": getJSONType(field.Type)}
		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			fieldSchema["enum"] = strings.Split(enum, "|")
		}
		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// SchemaJSON renders the schema of structType as indented JSON for prompts.
func SchemaJSON(structType any) string {
	b, _ := json.MarshalIndent(CreateSchema(structType), "", "  ")
	return string(b)
}

// ValidateObject checks a decoded object against a schema built by
// CreateSchema: required fields must be present, known fields must have the
// right JSON type and enum fields one of the allowed values.
func ValidateObject(obj map[string]any, schema map[string]any) error {
	for _, fieldName := range requiredFields(schema["required"]) {
		if _, exists := obj[fieldName]; !exists {
			return &ValidationError{Field: fieldName, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range obj {
		propMap, ok := properties[fieldName].(map[string]any)
		if !ok {
			continue // extra fields are allowed
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
		if enum, ok := propMap["enum"].([]string); ok && value != nil {
			if !containsString(enum, fmt.Sprint(value)) {
				return &ValidationError{
					Field:   fieldName,
					Value:   value,
					Message: fmt.Sprintf("must be one of %s", strings.Join(enum, ", ")),
				}
			}
		}
	}
	return nil
}

// ExtractJSONObject finds the outermost JSON object in model output, which
// may be wrapped in prose or a markdown code fence, and decodes it.
func ExtractJSONObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONObject
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	return obj, nil
}

// DecodeInto extracts a JSON object from model output, validates it against
// the schema of out and decodes it into out.
func DecodeInto(text string, out any) error {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return err
	}
	if err := ValidateObject(obj, CreateSchema(out)); err != nil {
		return err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isValidType checks a decoded JSON value against a schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
