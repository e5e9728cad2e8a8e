package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// ValidateParams checks args against a JSON-Schema-style parameter
// definition and returns human-readable problems, one per violation. It
// covers the subset of JSON Schema that tool definitions actually use:
// type, required, properties, items, enum, minimum/maximum and
// minLength/maxLength. Properties not declared in the schema are
// tolerated — models sometimes add extras and rejecting them helps nobody.
func ValidateParams(schemaJSON json.RawMessage, args map[string]any) []string {
	var sch map[string]any
	if err := json.Unmarshal(schemaJSON, &sch); err != nil {
		return nil // unparseable schema: let the tool sort it out
	}

	var value any = args
	if args == nil {
		value = map[string]any{}
	}
	return validateValue(sch, value, "")
}

func validateValue(sch map[string]any, value any, path string) []string {
	var errs []string

	at := func(p string) string {
		if p == "" {
			return "parameters"
		}
		return "'" + p + "'"
	}

	if typ, ok := sch["type"].(string); ok {
		if !checkType(typ, value) {
			errs = append(errs, fmt.Sprintf("%s must be of type %s, got %s",
				at(path), typ, jsonTypeName(value)))
			return errs // nested checks would only cascade
		}
	}

	if enum, ok := sch["enum"].([]any); ok {
		found := false
		for _, e := range enum {
			if reflect.DeepEqual(e, value) {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("%s must be one of %v", at(path), enum))
		}
	}

	switch v := value.(type) {
	case float64:
		if min, ok := sch["minimum"].(float64); ok && v < min {
			errs = append(errs, fmt.Sprintf("%s must be >= %v", at(path), min))
		}
		if max, ok := sch["maximum"].(float64); ok && v > max {
			errs = append(errs, fmt.Sprintf("%s must be <= %v", at(path), max))
		}
	case string:
		if min, ok := sch["minLength"].(float64); ok && len(v) < int(min) {
			errs = append(errs, fmt.Sprintf("%s must be at least %d characters", at(path), int(min)))
		}
		if max, ok := sch["maxLength"].(float64); ok && len(v) > int(max) {
			errs = append(errs, fmt.Sprintf("%s must be at most %d characters", at(path), int(max)))
		}
	case []any:
		if items, ok := sch["items"].(map[string]any); ok {
			for i, elem := range v {
				errs = append(errs, validateValue(items, elem, fmt.Sprintf("%s[%d]", path, i))...)
			}
		}
	case map[string]any:
		props, _ := sch["properties"].(map[string]any)
		if req, ok := sch["required"].([]any); ok {
			for _, r := range req {
				name, _ := r.(string)
				if _, present := v[name]; name != "" && !present {
					errs = append(errs, fmt.Sprintf("missing required parameter '%s'", joinPath(path, name)))
				}
			}
		}
		for name, sub := range props {
			subSchema, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			if val, present := v[name]; present {
				errs = append(errs, validateValue(subSchema, val, joinPath(path, name))...)
			}
		}
	}

	return errs
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// checkType matches a Go value (as produced by encoding/json) against a
// JSON Schema type name. "integer" accepts any float64 with an integral
// value, since encoding/json decodes all numbers to float64.
func checkType(typ string, value any) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		if _, ok := value.(int); ok {
			return true
		}
		f, ok := value.(float64)
		return ok && f == math.Trunc(f)
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	}
	return true // unknown type names are not our problem
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int64:
		return true
	}
	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}
