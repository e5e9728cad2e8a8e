package tools

import (
	"encoding/json"
	"strings"
	"testing"
)

const validateSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "minLength": 1},
		"mode": {"type": "string", "enum": ["read", "write"]},
		"count": {"type": "integer", "minimum": 1, "maximum": 10},
		"tags": {"type": "array", "items": {"type": "string"}},
		"opts": {
			"type": "object",
			"properties": {"depth": {"type": "integer"}},
			"required": ["depth"]
		}
	},
	"required": ["path"]
}`

func validate(t *testing.T, args map[string]any) []string {
	t.Helper()
	return ValidateParams(json.RawMessage(validateSchema), args)
}

func TestValidateMissingRequired(t *testing.T) {
	errs := validate(t, map[string]any{})
	if len(errs) != 1 || !strings.Contains(errs[0], "missing required parameter 'path'") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	errs := validate(t, map[string]any{"path": 42.0})
	if len(errs) != 1 || !strings.Contains(errs[0], "must be of type string") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateEnum(t *testing.T) {
	errs := validate(t, map[string]any{"path": "x", "mode": "append"})
	if len(errs) != 1 || !strings.Contains(errs[0], "must be one of") {
		t.Errorf("unexpected errors: %v", errs)
	}
	if errs := validate(t, map[string]any{"path": "x", "mode": "read"}); len(errs) != 0 {
		t.Errorf("valid enum rejected: %v", errs)
	}
}

func TestValidateNumericBounds(t *testing.T) {
	errs := validate(t, map[string]any{"path": "x", "count": 0.0})
	if len(errs) != 1 || !strings.Contains(errs[0], "must be >= 1") {
		t.Errorf("unexpected errors: %v", errs)
	}
	errs = validate(t, map[string]any{"path": "x", "count": 11.0})
	if len(errs) != 1 || !strings.Contains(errs[0], "must be <= 10") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateIntegerAcceptsWholeFloat(t *testing.T) {
	if errs := validate(t, map[string]any{"path": "x", "count": 3.0}); len(errs) != 0 {
		t.Errorf("whole float rejected as integer: %v", errs)
	}
	errs := validate(t, map[string]any{"path": "x", "count": 3.5})
	if len(errs) != 1 || !strings.Contains(errs[0], "must be of type integer") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateArrayItems(t *testing.T) {
	errs := validate(t, map[string]any{"path": "x", "tags": []any{"ok", 1.0}})
	if len(errs) != 1 || !strings.Contains(errs[0], "tags[1]") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateNestedObject(t *testing.T) {
	errs := validate(t, map[string]any{"path": "x", "opts": map[string]any{}})
	if len(errs) != 1 || !strings.Contains(errs[0], "opts.depth") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateExtraPropertiesTolerated(t *testing.T) {
	if errs := validate(t, map[string]any{"path": "x", "surprise": true}); len(errs) != 0 {
		t.Errorf("extra property rejected: %v", errs)
	}
}

func TestValidateNilArgs(t *testing.T) {
	errs := ValidateParams(json.RawMessage(validateSchema), nil)
	if len(errs) != 1 || !strings.Contains(errs[0], "missing required parameter 'path'") {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateUnparseableSchema(t *testing.T) {
	if errs := ValidateParams(json.RawMessage("{broken"), nil); errs != nil {
		t.Errorf("expected nil for unparseable schema, got %v", errs)
	}
}
