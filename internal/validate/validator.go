// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package validate implements the recursive input-schema validator: a
// minimal JSON-Schema-like structural check over an object/array/scalar
// schema tree.
package validate

import (
	"fmt"
	"strconv"
)

// FieldError is one accumulated validation failure, located by a
// dotted/bracketed path (e.g. "user.tags[2]").
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result is the validator's output shape.
type Result struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

// Validate checks value against schema, returning accumulated
// required/enum violations, but halting descent at the first type
// mismatch found on any branch.
func Validate(schema map[string]any, value any) Result {
	var errs []FieldError
	validateNode(schema, value, "$", &errs)
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validateNode(schema map[string]any, value any, path string, errs *[]FieldError) {
	if schema == nil {
		return
	}

	if declared, ok := schema["type"].(string); ok {
		if !typeMatches(declared, value) {
			*errs = append(*errs, FieldError{Path: path, Message: fmt.Sprintf("expected type %q, got %s", declared, describe(value))})
			return
		}
	}

	if enum, ok := schema["enum"].([]any); ok {
		if !enumContains(enum, value) {
			*errs = append(*errs, FieldError{Path: path, Message: "value not in enum"})
		}
	}

	switch declared, _ := schema["type"].(string); declared {
	case "object":
		validateObject(schema, value, path, errs)
	case "array":
		validateArray(schema, value, path, errs)
	}
}

func validateObject(schema map[string]any, value any, path string, errs *[]FieldError) {
	obj, ok := value.(map[string]any)
	if !ok {
		return
	}

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := obj[name]; !present {
				*errs = append(*errs, FieldError{Path: childPath(path, name), Message: "required field missing"})
			}
		}
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	for name, propSchemaAny := range props {
		propSchema, ok := propSchemaAny.(map[string]any)
		if !ok {
			continue
		}
		fieldValue, present := obj[name]
		if !present {
			continue
		}
		validateNode(propSchema, fieldValue, childPath(path, name), errs)
	}
}

func validateArray(schema map[string]any, value any, path string, errs *[]FieldError) {
	arr, ok := value.([]any)
	if !ok {
		return
	}
	itemSchema, ok := schema["items"].(map[string]any)
	if !ok {
		return
	}
	for i, item := range arr {
		validateNode(itemSchema, item, fmt.Sprintf("%s[%d]", path, i), errs)
	}
}

func childPath(parent, name string) string {
	if parent == "$" {
		return name
	}
	return parent + "." + name
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprint(e) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

// typeMatches applies the numeric-string relaxation: a string that
// parses cleanly as a float satisfies type=number, and one that parses
// as a base-10 integer satisfies type=integer.
func typeMatches(declared string, value any) bool {
	switch declared {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch v := value.(type) {
		case float64, float32, int, int64:
			return true
		case string:
			_, err := strconv.ParseFloat(v, 64)
			return err == nil
		default:
			return false
		}
	case "integer":
		switch v := value.(type) {
		case float64:
			return v == float64(int64(v))
		case int, int64:
			return true
		case string:
			_, err := strconv.ParseInt(v, 10, 64)
			return err == nil
		default:
			return false
		}
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64:
		return "number"
	default:
		return "unknown"
	}
}
