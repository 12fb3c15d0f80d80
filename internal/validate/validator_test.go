// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package validate

import "testing"

func schemaFixture() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"name", "count"},
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"count": map[string]any{"type": "number"},
			"mode":  map[string]any{"type": "string", "enum": []any{"fast", "slow"}},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"nested": map[string]any{
				"type":     "object",
				"required": []any{"id"},
				"properties": map[string]any{
					"id": map[string]any{"type": "integer"},
				},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	res := Validate(schemaFixture(), map[string]any{
		"name":   "job",
		"count":  3.0,
		"mode":   "fast",
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"id": 7.0},
	})
	if !res.Valid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}
}

func TestValidateAccumulatesRequiredAndEnum(t *testing.T) {
	res := Validate(schemaFixture(), map[string]any{"mode": "turbo"})
	if res.Valid {
		t.Fatal("expected invalid")
	}
	// Two missing required fields plus one enum violation all accumulate.
	if len(res.Errors) != 3 {
		t.Fatalf("errors = %v, want 3 accumulated failures", res.Errors)
	}
}

func TestValidateTypeMismatchHaltsDescent(t *testing.T) {
	res := Validate(schemaFixture(), map[string]any{
		"name":   "job",
		"count":  2.0,
		"nested": "not-an-object",
	})
	if res.Valid {
		t.Fatal("expected invalid")
	}
	// The nested branch fails fast at the type mismatch; nested.id's
	// required check is never reached.
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly the type mismatch", res.Errors)
	}
	if res.Errors[0].Path != "nested" {
		t.Errorf("error path = %q, want nested", res.Errors[0].Path)
	}
}

func TestValidateNumericStringRelaxation(t *testing.T) {
	res := Validate(schemaFixture(), map[string]any{"name": "job", "count": "42"})
	if !res.Valid {
		t.Fatalf("numeric string should satisfy type=number, got %v", res.Errors)
	}

	res = Validate(schemaFixture(), map[string]any{"name": "job", "count": "forty-two"})
	if res.Valid {
		t.Fatal("non-numeric string must not satisfy type=number")
	}
}

func TestValidateArrayItemPaths(t *testing.T) {
	res := Validate(schemaFixture(), map[string]any{
		"name":  "job",
		"count": 1.0,
		"tags":  []any{"ok", 5.0},
	})
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Errors[0].Path != "tags[1]" {
		t.Errorf("error path = %q, want tags[1]", res.Errors[0].Path)
	}
}

func TestValidateNilSchema(t *testing.T) {
	if res := Validate(nil, map[string]any{"anything": true}); !res.Valid {
		t.Error("nil schema validates everything")
	}
}
