// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ids parses and validates the identifiers and duration literals shared
// across the cascade engine: function ids, semantic versions, and durations.
package ids

import (
	"strings"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

// MaxFunctionIDLen is the upper bound a function id may never exceed.
const MaxFunctionIDLen = 255

// PreferredFunctionIDLen is the recommended upper bound for new ids.
const PreferredFunctionIDLen = 64

// ValidateFunctionID checks id against the grammar: printable ASCII, 1-255
// characters (64 preferred), beginning and ending with an alphanumeric,
// interior characters alphanumeric plus '-' or '_', no two consecutive hyphens.
func ValidateFunctionID(id string) error {
	if len(id) == 0 || len(id) > MaxFunctionIDLen {
		return invalidFunctionID(id, "length must be between 1 and 255 characters")
	}
	if !isAlphanumeric(id[0]) || !isAlphanumeric(id[len(id)-1]) {
		return invalidFunctionID(id, "must begin and end with an alphanumeric character")
	}
	prevHyphen := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case isAlphanumeric(c):
			prevHyphen = false
		case c == '_':
			prevHyphen = false
		case c == '-':
			if prevHyphen {
				return invalidFunctionID(id, "must not contain two consecutive hyphens")
			}
			prevHyphen = true
		default:
			return invalidFunctionID(id, "must contain only alphanumerics, '-' and '_'")
		}
	}
	return nil
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func invalidFunctionID(id, reason string) error {
	return cerrors.New(cerrors.InvalidFunctionID, "invalid function id: "+reason, map[string]any{
		"functionId": id,
	})
}

// IsPreferredLength reports whether id fits inside the recommended 64-character bound.
func IsPreferredLength(id string) bool {
	return len(id) <= PreferredFunctionIDLen
}

// NormalizeFunctionID trims surrounding whitespace only; it never mutates case or
// interior characters, since the grammar is case-sensitive.
func NormalizeFunctionID(id string) string {
	return strings.TrimSpace(id)
}
