package ids

import (
	"strconv"
	"strings"
	"time"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

// unitMultipliers maps every accepted duration unit, short and long form, to its
// millisecond multiplier.
var unitMultipliers = map[string]int64{
	"ms":           1,
	"millisecond":  1,
	"milliseconds": 1,
	"s":            1000,
	"sec":          1000,
	"second":       1000,
	"seconds":      1000,
	"m":            60 * 1000,
	"min":          60 * 1000,
	"minute":       60 * 1000,
	"minutes":      60 * 1000,
	"h":            60 * 60 * 1000,
	"hour":         60 * 60 * 1000,
	"hours":        60 * 60 * 1000,
	"d":            24 * 60 * 60 * 1000,
	"day":          24 * 60 * 60 * 1000,
	"days":         24 * 60 * 60 * 1000,
}

// ParseDurationMs parses either a bare integer (milliseconds) or a literal of the
// form "<integer><unit>" and always returns the normalized millisecond value.
func ParseDurationMs(literal string) (int64, error) {
	trimmed := strings.TrimSpace(literal)
	if trimmed == "" {
		return 0, invalidDuration(literal, "empty duration")
	}

	if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return ms, nil
	}

	idx := 0
	for idx < len(trimmed) && (isDigit(trimmed[idx]) || trimmed[idx] == '-' || trimmed[idx] == '+') {
		idx++
	}
	if idx == 0 {
		return 0, invalidDuration(literal, "missing numeric component")
	}

	numPart := trimmed[:idx]
	unitPart := strings.ToLower(strings.TrimSpace(trimmed[idx:]))
	if unitPart == "" {
		return 0, invalidDuration(literal, "missing unit")
	}

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, invalidDuration(literal, "invalid numeric component")
	}

	mult, ok := unitMultipliers[unitPart]
	if !ok {
		return 0, invalidDuration(literal, "unknown unit '"+unitPart+"'")
	}

	return n * mult, nil
}

// MustMs parses literal and returns time.Duration, or 0 on error. Intended for
// defaulted configuration fields that have already been validated once.
func MustMs(literal string) time.Duration {
	ms, err := ParseDurationMs(literal)
	if err != nil {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func invalidDuration(literal, reason string) error {
	return cerrors.New(cerrors.InvalidDuration, "invalid duration: "+reason, map[string]any{
		"duration": literal,
	})
}
