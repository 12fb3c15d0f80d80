package ids

import (
	"strconv"
	"strings"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
)

// SemVer is a parsed major.minor.patch version with optional prerelease/build
// suffixes, ordered by component-wise comparison.
type SemVer struct {
	Major, Minor, Patch int
	Prerelease          string
	Build               string
	raw                 string
}

func (v SemVer) String() string { return v.raw }

// ParseSemVer parses a "major.minor.patch[-prerelease][+build]" string.
func ParseSemVer(s string) (SemVer, error) {
	raw := s
	v := SemVer{raw: raw}

	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Prerelease = s[i+1:]
		s = s[:i]
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return SemVer{}, invalidVersion(raw)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return SemVer{}, invalidVersion(raw)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// Compare returns -1, 0, or 1 comparing v against other, ordering release versions
// above their prereleases and otherwise comparing prerelease strings lexically.
func (v SemVer) Compare(other SemVer) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	switch {
	case v.Prerelease == "" && other.Prerelease == "":
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	default:
		return strings.Compare(v.Prerelease, other.Prerelease)
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SortSemVers sorts versions ascending in place using Compare.
func SortSemVers(versions []SemVer) {
	for i := 1; i < len(versions); i++ {
		for j := i; j > 0 && versions[j-1].Compare(versions[j]) > 0; j-- {
			versions[j-1], versions[j] = versions[j], versions[j-1]
		}
	}
}

func invalidVersion(raw string) error {
	return cerrors.New(cerrors.InvalidVersion, "invalid semantic version: "+raw, map[string]any{
		"version": raw,
	})
}
