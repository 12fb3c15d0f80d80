// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ids

import "testing"

func TestParseSemVer(t *testing.T) {
	v, err := ParseSemVer("1.2.3-beta.1+build.5")
	if err != nil {
		t.Fatal(err)
	}
	if v.Major != 1 || v.Minor != 2 || v.Patch != 3 {
		t.Errorf("parsed components = %d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Prerelease != "beta.1" {
		t.Errorf("prerelease = %q", v.Prerelease)
	}
	if v.Build != "build.5" {
		t.Errorf("build = %q", v.Build)
	}
	if v.String() != "1.2.3-beta.1+build.5" {
		t.Errorf("String() = %q", v.String())
	}

	for _, bad := range []string{"1.2", "1.2.3.4", "a.b.c", "1.-2.3", ""} {
		if _, err := ParseSemVer(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestSortSemVers(t *testing.T) {
	raw := []string{"2.0.0", "1.0.0", "1.10.0", "1.2.0", "1.2.0-alpha", "1.0.1"}
	parsed := make([]SemVer, len(raw))
	for i, r := range raw {
		v, err := ParseSemVer(r)
		if err != nil {
			t.Fatal(err)
		}
		parsed[i] = v
	}
	SortSemVers(parsed)

	want := []string{"1.0.0", "1.0.1", "1.2.0-alpha", "1.2.0", "1.10.0", "2.0.0"}
	for i, w := range want {
		if parsed[i].String() != w {
			t.Fatalf("sorted[%d] = %s, want %s (full: %v)", i, parsed[i], w, parsed)
		}
	}
}
