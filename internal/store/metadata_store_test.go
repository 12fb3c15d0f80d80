// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

func deploy(t *testing.T, s *MemoryMetadataStore, id, version string) metadata.Function {
	t.Helper()
	fn, err := s.PutMetadata(context.Background(), metadata.Function{
		ID: id, Version: version, Name: id, Type: tier.Code,
	})
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestPutPreservesCreatedAt(t *testing.T) {
	s := NewMemoryMetadataStore()
	first := deploy(t, s, "fn", "1.0.0")
	if first.CreatedAt.IsZero() {
		t.Fatal("createdAt should be set on first deploy")
	}

	time.Sleep(5 * time.Millisecond)
	second := deploy(t, s, "fn", "1.1.0")
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("createdAt must be immutable across deploys")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Error("updatedAt must advance")
	}
}

func TestGetMetadataVersions(t *testing.T) {
	s := NewMemoryMetadataStore()
	deploy(t, s, "fn", "1.0.0")
	deploy(t, s, "fn", "2.0.0")
	ctx := context.Background()

	latest, err := s.GetMetadata(ctx, "fn", "")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != "2.0.0" {
		t.Errorf("latest = %s", latest.Version)
	}

	snap, err := s.GetMetadata(ctx, "fn", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.Version != "1.0.0" {
		t.Errorf("snapshot = %v", snap)
	}

	absent, err := s.GetMetadata(ctx, "fn", "9.9.9")
	if err != nil {
		t.Fatal(err)
	}
	if absent != nil {
		t.Error("unknown version should be absent, not an error")
	}
}

func TestListVersionsAndSorted(t *testing.T) {
	s := NewMemoryMetadataStore()
	for _, v := range []string{"1.10.0", "1.2.0", "2.0.0", "1.0.0"} {
		deploy(t, s, "fn", v)
	}
	ctx := context.Background()

	versions, latest, err := s.ListVersions(ctx, "fn")
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 4 {
		t.Errorf("versions = %v", versions)
	}
	if latest != "1.0.0" {
		t.Errorf("latest pointer = %s, want the most recent deploy", latest)
	}

	sorted, err := s.ListVersionsSorted(ctx, "fn")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1.0.0", "1.2.0", "1.10.0", "2.0.0"}
	for i, w := range want {
		if sorted[i] != w {
			t.Fatalf("sorted = %v, want %v", sorted, want)
		}
	}
}

func TestRollback(t *testing.T) {
	s := NewMemoryMetadataStore()
	deploy(t, s, "fn", "1.0.0")
	deploy(t, s, "fn", "2.0.0")
	ctx := context.Background()

	rolled, err := s.Rollback(ctx, "fn", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if rolled.Version != "1.0.0" {
		t.Errorf("rolled to %s", rolled.Version)
	}

	latest, err := s.GetMetadata(ctx, "fn", "")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Version != "1.0.0" {
		t.Error("latest pointer should re-point to the rollback target")
	}

	deployments, err := s.Deployments(ctx, "fn")
	if err != nil {
		t.Fatal(err)
	}
	last := deployments[len(deployments)-1]
	if last.Kind != metadata.DeployKindRollback || last.Version != "1.0.0" {
		t.Errorf("last deployment record = %+v, want a synthetic rollback entry", last)
	}
}

func TestListMetadataPagination(t *testing.T) {
	s := NewMemoryMetadataStore()
	for _, id := range []string{"alpha", "bravo", "charlie", "delta"} {
		deploy(t, s, id, "1.0.0")
	}
	ctx := context.Background()

	page1, err := s.ListMetadata(ctx, "", 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Items) != 2 || page1.NextCursor == "" {
		t.Fatalf("page1 = %+v", page1)
	}

	page2, err := s.ListMetadata(ctx, page1.NextCursor, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Items) != 2 || page2.NextCursor != "" {
		t.Fatalf("page2 = %+v", page2)
	}
	if page1.Items[0].ID == page2.Items[0].ID {
		t.Error("pages overlap")
	}

	if _, err := s.ListMetadata(ctx, "!!not-base64!!", 2, ""); err == nil {
		t.Error("invalid cursor should be rejected")
	} else if ce, ok := cerrors.As(err); !ok || ce.Kind != cerrors.InvalidCursor {
		t.Errorf("cursor rejection kind = %v", err)
	}
}

func TestDeleteMetadata(t *testing.T) {
	s := NewMemoryMetadataStore()
	deploy(t, s, "fn", "1.0.0")
	ctx := context.Background()

	if err := s.DeleteMetadata(ctx, "fn"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetMetadata(ctx, "fn", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("deleted function should be absent")
	}
	page, err := s.ListMetadata(ctx, "", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Error("manifest entry should be removed")
	}

	err = s.DeleteMetadata(ctx, "fn")
	ce, ok := cerrors.As(err)
	if !ok || ce.Kind != cerrors.FunctionNotFound {
		t.Errorf("double delete = %v, want FUNCTION_NOT_FOUND with no state change", err)
	}
}

func TestPutRejectsInvalidID(t *testing.T) {
	s := NewMemoryMetadataStore()
	_, err := s.PutMetadata(context.Background(), metadata.Function{ID: "-bad-", Version: "1.0.0", Name: "x"})
	ce, ok := cerrors.As(err)
	if !ok || ce.Kind != cerrors.InvalidFunctionID {
		t.Errorf("err = %v", err)
	}
}
