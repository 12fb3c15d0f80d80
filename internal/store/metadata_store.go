// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the code/metadata store: versioned metadata
// persistence, compressed and chunked code blobs, and fallback-aware
// retrieval, with in-memory and networked backends behind the same
// interfaces.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// ListPage is one page of a listMetadata scan.
type ListPage struct {
	Items      []metadata.Function
	NextCursor string
}

// MetadataStore is the function-metadata contract: get, put, list, and
// delete, plus version enumeration.
type MetadataStore interface {
	GetMetadata(ctx context.Context, id, version string) (*metadata.Function, error)
	PutMetadata(ctx context.Context, fn metadata.Function) (metadata.Function, error)
	ListMetadata(ctx context.Context, cursor string, limit int, typeFilter string) (ListPage, error)
	DeleteMetadata(ctx context.Context, id string) error
	ListVersions(ctx context.Context, id string) (versions []string, latest string, err error)
	ListVersionsSorted(ctx context.Context, id string) ([]string, error)
	Deployments(ctx context.Context, id string) ([]metadata.DeploymentRecord, error)
	Rollback(ctx context.Context, id, toVersion string) (metadata.Function, error)
}

type functionRecord struct {
	latest      metadata.Function
	versions    map[string]metadata.Function
	deployments []metadata.DeploymentRecord
}

// MemoryMetadataStore is an in-process MetadataStore, the default backend
// and the one unit tests exercise. Mutations are append-only for version
// snapshots and last-write-wins for the "latest" pointer and manifest,
// matching the concurrency rules.
type MemoryMetadataStore struct {
	mu       sync.RWMutex
	records  map[string]*functionRecord
	manifest []string // insertion order, may contain duplicates pre-dedup
}

// NewMemoryMetadataStore constructs an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{records: make(map[string]*functionRecord)}
}

func (s *MemoryMetadataStore) GetMetadata(_ context.Context, id, version string) (*metadata.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	if version == "" {
		fn := rec.latest.Clone()
		return &fn, nil
	}
	fn, ok := rec.versions[version]
	if !ok {
		return nil, nil
	}
	fn = fn.Clone()
	return &fn, nil
}

func (s *MemoryMetadataStore) PutMetadata(_ context.Context, fn metadata.Function) (metadata.Function, error) {
	if err := ids.ValidateFunctionID(fn.ID); err != nil {
		return metadata.Function{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec, ok := s.records[fn.ID]
	if !ok {
		rec = &functionRecord{versions: make(map[string]metadata.Function)}
		s.records[fn.ID] = rec
		fn.CreatedAt = now
		s.manifest = append(s.manifest, fn.ID)
	} else {
		fn.CreatedAt = rec.latest.CreatedAt
	}
	fn.UpdatedAt = now

	rec.versions[fn.Version] = fn.Clone()
	rec.latest = fn.Clone()
	rec.deployments = append(rec.deployments, metadata.DeploymentRecord{
		Version:   fn.Version,
		Kind:      metadata.DeployKindDeploy,
		Timestamp: now,
	})

	return fn.Clone(), nil
}

func (s *MemoryMetadataStore) ListMetadata(_ context.Context, cursor string, limit int, typeFilter string) (ListPage, error) {
	if limit <= 0 {
		limit = 100
	}
	offset, err := decodeCursor(cursor)
	if err != nil {
		return ListPage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := append([]string(nil), s.manifest...)
	sort.Strings(ids)

	var filtered []metadata.Function
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if typeFilter != "" && string(rec.latest.Type) != typeFilter {
			continue
		}
		filtered = append(filtered, rec.latest.Clone())
	}

	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	page := ListPage{Items: filtered[offset:end]}
	if end < len(filtered) {
		page.NextCursor = encodeCursor(end)
	}
	return page, nil
}

func (s *MemoryMetadataStore) DeleteMetadata(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id})
	}
	delete(s.records, id)
	for i, mid := range s.manifest {
		if mid == id {
			s.manifest = append(s.manifest[:i], s.manifest[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryMetadataStore) ListVersions(_ context.Context, id string) ([]string, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, "", cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id})
	}
	versions := make([]string, 0, len(rec.versions))
	for v := range rec.versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, rec.latest.Version, nil
}

func (s *MemoryMetadataStore) ListVersionsSorted(ctx context.Context, id string) ([]string, error) {
	versions, _, err := s.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	parsed := make([]ids.SemVer, 0, len(versions))
	for _, v := range versions {
		sv, err := ids.ParseSemVer(v)
		if err != nil {
			continue // non-semver version tags are dropped from the semver-ordered view
		}
		parsed = append(parsed, sv)
	}
	ids.SortSemVers(parsed)
	out := make([]string, len(parsed))
	for i, sv := range parsed {
		out[i] = sv.String()
	}
	return out, nil
}

func (s *MemoryMetadataStore) Deployments(_ context.Context, id string) ([]metadata.DeploymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id})
	}
	return append([]metadata.DeploymentRecord(nil), rec.deployments...), nil
}

func (s *MemoryMetadataStore) Rollback(_ context.Context, id, toVersion string) (metadata.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return metadata.Function{}, cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id})
	}
	target, ok := rec.versions[toVersion]
	if !ok {
		return metadata.Function{}, cerrors.New(cerrors.NotFound, "version not found: "+toVersion, map[string]any{"functionId": id, "version": toVersion})
	}

	now := time.Now().UTC()
	target.UpdatedAt = now
	rec.latest = target.Clone()
	rec.deployments = append(rec.deployments, metadata.DeploymentRecord{
		Version:   toVersion,
		Kind:      metadata.DeployKindRollback,
		Timestamp: now,
	})
	return target.Clone(), nil
}

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, cerrors.New(cerrors.InvalidCursor, "invalid cursor", nil)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, cerrors.New(cerrors.InvalidCursor, "invalid cursor", nil)
	}
	return n, nil
}

var _ fmt.Stringer = (*MemoryMetadataStore)(nil)

// String implements fmt.Stringer for debug logging.
func (s *MemoryMetadataStore) String() string { return "store.MemoryMetadataStore" }
