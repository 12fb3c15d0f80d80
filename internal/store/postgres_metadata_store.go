// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/cascadehq/cascade-engine/internal/cerrors"
	"github.com/cascadehq/cascade-engine/internal/ids"
	"github.com/cascadehq/cascade-engine/internal/metadata"
)

// PostgresMetadataStoreConfig names the tables a PostgresMetadataStore
// reads and writes. A non-empty prefix namespaces every table.
type PostgresMetadataStoreConfig struct {
	TablePrefix string
}

func (c PostgresMetadataStoreConfig) fullTableName(name string) string {
	if c.TablePrefix == "" {
		return name
	}
	return c.TablePrefix + "_" + name
}

// PostgresMetadataStore persists function metadata, version snapshots, and
// deployment history as rows in Postgres through database/sql over the pgx
// driver. Its tables mirror the abstract KV layout (registry:<id>,
// registry:<id>:v:<version>, registry:<id>:versions), but rows are keyed by
// function id and by (function id, version), not by those strings.
type PostgresMetadataStore struct {
	db  *sql.DB
	cfg PostgresMetadataStoreConfig
}

// NewPostgresMetadataStore connects to dsn and returns a ready store. The
// caller owns the handle's lifetime via Close.
func NewPostgresMetadataStore(ctx context.Context, dsn string, cfg PostgresMetadataStoreConfig) (*PostgresMetadataStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("cascade: open postgres metadata store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cascade: connect postgres metadata store: %w", err)
	}
	return &PostgresMetadataStore{db: db, cfg: cfg}, nil
}

// Close releases the underlying database handle.
func (s *PostgresMetadataStore) Close() { _ = s.db.Close() }

func (s *PostgresMetadataStore) registryTable() string { return s.cfg.fullTableName("registry") }
func (s *PostgresMetadataStore) versionsTable() string {
	return s.cfg.fullTableName("registry_versions")
}
func (s *PostgresMetadataStore) manifestTable() string {
	return s.cfg.fullTableName("functions_manifest")
}
func (s *PostgresMetadataStore) deploymentsTable() string { return s.cfg.fullTableName("deployments") }

func (s *PostgresMetadataStore) GetMetadata(ctx context.Context, id, version string) (*metadata.Function, error) {
	var query string
	var args []any
	if version == "" {
		query = fmt.Sprintf("SELECT content FROM %s WHERE id = $1", s.registryTable())
		args = []any{id}
	} else {
		query = fmt.Sprintf("SELECT content FROM %s WHERE function_id = $1 AND version = $2", s.versionsTable())
		args = []any{id, version}
	}

	var content []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&content)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cascade: get metadata: %w", err)
	}

	var fn metadata.Function
	if err := json.Unmarshal(content, &fn); err != nil {
		return nil, fmt.Errorf("cascade: decode metadata: %w", err)
	}
	return &fn, nil
}

func (s *PostgresMetadataStore) PutMetadata(ctx context.Context, fn metadata.Function) (metadata.Function, error) {
	if err := ids.ValidateFunctionID(fn.ID); err != nil {
		return metadata.Function{}, err
	}

	existing, err := s.GetMetadata(ctx, fn.ID, "")
	if err != nil {
		return metadata.Function{}, err
	}
	now := time.Now().UTC()
	if existing != nil {
		fn.CreatedAt = existing.CreatedAt
	} else {
		fn.CreatedAt = now
	}
	fn.UpdatedAt = now

	content, err := json.Marshal(fn)
	if err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (id, content) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`, s.registryTable())
	if _, err := tx.ExecContext(ctx, upsert, fn.ID, content); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: upsert latest: %w", err)
	}

	snapshot := fmt.Sprintf(`INSERT INTO %s (function_id, version, content) VALUES ($1, $2, $3)
		ON CONFLICT (function_id, version) DO NOTHING`, s.versionsTable())
	if _, err := tx.ExecContext(ctx, snapshot, fn.ID, fn.Version, content); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: write version snapshot: %w", err)
	}

	deploy := fmt.Sprintf(`INSERT INTO %s (function_id, version, kind, timestamp) VALUES ($1, $2, $3, $4)`,
		s.deploymentsTable())
	if _, err := tx.ExecContext(ctx, deploy, fn.ID, fn.Version, metadata.DeployKindDeploy, now); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: append deployment record: %w", err)
	}

	manifest := fmt.Sprintf(`INSERT INTO %s (function_id, owner_id) VALUES ($1, $2)
		ON CONFLICT (function_id) DO NOTHING`, s.manifestTable())
	if _, err := tx.ExecContext(ctx, manifest, fn.ID, fn.OwnerID); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: append manifest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: commit metadata write: %w", err)
	}
	return fn, nil
}

func (s *PostgresMetadataStore) ListMetadata(ctx context.Context, cursor string, limit int, typeFilter string) (ListPage, error) {
	if limit <= 0 {
		limit = 100
	}
	offset, err := decodeCursor(cursor)
	if err != nil {
		return ListPage{}, err
	}

	if offset == 0 {
		if err := s.rebuildManifestIfEmpty(ctx); err != nil {
			return ListPage{}, err
		}
	}

	query := fmt.Sprintf(`SELECT r.content FROM %s r
		JOIN %s m ON m.function_id = r.id
		ORDER BY m.function_id LIMIT $1 OFFSET $2`, s.registryTable(), s.manifestTable())
	rows, err := s.db.QueryContext(ctx, query, limit+1, offset)
	if err != nil {
		return ListPage{}, fmt.Errorf("cascade: list metadata: %w", err)
	}
	defer rows.Close()

	var items []metadata.Function
	for rows.Next() {
		var content []byte
		if err := rows.Scan(&content); err != nil {
			return ListPage{}, fmt.Errorf("cascade: scan metadata row: %w", err)
		}
		var fn metadata.Function
		if err := json.Unmarshal(content, &fn); err != nil {
			return ListPage{}, fmt.Errorf("cascade: decode metadata row: %w", err)
		}
		if typeFilter != "" && string(fn.Type) != typeFilter {
			continue
		}
		items = append(items, fn)
	}

	page := ListPage{}
	if len(items) > limit {
		items = items[:limit]
		page.NextCursor = encodeCursor(offset + limit)
	}
	page.Items = items
	return page, nil
}

// rebuildManifestIfEmpty regenerates the manifest from the registry when it
// has been lost, so future lists stay one indexed page per call.
func (s *PostgresMetadataStore) rebuildManifestIfEmpty(ctx context.Context) error {
	var manifestCount int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.manifestTable())).Scan(&manifestCount); err != nil {
		return fmt.Errorf("cascade: count manifest: %w", err)
	}
	if manifestCount > 0 {
		return nil
	}

	rebuild := fmt.Sprintf(`INSERT INTO %s (function_id, owner_id)
		SELECT id, '' FROM %s ON CONFLICT (function_id) DO NOTHING`,
		s.manifestTable(), s.registryTable())
	if _, err := s.db.ExecContext(ctx, rebuild); err != nil {
		return fmt.Errorf("cascade: rebuild manifest: %w", err)
	}
	return nil
}

func (s *PostgresMetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cascade: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.registryTable()), id)
	if err != nil {
		return fmt.Errorf("cascade: delete latest: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id})
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE function_id = $1", s.versionsTable()), id); err != nil {
		return fmt.Errorf("cascade: delete versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE function_id = $1", s.deploymentsTable()), id); err != nil {
		return fmt.Errorf("cascade: delete deployment history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE function_id = $1", s.manifestTable()), id); err != nil {
		return fmt.Errorf("cascade: delete manifest entry: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresMetadataStore) ListVersions(ctx context.Context, id string) ([]string, string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT version FROM %s WHERE function_id = $1 ORDER BY version", s.versionsTable()), id)
	if err != nil {
		return nil, "", fmt.Errorf("cascade: list versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, "", fmt.Errorf("cascade: scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return nil, "", cerrors.New(cerrors.FunctionNotFound, "function not found: "+id, map[string]any{"functionId": id})
	}

	latest, err := s.GetMetadata(ctx, id, "")
	if err != nil {
		return nil, "", err
	}
	latestVersion := ""
	if latest != nil {
		latestVersion = latest.Version
	}
	return versions, latestVersion, nil
}

func (s *PostgresMetadataStore) ListVersionsSorted(ctx context.Context, id string) ([]string, error) {
	versions, _, err := s.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	parsed := make([]ids.SemVer, 0, len(versions))
	for _, v := range versions {
		if sv, err := ids.ParseSemVer(v); err == nil {
			parsed = append(parsed, sv)
		}
	}
	ids.SortSemVers(parsed)
	out := make([]string, len(parsed))
	for i, sv := range parsed {
		out[i] = sv.String()
	}
	return out, nil
}

func (s *PostgresMetadataStore) Deployments(ctx context.Context, id string) ([]metadata.DeploymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT version, kind, timestamp FROM %s WHERE function_id = $1 ORDER BY timestamp", s.deploymentsTable()), id)
	if err != nil {
		return nil, fmt.Errorf("cascade: list deployments: %w", err)
	}
	defer rows.Close()

	var out []metadata.DeploymentRecord
	for rows.Next() {
		var rec metadata.DeploymentRecord
		if err := rows.Scan(&rec.Version, &rec.Kind, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("cascade: scan deployment row: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresMetadataStore) Rollback(ctx context.Context, id, toVersion string) (metadata.Function, error) {
	fn, err := s.GetMetadata(ctx, id, toVersion)
	if err != nil {
		return metadata.Function{}, err
	}
	if fn == nil {
		return metadata.Function{}, cerrors.New(cerrors.NotFound, "version not found: "+toVersion, map[string]any{"functionId": id, "version": toVersion})
	}

	now := time.Now().UTC()
	fn.UpdatedAt = now
	content, err := json.Marshal(fn)
	if err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`INSERT INTO %s (id, content) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`, s.registryTable())
	if _, err := tx.ExecContext(ctx, upsert, id, content); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: upsert latest: %w", err)
	}
	deploy := fmt.Sprintf(`INSERT INTO %s (function_id, version, kind, timestamp) VALUES ($1, $2, $3, $4)`, s.deploymentsTable())
	if _, err := tx.ExecContext(ctx, deploy, id, toVersion, metadata.DeployKindRollback, now); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: append rollback record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return metadata.Function{}, fmt.Errorf("cascade: commit rollback: %w", err)
	}
	return *fn, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
