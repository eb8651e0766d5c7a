package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heyjunin/vodforge/pkg/hls"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on any schema change. Databases written by another
// version are rejected rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// release.
var ErrSchemaMismatch = errors.New("job database schema version mismatch")

// Store persists job records in a local SQLite database. It is the
// checkpoint boundary of the pipeline: everything a crashed run needs to
// resume lives here and nowhere else.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the job database at path, creating it and its parent
// directory on first use.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create job db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open job db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

const jobColumns = "asset_id, input_ref, status, probe_json, plan_json, variant_state_json, master_key, thumbnail_key, global_progress, error_type, error_message, created_at, updated_at"

// Create inserts a queued job for assetID, or returns the existing record
// when one is already present. The upstream queue delivers at least once, so
// repeat creations of the same asset must be harmless.
func (s *Store) Create(ctx context.Context, assetID, inputRef string) (*Job, error) {
	if assetID == "" {
		return nil, errors.New("asset id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (asset_id, input_ref, status, variant_state_json, global_progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(asset_id) DO NOTHING`,
		assetID, inputRef, string(StatusQueued), "{}", now, now)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, assetID)
}

// Get fetches one job. A missing asset returns (nil, nil).
func (s *Store) Get(ctx context.Context, assetID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE asset_id = ?`, assetID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists every mutable field of the job record.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	probeJSON, err := marshalNullable(job.Probed)
	if err != nil {
		return fmt.Errorf("marshal probe: %w", err)
	}
	planJSON, err := marshalNullable(job.Plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	stateJSON, err := json.Marshal(job.VariantState)
	if err != nil {
		return fmt.Errorf("marshal variant state: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET
			input_ref = ?, status = ?, probe_json = ?, plan_json = ?,
			variant_state_json = ?, master_key = ?, thumbnail_key = ?,
			global_progress = ?, error_type = ?, error_message = ?, updated_at = ?
		 WHERE asset_id = ?`,
		job.InputRef, string(job.Status), probeJSON, planJSON,
		string(stateJSON), nullableString(job.MasterKey), nullableString(job.ThumbnailKey),
		job.GlobalProgress, nullableString(job.ErrorType), nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano), job.AssetID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %s not found", job.AssetID)
	}
	return nil
}

// UpdateProgress writes only the persisted progress value. This is the
// storage-throttled write path, kept narrow so it cannot clobber fields a
// concurrent full update owns.
func (s *Store) UpdateProgress(ctx context.Context, assetID string, percent float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET global_progress = ?, updated_at = ? WHERE asset_id = ?`,
		percent, time.Now().UTC().Format(time.RFC3339Nano), assetID)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// List returns jobs ordered oldest first, optionally filtered to the given
// statuses.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// ResetForRetry moves a terminal job back to queued so a worker can pick it
// up again. Checkpointed variants stay done and are skipped on the next run;
// only stale in-progress markers are cleared.
func (s *Store) ResetForRetry(ctx context.Context, assetID string) (*Job, error) {
	job, err := s.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s; only done, partial or failed jobs can be requeued", assetID, job.Status)
	}

	job.Status = StatusQueued
	job.ErrorType = ""
	job.ErrorMessage = ""
	for label, st := range job.VariantState {
		if st == VariantInProgress {
			job.VariantState[label] = VariantPending
		}
	}
	if err := s.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		assetID    string
		inputRef   string
		statusStr  string
		probeJSON  sql.NullString
		planJSON   sql.NullString
		stateJSON  sql.NullString
		masterKey  sql.NullString
		thumbKey   sql.NullString
		progress   float64
		errType    sql.NullString
		errMsg     sql.NullString
		createdRaw string
		updatedRaw string
	)

	if err := scanner.Scan(
		&assetID, &inputRef, &statusStr, &probeJSON, &planJSON, &stateJSON,
		&masterKey, &thumbKey, &progress, &errType, &errMsg, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		AssetID:        assetID,
		InputRef:       inputRef,
		Status:         Status(statusStr),
		MasterKey:      masterKey.String,
		ThumbnailKey:   thumbKey.String,
		GlobalProgress: progress,
		ErrorType:      errType.String,
		ErrorMessage:   errMsg.String,
		VariantState:   map[string]VariantStatus{},
	}

	if probeJSON.Valid && probeJSON.String != "" {
		var probe Probe
		if err := json.Unmarshal([]byte(probeJSON.String), &probe); err != nil {
			return nil, fmt.Errorf("unmarshal probe: %w", err)
		}
		job.Probed = &probe
	}
	if planJSON.Valid && planJSON.String != "" {
		var plan []hls.Variant
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		job.Plan = plan
	}
	if stateJSON.Valid && stateJSON.String != "" {
		if err := json.Unmarshal([]byte(stateJSON.String), &job.VariantState); err != nil {
			return nil, fmt.Errorf("unmarshal variant state: %w", err)
		}
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case *Probe:
		if val == nil {
			return nil, nil
		}
	case []hls.Variant:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
