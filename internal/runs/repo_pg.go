package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"pca-viewer/internal/pca"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, session_id, source, status, files, file_bytes, rejected, result, stats,
       error_kind, error_message, http_status, artifacts, duration_ms,
       started_at, completed_at, created_at
FROM runs`

// Create inserts a new run.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO runs (
	id, session_id, source, status, files, file_bytes, rejected, result, stats,
	error_kind, error_message, http_status, artifacts, duration_ms,
	started_at, completed_at, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	files, err := marshalJSONB(nonNilFiles(run.Files))
	if err != nil {
		return err
	}
	rejected, err := marshalJSONB(nonNilStrings(run.Rejected))
	if err != nil {
		return err
	}
	artifacts, err := marshalJSONB(nonNilStrings(run.Artifacts))
	if err != nil {
		return err
	}
	var result, stats any
	if run.Result != nil {
		if result, err = marshalJSONB(run.Result); err != nil {
			return err
		}
	}
	if run.Stats != nil {
		if stats, err = marshalJSONB(run.Stats); err != nil {
			return err
		}
	}

	_, err = r.DB.ExecContext(ctx, query,
		run.ID,
		run.SessionID,
		run.Source,
		run.Status,
		files,
		run.FileBytes,
		rejected,
		result,
		stats,
		nullString(run.ErrorKind),
		run.ErrorMessage,
		nullInt(run.HTTPStatus),
		artifacts,
		run.DurationMS,
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
	)
	return err
}

// GetByID returns a run by ID.
func (r *PGRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	row := r.DB.QueryRowContext(ctx, selectColumns+`
WHERE id = $1::uuid
LIMIT 1`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	return run, nil
}

// SetArtifacts replaces the artifact list of a run.
func (r *PGRepo) SetArtifacts(ctx context.Context, runID string, artifacts []string) error {
	const query = `
UPDATE runs
SET artifacts = $1::jsonb
WHERE id = $2::uuid`

	payload, err := marshalJSONB(nonNilStrings(artifacts))
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, payload, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent lists runs newest-first.
func (r *PGRepo) ListRecent(ctx context.Context, limit, offset int) ([]Run, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := r.DB.QueryContext(ctx, selectColumns+`
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var files, rejected, artifacts []byte
	var result, stats sql.NullString
	var errorKind, errorMessage sql.NullString
	var httpStatus sql.NullInt64
	if err := s.Scan(
		&run.ID,
		&run.SessionID,
		&run.Source,
		&run.Status,
		&files,
		&run.FileBytes,
		&rejected,
		&result,
		&stats,
		&errorKind,
		&errorMessage,
		&httpStatus,
		&artifacts,
		&run.DurationMS,
		&run.StartedAt,
		&run.CompletedAt,
		&run.CreatedAt,
	); err != nil {
		return Run{}, err
	}

	if err := unmarshalIfSet(files, &run.Files); err != nil {
		return Run{}, err
	}
	if err := unmarshalIfSet(rejected, &run.Rejected); err != nil {
		return Run{}, err
	}
	if err := unmarshalIfSet(artifacts, &run.Artifacts); err != nil {
		return Run{}, err
	}
	if result.Valid {
		var res pca.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return Run{}, err
		}
		run.Result = &res
	}
	if stats.Valid {
		var st pca.Stats
		if err := json.Unmarshal([]byte(stats.String), &st); err != nil {
			return Run{}, err
		}
		run.Stats = &st
	}
	if errorKind.Valid {
		run.ErrorKind = errorKind.String
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		run.ErrorMessage = &msg
	}
	if httpStatus.Valid {
		run.HTTPStatus = int(httpStatus.Int64)
	}
	return run, nil
}

func marshalJSONB(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalIfSet(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilFiles(v []FileRef) []FileRef {
	if v == nil {
		return []FileRef{}
	}
	return v
}

var _ Repo = (*PGRepo)(nil)
