package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/envprobe/internal/harness"
)

// ErrNotFound is returned by ReadRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is a stored suite run.
type Run struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`

	// Result holds the verdicts. Checks are empty in ListRuns output.
	Result harness.Result `json:"result"`
}

// WriteRun stores result and its checks in one transaction and returns the
// new run ID.
func (s *Store) WriteRun(ctx context.Context, result *harness.Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("write run: nil result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("write run: next seq: %w", err)
	}

	id := s.ids.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, suite, environment, pass, hard_failure, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		result.Suite,
		result.Environment,
		result.Pass,
		result.HardFailure,
		s.clock().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	for i, c := range result.Checks {
		properties, err := marshalList(c.Properties)
		if err != nil {
			return "", fmt.Errorf("write run: check %q: %w", c.Name, err)
		}
		errs, err := marshalList(c.Errors)
		if err != nil {
			return "", fmt.Errorf("write run: check %q: %w", c.Name, err)
		}
		details, err := marshalList(c.Details)
		if err != nil {
			return "", fmt.Errorf("write run: check %q: %w", c.Name, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO check_results (run_id, position, name, type, status, properties, errors, details)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, i, c.Name, c.Type, string(c.Status), properties, errs, details)
		if err != nil {
			return "", fmt.Errorf("write run: check %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first, without their checks.
// A non-positive limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, seq, suite, environment, pass, hard_failure, created_at
		FROM runs
		ORDER BY seq DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run with its checks in suite order.
func (s *Store) ReadRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, suite, environment, pass, hard_failure, created_at
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, status, properties, errors, details
		FROM check_results
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query check results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                        harness.CheckResult
			status                   string
			properties, errs, detail string
		)
		if err := rows.Scan(&c.Name, &c.Type, &status, &properties, &errs, &detail); err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		c.Status = harness.Status(status)
		if err := unmarshalList(properties, &c.Properties); err != nil {
			return nil, fmt.Errorf("check %q properties: %w", c.Name, err)
		}
		if err := unmarshalList(errs, &c.Errors); err != nil {
			return nil, fmt.Errorf("check %q errors: %w", c.Name, err)
		}
		if err := unmarshalList(detail, &c.Details); err != nil {
			return nil, fmt.Errorf("check %q details: %w", c.Name, err)
		}
		run.Result.Checks = append(run.Result.Checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check results: %w", err)
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		created string
	)
	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.Result.Suite,
		&run.Result.Environment,
		&run.Result.Pass,
		&run.Result.HardFailure,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("scan run %s: created_at: %w", run.ID, err)
	}
	run.Result.Checks = []harness.CheckResult{}
	return run, nil
}

// marshalList encodes a slice as JSON TEXT. nil encodes as "[]".
func marshalList[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalList[T any](data string, v *[]T) error {
	if data == "" || data == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
