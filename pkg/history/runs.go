package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/gosec-audit/pkg/engine"
)

// Fixed-width so lexical order is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is a stored audit run without its results.
type Run struct {
	ID          string
	PolicyName  string
	Hostname    string
	GeneratedAt time.Time
	Summary     engine.Summary
}

type runRow struct {
	ID          string `db:"id"`
	PolicyName  string `db:"policy_name"`
	Hostname    string `db:"hostname"`
	GeneratedAt string `db:"generated_at"`
	Pass        int    `db:"pass_count"`
	Fail        int    `db:"fail_count"`
	Error       int    `db:"error_count"`
	Unknown     int    `db:"unknown_count"`
}

func (r runRow) run() (Run, error) {
	at, err := time.Parse(timeLayout, r.GeneratedAt)
	if err != nil {
		return Run{}, fmt.Errorf("run %s: bad timestamp %q: %w", r.ID, r.GeneratedAt, err)
	}
	return Run{
		ID:          r.ID,
		PolicyName:  r.PolicyName,
		Hostname:    r.Hostname,
		GeneratedAt: at,
		Summary:     engine.Summary{Pass: r.Pass, Fail: r.Fail, Error: r.Error, Unknown: r.Unknown},
	}, nil
}

// Save stores report and returns the new run id.
func (s *Store) Save(ctx context.Context, report *engine.Report) (string, error) {
	doc, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	id := uuid.NewString()
	const query = `INSERT INTO audit_run
		(id, policy_name, hostname, generated_at, pass_count, fail_count, error_count, unknown_count, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		id,
		report.PolicyName,
		report.Hostname,
		report.GeneratedAt.UTC().Format(timeLayout),
		report.Summary.Pass,
		report.Summary.Fail,
		report.Summary.Error,
		report.Summary.Unknown,
		string(doc),
	)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs first. A non-positive limit returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	const query = `SELECT id, policy_name, hostname, generated_at, pass_count, fail_count, error_count, unknown_count
		FROM audit_run ORDER BY generated_at DESC, rowid DESC LIMIT ?`
	if limit <= 0 {
		limit = -1
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// Get loads the report of the run whose id is, or starts with, id. The prefix
// is matched literally.
func (s *Store) Get(ctx context.Context, id string) (*Run, *engine.Report, error) {
	if id == "" {
		return nil, nil, fmt.Errorf("%w: empty run id", ErrNotFound)
	}
	const query = `SELECT id FROM audit_run WHERE substr(id, 1, length(?)) = ? LIMIT 2`
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, id, id); err != nil {
		return nil, nil, fmt.Errorf("find run %s: %w", id, err)
	}
	switch len(ids) {
	case 0:
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		for _, candidate := range ids {
			if candidate == id {
				return s.load(ctx, candidate)
			}
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
	return s.load(ctx, ids[0])
}

// Latest returns the newest stored run of policyName.
func (s *Store) Latest(ctx context.Context, policyName string) (*Run, *engine.Report, error) {
	const query = `SELECT id FROM audit_run WHERE policy_name = ? ORDER BY generated_at DESC, rowid DESC LIMIT 1`
	var id string
	if err := s.db.GetContext(ctx, &id, query, policyName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: no runs of %q", ErrNotFound, policyName)
		}
		return nil, nil, fmt.Errorf("latest run of %q: %w", policyName, err)
	}
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (*Run, *engine.Report, error) {
	var row struct {
		runRow
		Report string `db:"report"`
	}
	const query = `SELECT id, policy_name, hostname, generated_at, pass_count, fail_count, error_count, unknown_count, report
		FROM audit_run WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, nil, fmt.Errorf("load run %s: %w", id, err)
	}

	run, err := row.run()
	if err != nil {
		return nil, nil, err
	}
	var report engine.Report
	if err := json.Unmarshal([]byte(row.Report), &report); err != nil {
		return nil, nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	report.Summary = engine.Summarize(report.Results)
	return &run, &report, nil
}
