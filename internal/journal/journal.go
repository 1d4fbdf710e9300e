// Package journal records migration runs and their per-item outcomes in
// SQLite. It is history only: nothing in it is consulted when deciding
// what to create.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lherron/aiomigrate/internal/db"
	"github.com/lherron/aiomigrate/internal/domain"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Run is one recorded invocation
type Run struct {
	ID           string     `json:"id" yaml:"id"`
	StartedAt    time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Source       string     `json:"source" yaml:"source"`
	Destination  string     `json:"destination" yaml:"destination"`
	ObjectKind   string     `json:"object_kind" yaml:"object_kind"`
	PolicySuffix string     `json:"policy_suffix,omitempty" yaml:"policy_suffix,omitempty"`
	TaskPrefix   string     `json:"task_prefix,omitempty" yaml:"task_prefix,omitempty"`
	Status       string     `json:"status" yaml:"status"`
	Error        string     `json:"error,omitempty" yaml:"error,omitempty"`
	Created      int        `json:"created" yaml:"created"`
	Existing     int        `json:"existing" yaml:"existing"`
	Skipped      int        `json:"skipped" yaml:"skipped"`
	Failed       int        `json:"failed" yaml:"failed"`
}

// RunParams describes a run being started
type RunParams struct {
	Source       string
	Destination  string
	ObjectKind   string
	PolicySuffix string
	TaskPrefix   string
}

// Journal is the run history store
type Journal struct {
	db  *db.DB
	now func() time.Time
}

// New wraps an already migrated database
func New(database *db.DB) *Journal {
	return &Journal{db: database, now: time.Now}
}

// Open opens the journal at path, creating and migrating it as needed
func Open(path string) (*Journal, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return New(database), nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.db.Close()
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (j *Journal) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Start records a new running run and returns it
func (j *Journal) Start(p RunParams) (*Run, error) {
	run := &Run{
		ID:           uuid.NewString(),
		StartedAt:    j.now().UTC().Truncate(time.Second),
		Source:       p.Source,
		Destination:  p.Destination,
		ObjectKind:   p.ObjectKind,
		PolicySuffix: p.PolicySuffix,
		TaskPrefix:   p.TaskPrefix,
		Status:       StatusRunning,
	}
	_, err := j.db.Exec(`
		INSERT INTO runs (id, started_at, source, destination, object_kind, policy_suffix, task_prefix, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.Format(time.RFC3339), run.Source, run.Destination, run.ObjectKind,
		run.PolicySuffix, run.TaskPrefix, run.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// Finish stores the outcomes of a run and closes it. A non-nil runErr
// marks the run aborted.
func (j *Journal) Finish(runID string, items []domain.ItemResult, runErr error) error {
	status, errText := StatusCompleted, ""
	if runErr != nil {
		status, errText = StatusAborted, runErr.Error()
	}

	counts := make(map[domain.Outcome]int)
	for _, item := range items {
		counts[item.Outcome]++
	}

	return j.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE runs
			SET finished_at = ?, status = ?, error = ?, created = ?, existing = ?, skipped = ?, failed = ?
			WHERE id = ? AND status = ?
		`, j.now().UTC().Format(time.RFC3339), status, errText,
			counts[domain.OutcomeCreated]+counts[domain.OutcomePlanned], counts[domain.OutcomeExisting],
			counts[domain.OutcomeSkipped], counts[domain.OutcomeFailed], runID, StatusRunning)
		if err != nil {
			return fmt.Errorf("failed to close run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", runID, domain.ErrNotFound)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO outcomes (run_id, seq, kind, item, outcome, reason, source_id, target_id, digest, warnings)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare outcome insert: %w", err)
		}
		defer stmt.Close()

		for i, item := range items {
			warnings, err := json.Marshal(item.Warnings)
			if err != nil {
				return fmt.Errorf("failed to encode warnings: %w", err)
			}
			if item.Warnings == nil {
				warnings = []byte("[]")
			}
			if _, err := stmt.Exec(runID, i, item.Kind, item.Item, string(item.Outcome), item.Reason,
				nullID(item.SourceID), nullID(item.TargetID), item.Digest, string(warnings)); err != nil {
				return fmt.Errorf("failed to record outcome for %q: %w", item.Item, err)
			}
		}
		return nil
	})
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

const runColumns = `id, started_at, finished_at, source, destination, object_kind, policy_suffix,
	task_prefix, status, error, created, existing, skipped, failed`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	err := row.Scan(&run.ID, &started, &finished, &run.Source, &run.Destination, &run.ObjectKind,
		&run.PolicySuffix, &run.TaskPrefix, &run.Status, &run.Error,
		&run.Created, &run.Existing, &run.Skipped, &run.Failed)
	if err != nil {
		return nil, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", run.ID, err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339, finished.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad finished_at: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// Runs returns the most recent runs first; limit <= 0 returns all
func (j *Journal) Runs(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Run returns one run by id or unique id prefix
func (j *Journal) Run(id string) (*Run, error) {
	rows, err := j.db.Query(`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run prefix %q is ambiguous", id)
	}
}

// Outcomes returns the items of a run in processing order
func (j *Journal) Outcomes(runID string) ([]domain.ItemResult, error) {
	rows, err := j.db.Query(`
		SELECT kind, item, outcome, reason, source_id, target_id, digest, warnings
		FROM outcomes WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var items []domain.ItemResult
	for rows.Next() {
		var (
			item               domain.ItemResult
			outcome, warnings  string
			sourceID, targetID sql.NullInt64
		)
		if err := rows.Scan(&item.Kind, &item.Item, &outcome, &item.Reason, &sourceID, &targetID, &item.Digest, &warnings); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		item.Outcome = domain.Outcome(outcome)
		item.SourceID = sourceID.Int64
		item.TargetID = targetID.Int64
		if err := json.Unmarshal([]byte(warnings), &item.Warnings); err != nil {
			return nil, fmt.Errorf("outcome %q: bad warnings: %w", item.Item, err)
		}
		if len(item.Warnings) == 0 {
			item.Warnings = nil
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
