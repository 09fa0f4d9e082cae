package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/pkg/metrics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	submission_id TEXT PRIMARY KEY,
	theme         TEXT NOT NULL,
	structure     INTEGER NOT NULL,
	content       INTEGER NOT NULL,
	logic         INTEGER NOT NULL,
	expression    INTEGER NOT NULL,
	total         INTEGER NOT NULL,
	feedback      TEXT NOT NULL,
	suggestions   TEXT NOT NULL,
	source        TEXT NOT NULL,
	notice        TEXT NOT NULL,
	evaluations   TEXT NOT NULL DEFAULT '{}',
	submitted_at  INTEGER NOT NULL,
	scored_at     INTEGER NOT NULL,
	time_limit    INTEGER NOT NULL DEFAULT 0,
	elapsed       INTEGER NOT NULL DEFAULT 0,
	overtime      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_records_rank ON records(total DESC, submission_id ASC);
`

const recordColumns = `submission_id, theme, structure, content, logic, expression, total,
	feedback, suggestions, source, notice, evaluations, submitted_at, scored_at,
	time_limit, elapsed, overtime`

// SQLiteStore persists records in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under the worker pool.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	s := &SQLiteStore{db: db}
	metrics.UpdateStoredRecords(s.Count(ctx))
	return s, nil
}

// Save upserts rec.
func (s *SQLiteStore) Save(ctx context.Context, rec model.Record) error {
	if rec.SubmissionID == "" {
		metrics.RecordStoreError()
		return ErrInvalidID
	}
	suggestions, err := json.Marshal(rec.Result.Suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}
	evaluations, err := json.Marshal(rec.Result.Evaluations)
	if err != nil {
		return fmt.Errorf("encode evaluations: %w", err)
	}
	r := rec.Result
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SubmissionID, rec.Theme, r.Structure, r.Content, r.Logic, r.Expression, r.Total,
		r.Feedback, string(suggestions), r.Source, r.Notice, string(evaluations),
		unixNano(rec.SubmittedAt), unixNano(rec.ScoredAt),
		rec.TimeLimit, rec.ElapsedSeconds, rec.Overtime,
	)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("save record %s: %w", rec.SubmissionID, err)
	}
	metrics.UpdateStoredRecords(s.Count(ctx))
	return nil
}

// Get returns a stored record.
func (s *SQLiteStore) Get(ctx context.Context, submissionID string) (model.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE submission_id = ?`, submissionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError()
		return model.Record{}, fmt.Errorf("get record %s: %w", submissionID, err)
	}
	return rec, nil
}

// TopN returns the top n entries.
func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordStoreError()
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		ORDER BY total DESC, submission_id ASC LIMIT ?`, n)
	if err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, n)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, entryOf(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	assignRanksWithTies(out)
	return out, nil
}

// Standing returns the submission's entry with its dense rank and position.
func (s *SQLiteStore) Standing(ctx context.Context, submissionID string) (Entry, error) {
	rec, err := s.Get(ctx, submissionID)
	if err != nil {
		return Entry{}, err
	}
	total := rec.Result.Total
	e := entryOf(rec)
	err = s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(DISTINCT total) FROM records WHERE total > ?) + 1,
		(SELECT COUNT(*) FROM records WHERE total > ? OR (total = ? AND submission_id < ?)) + 1`,
		total, total, total, submissionID,
	).Scan(&e.Rank, &e.Position)
	if err != nil {
		metrics.RecordStoreError()
		return Entry{}, fmt.Errorf("standing of %s: %w", submissionID, err)
	}
	return e, nil
}

// Count returns the number of stored records, or 0 if the query fails.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		metrics.RecordStoreError()
		return 0
	}
	return n
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.Record, error) {
	var (
		rec                      model.Record
		suggestions, evaluations string
		submittedAt, scoredAt    int64
	)
	r := &rec.Result
	if err := sc.Scan(&rec.SubmissionID, &rec.Theme, &r.Structure, &r.Content, &r.Logic, &r.Expression, &r.Total,
		&r.Feedback, &suggestions, &r.Source, &r.Notice, &evaluations, &submittedAt, &scoredAt,
		&rec.TimeLimit, &rec.ElapsedSeconds, &rec.Overtime); err != nil {
		return model.Record{}, err
	}
	if err := json.Unmarshal([]byte(suggestions), &r.Suggestions); err != nil {
		return model.Record{}, fmt.Errorf("decode suggestions: %w", err)
	}
	if err := json.Unmarshal([]byte(evaluations), &r.Evaluations); err != nil {
		return model.Record{}, fmt.Errorf("decode evaluations: %w", err)
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	rec.SubmittedAt = fromUnixNano(submittedAt)
	rec.ScoredAt = fromUnixNano(scoredAt)
	return rec, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
