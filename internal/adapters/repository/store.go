// Package repository persists scored submissions and serves the leaderboard.
package repository

import (
	"context"
	"time"

	"github.com/okian/ronbun/internal/domain/model"
)

// Entry represents a leaderboard row.
type Entry struct {
	Rank         int       `json:"rank"`
	Position     int       `json:"position"`
	SubmissionID string    `json:"submission_id"`
	Theme        string    `json:"theme"`
	Total        int       `json:"total"`
	Source       string    `json:"source"`
	ScoredAt     time.Time `json:"scored_at"`
}

// Store provides read/write access to scored submissions.
type Store interface {
	// Save stores rec, replacing any record with the same submission id.
	Save(ctx context.Context, rec model.Record) error

	// Get returns the record for a submission.
	// Returns ErrNotFound if the submission is unknown or not scored yet.
	Get(ctx context.Context, submissionID string) (model.Record, error)

	// TopN returns the top-N entries ordered by total desc, then submission id asc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Standing returns the leaderboard entry of one submission: its dense rank
	// and its 1-based position in the full ordering.
	// Returns ErrNotFound if the submission is unknown or not scored yet.
	Standing(ctx context.Context, submissionID string) (Entry, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) int

	Close() error
}

func entryOf(rec model.Record) Entry {
	return Entry{
		SubmissionID: rec.SubmissionID,
		Theme:        rec.Theme,
		Total:        rec.Result.Total,
		Source:       rec.Result.Source,
		ScoredAt:     rec.ScoredAt,
	}
}

// assignRanksWithTies assigns dense ranks: equal totals share a rank and the
// next distinct total gets the next rank. Positions count every entry.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Total != entries[i-1].Total {
			rank++
		}
		entries[i].Rank = rank
		entries[i].Position = i + 1
	}
}
