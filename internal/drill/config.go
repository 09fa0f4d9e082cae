// Package drill load-tests a running ronbun service: it generates synthetic
// essays, submits them concurrently, polls for results and checks the score
// invariants on everything that comes back.
package drill

import (
	"time"

	"github.com/okian/ronbun/internal/adapters/repository"
	"github.com/okian/ronbun/internal/domain/model"
)

// Config holds configuration for a drill run.
type Config struct {
	BaseURL     string        // Base URL of the service
	NumEssays   int           // Number of essays to generate
	Duplicates  int           // Number of essays re-submitted to exercise idempotency
	TopN        int           // Number of leaderboard entries to fetch
	Workers     int           // Number of concurrent submitters/pollers
	Timeout     time.Duration // HTTP request timeout
	PollTimeout time.Duration // How long to wait for all results
	PollEvery   time.Duration // Delay between result polls
	Seed        uint64        // Generator seed; 0 picks one from the clock
	OutputFile  string        // Optional JSON dump of generated essays
}

// Essay is the body posted to /submissions.
type Essay struct {
	SubmissionID   string `json:"submission_id"`
	Text           string `json:"text"`
	Theme          string `json:"theme"`
	TimeLimit      int    `json:"time_limit,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
}

// AckResponse is the reply to a submission.
type AckResponse struct {
	Status       string `json:"status"`
	SubmissionID string `json:"submission_id"`
	Duplicate    bool   `json:"duplicate"`
}

// Entry is a leaderboard row as served by the API.
type Entry = repository.Entry

// Record is a scored submission as served by the API.
type Record = model.Record

// Stats holds drill statistics.
type Stats struct {
	EssaysGenerated    int
	Submitted          int
	Accepted           int
	Duplicates         int
	Rejected           int // 429 backpressure
	Failed             int
	ResultsRetrieved   int
	LeaderboardEntries int
	Fallbacks          int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
