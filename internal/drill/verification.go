package drill

import (
	"fmt"

	"github.com/okian/ronbun/internal/domain/model"
)

// verifyResults checks every record's score invariants and the leaderboard
// ordering. It returns how many results came from the fallback scorer.
func verifyResults(records map[string]Record, leaderboard []Entry) (int, error) {
	fallbacks := 0
	best := -1
	for id, rec := range records {
		if rec.SubmissionID != id {
			return fallbacks, fmt.Errorf("%w: record for %s carries id %s", ErrVerification, id, rec.SubmissionID)
		}
		if err := rec.Result.Validate(); err != nil {
			return fallbacks, fmt.Errorf("%w: %s: %w", ErrVerification, id, err)
		}
		if want := rec.TimeLimit > 0 && rec.ElapsedSeconds > rec.TimeLimit*60; rec.Overtime != want {
			return fallbacks, fmt.Errorf("%w: %s: overtime %t for %ds against %d minutes",
				ErrVerification, id, rec.Overtime, rec.ElapsedSeconds, rec.TimeLimit)
		}
		switch rec.Result.Source {
		case model.SourceHeuristic, model.SourceLLM:
		case model.SourceFallback:
			fallbacks++
		default:
			return fallbacks, fmt.Errorf("%w: %s: unknown source %q", ErrVerification, id, rec.Result.Source)
		}
		best = max(best, rec.Result.Total)
	}

	if err := verifyLeaderboard(leaderboard); err != nil {
		return fallbacks, err
	}
	if len(leaderboard) > 0 && leaderboard[0].Total < best {
		return fallbacks, fmt.Errorf("%w: leaderboard top %d below best scored total %d",
			ErrVerification, leaderboard[0].Total, best)
	}
	return fallbacks, nil
}

// verifyLeaderboard checks total desc, id asc ordering and dense ranks.
func verifyLeaderboard(entries []Entry) error {
	for i, e := range entries {
		if e.Total < 0 || e.Total > model.MaxTotal {
			return fmt.Errorf("%w: entry %d total %d out of range", ErrVerification, i, e.Total)
		}
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("%w: first entry has rank %d", ErrVerification, e.Rank)
			}
			continue
		}
		prev := entries[i-1]
		switch {
		case e.Total > prev.Total:
			return fmt.Errorf("%w: entry %d total %d above entry %d total %d",
				ErrVerification, i, e.Total, i-1, prev.Total)
		case e.Total == prev.Total && e.SubmissionID < prev.SubmissionID:
			return fmt.Errorf("%w: tie at %d not ordered by submission id", ErrVerification, i)
		case e.Total == prev.Total && e.Rank != prev.Rank:
			return fmt.Errorf("%w: tie at %d has ranks %d and %d", ErrVerification, i, prev.Rank, e.Rank)
		case e.Total < prev.Total && e.Rank != prev.Rank+1:
			return fmt.Errorf("%w: rank gap at %d (%d after %d)", ErrVerification, i, e.Rank, prev.Rank)
		}
	}
	return nil
}
