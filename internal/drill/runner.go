package drill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ronbun/pkg/logger"
)

// Sentinel errors.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrIncomplete   = errors.New("results incomplete")
	ErrVerification = errors.New("verification failed")
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
	percentage          = 100
)

// Defaults applied by Run for zero-valued config fields.
const (
	DefaultEssays      = 200
	DefaultTopN        = 20
	DefaultTimeout     = 10 * time.Second
	DefaultPollTimeout = time.Minute
	DefaultPollEvery   = 100 * time.Millisecond
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.NumEssays <= 0 {
		out.NumEssays = DefaultEssays
	}
	if out.Duplicates < 0 {
		out.Duplicates = 0
	}
	if out.Duplicates > out.NumEssays {
		out.Duplicates = out.NumEssays
	}
	if out.TopN <= 0 {
		out.TopN = DefaultTopN
	}
	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU() * 2
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.PollTimeout <= 0 {
		out.PollTimeout = DefaultPollTimeout
	}
	if out.PollEvery <= 0 {
		out.PollEvery = DefaultPollEvery
	}
	if out.Seed == 0 {
		out.Seed = uint64(time.Now().UnixNano())
	}
	return out
}

// Run executes a complete drill against cfg.BaseURL.
func Run(ctx context.Context, config *Config, log logger.Logger) (*Stats, error) {
	cfg := config.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting ronbun drill",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("essays", cfg.NumEssays),
		logger.Int("duplicates", cfg.Duplicates),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	if err := checkServiceHealth(ctx, c); err != nil {
		return stats, err
	}

	essays := newGenerator(cfg.Seed).essays(cfg.NumEssays)
	stats.EssaysGenerated = len(essays)

	accepted, err := submitEssays(ctx, c, cfg, essays, stats)
	if err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}

	if cfg.Duplicates > 0 {
		if err := resubmitEssays(ctx, c, cfg, essays[:cfg.Duplicates], stats); err != nil {
			return stats, fmt.Errorf("duplicate submission failed: %w", err)
		}
	}

	records, err := pollResults(ctx, c, cfg, accepted)
	stats.ResultsRetrieved = len(records)
	if err != nil {
		return stats, err
	}

	var leaderboard []Entry
	if _, err := c.getJSON(ctx, "/leaderboard?limit="+strconv.Itoa(cfg.TopN), &leaderboard); err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(leaderboard)

	fallbacks, err := verifyResults(records, leaderboard)
	stats.Fallbacks = fallbacks
	if err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveEssays(cfg.OutputFile, essays); err != nil {
			log.Warn(ctx, "failed to save essays to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, log, stats)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *client) error {
	// healthz serves Prometheus text; any 200 is healthy.
	if _, err := c.getJSON(ctx, "/healthz", nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

// submitEssays posts every essay and returns the ids the service accepted.
func submitEssays(ctx context.Context, c *client, cfg Config, essays []Essay, stats *Stats) ([]string, error) {
	var (
		mu       sync.Mutex
		accepted = make([]string, 0, len(essays))

		submitted, ok, dup, rejected, failed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, e := range essays {
		g.Go(func() error {
			var ack AckResponse
			code, _ := c.postJSON(gctx, "/submissions", e, &ack)
			submitted.Add(1)
			switch {
			case code == http.StatusAccepted:
				ok.Add(1)
				mu.Lock()
				accepted = append(accepted, e.SubmissionID)
				mu.Unlock()
			case code == http.StatusOK && ack.Duplicate:
				dup.Add(1)
			case code == http.StatusTooManyRequests:
				rejected.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Accepted = int(ok.Load())
	stats.Duplicates += int(dup.Load())
	stats.Rejected = int(rejected.Load())
	stats.Failed = int(failed.Load())
	return accepted, err
}

// resubmitEssays posts already-submitted essays and expects duplicate acks.
func resubmitEssays(ctx context.Context, c *client, cfg Config, essays []Essay, stats *Stats) error {
	var dup atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, e := range essays {
		g.Go(func() error {
			var ack AckResponse
			code, err := c.postJSON(gctx, "/submissions", e, &ack)
			if err != nil && code != http.StatusTooManyRequests {
				return err
			}
			if code == http.StatusOK && ack.Duplicate {
				dup.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	stats.Duplicates += int(dup.Load())
	return nil
}

// pollResults waits for every accepted id to be scored.
func pollResults(ctx context.Context, c *client, cfg Config, ids []string) (map[string]Record, error) {
	var mu sync.Mutex
	records := make(map[string]Record, len(ids))

	pctx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(pctx)
	g.SetLimit(cfg.Workers)
	for _, id := range ids {
		g.Go(func() error {
			path := "/submissions/" + url.PathEscape(id)
			for {
				var rec Record
				code, err := c.getJSON(gctx, path, &rec)
				if err == nil {
					mu.Lock()
					records[id] = rec
					mu.Unlock()
					return nil
				}
				if code != http.StatusNotFound {
					return fmt.Errorf("fetch %s: %w", id, err)
				}
				select {
				case <-gctx.Done():
					return fmt.Errorf("%w: %s still pending", ErrIncomplete, id)
				case <-time.After(cfg.PollEvery):
				}
			}
		})
	}
	err := g.Wait()
	return records, err
}

func saveEssays(filename string, essays []Essay) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(essays, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal essays: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func logFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, perSecond float64
	if stats.Submitted > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Submitted) * percentage
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("essaysGenerated", stats.EssaysGenerated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("resultsRetrieved", stats.ResultsRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Int("fallbacks", stats.Fallbacks),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("submissionsPerSecond", perSecond))
}
