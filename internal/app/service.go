// Package service wires scoring, the submission pipeline and the catalog
// into the operations the HTTP API and CLI need.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	eventqueue "github.com/okian/ronbun/internal/adapters/mq/queue"
	workerpool "github.com/okian/ronbun/internal/adapters/mq/worker"
	"github.com/okian/ronbun/internal/adapters/repository"
	"github.com/okian/ronbun/internal/domain/answer"
	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/dedupe"
	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/predict"
	"github.com/okian/ronbun/internal/domain/scoring"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

// Service implements the API dependencies for the essay scoring system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	evaluator scoring.Evaluator
	pool      *workerpool.Pool
	catalog   *catalog.Catalog
	predictor *predict.Predictor
	drafter   *answer.Drafter

	// Configuration
	workerCount   int
	queueSize     int
	dedupeSize    int
	maxEssayChars int
	now           func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxEssayChars caps accepted essay length in characters.
func WithMaxEssayChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEssayChars = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore sets the result store. Defaults to an in-memory treap store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEvaluator sets the scoring strategy. Defaults to the heuristic scorer.
func WithEvaluator(ev scoring.Evaluator) Option {
	return func(s *Service) {
		if ev != nil {
			s.evaluator = ev
		}
	}
}

// WithCatalog sets the university catalog. Defaults to the embedded one.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithPredictor sets the prompt predictor.
func WithPredictor(p *predict.Predictor) Option {
	return func(s *Service) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithDrafter sets the model answer drafter. Defaults to outlines only.
func WithDrafter(d *answer.Drafter) Option {
	return func(s *Service) {
		if d != nil {
			s.drafter = d
		}
	}
}

// WithClock sets the time source for submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU() * 2,
		queueSize:     10_000,
		dedupeSize:    100_000,
		maxEssayChars: 4_000,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting essay service...")

	if s.store == nil {
		s.store = repository.NewTreapStore()
		s.logger.Info(ctx, "using in-memory treap store")
	}
	if s.evaluator == nil {
		s.evaluator = scoring.NewHeuristic()
	}
	if s.catalog == nil {
		c, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		s.catalog = c
	}
	if s.predictor == nil {
		s.predictor = predict.New()
	}
	if s.drafter == nil {
		s.drafter = answer.New()
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.evaluator, s.store)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "essay service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued submissions and shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping essay service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing store failed", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "essay service stopped")
}

// Score grades an essay synchronously.
func (s *Service) Score(ctx context.Context, in scoring.Input) (model.ScoreResult, error) {
	if err := s.checkLength(in.Text); err != nil {
		return model.ScoreResult{}, err
	}
	ev := s.evaluatorOrDefault()

	start := time.Now()
	res, err := ev.Evaluate(ctx, in)
	if err != nil {
		metrics.RecordScoringError()
		return model.ScoreResult{}, fmt.Errorf("score essay: %w", err)
	}
	metrics.RecordEssayScored(res.Source, res.Total, float64(time.Since(start).Milliseconds()))
	return res, nil
}

// Submit queues an essay for asynchronous scoring and returns its id. A missing
// submission id is generated. Re-submitting a known id reports duplicate=true.
func (s *Service) Submit(ctx context.Context, sub model.EssaySubmission) (id string, duplicate bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return "", false, ErrNotStarted
	}
	if err = s.checkLength(sub.Text); err != nil {
		return "", false, err
	}
	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now()
	}

	if s.deduper.SeenAndRecord(ctx, sub.SubmissionID) {
		metrics.RecordSubmissionDuplicate()
		s.logger.Debug(ctx, "duplicate submission", logger.String("submission_id", sub.SubmissionID))
		return sub.SubmissionID, true, nil
	}

	if err = s.queue.Enqueue(ctx, sub); err != nil {
		// Forget the id so the client can retry it.
		s.deduper.Unrecord(ctx, sub.SubmissionID)
		if errors.Is(err, eventqueue.ErrFull) || errors.Is(err, eventqueue.ErrClosed) {
			return sub.SubmissionID, false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return sub.SubmissionID, false, err
	}
	metrics.RecordSubmissionAccepted()
	return sub.SubmissionID, false, nil
}

// Result returns the scored record for a submission.
func (s *Service) Result(ctx context.Context, id string) (model.Record, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return model.Record{}, err
	}
	return store.Get(ctx, id)
}

// Standing returns a scored submission's place on the leaderboard.
func (s *Service) Standing(ctx context.Context, id string) (repository.Entry, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return repository.Entry{}, err
	}
	return store.Standing(ctx, id)
}

// TopN returns the best scored submissions.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	return store.TopN(ctx, n)
}

// Universities searches the catalog.
func (s *Service) Universities(query string) ([]catalog.University, error) {
	c, err := s.catalogOrDefault()
	if err != nil {
		return nil, err
	}
	return c.Search(query), nil
}

// PredictPrompt generates a practice prompt for a department, drafted remotely
// when a question writer is configured.
func (s *Service) PredictPrompt(ctx context.Context, universityID, facultyID, departmentID string) (predict.Prompt, error) {
	c, err := s.catalogOrDefault()
	if err != nil {
		return predict.Prompt{}, err
	}
	sel, err := c.Department(universityID, facultyID, departmentID)
	if err != nil {
		return predict.Prompt{}, err
	}

	s.mu.RLock()
	p := s.predictor
	s.mu.RUnlock()
	if p == nil {
		p = predict.New()
	}
	return p.Generate(ctx, sel), nil
}

// ModelAnswer drafts a model answer for a theme.
func (s *Service) ModelAnswer(ctx context.Context, req answer.Request) (answer.Answer, error) {
	s.mu.RLock()
	d := s.drafter
	s.mu.RUnlock()
	if d == nil {
		d = answer.New()
	}
	return d.Draft(ctx, req)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		records := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["storedRecords"] = records
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoredRecords(records)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}

func (s *Service) checkLength(text string) error {
	if n := utf8.RuneCountInString(text); n > s.maxEssayChars {
		return fmt.Errorf("%w: %d > %d characters", ErrTooLong, n, s.maxEssayChars)
	}
	return nil
}

func (s *Service) evaluatorOrDefault() scoring.Evaluator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.evaluator == nil {
		return scoring.NewHeuristic()
	}
	return s.evaluator
}

func (s *Service) storeOrErr() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) catalogOrDefault() (*catalog.Catalog, error) {
	s.mu.RLock()
	c := s.catalog
	s.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	return catalog.Default()
}
