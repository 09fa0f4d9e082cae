package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/ronbun/internal/adapters/mq/queue"
	"github.com/okian/ronbun/internal/domain/model"
	"github.com/okian/ronbun/internal/domain/scoring"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Saver persists scored submissions.
type Saver interface {
	Save(ctx context.Context, rec model.Record) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
	Len(ctx context.Context) int
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker scores jobs with an evaluator and saves the records.
type InMemoryWorker struct {
	queue       Queue
	scorer      scoring.Evaluator
	saver       Saver
	name        string
	now         func() time.Time
	onProcessed func(id string, err error)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer scoring.Evaluator, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		saver:    saver,
		name:     "worker",
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.UpdateQueueSize(w.queue.Len(ctx))
			err := w.process(ctx, j)
			if err != nil {
				w.logger.Error(ctx, "error processing submission",
					logger.String("submission_id", j.SubmissionID),
					logger.Error(err),
				)
			}
			if w.onProcessed != nil {
				w.onProcessed(j.SubmissionID, err)
			}
		}
	}
}

// Shutdown signals the worker to stop and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process scores and saves a single job.
func (w *InMemoryWorker) process(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	res, err := w.scorer.Evaluate(ctx, scoring.Input{
		Text:       j.Text,
		Theme:      j.Prompt.Theme,
		University: j.Prompt.University,
		Faculty:    j.Prompt.Faculty,
	})
	if err != nil {
		metrics.RecordScoringError()
		metrics.RecordWorkerError("scoring")
		return fmt.Errorf("score submission %s: %w", j.SubmissionID, err)
	}
	metrics.RecordEssayScored(res.Source, res.Total, float64(time.Since(start).Milliseconds()))

	rec := model.Record{
		SubmissionID: j.SubmissionID,
		Theme:        j.Prompt.Theme,
		Result:       res,
		SubmittedAt:  j.SubmittedAt,
		ScoredAt:     w.now(),

		TimeLimit:      j.Prompt.TimeLimit,
		ElapsedSeconds: j.ElapsedSeconds,
		Overtime:       j.Overtime(),
	}
	if err := w.saver.Save(ctx, rec); err != nil {
		metrics.RecordWorkerError("store")
		return fmt.Errorf("save submission %s: %w", j.SubmissionID, err)
	}
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed atomic.Int64
	failed    atomic.Int64
	cancel    context.CancelFunc
	logger    logger.Logger
}

// NewPool creates a worker pool. A non-positive count defaults to 2x CPU cores.
func NewPool(workerCount int, q Queue, scorer scoring.Evaluator, saver Saver, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	count := func(_ string, err error) {
		if err != nil {
			p.failed.Add(1)
			return
		}
		p.processed.Add(1)
	}

	for i := range workerCount {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, scorer, saver, workerOpts...)
		if w.onProcessed == nil {
			w.onProcessed = count
		} else {
			user := w.onProcessed
			w.onProcessed = func(id string, err error) {
				count(id, err)
				user(id, err)
			}
		}
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start starts all workers in the pool. Workers keep ctx's values but not its
// cancellation: they stop only through Shutdown, after the queue is drained.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many jobs were scored and saved.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns how many jobs could not be scored or saved.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Shutdown closes the queue, lets workers drain it, and stops them.
// Workers still busy when ctx (or the pool timeout) expires are signalled to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}

	for _, w := range p.workers {
		select {
		case <-w.shutdown:
		default:
			close(w.shutdown)
		}
	}
	// Abort jobs still in flight after a timed-out drain.
	if p.cancel != nil {
		p.cancel()
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", drainCtx.Err())
	}
	return nil
}
