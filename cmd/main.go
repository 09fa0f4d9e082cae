package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/okian/ronbun/internal/adapters/http/api"
	"github.com/okian/ronbun/internal/adapters/http/swagger"
	"github.com/okian/ronbun/internal/adapters/llm"
	"github.com/okian/ronbun/internal/adapters/repository"
	app "github.com/okian/ronbun/internal/app"
	"github.com/okian/ronbun/internal/config"
	"github.com/okian/ronbun/internal/domain/answer"
	"github.com/okian/ronbun/internal/domain/catalog"
	"github.com/okian/ronbun/internal/domain/predict"
	"github.com/okian/ronbun/internal/domain/scoring"
	"github.com/okian/ronbun/pkg/logger"
	"github.com/okian/ronbun/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 60 * time.Second // synchronous llm scoring can be slow
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "server exited", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("scorer", cfg.Scorer))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("%w: %w", api.ErrServe, err)
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newMux registers the API and docs routes.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit)).Register(ctx, mux)
	return mux
}

// buildService resolves the configured store, catalog and scorer into a Service.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cat, err := buildCatalog(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	remote, err := buildRemote(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ev, err := selectEvaluator(cfg, remote, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts := []app.Option{
		app.WithLogger(log),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxEssayChars(cfg.MaxEssayChars),
		app.WithStore(store),
		app.WithCatalog(cat),
		app.WithEvaluator(ev),
	}
	if remote != nil {
		// The scoring model also writes questions and model answers; both fall
		// back to local templates when it fails.
		opts = append(opts,
			app.WithPredictor(predict.New(predict.WithWriter(remote), predict.WithLogger(log.Named("predict")))),
			app.WithDrafter(answer.New(answer.WithWriter(remote), answer.WithLogger(log.Named("answer")))),
		)
	}
	return app.New(opts...), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return repository.NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return repository.NewTreapStore(), nil
	}
}

func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default()
	}
	return catalog.Load(cfg.CatalogPath)
}

func buildEvaluator(cfg *config.Config, log logger.Logger) (scoring.Evaluator, error) {
	remote, err := buildRemote(cfg, log)
	if err != nil {
		return nil, err
	}
	return selectEvaluator(cfg, remote, log)
}

func selectEvaluator(cfg *config.Config, remote *llm.Evaluator, log logger.Logger) (scoring.Evaluator, error) {
	if remote == nil {
		return scoring.Select(cfg.Scorer, nil)
	}
	return scoring.Select(cfg.Scorer, remote, scoring.WithFallbackLogger(log.Named("scoring")))
}

// buildRemote returns the remote model client, or nil unless the scorer is llm.
func buildRemote(cfg *config.Config, log logger.Logger) (*llm.Evaluator, error) {
	if cfg.Scorer != scoring.KindLLM {
		return nil, nil
	}

	opts := []llm.Option{llm.WithLogger(log.Named("llm"))}
	if cfg.LLMPromptPath != "" {
		tmpl, err := llm.LoadTemplate(cfg.LLMPromptPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithTemplate(tmpl))
	}
	if cfg.LLMGenerationPath != "" {
		gen, err := llm.LoadGeneration(cfg.LLMGenerationPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llm.WithGeneration(gen))
	}
	return llm.New(llm.Config{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutMS) * time.Millisecond,
		RatePerSec:  cfg.LLMRatePerSec,
	}, opts...)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if stored, ok := stats["storedRecords"].(int); ok {
		metrics.UpdateStoredRecords(stored)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
