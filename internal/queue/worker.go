package queue

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/zombar/linkkeeper/internal/clients"
	"github.com/zombar/linkkeeper/internal/metrics"
	"github.com/zombar/linkkeeper/internal/storage"
)

// Store is the slice of the storage layer the enrichment pipeline touches
type Store interface {
	ListTagTexts(userID string) ([]string, error)
	GetTagsByTexts(userID string, texts []string) ([]*storage.Tag, error)
	CreateTags(userID string, texts []string) ([]*storage.Tag, error)
	AddUserLinkTags(userLinkID string, tagIDs []int64) error
	UpdateUserLinkContent(userLinkID, content string) error
	UpdateLinkMetadata(url string, title, favicon, thumbnail, slug *string) error
}

// Enricher is the outbound enrichment capability
type Enricher interface {
	Enrich(ctx context.Context, url string, existingTags []string) (*clients.EnrichResponse, error)
}

// slogAdapter wraps slog.Logger to implement asynq.Logger interface for structured logging
type slogAdapter struct {
	logger *slog.Logger
}

// Debug implements asynq.Logger
func (l *slogAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

// Info implements asynq.Logger
func (l *slogAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

// Warn implements asynq.Logger
func (l *slogAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

// Error implements asynq.Logger
func (l *slogAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

// Fatal implements asynq.Logger
func (l *slogAdapter) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	log.Fatal(args...)
}

// Worker wraps the Asynq server for processing enrichment tasks
type Worker struct {
	server          *asynq.Server
	mux             *asynq.ServeMux
	store           Store
	enricher        Enricher
	concurrency     int
	logger          *slog.Logger
	businessMetrics *metrics.BusinessMetrics
}

// WorkerConfig contains configuration for the queue worker
type WorkerConfig struct {
	RedisAddr   string
	Concurrency int
}

// NewWorker creates a new queue worker
func NewWorker(
	cfg WorkerConfig,
	store Store,
	enricher Enricher,
	businessMetrics *metrics.BusinessMetrics,
) *Worker {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
	}

	serverCfg := asynq.Config{
		Concurrency: cfg.Concurrency,

		Queues: map[string]int{
			"enrich": 1,
		},

		// Drain in-flight enrichment before the process exits
		ShutdownTimeout: 30 * time.Second,

		Logger: &slogAdapter{
			logger: slog.Default(),
		},

		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			slog.Error("task processing error",
				"task_type", task.Type(),
				"error", err,
			)
		}),
	}

	server := asynq.NewServer(redisOpt, serverCfg)
	mux := asynq.NewServeMux()

	w := &Worker{
		server:          server,
		mux:             mux,
		store:           store,
		enricher:        enricher,
		concurrency:     cfg.Concurrency,
		logger:          slog.Default(),
		businessMetrics: businessMetrics,
	}

	w.registerHandlers()

	return w
}

// registerHandlers registers all task handlers with the worker
func (w *Worker) registerHandlers() {
	w.mux.HandleFunc(TypeEnrichLink, w.handleEnrichTask)
}

// Start starts the worker to begin processing tasks
func (w *Worker) Start() error {
	w.logger.Info("starting asynq worker",
		"concurrency", w.concurrency,
		"queues", map[string]int{"enrich": 1},
	)

	// Run is blocking - starts processing tasks
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the worker, letting running enrichment
// tasks finish first
func (w *Worker) Shutdown() {
	w.logger.Info("shutting down asynq worker")
	w.server.Shutdown()
}
