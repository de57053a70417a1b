package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zombar/linkkeeper/internal/clients"
	"github.com/zombar/linkkeeper/internal/config"
	"github.com/zombar/linkkeeper/internal/handlers"
	"github.com/zombar/linkkeeper/internal/metrics"
	"github.com/zombar/linkkeeper/internal/queue"
	"github.com/zombar/linkkeeper/internal/storage"
	"github.com/zombar/linkkeeper/internal/tracing"
	"github.com/zombar/linkkeeper/internal/urlcache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := tracing.Init(ctx, "linkkeeper", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	businessMetrics := metrics.New(registry)

	enricherClient := clients.NewEnricherClient(cfg.EnricherBaseURL, cfg.EnricherAPIToken)
	identityClient := clients.NewIdentityClient(cfg.IdentityBaseURL)

	queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr})
	defer queueClient.Close()

	// The cache is optional: without Redis the resolver just always hits
	// the store.
	var cache handlers.URLCache
	urlCache := urlcache.New(cfg.RedisAddr)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := urlCache.Ping(pingCtx); err != nil {
		slog.Warn("URL cache unavailable, resolving against the store only", "error", err)
	} else {
		cache = urlCache
		defer urlCache.Close()
	}
	cancel()

	worker := queue.NewWorker(
		queue.WorkerConfig{RedisAddr: cfg.RedisAddr, Concurrency: cfg.WorkerConcurrency},
		store,
		enricherClient,
		businessMetrics,
	)

	handler := handlers.New(store, identityClient, queueClient, cache, cfg.SendExistingTags, businessMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc("/api/links", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handler.SaveLink(w, r)
		default:
			handler.ListSavedLinks(w, r)
		}
	})
	mux.HandleFunc("/api/links/search", handler.SearchTags)
	mux.HandleFunc("/api/links/", handler.GetSavedLink)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	// Start the enrichment worker; it drains in-flight tasks on shutdown
	// so detached enrichment always runs to completion.
	go func() {
		if err := worker.Start(); err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("linkkeeper starting",
			"port", cfg.Port,
			"enricher_url", cfg.EnricherBaseURL,
			"identity_url", cfg.IdentityBaseURL,
			"database", cfg.DatabasePath,
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-shutdown
	slog.Info("shutting down linkkeeper")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down HTTP server", "error", err)
	}

	// Worker shutdown blocks until running enrichment tasks finish
	worker.Shutdown()

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("error shutting down tracing", "error", err)
	}

	slog.Info("linkkeeper stopped")
}
