package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	"salonindex/features/business"
	"salonindex/features/enrichment"
	"salonindex/features/index"
	"salonindex/features/job"
	"salonindex/features/mcp"
	"salonindex/features/progress"
	"salonindex/features/stats"
	"salonindex/features/stop"
	"salonindex/internal/adapter/gemini"
	"salonindex/internal/blobstore"
	"salonindex/internal/config"
	"salonindex/internal/metrics"
	"salonindex/internal/middleware"
	"salonindex/internal/querylog"
	"salonindex/internal/settings"
	"salonindex/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler        http.Handler
	Builder        *index.Builder
	EnrichConsumer *worker.EnrichConsumer

	addr      string
	detached  *enrichment.GoroutineLauncher
	generator *gemini.DynamicEnricher
}

func New(
	cfg *config.Config,
	db *sql.DB,
	blobs blobstore.Store,
	taskPub TaskPublisher,
	logger *slog.Logger,
) (*App, error) {
	ctx := context.Background()

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	if err := settingsService.Seed(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EnrichRatePerMinute); err != nil {
		logger.Warn("failed to seed settings from environment", "error", err)
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Business records
	businessRepo := business.NewPostgresRepo(db)
	manifest, err := config.LoadRegionManifest(cfg.RegionsFile)
	if err != nil {
		return nil, err
	}
	if manifest.Count() > 0 {
		logger.Info("index scan limited to region manifest", "partitions", manifest.Count())
	}
	partitions := business.WithManifest(businessRepo, manifest)

	// Feature: Index
	queryLogger, err := querylog.NewFileLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = querylog.New(os.Stdout)
	}
	builder := index.NewBuilder(partitions, blobs, cfg.IndexScanConcurrency)
	indexService := index.NewService(blobs, queryLogger)
	indexHandler := index.NewHandler(builder, indexService)

	// Feature: Progress & Stop
	progressStore := progress.NewStore(blobs, cfg.ProgressLogCap)
	progressHandler := progress.NewHandler(progressStore)
	stopCoordinator := stop.NewCoordinator(blobs)
	stopHandler := stop.NewHandler(stopCoordinator)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)

	// Feature: Enrichment
	generator := gemini.NewDynamicEnricher(settingsService)
	unitWorker := &enrichment.UpsertingWorker{Generator: generator, Sink: businessRepo}
	orch := enrichment.NewOrchestrator(progressStore, stopCoordinator, unitWorker, job.NewRecorder(jobRepo), cfg.EnrichRatePerMinute).
		WithRates(settingsService)

	a := &App{Builder: builder, addr: cfg.ServerAddr(), generator: generator}

	plans := enrichment.NewPlanStore(blobs)
	var launcher enrichment.Launcher
	if cfg.EnableQueue && taskPub != nil {
		launcher = enrichment.NewQueueLauncher(plans, taskPub)
	} else {
		a.detached = enrichment.NewGoroutineLauncher(orch)
		launcher = a.detached
	}
	a.EnrichConsumer = worker.NewEnrichConsumer(plans, orch)

	enrichService := enrichment.NewService(orch, indexService, businessRepo, launcher)
	enrichHandler := enrichment.NewHandler(enrichService, progressStore, stopCoordinator)

	jobService := job.NewService(jobRepo, businessRepo, enrichService)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(indexService, progressStore, stopCoordinator, jobRepo)

	// Feature: MCP (read-only tools)
	mcpHandler := mcp.NewHandler(indexService, progressStore, stopCoordinator)

	// Metrics
	metrics.Init(func(ctx context.Context) (metrics.ProgressSnapshot, error) {
		p, err := progressStore.Load(ctx)
		if err != nil {
			return metrics.ProgressSnapshot{}, err
		}
		return metrics.ProgressSnapshot{
			Running:   p.IsRunning,
			Processed: p.Processed,
			Total:     p.Total,
			Succeeded: p.Succeeded,
			Failed:    p.Failed,
		}, nil
	})

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /index/regenerate", middleware.CorrelationID(enableCORS(indexHandler.Regenerate)))
	mux.Handle("GET /index/stats", middleware.CorrelationID(enableCORS(indexHandler.GetStats)))
	mux.Handle("GET /index/tiers/{tier}", middleware.CorrelationID(enableCORS(indexHandler.GetTier)))

	mux.Handle("POST /enrichment/tier", middleware.CorrelationID(enableCORS(enrichHandler.StartTier)))
	mux.Handle("POST /enrichment/selected", middleware.CorrelationID(enableCORS(enrichHandler.StartSelected)))
	mux.Handle("GET /enrichment/progress", middleware.CorrelationID(enableCORS(progressHandler.Get)))
	mux.Handle("POST /enrichment/progress/reset", middleware.CorrelationID(enableCORS(enrichHandler.Release)))

	mux.Handle("POST /stop", middleware.CorrelationID(enableCORS(stopHandler.Stop)))
	mux.Handle("POST /stop/emergency", middleware.CorrelationID(enableCORS(stopHandler.Emergency)))
	mux.Handle("DELETE /stop", middleware.CorrelationID(enableCORS(stopHandler.Clear)))
	mux.Handle("GET /stop", middleware.CorrelationID(enableCORS(stopHandler.GetStats)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", middleware.CorrelationID(enableCORS(mcpHandler.HandleSSE)))
	mux.Handle("POST /mcp/messages", middleware.CorrelationID(enableCORS(mcpHandler.HandleMessage)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux
	return a, nil
}

// Run serves the API until ctx is cancelled, then waits for runs executing
// in this process to finish.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "addr", a.addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	if a.detached != nil {
		slog.Info("waiting for in-process enrichment runs")
		a.detached.Wait()
	}
	return nil
}

// Close releases the enrichment client. Call it after Run and any queue
// consumer have stopped.
func (a *App) Close() {
	if err := a.generator.Close(); err != nil {
		slog.Warn("failed to close enrichment client", "error", err)
	}
}
