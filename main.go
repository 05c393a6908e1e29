package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"salonindex/features/index"
	"salonindex/internal/app"
	"salonindex/internal/config"
	"salonindex/internal/logger"

	"github.com/nsqio/go-nsq"
)

func main() {
	// Initialize structured logger
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("application exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()
	slog.Info("dependencies ready", "blob_backend", cfg.BlobBackend)

	var publisher app.TaskPublisher
	if deps.NSQProducer != nil {
		publisher = deps.NSQProducer
	}

	application, err := app.New(cfg, deps.DB, deps.Blobs, publisher, log)
	if err != nil {
		return err
	}
	defer application.Close()

	var wg sync.WaitGroup

	if cfg.IndexRebuildInterval > 0 {
		scheduler := index.NewScheduler(application.Builder, cfg.IndexRebuildInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Start(ctx)
		}()
	}

	if cfg.EnableEnrichWorker {
		consumer, err := nsq.NewConsumer(config.TopicEnrichRun, config.ChannelEnrichWorker, nsq.NewConfig())
		if err != nil {
			return err
		}
		consumer.AddHandler(application.EnrichConsumer)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			return err
		}
		slog.Info("NSQ enrichment consumer connected", "topic", config.TopicEnrichRun)
		defer func() {
			consumer.Stop()
			<-consumer.StopChan
		}()
	}

	if !cfg.EnableAPI {
		slog.Info("API disabled, running background workers only")
		<-ctx.Done()
		wg.Wait()
		return nil
	}

	err = application.Run(ctx)
	wg.Wait()
	return err
}
