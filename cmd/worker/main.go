/**
 * BharatDoc Worker - Main Entry Point
 *
 * Consumes document jobs from Redis and turns each document into page
 * records.
 *
 * Architecture:
 * - Redis list consumer (QUEUE_BACKEND=redis) or Asynq consumer (asynq)
 * - Document pipeline: page classification, native/Tesseract extraction,
 *   watermark detection, PII redaction, confidence filtering, field parsing
 * - PostgreSQL persistence of job status and page records (optional)
 * - Health and queue statistics over HTTP
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adverant/nexus/bharatdoc-worker/internal/config"
	"github.com/adverant/nexus/bharatdoc-worker/internal/logging"
	"github.com/adverant/nexus/bharatdoc-worker/internal/ocr"
	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
	"github.com/adverant/nexus/bharatdoc-worker/internal/queue"
	"github.com/adverant/nexus/bharatdoc-worker/internal/storage"
	"github.com/adverant/nexus/bharatdoc-worker/internal/version"
)

// consumer is implemented by both queue backends.
type consumer interface {
	GetStats(ctx context.Context) (map[string]int64, error)
}

func main() {
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_FILE"), ".env", ".env.bharatdoc")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	log.Printf("BharatDoc Worker %s starting...", version.GitRelease)
	log.Printf("Configuration loaded: Redis=%s, Queue=%s (%s), Workers=%d, Languages=%v",
		cfg.RedisURL, cfg.QueueName, cfg.QueueBackend, cfg.WorkerConcurrency, cfg.TesseractLanguages)

	// Recognition engines are created lazily, one per language
	recognizer, err := ocr.NewTesseractCache(cfg.TesseractLanguages, cfg.DefaultOCRLanguage, cfg.TessdataPrefix, cfg.RenderDPI)
	if err != nil {
		log.Fatalf("Failed to initialize recognition engines: %v", err)
	}
	defer recognizer.Close()

	pipeline, err := processor.NewPipeline(&processor.PipelineConfig{
		Recognizer:           recognizer,
		PostProcess:          cfg.PostProcessConfig(),
		MinDigitalTextLength: cfg.MinDigitalTextLength,
		OCRLanguage:          cfg.DefaultOCRLanguage,
	})
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	var db *storage.PostgresClient
	procCfg := &processor.ProcessorConfig{
		Pipeline:          pipeline,
		TempDir:           cfg.TempDir,
		MaxFileSize:       cfg.MaxFileSize,
		ProcessingTimeout: cfg.Timeout(),
	}
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		db, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}
		procCfg.Store = db
		log.Printf("PostgreSQL connected, schema ready")
	}

	proc, err := processor.NewDocumentProcessor(procCfg)
	if err != nil {
		log.Fatalf("Failed to initialize document processor: %v", err)
	}

	var (
		stats consumer
		stop  func() error
	)
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := c.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		stats, stop = c, func() error { return c.Stop(context.Background()) }
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := c.Start(); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		stats, stop = c, c.Stop
	}

	srv := &server{queue: stats, recognizer: recognizer, backend: cfg.QueueBackend}
	if db != nil {
		srv.db = db
	}
	app := newServer(srv)
	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	log.Printf("===========================================")
	log.Printf("BharatDoc Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s (%s)", cfg.QueueName, cfg.QueueBackend)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Health: http://localhost%s/health", cfg.HTTPAddr)
	log.Printf("Persistence: %t", db != nil)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}
	if err := stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped")
	}

	log.Printf("Shutdown complete")
}
