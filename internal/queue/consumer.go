/**
 * Asynq Queue Consumer for the BharatDoc Worker
 *
 * Alternative to the Redis list consumer (QUEUE_BACKEND=asynq). Tasks of
 * type "process-document" carry a JobPayload; Asynq owns retries.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/bharatdoc-worker/internal/logging"
	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
)

// Consumer handles job consumption through an Asynq server
type Consumer struct {
	server    *asynq.Server
	inspector *asynq.Inspector
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Processor   processor.DocumentProcessorInterface
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("Asynq")
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing failed", "type", task.Type(), "error", err)
			}),
		},
	)

	consumer := &Consumer{
		server:    server,
		inspector: asynq.NewInspector(redisOpt),
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(TaskTypeProcessDocument, consumer.handleProcessDocument)

	return consumer, nil
}

// retryDelay backs off exponentially: 5s, 10s, 20s, ... capped at 60s.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	if n > 4 {
		return 60 * time.Second
	}
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	if err := c.inspector.Close(); err != nil {
		return fmt.Errorf("failed to close inspector: %w", err)
	}
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleProcessDocument processes a document processing job
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	var job JobPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	jobLog := c.logger.With("Job " + job.JobID)
	jobLog.Info("Processing document", "filename", job.Filename, "bytes", len(job.FileBuffer))

	if err := c.processor.UpdateJobStatus(ctx, job.JobID, processor.StatusProcessing, map[string]interface{}{
		"filename": job.Filename,
		"userId":   job.UserID,
	}); err != nil {
		jobLog.Warn("Failed to update status to processing", "error", err)
	}

	start := time.Now()
	result, err := c.processor.ProcessDocument(ctx, job.Request())
	if err != nil {
		jobLog.Error("Processing failed", "duration", time.Since(start), "error", err)
		if updateErr := c.processor.UpdateJobStatus(ctx, job.JobID, processor.StatusFailed, failureMetadata(err, time.Since(start))); updateErr != nil {
			jobLog.Warn("Failed to update status to failed", "error", updateErr)
		}
		if !retryable(err) {
			return fmt.Errorf("document processing failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document processing failed: %w", err)
	}

	jobLog.Info("Processing completed", "pages", result.PageCount, "failed", result.FailedPages,
		"documentType", result.DocumentType, "duration", time.Since(start))
	if err := c.processor.UpdateJobStatus(ctx, job.JobID, processor.StatusCompleted, completionMetadata(result)); err != nil {
		jobLog.Warn("Failed to update status to completed", "error", err)
	}

	return nil
}

// GetStats returns the consumer's queue counters.
func (c *Consumer) GetStats(ctx context.Context) (map[string]int64, error) {
	info, err := c.inspector.GetQueueInfo(c.config.QueueName)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return map[string]int64{
		"waiting":    int64(info.Pending + info.Scheduled + info.Retry),
		"processing": int64(info.Active),
		"completed":  int64(info.Processed - info.Failed),
		"failed":     int64(info.Archived),
	}, nil
}
