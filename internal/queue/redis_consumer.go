/**
 * Direct Redis Queue Consumer for the BharatDoc Worker
 *
 * Job ids are pushed onto the <queue> LIST and job bodies stored in the
 * <queue>:data HASH. Progress is tracked in the <queue>:processing,
 * <queue>:completed and <queue>:failed SETs, results and errors in the
 * <queue>:results and <queue>:errors HASHes, and every transition is
 * published on <queue>:events.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
)

var errNoJob = stderrors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL     string
	QueueName    string
	Concurrency  int
	Processor    processor.DocumentProcessorInterface
	PollInterval time.Duration // BRPOP timeout (default: 5s)
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisConsumer(client, cfg)
}

func newRedisConsumer(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "bharatdoc:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	log.Printf("Starting Redis queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	log.Println("Queue consumer started successfully")
	return nil
}

// Stop waits for in-flight jobs and closes the connection.
func (c *RedisConsumer) Stop() error {
	log.Println("Stopping queue consumer...")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log.Printf("Worker %d started", id)

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
		}

		err := c.processNextJob()
		switch {
		case err == nil, stderrors.Is(err, errNoJob):
		case c.ctx.Err() != nil:
			// BRPOP interrupted by Stop
		default:
			log.Printf("Worker %d error: %v", id, err)
			time.Sleep(time.Second)
		}
	}
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, c.config.PollInterval, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJob
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]
	jobData, err := c.client.HGet(c.ctx, c.key("data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	job, err := decodeJob(id, jobData)
	if err != nil {
		c.markFailed(id, map[string]interface{}{"error": err.Error()})
		return err
	}
	if err := job.Payload.Validate(); err != nil {
		c.markFailed(job.Payload.JobID, map[string]interface{}{"error": err.Error()})
		return err
	}

	c.runJob(job)
	return nil
}

// decodeJob parses the stored body of the job popped as id. Missing ids fall
// back to id so that a requeue pushes the same key back.
func decodeJob(id, data string) (*RedisJobData, error) {
	var job RedisJobData
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.ID == "" {
		job.ID = id
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = id
	}
	return &job, nil
}

// runJob processes one job and records its outcome. In-flight jobs are not
// interrupted by Stop; the processor's own timeout bounds them.
func (c *RedisConsumer) runJob(job *RedisJobData) {
	jobID := job.Payload.JobID
	ctx := context.Background()

	// Idempotent: creates the job row if the producer did not
	if err := c.processor.UpdateJobStatus(ctx, jobID, processor.StatusProcessing, map[string]interface{}{
		"filename": job.Payload.Filename,
		"mimeType": job.Payload.MimeType,
		"fileSize": job.Payload.FileSize,
		"userId":   job.Payload.UserID,
	}); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to processing: %v", jobID, err)
	}
	c.client.SAdd(ctx, c.key("processing"), jobID)
	c.publish(ctx, jobID, processor.StatusProcessing)

	log.Printf("[Job %s] Processing %s (attempt %d)", jobID, job.Payload.Filename, job.Attempts+1)
	start := time.Now()
	result, err := c.processor.ProcessDocument(ctx, job.Payload.Request())
	if err != nil {
		log.Printf("[Job %s] Failed after %v: %v", jobID, time.Since(start), err)

		job.Attempts++
		if retryable(err) && job.Attempts < job.MaxRetries {
			c.requeue(ctx, job)
			return
		}

		metadata := failureMetadata(err, time.Since(start))
		metadata["attempts"] = job.Attempts
		if updateErr := c.processor.UpdateJobStatus(ctx, jobID, processor.StatusFailed, metadata); updateErr != nil {
			log.Printf("[Job %s] Warning: Failed to update status to failed: %v", jobID, updateErr)
		}
		c.markFailed(jobID, metadata)
		return
	}

	metadata := completionMetadata(result)
	if err := c.processor.UpdateJobStatus(ctx, jobID, processor.StatusCompleted, metadata); err != nil {
		log.Printf("[Job %s] Warning: Failed to update status to completed: %v", jobID, err)
	}
	c.markCompleted(jobID, metadata)
	log.Printf("[Job %s] Completed: pages=%d failed=%d documentType=%s",
		jobID, result.PageCount, result.FailedPages, result.DocumentType)
}

func (c *RedisConsumer) requeue(ctx context.Context, job *RedisJobData) {
	updated, err := json.Marshal(job)
	if err != nil {
		log.Printf("[Job %s] Failed to re-queue: %v", job.Payload.JobID, err)
		return
	}

	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.key("processing"), job.Payload.JobID)
	pipe.HSet(ctx, c.key("data"), job.ID, updated)
	pipe.LPush(ctx, c.config.QueueName, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Job %s] Failed to re-queue: %v", job.Payload.JobID, err)
		return
	}
	log.Printf("[Job %s] Re-queued for retry (attempt %d/%d)", job.Payload.JobID, job.Attempts, job.MaxRetries)
}

func (c *RedisConsumer) markCompleted(jobID string, result map[string]interface{}) {
	ctx := context.Background()
	data, _ := json.Marshal(result)

	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.key("processing"), jobID)
	pipe.SAdd(ctx, c.key("completed"), jobID)
	pipe.HSet(ctx, c.key("results"), jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Job %s] Warning: Failed to record completion in Redis: %v", jobID, err)
	}
	c.publish(ctx, jobID, processor.StatusCompleted)
}

func (c *RedisConsumer) markFailed(jobID string, details map[string]interface{}) {
	ctx := context.Background()
	data, _ := json.Marshal(details)

	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.key("processing"), jobID)
	pipe.SAdd(ctx, c.key("failed"), jobID)
	pipe.HSet(ctx, c.key("errors"), jobID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Job %s] Warning: Failed to record failure in Redis: %v", jobID, err)
	}
	c.publish(ctx, jobID, processor.StatusFailed)
}

// publish emits a job:<status> event for listeners on <queue>:events.
func (c *RedisConsumer) publish(ctx context.Context, jobID string, status string) {
	event, _ := json.Marshal(map[string]interface{}{
		"event":     "job:" + status,
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	c.client.Publish(ctx, c.key("events"), event)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
