package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer submits document jobs to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, job *JobPayload) (string, error)
	Close() error
}

// NewProducer returns the producer matching a worker's QUEUE_BACKEND.
func NewProducer(backend, redisURL, queueName string) (Producer, error) {
	switch backend {
	case "asynq":
		return NewAsynqProducer(redisURL, queueName)
	case "redis", "":
		return NewRedisProducer(redisURL, queueName)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}

// assignJobID fills in a fresh job id when the caller left it empty.
func assignJobID(job *JobPayload) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
}

// AsynqProducer enqueues process-document tasks.
type AsynqProducer struct {
	client     *asynq.Client
	queueName  string
	maxRetries int
}

// NewAsynqProducer connects an Asynq client.
func NewAsynqProducer(redisURL, queueName string) (*AsynqProducer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &AsynqProducer{
		client:     asynq.NewClient(redisOpt),
		queueName:  queueName,
		maxRetries: 3,
	}, nil
}

// NewProcessDocumentTask builds the task for job.
func NewProcessDocumentTask(job *JobPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}
	return asynq.NewTask(TaskTypeProcessDocument, payload), nil
}

// Enqueue submits job and returns its job id.
func (p *AsynqProducer) Enqueue(ctx context.Context, job *JobPayload) (string, error) {
	assignJobID(job)
	if err := job.Validate(); err != nil {
		return "", err
	}

	task, err := NewProcessDocumentTask(job)
	if err != nil {
		return "", err
	}
	if _, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queueName),
		asynq.TaskID(job.JobID),
		asynq.MaxRetry(p.maxRetries),
	); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return job.JobID, nil
}

// Close closes the Asynq client.
func (p *AsynqProducer) Close() error {
	return p.client.Close()
}

// RedisProducer pushes jobs in the layout RedisConsumer reads.
type RedisProducer struct {
	client     *redis.Client
	queueName  string
	maxRetries int
}

// NewRedisProducer connects to Redis.
func NewRedisProducer(redisURL, queueName string) (*RedisProducer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &RedisProducer{
		client:     redis.NewClient(opt),
		queueName:  queueName,
		maxRetries: 3,
	}, nil
}

// Enqueue stores the job body and pushes its id.
func (p *RedisProducer) Enqueue(ctx context.Context, job *JobPayload) (string, error) {
	assignJobID(job)
	if err := job.Validate(); err != nil {
		return "", err
	}

	data, err := json.Marshal(&RedisJobData{
		ID:         job.JobID,
		Type:       TaskTypeProcessDocument,
		Payload:    *job,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetries,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %s: %w", job.JobID, err)
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.queueName+":data", job.JobID, data)
	pipe.LPush(ctx, p.queueName, job.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return job.JobID, nil
}

// Close closes the Redis client.
func (p *RedisProducer) Close() error {
	return p.client.Close()
}
