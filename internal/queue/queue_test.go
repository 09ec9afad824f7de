package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/bharatdoc-worker/internal/errors"
	"github.com/adverant/nexus/bharatdoc-worker/internal/logging"
	"github.com/adverant/nexus/bharatdoc-worker/internal/processor"
)

type statusUpdate struct {
	jobID    string
	status   string
	metadata map[string]interface{}
}

type fakeProcessor struct {
	requests []*processor.ProcessRequest
	updates  []statusUpdate
	err      error
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &processor.ProcessResult{PageCount: 2, FailedPages: 1, DocumentType: "Udyam_Certificate", ProcessingTimeMs: 12}, nil
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	f.updates = append(f.updates, statusUpdate{jobID, status, metadata})
	return nil
}

func (f *fakeProcessor) statuses() []string {
	var out []string
	for _, u := range f.updates {
		out = append(out, u.status)
	}
	return out
}

func TestJobPayloadFileBuffer(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		want    []byte
		wantErr bool
	}{
		{"base64", `{"jobId":"j","filename":"a.pdf","fileBuffer":"JVBERg=="}`, []byte("%PDF"), false},
		{"node buffer", `{"jobId":"j","filename":"a.pdf","fileBuffer":{"type":"Buffer","data":[37,80,68,70]}}`, []byte("%PDF"), false},
		{"absent", `{"jobId":"j","filename":"a.pdf","fileUrl":"http://x/a.pdf"}`, nil, false},
		{"bad base64", `{"jobId":"j","fileBuffer":"***"}`, nil, true},
		{"wrong buffer type", `{"jobId":"j","fileBuffer":{"type":"Blob","data":[1]}}`, nil, true},
		{"byte out of range", `{"jobId":"j","fileBuffer":{"type":"Buffer","data":[256]}}`, nil, true},
		{"number", `{"jobId":"j","fileBuffer":7}`, nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var p JobPayload
			err := json.Unmarshal([]byte(tc.body), &p)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(p.FileBuffer, tc.want) {
				t.Errorf("FileBuffer = %v, want %v", p.FileBuffer, tc.want)
			}
			if p.JobID != "j" {
				t.Errorf("JobID = %q", p.JobID)
			}
		})
	}
}

func TestJobPayloadValidate(t *testing.T) {
	if err := (&JobPayload{Filename: "a.pdf", FileURL: "http://x"}).Validate(); err == nil {
		t.Error("missing jobId accepted")
	}
	if err := (&JobPayload{JobID: "j", Filename: "a.pdf"}).Validate(); err == nil {
		t.Error("job without input accepted")
	}
	if err := (&JobPayload{JobID: "j", FileBuffer: []byte{1}}).Validate(); err != nil {
		t.Error(err)
	}
}

func TestProcessDocumentTaskPayload(t *testing.T) {
	job := &JobPayload{JobID: "job-1", Filename: "cert.png", FileBuffer: []byte{0x89, 'P', 'N', 'G'}}
	task, err := NewProcessDocumentTask(job)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskTypeProcessDocument {
		t.Errorf("type = %s", task.Type())
	}

	var decoded JobPayload
	if err := json.Unmarshal(task.Payload(), &decoded); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(decoded.FileBuffer, job.FileBuffer) || decoded.Filename != "cert.png" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRetryDelay(t *testing.T) {
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for n, d := range want {
		if got := retryDelay(n, nil, nil); got != d {
			t.Errorf("retryDelay(%d) = %v, want %v", n, got, d)
		}
	}
	if got := retryDelay(70, nil, nil); got != 60*time.Second {
		t.Errorf("retryDelay(70) = %v", got)
	}
}

func TestFailureMetadata(t *testing.T) {
	err := errors.NewUnsupportedFormatError("/tmp/a.docx", ".docx")
	metadata := failureMetadata(err, 1500*time.Millisecond)
	if metadata["errorCode"] != "UNSUPPORTED_FORMAT" || metadata["processingTime"] != int64(1500) {
		t.Errorf("metadata = %v", metadata)
	}
	if retryable(err) {
		t.Error("unsupported format must not be retried")
	}
	if !retryable(stderrors.New("connection reset")) {
		t.Error("plain errors are retryable")
	}
}

func TestDecodeJob(t *testing.T) {
	testCases := []struct {
		name      string
		data      string
		wantID    string
		wantJobID string
		wantErr   bool
	}{
		{"complete", `{"id":"q-1","payload":{"jobId":"job-1","fileUrl":"http://x/a.pdf"}}`, "q-1", "job-1", false},
		{"ids from queue key", `{"payload":{"fileUrl":"http://x/a.pdf"}}`, "popped", "popped", false},
		{"job id only", `{"payload":{"jobId":"job-2","fileUrl":"http://x/a.pdf"}}`, "popped", "job-2", false},
		{"malformed", `{"id":`, "", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := decodeJob("popped", tc.data)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if job.ID != tc.wantID || job.Payload.JobID != tc.wantJobID {
				t.Errorf("ID = %q, JobID = %q, want %q, %q", job.ID, job.Payload.JobID, tc.wantID, tc.wantJobID)
			}
		})
	}
}

func newTestConsumer(p processor.DocumentProcessorInterface) *Consumer {
	return &Consumer{
		processor: p,
		config:    &ConsumerConfig{QueueName: "bharatdoc:jobs"},
		logger:    logging.NewLogger("Asynq"),
	}
}

func TestHandleProcessDocument(t *testing.T) {
	fake := &fakeProcessor{}
	task, _ := NewProcessDocumentTask(&JobPayload{JobID: "job-2", Filename: "cert.pdf", FileBuffer: []byte("%PDF")})

	if err := newTestConsumer(fake).handleProcessDocument(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(fake.requests) != 1 || fake.requests[0].JobID != "job-2" || string(fake.requests[0].FileBuffer) != "%PDF" {
		t.Errorf("requests = %+v", fake.requests)
	}
	if got := fake.statuses(); !reflect.DeepEqual(got, []string{"processing", "completed"}) {
		t.Errorf("statuses = %v", got)
	}
	done := fake.updates[1].metadata
	if done["pageCount"] != 2 || done["failedPages"] != 1 || done["documentType"] != "Udyam_Certificate" {
		t.Errorf("completion metadata = %v", done)
	}
}

func TestHandleProcessDocumentFailures(t *testing.T) {
	t.Run("unsupported skips retry", func(t *testing.T) {
		fake := &fakeProcessor{err: errors.NewUnsupportedFormatError("a.docx", ".docx")}
		task, _ := NewProcessDocumentTask(&JobPayload{JobID: "job-3", Filename: "a.docx", FileBuffer: []byte("PK")})

		err := newTestConsumer(fake).handleProcessDocument(context.Background(), task)
		if !stderrors.Is(err, asynq.SkipRetry) {
			t.Errorf("err = %v, want SkipRetry", err)
		}
		if got := fake.statuses(); !reflect.DeepEqual(got, []string{"processing", "failed"}) {
			t.Errorf("statuses = %v", got)
		}
	})

	t.Run("transient is retried", func(t *testing.T) {
		fake := &fakeProcessor{err: stderrors.New("redis timeout")}
		task, _ := NewProcessDocumentTask(&JobPayload{JobID: "job-4", FileURL: "http://x/a.pdf"})

		err := newTestConsumer(fake).handleProcessDocument(context.Background(), task)
		if err == nil || stderrors.Is(err, asynq.SkipRetry) {
			t.Errorf("err = %v, want retryable error", err)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		fake := &fakeProcessor{}
		err := newTestConsumer(fake).handleProcessDocument(context.Background(), asynq.NewTask(TaskTypeProcessDocument, []byte("{")))
		if !stderrors.Is(err, asynq.SkipRetry) {
			t.Errorf("err = %v, want SkipRetry", err)
		}
		if len(fake.requests) != 0 {
			t.Error("malformed job must not be processed")
		}
	})
}

// TestRedisRoundTrip needs a scratch Redis in TEST_REDIS_URL.
func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skipf("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opt)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	queueName := "bharatdoc:test:" + time.Now().Format("150405.000000")
	defer func() {
		keys, _ := client.Keys(ctx, queueName+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	}()

	producer, err := NewRedisProducer(url, queueName)
	if err != nil {
		t.Fatal(err)
	}
	defer producer.Close()
	jobID, err := producer.Enqueue(ctx, &JobPayload{Filename: "cert.pdf", FileBuffer: []byte("%PDF")})
	if err != nil {
		t.Fatal(err)
	}

	fake := &fakeProcessor{}
	consumer, err := newRedisConsumer(client, &RedisConsumerConfig{QueueName: queueName, Processor: fake, PollInterval: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := consumer.processNextJob(); err != nil {
		t.Fatal(err)
	}

	if len(fake.requests) != 1 || fake.requests[0].JobID != jobID {
		t.Fatalf("requests = %+v", fake.requests)
	}
	stats, err := consumer.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["completed"] != 1 || stats["waiting"] != 0 || stats["processing"] != 0 {
		t.Errorf("stats = %v", stats)
	}
	if err := consumer.processNextJob(); !stderrors.Is(err, errNoJob) {
		t.Errorf("empty queue err = %v", err)
	}
}
