package main

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/bharatdoc-worker/internal/queue"
)

var (
	fileURL string
	userID  string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [file]",
	Short: "Submit a document job to the worker queue",
	Long: `Enqueue submits a job to QUEUE_NAME on the QUEUE_BACKEND the worker consumes.

The file is sent inline; with --url the worker downloads it instead.

Examples:
  bharatdoc enqueue udyam.pdf
  bharatdoc enqueue --url https://example.com/udyam.pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&fileURL, "url", "", "URL the worker downloads the document from")
	enqueueCmd.Flags().StringVar(&userID, "user", "", "user id recorded on the job")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	job := &queue.JobPayload{UserID: userID, FileURL: fileURL}

	switch {
	case len(args) == 1:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		if int64(len(data)) > cfg.MaxFileSize {
			return fmt.Errorf("file size exceeds maximum: %d > %d bytes", len(data), cfg.MaxFileSize)
		}
		job.Filename = filepath.Base(args[0])
		job.FileBuffer = data
		job.FileSize = int64(len(data))
	case fileURL != "":
		u, err := url.Parse(fileURL)
		if err != nil {
			return fmt.Errorf("invalid --url: %w", err)
		}
		// the worker routes on the extension
		job.Filename = path.Base(u.Path)
	default:
		return fmt.Errorf("either a file or --url is required")
	}

	producer, err := queue.NewProducer(cfg.QueueBackend, cfg.RedisURL, cfg.QueueName)
	if err != nil {
		return err
	}
	defer producer.Close()

	jobID, err := producer.Enqueue(cmd.Context(), job)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s (%s) on %s\n", jobID, job.Filename, cfg.QueueName)
	return nil
}
