/**
 * Configuration for the BharatDoc worker and CLI
 *
 * Sources, lowest precedence first: built-in defaults, optional YAML config
 * file, .env file, process environment.
 */

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/adverant/nexus/bharatdoc-worker/internal/postprocess"
)

// Config holds worker configuration
type Config struct {
	// Redis / queue configuration
	RedisURL     string
	QueueName    string
	QueueBackend string // "redis" (list queue) or "asynq"

	// PostgreSQL configuration; empty disables persistence
	DatabaseURL string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds
	TempDir           string
	HTTPAddr          string

	// Recognition configuration
	TesseractLanguages []string
	DefaultOCRLanguage string
	TessdataPrefix     string
	RenderDPI          int

	// Pipeline thresholds
	MinDigitalTextLength    int
	ConfidenceThreshold     float64
	WatermarkAngleThreshold float64

	// Output
	OutputDir     string
	OutputFormats []string

	LogLevel string
}

var defaults = map[string]interface{}{
	"REDIS_URL":                 "redis://localhost:6379",
	"QUEUE_NAME":                "bharatdoc:jobs",
	"QUEUE_BACKEND":             "redis",
	"DATABASE_URL":              "",
	"WORKER_CONCURRENCY":        1,
	"MAX_FILE_SIZE":             int64(104857600), // 100MB
	"PROCESSING_TIMEOUT":        300000,           // 5 minutes
	"TEMP_DIR":                  "/tmp/bharatdoc",
	"HTTP_ADDR":                 ":8097",
	"TESSERACT_LANGUAGES":       "en,hi",
	"DEFAULT_OCR_LANGUAGE":      "en",
	"TESSDATA_PREFIX":           "",
	"RENDER_DPI":                300,
	"MIN_DIGITAL_TEXT_LENGTH":   100,
	"CONFIDENCE_THRESHOLD":      0.7,
	"WATERMARK_ANGLE_THRESHOLD": 10.0,
	"OUTPUT_DIR":                "output",
	"OUTPUT_FORMATS":            "json,csv",
	"LOG_LEVEL":                 "info",
}

// LoadConfig loads configuration from .env, an optional config file and the environment.
func LoadConfig(cfgFile string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the environment
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{
		RedisURL:                v.GetString("REDIS_URL"),
		QueueName:               v.GetString("QUEUE_NAME"),
		QueueBackend:            strings.ToLower(v.GetString("QUEUE_BACKEND")),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		WorkerConcurrency:       v.GetInt("WORKER_CONCURRENCY"),
		MaxFileSize:             v.GetInt64("MAX_FILE_SIZE"),
		ProcessingTimeout:       v.GetInt("PROCESSING_TIMEOUT"),
		TempDir:                 v.GetString("TEMP_DIR"),
		HTTPAddr:                v.GetString("HTTP_ADDR"),
		TesseractLanguages:      splitList(v.GetString("TESSERACT_LANGUAGES")),
		DefaultOCRLanguage:      v.GetString("DEFAULT_OCR_LANGUAGE"),
		TessdataPrefix:          v.GetString("TESSDATA_PREFIX"),
		RenderDPI:               v.GetInt("RENDER_DPI"),
		MinDigitalTextLength:    v.GetInt("MIN_DIGITAL_TEXT_LENGTH"),
		ConfidenceThreshold:     v.GetFloat64("CONFIDENCE_THRESHOLD"),
		WatermarkAngleThreshold: v.GetFloat64("WATERMARK_ANGLE_THRESHOLD"),
		OutputDir:               v.GetString("OUTPUT_DIR"),
		OutputFormats:           splitList(v.GetString("OUTPUT_FORMATS")),
		LogLevel:                v.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.QueueBackend != "redis" && c.QueueBackend != "asynq" {
		return fmt.Errorf("QUEUE_BACKEND must be redis or asynq, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %d", c.ProcessingTimeout)
	}

	if c.RenderDPI < 72 || c.RenderDPI > 1200 {
		return fmt.Errorf("RENDER_DPI must be between 72 and 1200, got %d", c.RenderDPI)
	}

	if c.MinDigitalTextLength < 0 {
		return fmt.Errorf("MIN_DIGITAL_TEXT_LENGTH must not be negative, got %d", c.MinDigitalTextLength)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0, 1], got %v", c.ConfidenceThreshold)
	}

	if c.WatermarkAngleThreshold <= 0 || c.WatermarkAngleThreshold >= 45 {
		return fmt.Errorf("WATERMARK_ANGLE_THRESHOLD must be within (0, 45), got %v", c.WatermarkAngleThreshold)
	}

	for _, f := range c.OutputFormats {
		if f != "json" && f != "csv" && f != "yaml" {
			return fmt.Errorf("unknown output format %q", f)
		}
	}

	return nil
}

// Timeout returns PROCESSING_TIMEOUT as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// PostProcessConfig returns the layout post-processor thresholds.
func (c *Config) PostProcessConfig() postprocess.Config {
	return postprocess.Config{
		ConfidenceThreshold: c.ConfidenceThreshold,
		AngleThreshold:      c.WatermarkAngleThreshold,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
