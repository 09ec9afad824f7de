package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/adverant/nexus/bharatdoc-worker/internal/version"
)

const (
	shutdownTimeout = 30 * time.Second
	checkTimeout    = 5 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

type engineCounter interface {
	Len() int
}

// server exposes worker health and queue statistics.
type server struct {
	queue      consumer
	db         pinger // nil when persistence is disabled
	recognizer engineCounter
	backend    string
}

func newServer(s *server) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "BharatDoc Worker",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health", s.health)
	app.Get("/stats", s.stats)
	return app
}

func (s *server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), checkTimeout)
	defer cancel()

	health := fiber.Map{
		"status":  "healthy",
		"service": "bharatdoc-worker",
		"version": version.GitRelease,
	}

	if _, err := s.queue.GetStats(ctx); err != nil {
		health["queue"] = "unhealthy"
		health["queue_error"] = err.Error()
		health["status"] = "degraded"
	} else {
		health["queue"] = "healthy"
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			health["db"] = "unhealthy"
			health["db_error"] = err.Error()
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}
	}

	status := fiber.StatusOK
	if health["status"] == "degraded" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}

func (s *server) stats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), checkTimeout)
	defer cancel()

	queueStats, err := s.queue.GetStats(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	out := fiber.Map{
		"backend":     s.backend,
		"queue":       queueStats,
		"ocr_engines": s.recognizer.Len(),
	}
	if s.db != nil {
		out["db"] = s.db.GetStats()
	}
	return c.JSON(out)
}
