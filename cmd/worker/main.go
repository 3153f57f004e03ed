package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/logging"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// The worker drains redemption events from the queue and writes the
// audit trail. The record itself is already durable when an event is
// published, so this path is at-most-once and lossy by design.
func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogJSON)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	rds := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(rds.Client, "rollcall:redemptions")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Msg("audit worker started")
	for msg := range messages {
		if msg.Kind != "redemption" {
			log.Debug().Str("kind", msg.Kind).Msg("skipping unknown message kind")
			continue
		}

		var evt attendance.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Error().Err(err).Msg("malformed redemption event")
			continue
		}

		log.Info().
			Str("record_id", evt.RecordID.String()).
			Str("session_id", evt.SessionID.String()).
			Str("student_id", evt.StudentID.String()).
			Str("status", string(evt.Status)).
			Time("marked_at", evt.MarkedAt).
			Msg("attendance recorded")
	}

	log.Info().Msg("audit worker stopped")
}
