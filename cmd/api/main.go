package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/course"
	"rollcall/internal/httpapi"
	"rollcall/internal/live"
	"rollcall/internal/logging"
	"rollcall/internal/queue"
	"rollcall/internal/session"
	"rollcall/internal/store"
	"rollcall/internal/token"
	"rollcall/internal/user"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogJSON)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("api server failed")
	}
}

func run(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rds := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(rds.Client, "rollcall:redemptions")
	}

	codec, err := token.NewCodec(cfg.QRSecret)
	if err != nil {
		return err
	}
	tokens := token.NewCache()
	defer tokens.Stop()

	userRepo := user.NewRepository(db.Client)
	courseRepo := course.NewRepository(db.Client)
	sessionRepo := session.NewRepository(db.Client)
	ledger := attendance.NewRepository(db.Client)

	users := user.NewService(userRepo)
	courses := course.NewService(courseRepo, userRepo)
	sessions := session.NewService(sessionRepo, courseRepo, userRepo)
	att := attendance.NewService(codec, ledger, sessionRepo, userRepo)

	hub := live.NewHub()

	h := httpapi.New(cfg, users, courses, sessions, att, codec, tokens, q, hub, db, rds)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("env", cfg.Env).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	// Give outstanding requests time to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("api exited")
	return nil
}
