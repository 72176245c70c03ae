// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server and the queue
// processor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/config"
	"github.com/Shivanand-hulikatti/event-booking/internal/database"
	"github.com/Shivanand-hulikatti/event-booking/internal/handler"
	"github.com/Shivanand-hulikatti/event-booking/internal/lib/logger/sl"
	"github.com/Shivanand-hulikatti/event-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/event-booking/internal/notify"
	"github.com/Shivanand-hulikatti/event-booking/internal/notify/kafka"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue/rabbitmq"
	"github.com/Shivanand-hulikatti/event-booking/internal/queue/redis"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/event-booking/internal/service"
	"github.com/Shivanand-hulikatti/event-booking/internal/worker"
)

func main() {
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)
	log.Info("starting application",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("notifier", cfg.Notifier.Driver))

	if err := run(cfg, log); err != nil {
		log.Error("application failed", sl.Err(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// ── 2. Job queue and dead-letter queue ───────────────────────────────
	jobs, deadLetter, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer jobs.Close()
	log.Info("job queue ready", slog.String("driver", cfg.Queue.Driver))

	// ── 3. Notification delivery ─────────────────────────────────────────
	notifier, closeNotifier := openNotifier(cfg.Notifier, log)
	defer closeNotifier()

	// ── 4. Wire up layers ────────────────────────────────────────────────
	m := metrics.New()
	svc := service.NewEventService(log, store, jobs, m)

	processor := worker.NewProcessor(log, jobs, deadLetter, notifier, m, cfg.Processor)
	processor.Start(ctx)
	defer processor.Stop()

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:      handler.NewRouter(log, svc, m, cfg.Auth.JWTSecret),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Storage, log *slog.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("opened SQLite database", slog.String("path", cfg.SQLitePath))
		return store, nil
	default:
		pool, err := database.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		log.Info("connected to PostgreSQL")
		return postgres.New(pool), nil
	}
}

// openQueue returns the job queue and the queue jobs go to after their last
// attempt.
func openQueue(ctx context.Context, cfg config.Queue) (queue.Queue, queue.Queue, error) {
	switch cfg.Driver {
	case config.QueueRedis:
		q, err := redis.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
		if err != nil {
			return nil, nil, err
		}
		return q, q.DeadLetter(), nil
	case config.QueueRabbitMQ:
		q, err := rabbitmq.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return nil, nil, err
		}
		dl, err := q.DeadLetter()
		if err != nil {
			q.Close()
			return nil, nil, err
		}
		return q, dl, nil
	default:
		return queue.NewMemory(), queue.NewMemory(), nil
	}
}

func openNotifier(cfg config.Notifier, log *slog.Logger) (notify.Notifier, func()) {
	if cfg.Driver != config.NotifierKafka {
		return notify.NewLogNotifier(log), func() {}
	}

	n := kafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	log.Info("publishing notifications to kafka",
		slog.Any("brokers", cfg.Kafka.Brokers),
		slog.String("topic", cfg.Kafka.Topic))
	return n, closeLogged(log, "kafka notifier", n)
}

func closeLogged(log *slog.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Error("failed to close "+name, sl.Err(err))
		}
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}
