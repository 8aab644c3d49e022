// cmd/reconcile-worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/config"
	"github.com/example/paybill-gateway/internal/logging"
	"github.com/example/paybill-gateway/internal/store"
	"github.com/example/paybill-gateway/internal/sweeper"
	m "github.com/example/paybill-gateway/pkg/metrics"
	"github.com/example/paybill-gateway/services/api-gateway/queue"
)

const serviceName = "reconcile-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName, cfg.LogFile)
	if err != nil {
		_, _ = os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	var locker sweeper.Locker
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("parse REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		locker = redislock.New(rdb)
	} else {
		log.Warn("REDIS_URL not set, sweeping without a lock")
	}

	sw := sweeper.New(st, locker, log.Named("sweeper"), sweeper.Options{
		StaleAfter: cfg.StaleAfter,
		Interval:   cfg.SweepInterval,
	})
	sched, err := sw.Start()
	if err != nil {
		log.Fatal("start sweeper", zap.Error(err))
	}

	if len(cfg.KafkaBrokers) > 0 {
		go func() {
			err := queue.Consume(ctx, cfg.KafkaBrokers, cfg.EventsTopic, serviceName, log.Named("events"), func(_ context.Context, ev queue.Event) error {
				m.IncEvent(ev.Kind)
				log.Info("event", zap.String("kind", ev.Kind), zap.String("key", ev.Key), zap.Time("at", ev.At))
				return nil
			})
			if err != nil {
				log.Error("event consumer stopped", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics serve", zap.Error(err))
		}
	}()

	log.Info("started")
	<-ctx.Done()
	log.Info("shutting down")
	if err := sched.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("bye")
}
