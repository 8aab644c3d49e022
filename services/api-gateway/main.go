// services/api-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/callback"
	"github.com/example/paybill-gateway/internal/config"
	"github.com/example/paybill-gateway/internal/dispatch"
	"github.com/example/paybill-gateway/internal/forward"
	"github.com/example/paybill-gateway/internal/gateway"
	"github.com/example/paybill-gateway/internal/grpcserver"
	"github.com/example/paybill-gateway/internal/ledger"
	"github.com/example/paybill-gateway/internal/logging"
	"github.com/example/paybill-gateway/internal/push"
	"github.com/example/paybill-gateway/internal/registry"
	"github.com/example/paybill-gateway/internal/store"
	m "github.com/example/paybill-gateway/pkg/metrics"
	"github.com/example/paybill-gateway/services/api-gateway/handlers"
	"github.com/example/paybill-gateway/services/api-gateway/queue"
)

const serviceName = "api-gateway"

type eventBus interface {
	Emit(ctx context.Context, kind, key string, payload any)
	Close() error
}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	var tokens gateway.TokenCache = gateway.NewMemoryTokenCache()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("parse REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		tokens = gateway.NewRedisTokenCache(rdb)
	}

	var events eventBus = queue.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		events = queue.New(cfg.KafkaBrokers, cfg.EventsTopic, log.Named("events"))
	}
	defer events.Close()

	bg := dispatch.New(log.Named("dispatch"))
	urls := cfg.CallbackURLs()
	gw := gateway.New(gateway.Options{
		ProductionURL: cfg.GatewayProductionURL,
		SandboxURL:    cfg.GatewaySandboxURL,
		Timeout:       cfg.GatewayTimeout,
	}, tokens, log.Named("gateway"))
	reg := registry.New(st, log.Named("registry"))

	deps := handlers.Deps{
		Tenants:   reg,
		Pushes:    push.New(reg, gw, st, events, log.Named("push"), urls.Callback, cfg.PhoneRegion),
		Callbacks: callback.New(st, events, log.Named("callback")),
		Ledger: ledger.New(reg, st, gw, forward.New(cfg.ForwardTimeout, log.Named("forward")), bg, events, log.Named("ledger"), ledger.Options{
			ResultURL:      urls.Result,
			TimeoutURL:     urls.Timeout,
			QueryTimeout:   cfg.StatusQueryTimeout,
			ForwardTimeout: cfg.ForwardTimeout,
		}),
		Gateway:  gw,
		URLs:     urls,
		AdminKey: cfg.AdminAPIKey,
		Log:      log.Named("http"),
		Validate: handlers.NewValidator(),
		Timeout:  cfg.GatewayTimeout + 15*time.Second,
	}

	r := mux.NewRouter()
	r.Use(metricsMiddleware, accessLog(log.Named("access")))

	// metrics & health
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ok := st.Ping(r.Context()) == nil
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      ok,
			"service": serviceName,
			"ts":      time.Now().UTC(),
		})
	}).Methods(http.MethodGet)

	handlers.Register(r, deps)

	// gRPC health
	health := grpcserver.NewHealth(st, 10*time.Second, log.Named("health"))
	gs := grpcserver.NewServer(health)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go health.Run(ctx)
	go func() {
		log.Info("serving gRPC health", zap.String("addr", cfg.GRPCAddr))
		if err := gs.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           cors.AllowAll().Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", zap.String("service", serviceName), zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	gs.GracefulStop()
	// in-flight status queries and forwards finish before the store closes
	bg.Close()
	log.Info("bye")
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, pg.DB()); err != nil {
		_ = pg.Close()
		return nil, err
	}
	return pg, nil
}

/*************** Metrics middleware ***************/
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		statusLabel := "FAILED"
		if rec.status >= 200 && rec.status < 400 {
			statusLabel = "SUCCESS"
		}
		m.IncRequest(serviceName, statusLabel, r.Method)
		m.ObserveDuration(serviceName, statusLabel, time.Since(start).Seconds())
	})
}

/*************** Access log ***************/
func accessLog(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
