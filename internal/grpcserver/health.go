// Package grpcserver exposes the gRPC health service, fed by periodic store
// pings, for orchestrators that probe over gRPC.
package grpcserver

import (
	"context"
	"time"

	gp "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name health checks may ask for besides "".
const ServiceName = "paybill.Gateway"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	srv      *health.Server
	pinger   Pinger
	interval time.Duration
	log      *zap.Logger
}

func NewHealth(p Pinger, interval time.Duration, log *zap.Logger) *Health {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &Health{srv: health.NewServer(), pinger: p, interval: interval, log: log}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewServer builds a gRPC server with prometheus interceptors and h
// registered as its health service.
func NewServer(h *Health) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(gp.UnaryServerInterceptor),
		grpc.StreamInterceptor(gp.StreamServerInterceptor),
	)
	healthpb.RegisterHealthServer(s, h.srv)
	gp.Register(s)
	return s
}

func (h *Health) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(ServiceName, st)
}

// Check pings the store once and updates the serving status.
func (h *Health) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.pinger.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", zap.Error(err))
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run checks until ctx is done, then reports NOT_SERVING for good.
func (h *Health) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()
	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}
