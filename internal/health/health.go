// Package health reports process readiness over HTTP probes and the standard gRPC health service.
package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"taskflow.dev/internal/obs"
)

// ServiceName is the name the gRPC health service reports alongside the overall "" entry.
const ServiceName = "taskflow"

const (
	defaultTimeout  = 2 * time.Second
	defaultInterval = 10 * time.Second
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker pings the database.
type Checker struct {
	db      Pinger
	timeout time.Duration
}

func NewChecker(db Pinger) *Checker {
	return &Checker{db: db, timeout: defaultTimeout}
}

// Check returns nil when the database answers within the timeout. The result is mirrored
// into the taskflow_ready gauge.
func (c *Checker) Check(ctx context.Context) error {
	if c == nil || c.db == nil {
		obs.SetReady(false)
		return errors.New("health: no database configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.db.PingContext(ctx); err != nil {
		obs.SetReady(false)
		return err
	}
	obs.SetReady(true)
	return nil
}

// Server keeps grpc.health.v1 statuses in step with the checker.
type Server struct {
	checker  *Checker
	hs       *grpchealth.Server
	interval time.Duration
	log      *zap.Logger
}

func NewServer(checker *Checker, interval time.Duration, log *zap.Logger) *Server {
	if interval <= 0 {
		interval = defaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	hs := grpchealth.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{checker: checker, hs: hs, interval: interval, log: log}
}

// Register attaches the health service to g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.hs)
}

// Refresh runs one check and publishes the result.
func (s *Server) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.checker.Check(ctx); err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)
	return status == healthpb.HealthCheckResponse_SERVING
}

// Run refreshes immediately and then on every interval until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.Refresh(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain this replica.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}
