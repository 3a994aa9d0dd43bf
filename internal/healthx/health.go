// Package healthx serves grpc.health.v1 with a status that follows the
// database connection.
package healthx

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Checker struct {
	srv      *health.Server
	db       Pinger
	service  string
	interval time.Duration
}

func NewChecker(db Pinger, service string) *Checker {
	return &Checker{
		srv:      health.NewServer(),
		db:       db,
		service:  service,
		interval: 5 * time.Second,
	}
}

func (c *Checker) Server() *health.Server { return c.srv }

// Check pings once and publishes the result for both the named service and
// the server as a whole.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := c.db.Ping(ctx); err != nil {
		log.Printf("[health] service=%s ping failed: %v", c.service, err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.srv.SetServingStatus("", st)
	c.srv.SetServingStatus(c.service, st)
	return st
}

// Run re-checks on an interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.Check(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.srv.Shutdown()
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Serve exposes the checker on addr until ctx ends.
func Serve(ctx context.Context, addr string, c *Checker) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, c.Server())

	go c.Run(ctx)
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	log.Printf("[health] grpc listening on %s", addr)
	return s.Serve(lis)
}
