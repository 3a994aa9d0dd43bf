package httpx

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MikeMC777/chili-ordenes/internal/metrics"
)

// NewRouter returns a gin engine with the shared middleware chain plus
// /healthz and /metrics. reg also receives the Go and process collectors.
func NewRouter(service string, reg *prometheus.Registry) *gin.Engine {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewHTTPMetrics(reg, service)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(), Metrics(m))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	return r
}

// ListenAndServe serves h until SIGINT/SIGTERM or ctx ends, then drains
// in-flight requests for up to ten seconds.
func ListenAndServe(ctx context.Context, name, addr string, h http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", name, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("%s shutting down", name)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
