package main

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/MikeMC777/chili-ordenes/docs"
	"github.com/MikeMC777/chili-ordenes/internal/auth"
	"github.com/MikeMC777/chili-ordenes/internal/config"
	"github.com/MikeMC777/chili-ordenes/internal/events"
	"github.com/MikeMC777/chili-ordenes/internal/healthx"
	"github.com/MikeMC777/chili-ordenes/internal/httpx"
	"github.com/MikeMC777/chili-ordenes/internal/idempotency"
	"github.com/MikeMC777/chili-ordenes/internal/metrics"
	ord "github.com/MikeMC777/chili-ordenes/internal/order"
	"github.com/MikeMC777/chili-ordenes/internal/postgres"
)

// @title       ordenes order-service API
// @version     1.0
// @BasePath    /
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if cfg.GRPCHealthAddr != "" {
		go func() {
			if err := healthx.Serve(ctx, cfg.GRPCHealthAddr, healthx.NewChecker(pool, "order-service")); err != nil {
				log.Printf("[health] %v", err)
			}
		}()
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024)
		p.Start()
		defer func() {
			if err := p.Close(); err != nil {
				log.Printf("[events] close: %v", err)
			}
		}()
		pub = p
		log.Printf("[events] publishing to topic=%s brokers=%v", cfg.KafkaTopic, cfg.KafkaBrokers)
	}

	var idem idempotency.Store = idempotency.NewMemStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb)
	}

	reg := prometheus.NewRegistry()
	transitions := ord.TransitionsByName(cfg.OrderTransitions)
	svc := ord.NewService(ord.NewPGLedger(pool),
		ord.WithPublisher(pub, cfg.ServiceName),
		ord.WithTransitions(transitions),
		ord.WithRetry(cfg.OrderCommitAttempts, cfg.OrderRetryBase),
		ord.WithMetrics(metrics.NewOrderMetrics(reg)),
	)
	log.Printf("[orders] transitions=%s attempts=%d", transitions, cfg.OrderCommitAttempts)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	r := httpx.NewRouter("order_service", reg)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	registerRoutes(r, svc, idem, tokens)

	if err := httpx.ListenAndServe(ctx, "order-service", cfg.OrderSvcAddr, r); err != nil {
		log.Fatalf("order-service: %v", err)
	}
}
