package main

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MikeMC777/chili-ordenes/internal/auth"
	"github.com/MikeMC777/chili-ordenes/internal/config"
	"github.com/MikeMC777/chili-ordenes/internal/healthx"
	"github.com/MikeMC777/chili-ordenes/internal/httpx"
	"github.com/MikeMC777/chili-ordenes/internal/postgres"
	"github.com/MikeMC777/chili-ordenes/internal/user"
)

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
			if err := healthx.Serve(ctx, cfg.GRPCHealthAddr, healthx.NewChecker(pool, "user-service")); err != nil {
				log.Printf("[health] %v", err)
			}
		}()
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	svc := user.NewService(user.NewPGRepo(pool), tokens)

	r := httpx.NewRouter("user_service", prometheus.NewRegistry())
	registerRoutes(r, svc)

	if err := httpx.ListenAndServe(ctx, "user-service", cfg.UserSvcAddr, r); err != nil {
		log.Fatalf("user-service: %v", err)
	}
}
