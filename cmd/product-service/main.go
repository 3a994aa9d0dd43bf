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
	prod "github.com/MikeMC777/chili-ordenes/internal/product"
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
			if err := healthx.Serve(ctx, cfg.GRPCHealthAddr, healthx.NewChecker(pool, "product-service")); err != nil {
				log.Printf("[health] %v", err)
			}
		}()
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	r := httpx.NewRouter("product_service", prometheus.NewRegistry())
	registerRoutes(r, prod.NewPGRepo(pool), tokens)

	if err := httpx.ListenAndServe(ctx, "product-service", cfg.ProductSvcAddr, r); err != nil {
		log.Fatalf("product-service: %v", err)
	}
}
