package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tealwick/storefront/internal/auth"
	"github.com/tealwick/storefront/internal/cart"
	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/checkout"
	"github.com/tealwick/storefront/internal/config"
	"github.com/tealwick/storefront/internal/httpx"
	kafkax "github.com/tealwick/storefront/internal/kafka"
	"github.com/tealwick/storefront/internal/postgres"
	"github.com/tealwick/storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCreated, 1024)
	prod.Start(ctx)

	// Services
	signer := auth.NewAccessSigner(cfg.JWTSecret, cfg.AccessTTL)
	authSvc := &auth.Service{
		Users:      &auth.UserRepo{DB: db},
		Tokens:     &auth.TokenRepo{DB: db},
		Signer:     signer,
		RefreshTTL: cfg.RefreshTTL,
		BcryptCost: cfg.BcryptCost,
	}
	catalogRepo := &catalog.Repo{DB: db}
	cartSvc := &cart.Service{
		Store:  &cart.Repo{DB: db},
		Ledger: catalogRepo,
		Cache:  &cart.RedisCache{RDB: rdb},
	}
	checkoutSvc := &checkout.Service{
		Orders:         &checkout.Repo{DB: db},
		Ledger:         catalogRepo,
		Producer:       prod,
		RequireCatalog: cfg.RequireCatalog,
		ServiceName:    cfg.ServiceName,
	}

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.AuthHandler{Auth: authSvc, Signer: signer}).Register(router)
	(&httpx.CartHandler{Carts: cartSvc, Signer: signer}).Register(router)
	(&httpx.OrdersHandler{Checkout: checkoutSvc, Signer: signer}).Register(router)
	(&httpx.ProductsHandler{Catalog: catalogRepo, Signer: signer}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
