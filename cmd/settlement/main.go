package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
	"github.com/ariefcatur/go-commerce-core/internal/config"
	"github.com/ariefcatur/go-commerce-core/internal/gateway"
	kafkax "github.com/ariefcatur/go-commerce-core/internal/kafka"
	"github.com/ariefcatur/go-commerce-core/internal/postgres"
	"github.com/ariefcatur/go-commerce-core/internal/redisx"
	"github.com/ariefcatur/go-commerce-core/internal/settlement"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	st := postgres.NewDocStore(db)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for OrderTransferred
	prod := kafkax.NewProducer(cfg.KafkaBrokers, commerce.TopicOrderTransferred, 1024)
	prod.Start(ctx)

	gw := gateway.New(cfg.GatewayURL)
	mgr := commerce.NewManager(st, gw, commerce.NewItemStore(), commerce.Config{
		PlatformFeeBPS: cfg.PlatformFeeBPS,
		RefundFeeBPS:   cfg.RefundFeeBPS,
		TransferFeeBPS: cfg.TransferFeeBPS,
	})

	svc := &settlement.Service{
		Store:       st,
		Manager:     mgr,
		Redis:       rdb,
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-settlement",
	}

	group := getenv("SETTLEMENT_GROUP", "settlement-svc")
	workers := mustAtoi(os.Getenv("SETTLEMENT_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, commerce.TopicOrderPaid, workers)

	go func() {
		log.Printf("settlement consumer started: group=%s topic=%s workers=%d", group, commerce.TopicOrderPaid, workers)
		if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
