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

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
	"github.com/ariefcatur/go-commerce-core/internal/config"
	"github.com/ariefcatur/go-commerce-core/internal/gateway"
	"github.com/ariefcatur/go-commerce-core/internal/httpx"
	kafkax "github.com/ariefcatur/go-commerce-core/internal/kafka"
	"github.com/ariefcatur/go-commerce-core/internal/postgres"
	"github.com/ariefcatur/go-commerce-core/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	st := postgres.NewDocStore(db)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	paid := kafkax.NewProducer(cfg.KafkaBrokers, commerce.TopicOrderPaid, 1024)
	canceled := kafkax.NewProducer(cfg.KafkaBrokers, commerce.TopicOrderCanceled, 1024)
	transferred := kafkax.NewProducer(cfg.KafkaBrokers, commerce.TopicOrderTransferred, 1024)
	failed := kafkax.NewProducer(cfg.KafkaBrokers, commerce.TopicPaymentFailed, 1024)
	for _, p := range []*kafkax.Producer{paid, canceled, transferred, failed} {
		p.Start(ctx)
	}

	// Payment gateway and orchestrator
	gw := gateway.New(cfg.GatewayURL)
	mgr := commerce.NewManager(st, gw, commerce.NewItemStore(), commerce.Config{
		PlatformFeeBPS: cfg.PlatformFeeBPS,
		RefundFeeBPS:   cfg.RefundFeeBPS,
		TransferFeeBPS: cfg.TransferFeeBPS,
	})

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Store:   st,
		Manager: mgr,
		Producers: httpx.Producers{
			OrderPaid:        paid,
			OrderCanceled:    canceled,
			OrderTransferred: transferred,
			PaymentFailed:    failed,
		},
		Redis:   rdb,
		Service: cfg.ServiceName,
	}
	oh.Register(router)
	ah := &httpx.AccountsHandler{Store: st, Manager: mgr}
	ah.Register(router)

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
	for _, p := range []*kafkax.Producer{paid, canceled, transferred, failed} {
		p.Close() // close inbox, flush and close writer
	}
	cancel()
	for _, p := range []*kafkax.Producer{paid, canceled, transferred, failed} {
		p.WaitClosed()
	}
}
