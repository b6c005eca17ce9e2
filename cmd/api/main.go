package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-salon-booking/internal/activity"
	"github.com/ariefcatur/go-salon-booking/internal/auth"
	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/ariefcatur/go-salon-booking/internal/config"
	"github.com/ariefcatur/go-salon-booking/internal/httpx"
	kafkax "github.com/ariefcatur/go-salon-booking/internal/kafka"
	"github.com/ariefcatur/go-salon-booking/internal/logger"
	"github.com/ariefcatur/go-salon-booking/internal/memstore"
	"github.com/ariefcatur/go-salon-booking/internal/mongostore"
	"github.com/ariefcatur/go-salon-booking/internal/postgres"
	"github.com/ariefcatur/go-salon-booking/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	zl, err := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		zl.Fatal("store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		zl.Warn("redis unreachable, realtime and idempotency degraded", zap.Error(err))
	}
	channel := redisx.NewChannel(rdb)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, zl)
	prod.Start(ctx)

	pub := booking.NewPublisher(channel, prod, zl, cfg.ServiceName, cfg.PublishTimeout)
	svc := booking.NewService(store, pub, zl, booking.WithStoreTimeout(cfg.StoreTimeout))

	router := httpx.NewRouter(zl, cfg.CORSOrigins)
	h := &httpx.Handler{
		Service:              svc,
		Verifier:             auth.NewVerifier(cfg.JWTSecret),
		Idempotency:          redisx.NewIdempotency(rdb),
		Rooms:                channel,
		Activity:             &activity.Reader{Redis: rdb},
		Log:                  zl,
		BookingRatePerMinute: cfg.BookingRatePerMinute,
	}
	h.Register(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		zl.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zl.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // flush pending events
	cancel()
	prod.WaitClosed()
}

func openStore(ctx context.Context, cfg config.Config) (booking.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &postgres.Store{DB: db}, db.Close, nil
	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}
		st := mongostore.New(client, cfg.MongoDB)
		if err := st.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return st, closeFn, nil
	case config.StoreMemory:
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
