package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-salon-booking/internal/activity"
	"github.com/ariefcatur/go-salon-booking/internal/booking"
	"github.com/ariefcatur/go-salon-booking/internal/config"
	kafkax "github.com/ariefcatur/go-salon-booking/internal/kafka"
	"github.com/ariefcatur/go-salon-booking/internal/logger"
	"github.com/ariefcatur/go-salon-booking/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	zl, err := logger.New(cfg.ServiceName+"-activity", cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &activity.Service{
		Redis:       rdb,
		Log:         zl,
		ServiceName: activity.DedupNamespace,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ActivityGroup, booking.TopicSlotBooked, cfg.ActivityWorkers, zl)
	done := make(chan struct{})
	go func() {
		defer close(done)
		zl.Info("activity consumer started",
			zap.String("group", cfg.ActivityGroup),
			zap.String("topic", booking.TopicSlotBooked),
			zap.Int("workers", cfg.ActivityWorkers))
		if err := cons.Start(ctx, svc.HandleSlotBooked); err != nil {
			zl.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		zl.Info("shutting down consumer")
	case <-ctx.Done():
	}
	cancel()
	<-done
}
