package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/config"
	"github.com/ariefcatur/stonefab-orders/internal/jobs"
	kafkax "github.com/ariefcatur/stonefab-orders/internal/kafka"
	"github.com/ariefcatur/stonefab-orders/internal/ledger"
	"github.com/ariefcatur/stonefab-orders/internal/logging"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/postgres"
	"github.com/ariefcatur/stonefab-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	lg, err := logging.New(cfg.LogLevel, cfg.ServiceName+"-worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.RunMigrations {
		if err := postgres.Migrate(cfg.PostgresDSN, lg); err != nil {
			lg.Fatal("migrate", zap.Error(err))
		}
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		lg.Fatal("db", zap.Error(err))
	}
	defer db.Close()
	st := &postgres.Store{DB: db}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for ledger events raised by the sweep
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256, lg)
	prod.Start(ctx)
	events := &kafkax.Emitter{P: prod, Service: cfg.ServiceName + "-worker", Log: lg}

	// Audit consumer
	ac := &audit.Consumer{Store: st, Dedup: redisx.Dedup{RDB: rdb}, Log: lg}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, orders.TopicAudit, cfg.WorkerConcurrency, lg)
	go func() {
		lg.Info("audit consumer started", zap.String("group", cfg.WorkerGroup),
			zap.String("topic", orders.TopicAudit), zap.Int("workers", cfg.WorkerConcurrency))
		if err := cons.Start(ctx, ac.Handle); err != nil {
			lg.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// Overdue sweep, satu replika per tick lewat lock Redis
	owner, _ := os.Hostname()
	sweep := jobs.OverdueSweep{
		Ledger: ledger.New(st, audit.StoreSink{Store: st, Log: lg}, events, lg),
		Lock:   redisx.Locker{RDB: rdb, Owner: owner + "-" + uuid.NewString()},
		Log:    lg,
	}
	sched := jobs.NewScheduler(ctx, lg)
	if err := sched.Add("overdue-sweep", cfg.OverdueSchedule, sweep.Tick); err != nil {
		lg.Fatal("scheduler", zap.Error(err))
	}
	sched.Start()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	lg.Info("shutting down worker")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	cancel()
	sched.Stop(stopCtx)
	prod.Close()
	prod.WaitClosed()
}
