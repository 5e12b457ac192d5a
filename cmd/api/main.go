package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/config"
	"github.com/ariefcatur/stonefab-orders/internal/httpx"
	"github.com/ariefcatur/stonefab-orders/internal/inventory"
	kafkax "github.com/ariefcatur/stonefab-orders/internal/kafka"
	"github.com/ariefcatur/stonefab-orders/internal/ledger"
	"github.com/ariefcatur/stonefab-orders/internal/lifecycle"
	"github.com/ariefcatur/stonefab-orders/internal/logging"
	"github.com/ariefcatur/stonefab-orders/internal/memstore"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/postgres"
	"github.com/ariefcatur/stonefab-orders/internal/redisx"
	"github.com/ariefcatur/stonefab-orders/internal/settings"
)

type storage interface {
	orders.Store
	orders.AuditStore
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	lg, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var st storage
	switch cfg.StoreDriver {
	case "memory":
		lg.Warn("using in-memory store, data is lost on restart")
		st = memstore.New()
	default:
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.PostgresDSN, lg); err != nil {
				lg.Fatal("migrate", zap.Error(err))
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
		if err != nil {
			lg.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		st = &postgres.Store{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, satu writer untuk semua topic
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, lg)
	prod.Start(ctx)

	events := &kafkax.Emitter{P: prod, Service: cfg.ServiceName, Log: lg}
	sink := audit.KafkaSink{
		P:        prod,
		Service:  cfg.ServiceName,
		Fallback: audit.StoreSink{Store: st, Log: lg},
		Log:      lg,
	}

	stock := inventory.New(st, sink, events, lg)
	engine := lifecycle.New(st, stock, lg,
		lifecycle.WithAudit(sink),
		lifecycle.WithEvents(events),
		lifecycle.WithStatusCache(redisx.StatusCache{RDB: rdb}),
		lifecycle.WithDepositThreshold(cfg.DepositThresholdPercent),
	)
	api := &httpx.API{
		Engine:   engine,
		Ledger:   ledger.New(st, sink, events, lg),
		Stock:    stock,
		Settings: settings.New(st, sink, lg),
		Audit:    st,
		Cache:    redisx.StatusCache{RDB: rdb},
		Idem:     redisx.Idempotency{RDB: rdb},
		Log:      lg,
	}

	router := httpx.NewRouter(lg)
	api.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		lg.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
