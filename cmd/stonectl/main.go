// Command stonectl runs operator tasks against the stonefab database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/audit"
	"github.com/ariefcatur/stonefab-orders/internal/config"
	"github.com/ariefcatur/stonefab-orders/internal/logging"
	"github.com/ariefcatur/stonefab-orders/internal/orders"
	"github.com/ariefcatur/stonefab-orders/internal/postgres"
)

var (
	cfg  config.Config
	lg   *zap.Logger
	dsn  string
	who  string
	role string
)

var rootCmd = &cobra.Command{
	Use:           "stonectl",
	Short:         "Operator tasks for the stonefab order engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		lg, err = logging.New(cfg.LogLevel, "stonectl")
		return err
	},
}

func init() {
	_ = godotenv.Load()
	cfg = config.Load()
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", cfg.PostgresDSN, "postgres connection string")
	rootCmd.PersistentFlags().StringVar(&who, "as", "ops", "actor id recorded in the audit trail")
	rootCmd.PersistentFlags().StringVar(&role, "role", string(orders.RoleAdmin), "actor role")
}

// actor is the operator identity passed to every engine call.
func actor() (orders.Actor, error) {
	r, ok := orders.ParseRole(role)
	if !ok {
		return orders.Actor{}, fmt.Errorf("unknown role %q", role)
	}
	a := orders.Actor{ID: who, Name: who, Role: r}
	return a, a.Validate()
}

// store opens the database; the caller closes the pool.
func store(ctx context.Context) (*postgres.Store, *pgxpool.Pool, error) {
	db, err := postgres.Connect(ctx, dsn, 2)
	if err != nil {
		return nil, nil, err
	}
	return &postgres.Store{DB: db}, db, nil
}

func sink(st *postgres.Store) audit.Sink {
	return audit.Multi{audit.StoreSink{Store: st, Log: lg}, audit.LogSink{Log: lg}}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
