package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/tipbot/ledger/internal/lock"
	"github.com/tipbot/ledger/internal/logging"
	"github.com/tipbot/ledger/internal/repository"
	"github.com/tipbot/ledger/internal/service/ledger"
)

// cliConfig reads the subset of the server environment ledgerctl needs.
type cliConfig struct {
	DatabaseURL    string        `env:"DATABASE_URL"`
	MigrationsURL  string        `env:"MIGRATIONS_URL" envDefault:"file://migrations"`
	JWTSecret      string        `env:"JWT_SECRET"`
	RedisURL       string        `env:"REDIS_URL"`
	LockTTL        time.Duration `env:"LOCK_TTL" envDefault:"2m"`
	LockWait       time.Duration `env:"LOCK_WAIT" envDefault:"30s"`
	WithdrawalMemo string        `env:"WITHDRAWAL_MEMO" envDefault:"MOBI Tipping bot"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"warn"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg cliConfig

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for the tip ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := env.ParseAs[cliConfig]()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("database-url") {
				parsed.DatabaseURL = cfg.DatabaseURL
			}
			cfg = parsed
			logging.Init("ledgerctl", cfg.LogLevel, "development")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", "", "Postgres URL (defaults to $DATABASE_URL)")

	root.AddCommand(
		newMigrateCmd(&cfg),
		newWithdrawalsCmd(&cfg),
		newTokenCmd(&cfg),
	)
	return root
}

func requireDatabase(cfg *cliConfig) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL or --database-url is required")
	}
	return nil
}

// openEngine builds an engine sharing the server's account lock when Redis
// is configured. The returned func releases every resource.
func openEngine(ctx context.Context, cfg *cliConfig) (*ledger.Engine, func(), error) {
	if err := requireDatabase(cfg); err != nil {
		return nil, nil, err
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, 1)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{db.Close}

	var locker ledger.Locker = lock.NewKeyedMutex(cfg.LockWait)
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		closers = append(closers, client.Close)
		locker = lock.NewRedisLock(client, cfg.LockTTL, cfg.LockWait)
	}

	engine := ledger.NewEngine(
		repository.NewAccountRepository(db),
		repository.NewActionRepository(db),
		repository.NewSettlementRepository(db),
		repository.NewWithdrawalIntentRepository(db),
		db,
		locker,
		nil,
		nil,
		ledger.Settings{WithdrawalMemo: cfg.WithdrawalMemo},
	)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	return engine, cleanup, nil
}

