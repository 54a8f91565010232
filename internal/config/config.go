package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL          string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret            string `env:"JWT_SECRET,required,notEmpty"`
	DepositWebhookSecret string `env:"DEPOSIT_WEBHOOK_SECRET,required,notEmpty"`
	Port                 int    `env:"PORT" envDefault:"8080"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv               string `env:"APP_ENV" envDefault:"production"`
	MigrationsURL        string `env:"MIGRATIONS_URL" envDefault:"file://migrations"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`
	DBConnectAttempts int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"30"`

	RedisURL string        `env:"REDIS_URL"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"2m"`
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"30s"`

	KafkaBrokers []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `env:"KAFKA_TOPIC" envDefault:"ledger.events"`
	KafkaTimeout time.Duration `env:"KAFKA_TIMEOUT" envDefault:"5s"`

	GatewayURL     string        `env:"GATEWAY_URL" envDefault:"http://mock-gateway:8081"`
	GatewayAddress string        `env:"GATEWAY_ADDRESS" envDefault:"GTIPBOTHOTWALLET"`
	AssetCode      string        `env:"ASSET_CODE" envDefault:"MOBI"`
	WithdrawalMemo string        `env:"WITHDRAWAL_MEMO" envDefault:"MOBI Tipping bot"`
	SettleTimeout  time.Duration `env:"SETTLE_TIMEOUT" envDefault:"30s"`

	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	StaleIntentAfter time.Duration `env:"STALE_INTENT_AFTER" envDefault:"10m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if c.StaleIntentAfter <= c.SettleTimeout {
		return fmt.Errorf("STALE_INTENT_AFTER (%s) must exceed SETTLE_TIMEOUT (%s)", c.StaleIntentAfter, c.SettleTimeout)
	}
	if c.LockTTL <= c.SettleTimeout {
		return fmt.Errorf("LOCK_TTL (%s) must exceed SETTLE_TIMEOUT (%s)", c.LockTTL, c.SettleTimeout)
	}
	return nil
}
