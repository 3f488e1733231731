// Package config loads process configuration from GROCERY_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envPrefix = "GROCERY"

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50051"`

	StoreDriver    string        `envconfig:"STORE_DRIVER" default:"mysql"`
	MySQLDSN       string        `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/grocery?parseTime=true"`
	MySQLMaxOpen   int           `envconfig:"MYSQL_MAX_OPEN" default:"50"`
	MySQLMaxIdle   int           `envconfig:"MYSQL_MAX_IDLE" default:"25"`
	MySQLMaxLife   time.Duration `envconfig:"MYSQL_CONN_MAX_LIFETIME" default:"5m"`
	MigrateOnStart bool          `envconfig:"MIGRATE_ON_START" default:"true"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPoolSize  int           `envconfig:"REDIS_POOL_SIZE" default:"100"`

	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	SessionExpiry time.Duration `envconfig:"SESSION_EXPIRY" default:"30m"`

	TxTimeout      time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`
	EventWorkers   int           `envconfig:"EVENT_WORKERS" default:"4"`
	EventQueueSize int           `envconfig:"EVENT_QUEUE_SIZE" default:"10000"`
	KafkaBrokers   []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic     string        `envconfig:"KAFKA_TOPIC" default:"orders.placed"`

	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"grocery-store"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads the environment once. The returned value is not modified afterwards.
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("GROCERY_JWT_SECRET is required")
	}
	switch strings.ToLower(c.StoreDriver) {
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return errors.New("GROCERY_MYSQL_DSN is required for the mysql store")
		}
	case StoreMemory:
	default:
		return errors.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.TxTimeout <= 0 {
		return errors.New("GROCERY_TX_TIMEOUT must be positive")
	}
	if c.EventWorkers <= 0 || c.EventQueueSize <= 0 {
		return errors.New("event workers and queue size must be positive")
	}
	return nil
}
