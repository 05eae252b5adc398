package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"

	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkRedis = "redis"
)

type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"local"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	GRPCAddr        string        `env:"GRPC_ADDR" envDefault:":50051"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Log      LogConfig
	Storage  StorageConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Catalog  CatalogConfig
	Notifier NotifierConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT"`
}

type StorageConfig struct {
	Driver             string `env:"STORAGE_DRIVER" envDefault:"memory"`
	// Every WATCH round on a product commits exactly one writer, so a unit of
	// work can lose one round per concurrent writer on the same key. Set this
	// at or above the expected concurrency per hot product; exhausting it fails
	// the request with an internal error.
	RedisMaxCASRetries int    `env:"STORAGE_REDIS_MAX_CAS_RETRIES" envDefault:"100"`
}

type MySQLConfig struct {
	DSN             string        `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/stockledger?parseTime=true"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"50"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	Migrate         bool          `env:"MYSQL_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr          string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password      string `env:"REDIS_PASSWORD"`
	DB            int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize      int    `env:"REDIS_POOL_SIZE" envDefault:"100"`
	NotifyChannel string `env:"REDIS_NOTIFY_CHANNEL" envDefault:"inventory.changed"`
}

type CatalogConfig struct {
	BaseURL      string        `env:"CATALOG_BASE_URL" envDefault:"http://localhost:8081"`
	APIKey       string        `env:"CATALOG_API_KEY"`
	Timeout      time.Duration `env:"CATALOG_TIMEOUT" envDefault:"2s"`
	MaxRetries   uint64        `env:"CATALOG_MAX_RETRIES" envDefault:"2"`
	RetryBackoff time.Duration `env:"CATALOG_RETRY_BACKOFF" envDefault:"1s"`
}

type NotifierConfig struct {
	Sink           string        `env:"NOTIFIER_SINK" envDefault:"log"`
	QueueSize      int           `env:"NOTIFIER_QUEUE_SIZE" envDefault:"10000"`
	Workers        int           `env:"NOTIFIER_WORKERS" envDefault:"4"`
	PublishTimeout time.Duration `env:"NOTIFIER_PUBLISH_TIMEOUT" envDefault:"5s"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"inventory.changed"`
}

type TracingConfig struct {
	Enabled       bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTLPEndpoint  string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	SamplingRatio float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"1.0"`
}

// Load reads an optional .env file, then the environment, then validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverMySQL:
		parsed, err := mysql.ParseDSN(c.MySQL.DSN)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("MYSQL_DSN: %w", err))
		case !parsed.ParseTime:
			// timestamp columns are scanned into time.Time
			errs = append(errs, errors.New("MYSQL_DSN must set parseTime=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be memory, mysql or redis, got %q", c.Storage.Driver))
	}

	switch c.Notifier.Sink {
	case SinkLog, SinkRedis:
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER_SINK must be log, kafka or redis, got %q", c.Notifier.Sink))
	}

	if c.Catalog.BaseURL == "" {
		errs = append(errs, errors.New("CATALOG_BASE_URL is required"))
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, errors.New("CATALOG_TIMEOUT must be positive"))
	}
	if c.Notifier.Workers <= 0 {
		errs = append(errs, errors.New("NOTIFIER_WORKERS must be positive"))
	}
	if c.Notifier.QueueSize < 0 {
		errs = append(errs, errors.New("NOTIFIER_QUEUE_SIZE must not be negative"))
	}
	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLING_RATIO must be within [0, 1]"))
	}

	return errors.Join(errs...)
}

// Fields renders the configuration for a startup log line with secrets masked.
func (c Config) Fields() []zap.Field {
	return []zap.Field{
		zap.String("env", c.Env),
		zap.String("http_addr", c.HTTPAddr),
		zap.String("grpc_addr", c.GRPCAddr),
		zap.String("storage_driver", c.Storage.Driver),
		zap.String("mysql_dsn", maskDSN(c.MySQL.DSN)),
		zap.String("redis_addr", c.Redis.Addr),
		zap.String("catalog_base_url", c.Catalog.BaseURL),
		zap.Bool("catalog_api_key_set", c.Catalog.APIKey != ""),
		zap.Duration("catalog_timeout", c.Catalog.Timeout),
		zap.Uint64("catalog_max_retries", c.Catalog.MaxRetries),
		zap.String("notifier_sink", c.Notifier.Sink),
		zap.Int("notifier_workers", c.Notifier.Workers),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
		zap.Bool("tracing_enabled", c.Tracing.Enabled),
	}
}

func maskDSN(dsn string) string {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "<invalid>"
	}
	if parsed.Passwd != "" {
		parsed.Passwd = "***"
	}
	return parsed.FormatDSN()
}
