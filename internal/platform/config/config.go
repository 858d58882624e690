package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	strutil "loankyc/pkg/platform/strings"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server        Server        `envPrefix:"SERVER_"`
	Log           Log           `envPrefix:"LOG_"`
	Database      Database      `envPrefix:"DATABASE_"`
	Redis         Redis         `envPrefix:"REDIS_"`
	Notifications Notifications `envPrefix:"NOTIFY_"`
	KYC           KYC           `envPrefix:"KYC_"`
	Application   Application   `envPrefix:"APPLICATION_"`
	Auth          Auth          `envPrefix:"AUTH_"`
	Storage       Storage       `envPrefix:"STORAGE_"`
	Tracing       Tracing       `envPrefix:"OTEL_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MetricsEnabled    bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Database is optional. With an empty URL every store runs in memory.
type Database struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
}

// Redis is optional. With an empty URL the status cache is disabled.
type Redis struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
	StatusTTL    time.Duration `env:"STATUS_TTL" envDefault:"5m"`
}

const (
	NotifyLog   = "log"
	NotifyKafka = "kafka"
	NotifyAMQP  = "amqp"
)

type Notifications struct {
	Driver           string        `env:"DRIVER" envDefault:"log"`
	KafkaBrokers     []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic       string        `env:"KAFKA_TOPIC" envDefault:"loankyc.workflow-events"`
	KafkaPartitions  int32         `env:"KAFKA_PARTITIONS" envDefault:"3"`
	KafkaReplication int16         `env:"KAFKA_REPLICATION" envDefault:"1"`
	AMQPURL          string        `env:"AMQP_URL"`
	AMQPExchange     string        `env:"AMQP_EXCHANGE" envDefault:"loankyc.events"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// KYC holds the workflow gates that are left to the deployment.
type KYC struct {
	SubmitReadiness        string `env:"SUBMIT_READINESS" envDefault:"advisory"`
	ResubmitRequiresUpload bool   `env:"RESUBMIT_REQUIRES_UPLOAD" envDefault:"false"`
}

type Application struct {
	RequiresVerifiedKyc bool `env:"REQUIRES_VERIFIED_KYC" envDefault:"true"`
}

type Auth struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY"`
	Issuer        string `env:"JWT_ISSUER" envDefault:"loankyc"`
	Audience      string `env:"JWT_AUDIENCE" envDefault:"loankyc-api"`
}

type Storage struct {
	Path         string   `env:"PATH" envDefault:"./data/documents"`
	MaxBytes     int64    `env:"MAX_BYTES" envDefault:"10485760"`
	AllowedTypes []string `env:"ALLOWED_TYPES" envSeparator:","`
}

// Tracing is opt-in: spans are exported only when an endpoint is set.
type Tracing struct {
	Endpoint    string `env:"EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"loankyc"`
}

// devSigningKey is accepted only when no key is configured outside
// production.
const devSigningKey = "dev-secret-key-change-in-production"

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Auth.JWTSigningKey == "" {
		cfg.Auth.JWTSigningKey = devSigningKey
	}
	cfg.Notifications.KafkaBrokers = strutil.DedupeAndTrim(cfg.Notifications.KafkaBrokers)
	cfg.Storage.AllowedTypes = strutil.DedupeAndTrimLower(cfg.Storage.AllowedTypes)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.KYC.SubmitReadiness) {
	case "advisory", "enforced":
	default:
		errs = append(errs, fmt.Errorf("KYC_SUBMIT_READINESS must be advisory or enforced, got %q", c.KYC.SubmitReadiness))
	}
	switch c.Notifications.Driver {
	case NotifyLog:
	case NotifyKafka:
		if len(c.Notifications.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("NOTIFY_KAFKA_BROKERS is required for the kafka driver"))
		}
	case NotifyAMQP:
		if c.Notifications.AMQPURL == "" {
			errs = append(errs, errors.New("NOTIFY_AMQP_URL is required for the amqp driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_DRIVER must be log, kafka or amqp, got %q", c.Notifications.Driver))
	}
	if c.Storage.MaxBytes <= 0 {
		errs = append(errs, errors.New("STORAGE_MAX_BYTES must be positive"))
	}
	return errors.Join(errs...)
}
