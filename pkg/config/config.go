package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/checkout-pipeline/pkg/utils"
)

type Config struct {
	Env          string       `yaml:"env" env:"ENV" env-default:"local"`
	ServiceName  string       `yaml:"service_name" env:"SERVICE_NAME" env-default:"checkout-service"`
	Logger       Logger       `yaml:"logger"`
	Tracing      Tracing      `yaml:"tracing"`
	HTTP         HTTP         `yaml:"http"`
	GRPC         GRPC         `yaml:"grpc"`
	Postgres     PG           `yaml:"postgres"`
	Redis        Redis        `yaml:"redis"`
	Kafka        Kafka        `yaml:"kafka"`
	Limiter      Limiter      `yaml:"limiter"`
	Worker       Worker       `yaml:"worker"`
	Reconciler   Reconciler   `yaml:"reconciler"`
	Payment      Payment      `yaml:"payment"`
	SMTP         SMTP         `yaml:"smtp"`
	Notification Notification `yaml:"notification"`
}

type Logger struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Tracing struct {
	Endpoint string `yaml:"endpoint" env:"JAEGER_ENDPOINT" env-default:"localhost:4318"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type GRPC struct {
	Port string `yaml:"port" env:"GRPC_PORT" env-default:":50051"`
}

// PG.Migrations, when set, is a directory of migrations applied on startup.
type PG struct {
	URL        string `yaml:"url" env:"DB_URL"`
	MaxConns   int32  `yaml:"max_conns" env-default:"10"`
	MinConns   int32  `yaml:"min_conns" env-default:"2"`
	Migrations string `yaml:"migrations" env:"MIGRATIONS_PATH"`
}

type Redis struct {
	Addr      string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	StatusTTL time.Duration `yaml:"status_ttl" env-default:"24h"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID     string   `yaml:"group_id" env-default:"checkout-worker-group"`
	JobsTopic   string   `yaml:"jobs_topic" env-default:"checkout_jobs"`
	DLQTopic    string   `yaml:"dlq_topic" env-default:"checkout_jobs_dlq"`
	PushTopic   string   `yaml:"push_topic" env-default:"push_notifications"`
	OutboxBatch int      `yaml:"outbox_batch" env-default:"50"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Worker struct {
	MaxAttempts  int           `yaml:"max_attempts" env-default:"3"`
	RetryBackoff time.Duration `yaml:"retry_backoff" env-default:"500ms"`
}

type Reconciler struct {
	LookupAttempts int           `yaml:"lookup_attempts" env-default:"3"`
	LookupBackoff  time.Duration `yaml:"lookup_backoff" env-default:"1s"`
}

type Payment struct {
	StripeSecretKey     string        `yaml:"stripe_secret_key" env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `yaml:"stripe_webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	Currency            string        `yaml:"currency" env-default:"usd"`
	SuccessURL          string        `yaml:"success_url" env:"PAYMENT_SUCCESS_URL"`
	CancelURL           string        `yaml:"cancel_url" env:"PAYMENT_CANCEL_URL"`
	Timeout             time.Duration `yaml:"timeout" env-default:"10s"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
}

type Notification struct {
	ObserverTimeout time.Duration `yaml:"observer_timeout" env-default:"5s"`
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
