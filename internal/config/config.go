package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the HTTP service settings
type AppConfig struct {
	Port        string
	ServiceName string
}

// DBConfig holds the database connection settings
type DBConfig struct {
	Driver      string
	URL         string
	MaxOpenConn int
	ConnMaxIdle time.Duration
}

// WorkerConfig drives the delivery worker and the reaper
type WorkerConfig struct {
	Interval       time.Duration
	BatchSize      int
	Limit          int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ClaimTimeout   time.Duration
}

// ScannerConfig drives the reminder scanners and retention jobs
type ScannerConfig struct {
	OverdueInterval       time.Duration
	RecurringInterval     time.Duration
	RecurringWindowDays   int
	PruneInterval         time.Duration
	ReminderRetention     time.Duration
	SubscriptionRetention time.Duration
}

// PushConfig holds the Web Push (VAPID) settings
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	TTL             time.Duration
	RatePerSecond   float64
	Timeout         time.Duration
}

// KafkaConfig is optional; an empty broker list disables Kafka
type KafkaConfig struct {
	Brokers       []string
	PublishTopic  string
	DeliveryTopic string
	ConsumerGroup string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AuthConfig struct {
	JWTSecret string
}

// CollaboratorConfig points at the identity, task and finance modules
type CollaboratorConfig struct {
	DirectoryURL  string
	DirectoryFile string
	TasksURL      string
	FinanceURL    string
}

type TracingConfig struct {
	Endpoint string
	Enabled  bool
}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Worker        WorkerConfig
	Scanner       ScannerConfig
	Push          PushConfig
	Kafka         KafkaConfig
	Auth          AuthConfig
	Collaborators CollaboratorConfig
	Tracing       TracingConfig
}

// LoadConfig reads the configuration from the environment, seeded by an
// optional .env file.
func LoadConfig() (*Config, error) {
	// a missing .env file is fine; real deployments use the environment
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Port:        getEnv("PORT", "8080"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "notifier"),
		},
		DB: DBConfig{
			Driver:      getEnv("DB_DRIVER", "pgx"),
			URL:         os.Getenv("DB_URL"),
			MaxOpenConn: getEnvInt("DB_MAX_OPEN", 10),
			ConnMaxIdle: getEnvDuration("DB_CONN_IDLE", 5*time.Minute),
		},
		Worker: WorkerConfig{
			Interval:       getEnvDuration("WORKER_INTERVAL", time.Minute),
			BatchSize:      getEnvInt("WORKER_BATCH_SIZE", 50),
			Limit:          getEnvInt("WORKER_LIMIT", 10),
			MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", time.Minute),
			RetryMaxDelay:  getEnvDuration("RETRY_MAX_DELAY", time.Hour),
			ClaimTimeout:   getEnvDuration("CLAIM_TIMEOUT", 5*time.Minute),
		},
		Scanner: ScannerConfig{
			OverdueInterval:       getEnvDuration("OVERDUE_SCAN_INTERVAL", time.Minute),
			RecurringInterval:     getEnvDuration("RECURRING_SCAN_INTERVAL", 24*time.Hour),
			RecurringWindowDays:   getEnvInt("RECURRING_WINDOW_DAYS", 2),
			PruneInterval:         getEnvDuration("PRUNE_INTERVAL", 24*time.Hour),
			ReminderRetention:     getEnvDuration("REMINDER_RETENTION", 90*24*time.Hour),
			SubscriptionRetention: getEnvDuration("SUBSCRIPTION_RETENTION", 30*24*time.Hour),
		},
		Push: PushConfig{
			VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
			Subject:         getEnv("VAPID_SUBJECT", "mailto:support@example.com"),
			TTL:             getEnvDuration("PUSH_TTL", 24*time.Hour),
			RatePerSecond:   getEnvFloat("PUSH_RATE", 50),
			Timeout:         getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(os.Getenv("KAFKA_BROKERS")),
			PublishTopic:  getEnv("KAFKA_PUBLISH_TOPIC", "notifications.publish"),
			DeliveryTopic: getEnv("KAFKA_DELIVERY_TOPIC", "notifications.delivery"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "notifier"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Collaborators: CollaboratorConfig{
			DirectoryURL:  os.Getenv("DIRECTORY_URL"),
			DirectoryFile: os.Getenv("DIRECTORY_FILE"),
			TasksURL:      os.Getenv("TASKS_URL"),
			FinanceURL:    os.Getenv("FINANCE_URL"),
		},
		Tracing: TracingConfig{
			Endpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Enabled:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.DB.URL == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if c.DB.Driver != "pgx" && c.DB.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be pgx or sqlite, got %q", c.DB.Driver))
	}
	if c.Worker.BatchSize <= 0 || c.Worker.Limit <= 0 {
		errs = append(errs, errors.New("WORKER_BATCH_SIZE and WORKER_LIMIT must be positive"))
	}
	if c.Worker.MaxAttempts <= 0 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be positive"))
	}
	if c.Worker.RetryBaseDelay <= 0 || c.Worker.RetryMaxDelay < c.Worker.RetryBaseDelay {
		errs = append(errs, errors.New("RETRY_MAX_DELAY must be >= RETRY_BASE_DELAY > 0"))
	}
	if c.Scanner.RecurringWindowDays < 0 {
		errs = append(errs, errors.New("RECURRING_WINDOW_DAYS must not be negative"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
