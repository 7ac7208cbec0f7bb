package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends for user preferences. Memory is local to one process and
// only suits tests; the api and engine services refuse it.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
	StoreBackendMemory   = "memory"
)

type Config struct {
	Database DatabaseConfig
	Archive  ArchiveConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Engine   EngineConfig
	Scoring  ScoringConfig
	API      APIConfig
	Notifier NotifierConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// URL returns the same database as a postgres:// URL for pgx
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type ArchiveConfig struct {
	DSN           string
	BatchSize     int
	FlushInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicPayloads string
	TopicAlerts   string
	TopicAccuracy string
	NumPartitions int
	EngineGroup   string
	ArchiverGroup string
}

type EngineConfig struct {
	Cooldown            time.Duration
	StoreBackend        string
	BreakerTimeout      time.Duration
	BreakerFailures     int
	BreakerHalfOpenReqs int
}

type ScoringConfig struct {
	Interval  time.Duration
	Lookback  time.Duration
	Tolerance time.Duration
}

type APIConfig struct {
	Port int
}

// NotifierConfig controls delivery of alert emails
type NotifierConfig struct {
	Group        string
	MaxAttempts  int
	RetryBackoff time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	database := DatabaseConfig{
		Host:          getEnv("DB_HOST", "localhost"),
		Port:          getEnvAsInt("DB_PORT", 5432),
		User:          getEnv("DB_USER", "airpulse"),
		Password:      getEnv("DB_PASSWORD", "airpulse"),
		DBName:        getEnv("DB_NAME", "airpulse"),
		SSLMode:       getEnv("DB_SSLMODE", "disable"),
		MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
	}

	config := &Config{
		Database: database,
		Archive: ArchiveConfig{
			DSN:           getEnv("ARCHIVE_DSN", database.URL()),
			BatchSize:     getEnvAsInt("ARCHIVE_BATCH_SIZE", 100),
			FlushInterval: getEnvAsDuration("ARCHIVE_FLUSH_INTERVAL", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicPayloads: getEnv("KAFKA_TOPIC_PAYLOADS", "airquality.payloads.raw"),
			TopicAlerts:   getEnv("KAFKA_TOPIC_ALERTS", "airquality.alerts"),
			TopicAccuracy: getEnv("KAFKA_TOPIC_ACCURACY", "airquality.accuracy"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
			EngineGroup:   getEnv("KAFKA_ENGINE_GROUP", "engine-group"),
			ArchiverGroup: getEnv("KAFKA_ARCHIVER_GROUP", "archiver-group"),
		},
		Engine: EngineConfig{
			Cooldown:            getEnvAsDuration("ALERT_COOLDOWN", time.Hour),
			StoreBackend:        getEnv("PREFERENCE_STORE", StoreBackendPostgres),
			BreakerTimeout:      getEnvAsDuration("STORE_BREAKER_TIMEOUT", 30*time.Second),
			BreakerFailures:     getEnvAsInt("STORE_BREAKER_FAILURES", 5),
			BreakerHalfOpenReqs: getEnvAsInt("STORE_BREAKER_HALF_OPEN_REQUESTS", 1),
		},
		Scoring: ScoringConfig{
			Interval:  getEnvAsDuration("SCORING_INTERVAL", time.Hour),
			Lookback:  getEnvAsDuration("SCORING_LOOKBACK", 24*time.Hour),
			Tolerance: getEnvAsDuration("SCORING_MATCH_TOLERANCE", 30*time.Minute),
		},
		API: APIConfig{
			Port: getEnvAsInt("API_PORT", 8080),
		},
		Notifier: NotifierConfig{
			Group:        getEnv("KAFKA_NOTIFIER_GROUP", "notification-group"),
			MaxAttempts:  getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
			RetryBackoff: getEnvAsDuration("NOTIFY_RETRY_BACKOFF", 2*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "air-pulse@example.com"),
			To:       getEnv("SMTP_TO", "alerts@example.com"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Engine.StoreBackend {
	case StoreBackendPostgres, StoreBackendRedis, StoreBackendMemory:
	default:
		return fmt.Errorf("invalid PREFERENCE_STORE %q (want postgres, redis or memory)", c.Engine.StoreBackend)
	}
	if c.Engine.Cooldown < 0 {
		return fmt.Errorf("ALERT_COOLDOWN must not be negative, got %s", c.Engine.Cooldown)
	}
	if c.Scoring.Interval <= 0 {
		return fmt.Errorf("SCORING_INTERVAL must be positive, got %s", c.Scoring.Interval)
	}
	if c.Engine.BreakerFailures < 0 {
		return fmt.Errorf("STORE_BREAKER_FAILURES must not be negative, got %d", c.Engine.BreakerFailures)
	}
	if c.Engine.BreakerHalfOpenReqs < 0 {
		return fmt.Errorf("STORE_BREAKER_HALF_OPEN_REQUESTS must not be negative, got %d", c.Engine.BreakerHalfOpenReqs)
	}
	if c.Notifier.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1, got %d", c.Notifier.MaxAttempts)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
