// path: internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Executor  ExecutorConfig
	Publisher PublisherConfig
	Trigger   TriggerConfig
	Upload    UploadConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host string
	Port string
	DB   int
}

type ServerConfig struct {
	Port string
	Host string
}

type ExecutorConfig struct {
	// Concurrency bounds the number of pipeline invocations in flight.
	Concurrency     int
	PollInterval    time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	PipelineTimeout time.Duration
	StaleThreshold  time.Duration
}

type PublisherConfig struct {
	Concurrency   int
	PollInterval  time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	UploadTimeout time.Duration
	QueueSize     int
}

type TriggerConfig struct {
	EvalInterval time.Duration
}

type UploadConfig struct {
	Endpoint string
	MockMode bool
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "autopublish"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost"),
			Port: getEnv("REDIS_PORT", "6379"),
			DB:   getEnvInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Executor: ExecutorConfig{
			Concurrency:     getEnvInt("PIPELINE_CONCURRENCY", 3),
			PollInterval:    getEnvSeconds("EXECUTOR_POLL_SECONDS", 30),
			MaxRetries:      getEnvInt("MAX_RETRIES", 3),
			RetryBase:       getEnvSeconds("RETRY_BASE_SECONDS", 60),
			PipelineTimeout: getEnvMinutes("PIPELINE_TIMEOUT_MINUTES", 30),
			StaleThreshold:  getEnvMinutes("STALE_TASK_MINUTES", 60),
		},
		Publisher: PublisherConfig{
			Concurrency:   getEnvInt("UPLOAD_CONCURRENCY", 5),
			PollInterval:  getEnvSeconds("PUBLISHER_POLL_SECONDS", 30),
			MaxRetries:    getEnvInt("MAX_RETRIES", 3),
			RetryBase:     getEnvSeconds("RETRY_BASE_SECONDS", 60),
			UploadTimeout: getEnvMinutes("UPLOAD_TIMEOUT_MINUTES", 10),
			QueueSize:     getEnvInt("PUBLISHER_QUEUE_SIZE", 256),
		},
		Trigger: TriggerConfig{
			EvalInterval: getEnvSeconds("TRIGGER_INTERVAL_SECONDS", 60),
		},
		Upload: UploadConfig{
			Endpoint: getEnv("UPLOAD_ENDPOINT", "http://localhost:9000/upload"),
			MockMode: getEnvBool("UPLOAD_MOCK", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMinutes(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Minute
}
