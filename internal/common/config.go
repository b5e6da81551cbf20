package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerline/docpipe/constants"
)

// Config holds all application configuration
type Config struct {
	Database     DatabaseConfig
	Redis        RedisConfig
	Vector       VectorConfig
	Pipeline     PipelineConfig
	Collaborator CollaboratorConfig
	Worker       WorkerConfig
}

// DatabaseConfig holds OLTP database configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds the connection used for stage locks, the task queue
// and the feature-store sink.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// VectorConfig holds the weaviate connection for the vector-store sink.
type VectorConfig struct {
	Host   string
	Scheme string
	Class  string
}

// PipelineConfig gates the optional ETL steps and names the load targets.
type PipelineConfig struct {
	EnableClassification bool
	EnableValidation     bool
	EnableLoading        bool
	LoadTargets          []constants.LoadTarget
	StagingRoot          string
	Tolerance            float64
}

// CollaboratorConfig selects and configures the OCR/VLM collaborators.
type CollaboratorConfig struct {
	UseMock bool
	OCRURL  string
	VLMURL  string
	APIKey  string
	Timeout time.Duration
	LockTTL time.Duration
}

// WorkerConfig sizes the task runner pool.
type WorkerConfig struct {
	Workers   int
	QueueSize int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Vector: VectorConfig{
			Host:   getEnv("WEAVIATE_HOST", "localhost:8080"),
			Scheme: getEnv("WEAVIATE_SCHEME", "http"),
			Class:  getEnv("WEAVIATE_CLASS", "FinancialDocument"),
		},
		Pipeline: PipelineConfig{
			EnableClassification: getEnvAsBool("PIPELINE_CLASSIFY", true),
			EnableValidation:     getEnvAsBool("PIPELINE_VALIDATE", true),
			EnableLoading:        getEnvAsBool("PIPELINE_LOAD", true),
			LoadTargets:          getEnvAsTargets("PIPELINE_TARGETS", constants.AllTargets()),
			StagingRoot:          getEnv("STAGING_ROOT", "./staging"),
			Tolerance:            getEnvAsFloat64("VALIDATION_TOLERANCE", 0.01),
		},
		Collaborator: CollaboratorConfig{
			UseMock: getEnvAsBool("COLLABORATOR_MOCK", false),
			OCRURL:  getEnv("OCR_URL", ""),
			VLMURL:  getEnv("VLM_URL", ""),
			APIKey:  getEnv("COLLABORATOR_API_KEY", ""),
			Timeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", 45*time.Second),
			LockTTL: getEnvAsDuration("STAGE_LOCK_TTL", 5*time.Minute),
		},
		Worker: WorkerConfig{
			Workers:   getEnvAsInt("WORKER_COUNT", 4),
			QueueSize: getEnvAsInt("WORKER_QUEUE_SIZE", 256),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsTargets(key string, defaultValue []constants.LoadTarget) []constants.LoadTarget {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var targets []constants.LoadTarget
	for _, part := range strings.Split(value, ",") {
		if t, ok := constants.ParseTarget(strings.TrimSpace(part)); ok {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return defaultValue
	}
	return targets
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if !c.Collaborator.UseMock && c.Collaborator.OCRURL == "" {
		return NewAppError(CodeConfigError, "OCR_URL is required unless COLLABORATOR_MOCK is set", ErrInvalidInput)
	}
	if c.Pipeline.StagingRoot == "" {
		return NewAppError(CodeConfigError, "STAGING_ROOT is required", ErrInvalidInput)
	}
	if c.Worker.Workers <= 0 {
		return NewAppError(CodeConfigError, "WORKER_COUNT must be positive", ErrInvalidInput)
	}
	return nil
}
