// Package config reads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// PromotionVisibility values for how a run observes its own alias promotions.
const (
	PromotionVisibilitySnapshot = "snapshot" // buffered, flushed when the run closes
	PromotionVisibilityLive     = "live"     // inserted immediately
)

type Config struct {
	AppName                       string
	Port                          int
	LogLevel                      string
	HTTPServerWriteTimeoutSeconds int
	HTTPServerReadTimeoutSeconds  int
	HTTPServerIdleTimeoutSeconds  int

	// PostgreSQL (reference + decision store)
	DatabaseHost            string
	DatabasePort            string
	DatabaseUserName        string
	DatabasePassword        string
	DatabaseName            string
	DatabaseSSLMode         string
	DatabaseMaxOpenConns    int
	DatabaseMaxIdleConns    int
	DatabaseConnMaxLifetime time.Duration
	MigrationFolderPath     string
	MigrationVersion        int
	MigrationForce          int

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string
	TracingInsecure bool

	// Kafka
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaRequestTopic   string
	KafkaConsumerGroup  string
	KafkaDecisionTopic  string
	KafkaBatchSize      int
	KafkaBatchTimeoutMs int
	KafkaRequiredAcks   int
	KafkaCompression    string

	// Resolution
	CalibrationArtifactPath string
	ExactAliasTypes         []string
	CandidateK              int
	CandidateMinSimilarity  float64
	BatchWorkerCount        int
	RecordTimeout           time.Duration
	PromotionVisibility     string
	ProbabilisticEnabled    bool
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AppName:                       getEnvOrDefault("APP_NAME", "aster-api"),
		Port:                          getEnvAsIntOrDefault("PORT", 3004),
		LogLevel:                      getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPServerWriteTimeoutSeconds: getEnvAsIntOrDefault("HTTP_SERVER_WRITE_TIMEOUT_SECONDS", 30),
		HTTPServerReadTimeoutSeconds:  getEnvAsIntOrDefault("HTTP_SERVER_READ_TIMEOUT_SECONDS", 10),
		HTTPServerIdleTimeoutSeconds:  getEnvAsIntOrDefault("HTTP_SERVER_IDLE_TIMEOUT_SECONDS", 10),

		DatabaseHost:            getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:            getEnvOrDefault("DB_PORT", "5432"),
		DatabaseUserName:        getEnvOrDefault("DB_USER_NAME", "aster"),
		DatabasePassword:        os.Getenv("DB_PASSWORD"),
		DatabaseName:            getEnvOrDefault("DB_NAME", "aster"),
		DatabaseSSLMode:         getEnvOrDefault("DB_SSL_MODE", "disable"),
		DatabaseMaxOpenConns:    getEnvAsIntOrDefault("DB_MAX_OPEN_CONNS", 25),
		DatabaseMaxIdleConns:    getEnvAsIntOrDefault("DB_MAX_IDLE_CONNS", 10),
		DatabaseConnMaxLifetime: getEnvAsDurationOrDefault("DB_CONN_MAX_LIFETIME", 10*time.Second),
		MigrationFolderPath:     getEnvOrDefault("DB_MIGRATION_FOLDER_PATH", "db/pg"),
		MigrationVersion:        getEnvAsIntOrDefault("DB_MIGRATION_VERSION", 0),
		MigrationForce:          getEnvAsIntOrDefault("DB_MIGRATION_FORCE", 0),

		TracingEnabled:  getEnvAsBoolOrDefault("TRACING_ENABLED", false),
		TracingEndpoint: getEnvOrDefault("TRACING_ENDPOINT", "localhost:4318"),
		TracingInsecure: getEnvAsBoolOrDefault("TRACING_INSECURE", true),

		KafkaEnabled:        getEnvAsBoolOrDefault("KAFKA_ENABLED", false),
		KafkaBrokers:        getEnvAsSliceOrDefault("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaRequestTopic:   getEnvOrDefault("KAFKA_REQUEST_TOPIC", "resolution-requests"),
		KafkaConsumerGroup:  getEnvOrDefault("KAFKA_CONSUMER_GROUP", "aster-consumer"),
		KafkaDecisionTopic:  getEnvOrDefault("KAFKA_DECISION_TOPIC", "sponsor-decisions"),
		KafkaBatchSize:      getEnvAsIntOrDefault("KAFKA_BATCH_SIZE", 100),
		KafkaBatchTimeoutMs: getEnvAsIntOrDefault("KAFKA_BATCH_TIMEOUT_MS", 100),
		KafkaRequiredAcks:   getEnvAsIntOrDefault("KAFKA_REQUIRED_ACKS", 1),
		KafkaCompression:    getEnvOrDefault("KAFKA_COMPRESSION", "snappy"),

		CalibrationArtifactPath: getEnvOrDefault("CALIBRATION_ARTIFACT_PATH", "calibration.json"),
		ExactAliasTypes:         getEnvAsSliceOrDefault("EXACT_ALIAS_TYPES", nil),
		CandidateK:              getEnvAsIntOrDefault("CANDIDATE_K", 25),
		CandidateMinSimilarity:  getEnvAsFloatOrDefault("CANDIDATE_MIN_SIMILARITY", 0.3),
		BatchWorkerCount:        getEnvAsIntOrDefault("BATCH_WORKER_COUNT", 4),
		RecordTimeout:           getEnvAsDurationOrDefault("RECORD_TIMEOUT", 10*time.Second),
		PromotionVisibility:     getEnvOrDefault("PROMOTION_VISIBILITY", PromotionVisibilitySnapshot),
		ProbabilisticEnabled:    getEnvAsBoolOrDefault("PROBABILISTIC_ENABLED", true),
	}

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsIntOrDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloatOrDefault(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBoolOrDefault(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDurationOrDefault(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsSliceOrDefault(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
