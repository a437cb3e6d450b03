package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// WhatsApp Cloud API
	WhatsAppVerifyToken  string
	WhatsAppAccessToken  string
	WhatsAppGraphBaseURL string
	// WhatsAppPharmacies maps a business phone_number_id to the pharmacy
	// tenant that owns it, e.g. "111222333=farmacia-1,444555666=farmacia-2".
	WhatsAppPharmacies map[string]string
	DefaultPharmacyID  string

	// PLEX ERP identity lookup
	PlexBaseURL string
	PlexAPIKey  string
	PlexTimeout time.Duration

	// Identification workflow tuning
	MaxIdentificationRetries int
	MaxNameMismatches        int
	NameMatchThreshold       float64
	NameNoiseWords           []string
	RegistrationTTLDays      int
	ContextTTL               time.Duration
	ExpirySweepInterval      time.Duration

	// Turn queue
	UseMemoryQueue      bool
	WorkerCount         int
	TurnQueueURL        string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WhatsAppVerifyToken:  getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAccessToken:  getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppGraphBaseURL: getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppPharmacies:   getEnvAsMap("WHATSAPP_PHARMACIES", nil),
		DefaultPharmacyID:    getEnv("DEFAULT_PHARMACY_ID", "default"),

		PlexBaseURL: getEnv("PLEX_BASE_URL", ""),
		PlexAPIKey:  getEnv("PLEX_API_KEY", ""),
		PlexTimeout: getEnvAsDuration("PLEX_TIMEOUT", 10*time.Second),

		MaxIdentificationRetries: getEnvAsInt("MAX_IDENTIFICATION_RETRIES", 3),
		MaxNameMismatches:        getEnvAsInt("MAX_NAME_MISMATCHES", 3),
		NameMatchThreshold:       getEnvAsFloat("NAME_MATCH_THRESHOLD", 0.75),
		NameNoiseWords:           getEnvAsList("NAME_NOISE_WORDS", nil),
		RegistrationTTLDays:      getEnvAsInt("REGISTRATION_TTL_DAYS", 180),
		ContextTTL:               getEnvAsDuration("CONTEXT_TTL", 72*time.Hour),
		ExpirySweepInterval:      getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", 24*time.Hour),

		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		TurnQueueURL:        getEnv("TURN_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvAsMap parses "key1=val1,key2=val2" pairs.
func getEnvAsMap(key string, defaultValue map[string]string) map[string]string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(valueStr, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
