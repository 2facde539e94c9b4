package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string
	WriteTimeout  time.Duration

	// Storage
	StorageBackend string // memory | dynamodb
	AWSRegion      string
	DynamoDBTable  string
	IndexName      string // GSI1 - title, idea and reference lookups
	EventBusName   string
	EnableEvents   bool

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// HTTP surface
	EnableCORS         bool
	CORSAllowedOrigins []string

	// Observability
	EnableMetrics bool
	EnableTracing bool
	OTLPEndpoint  string

	// Image pipeline
	ImageConcurrency     int
	ImageQueueSize       int
	MaxBatchQuantity     int
	DefaultBatchQuantity int

	// Upstream generators
	Generator         string // openai | mock
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	IdeaModel         string
	OpenAIAPIKey      string
	ImageModel        string
	UpstreamRPS       float64
	IdeaTimeout       time.Duration // per upstream call
	ImageTimeout      time.Duration

	// Generated images
	UploadDir      string
	PublicBasePath string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		WriteTimeout:  getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		AWSRegion:      getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:  getEnv("TABLE_NAME", "atelier"),
		IndexName:      getEnv("GSI1_INDEX_NAME", "GSI1"),
		EventBusName:   getEnv("EVENT_BUS_NAME", "atelier-events"),
		EnableEvents:   getEnvBool("ENABLE_EVENTS", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "atelier"),

		EnableCORS:         getEnvBool("ENABLE_CORS", true),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		OTLPEndpoint:  getEnv("OTLP_ENDPOINT", "localhost:4317"),

		ImageConcurrency:     getEnvInt("IMAGE_CONCURRENCY", 5),
		ImageQueueSize:       getEnvInt("IMAGE_QUEUE_SIZE", 256),
		MaxBatchQuantity:     getEnvInt("MAX_BATCH_QUANTITY", 20),
		DefaultBatchQuantity: getEnvInt("DEFAULT_BATCH_QUANTITY", 5),

		Generator:         getEnv("GENERATOR", "openai"),
		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		IdeaModel:         getEnv("IDEA_MODEL", "google/gemini-2.5-pro"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		ImageModel:        getEnv("IMAGE_MODEL", "gpt-image-1"),
		UpstreamRPS:       getEnvFloat("UPSTREAM_RPS", 2),
		IdeaTimeout:       getEnvDuration("IDEA_TIMEOUT", 45*time.Second),
		ImageTimeout:      getEnvDuration("IMAGE_TIMEOUT", 3*time.Minute),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		PublicBasePath: getEnv("PUBLIC_BASE_PATH", "/uploads"),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be memory or dynamodb, got %q", c.StorageBackend)
	}
	switch c.Generator {
	case "openai", "mock":
	default:
		return fmt.Errorf("GENERATOR must be openai or mock, got %q", c.Generator)
	}

	if c.ImageConcurrency < 1 {
		return fmt.Errorf("IMAGE_CONCURRENCY must be at least 1")
	}
	if c.ImageQueueSize < 1 {
		return fmt.Errorf("IMAGE_QUEUE_SIZE must be at least 1")
	}
	if c.MaxBatchQuantity < 1 {
		return fmt.Errorf("MAX_BATCH_QUANTITY must be at least 1")
	}
	if c.DefaultBatchQuantity < 1 || c.DefaultBatchQuantity > c.MaxBatchQuantity {
		return fmt.Errorf("DEFAULT_BATCH_QUANTITY must be between 1 and %d", c.MaxBatchQuantity)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("SERVER_WRITE_TIMEOUT must be positive")
	}
	if c.IdeaTimeout <= 0 || c.ImageTimeout <= 0 {
		return fmt.Errorf("IDEA_TIMEOUT and IMAGE_TIMEOUT must be positive")
	}

	if c.StorageBackend == "dynamodb" && c.DynamoDBTable == "" {
		return fmt.Errorf("TABLE_NAME is required for the dynamodb backend")
	}
	if c.Generator == "openai" && !c.IsDevelopment() {
		if c.OpenRouterAPIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required")
		}
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.EnableEvents && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// BatchWriteTimeout is the response deadline for a batch request, which makes
// up to MaxBatchQuantity idea calls before it replies.
func (c *Config) BatchWriteTimeout() time.Duration {
	return c.WriteTimeout + time.Duration(c.MaxBatchQuantity)*c.IdeaTimeout
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
