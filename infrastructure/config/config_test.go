package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("GENERATOR", "")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, 5, cfg.ImageConcurrency)
	assert.Equal(t, 256, cfg.ImageQueueSize)
	assert.Equal(t, 20, cfg.MaxBatchQuantity)
	assert.Equal(t, 5, cfg.DefaultBatchQuantity)
	assert.Equal(t, "GSI1", cfg.IndexName)
	assert.Equal(t, "/uploads", cfg.PublicBasePath)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 45*time.Second, cfg.IdeaTimeout)
	assert.Equal(t, 3*time.Minute, cfg.ImageTimeout)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORAGE_BACKEND", "dynamodb")
	t.Setenv("GENERATOR", "mock")
	t.Setenv("IMAGE_CONCURRENCY", "3")
	t.Setenv("UPSTREAM_RPS", "0.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SERVER_WRITE_TIMEOUT", "10s")
	t.Setenv("IDEA_TIMEOUT", "5s")
	t.Setenv("MAX_BATCH_QUANTITY", "4")
	t.Setenv("DEFAULT_BATCH_QUANTITY", "2")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "dynamodb", cfg.StorageBackend)
	assert.Equal(t, 3, cfg.ImageConcurrency)
	assert.Equal(t, 0.5, cfg.UpstreamRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 10*time.Second+4*5*time.Second, cfg.BatchWriteTimeout())
}

func TestConfig_BatchWriteTimeoutCoversLargestBatch(t *testing.T) {
	cfg := &Config{WriteTimeout: 30 * time.Second, IdeaTimeout: 45 * time.Second, MaxBatchQuantity: 20}

	got := cfg.BatchWriteTimeout()

	assert.Greater(t, got, time.Duration(cfg.MaxBatchQuantity)*cfg.IdeaTimeout)
	assert.Equal(t, 930*time.Second, got)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment:          "development",
			StorageBackend:       "memory",
			Generator:            "mock",
			DynamoDBTable:        "atelier",
			ImageConcurrency:     5,
			ImageQueueSize:       256,
			MaxBatchQuantity:     20,
			DefaultBatchQuantity: 5,
			WriteTimeout:         30 * time.Second,
			IdeaTimeout:          45 * time.Second,
			ImageTimeout:         time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "redis" }, wantErr: "STORAGE_BACKEND"},
		{name: "unknown generator", mutate: func(c *Config) { c.Generator = "local" }, wantErr: "GENERATOR"},
		{name: "zero workers", mutate: func(c *Config) { c.ImageConcurrency = 0 }, wantErr: "IMAGE_CONCURRENCY"},
		{name: "zero write timeout", mutate: func(c *Config) { c.WriteTimeout = 0 }, wantErr: "SERVER_WRITE_TIMEOUT"},
		{name: "zero idea timeout", mutate: func(c *Config) { c.IdeaTimeout = 0 }, wantErr: "IDEA_TIMEOUT"},
		{name: "default above max", mutate: func(c *Config) { c.DefaultBatchQuantity = 21 }, wantErr: "DEFAULT_BATCH_QUANTITY"},
		{
			name: "production without secret",
			mutate: func(c *Config) {
				c.Environment = "production"
			},
			wantErr: "JWT_SECRET",
		},
		{
			name: "openai outside development needs keys",
			mutate: func(c *Config) {
				c.Environment = "staging"
				c.Generator = "openai"
			},
			wantErr: "OPENROUTER_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
