package services

import (
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	config := LoadConfig()

	if config.Server.Port != "5000" {
		t.Errorf("Port = %q, want 5000", config.Server.Port)
	}
	if config.Server.Environment != "development" {
		t.Errorf("Environment = %q, want development", config.Server.Environment)
	}
	if config.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want localhost:6379", config.Redis.Addr)
	}
	if config.Redis.Workers != 2 {
		t.Errorf("Redis.Workers = %d, want 2", config.Redis.Workers)
	}
	if config.Audio.Dir != "./audio" {
		t.Errorf("Audio.Dir = %q, want ./audio", config.Audio.Dir)
	}
	if config.Server.UploadDir != "./uploads" {
		t.Errorf("UploadDir = %q, want ./uploads", config.Server.UploadDir)
	}
	if config.Database.MaxIdleConns != 10 || config.Database.MaxOpenConns != 100 {
		t.Errorf("pool defaults = %d/%d, want 10/100", config.Database.MaxIdleConns, config.Database.MaxOpenConns)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("PORT", "8123")
	t.Setenv("DATABASE_URL", "postgres://localhost/askmira_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_URL", "redis-host:6380")
	t.Setenv("REDIS_WORKERS", "4")
	t.Setenv("PLACEHOLDER_AUDIO_URL", "https://example.com/fallback.mp3")
	t.Setenv("ENVIRONMENT", "production")

	config := LoadConfig()

	if config.Server.Port != "8123" {
		t.Errorf("Port = %q, want 8123", config.Server.Port)
	}
	if config.Database.URL != "postgres://localhost/askmira_test" {
		t.Errorf("Database.URL = %q", config.Database.URL)
	}
	if config.AI.OpenAIAPIKey != "sk-test" {
		t.Errorf("OpenAIAPIKey = %q", config.AI.OpenAIAPIKey)
	}
	if config.Redis.Addr != "redis-host:6380" {
		t.Errorf("Redis.Addr = %q", config.Redis.Addr)
	}
	if config.Redis.Workers != 4 {
		t.Errorf("Redis.Workers = %d, want 4", config.Redis.Workers)
	}
	if config.Audio.PlaceholderURL != "https://example.com/fallback.mp3" {
		t.Errorf("PlaceholderURL = %q", config.Audio.PlaceholderURL)
	}
	if config.Server.Environment != "production" {
		t.Errorf("Environment = %q, want production", config.Server.Environment)
	}
}
