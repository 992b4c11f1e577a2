package services

import (
	"log/slog"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Audio     AudioConfig
	JWT       JWTConfig
	WebSocket WebSocketConfig
}

type ServerConfig struct {
	Port        string
	Environment string
	UploadDir   string
}

type DatabaseConfig struct {
	URL          string
	LogLevel     string
	MaxIdleConns int
	MaxOpenConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	Workers  int
}

type AIConfig struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	ChatModel       string
	TranscribeModel string
	GeminiAPIKey    string
	ElevenLabsKey   string
}

type AudioConfig struct {
	Dir            string
	VoiceID        string
	PlaceholderURL string
}

type JWTConfig struct {
	Secret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.upload_dir", "./uploads")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.workers", "2")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("openai.chat_model", "")
	viper.SetDefault("openai.transcribe_model", "")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("elevenlabs.api_key", "")
	viper.SetDefault("audio.dir", "./audio")
	viper.SetDefault("audio.voice_id", "")
	viper.SetDefault("audio.placeholder_url", "")
	viper.SetDefault("jwt.secret", "")
	viper.SetDefault("websocket.allowed_origins", "")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.environment", "ENVIRONMENT")
	viper.BindEnv("server.upload_dir", "UPLOAD_DIR")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("redis.addr", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.workers", "REDIS_WORKERS")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	viper.BindEnv("openai.chat_model", "CHAT_MODEL")
	viper.BindEnv("openai.transcribe_model", "TRANSCRIBE_MODEL")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	viper.BindEnv("audio.dir", "AUDIO_DIR")
	viper.BindEnv("audio.voice_id", "AUDIO_VOICE_ID")
	viper.BindEnv("audio.placeholder_url", "PLACEHOLDER_AUDIO_URL")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Environment: viper.GetString("server.environment"),
			UploadDir:   viper.GetString("server.upload_dir"),
		},
		Database: DatabaseConfig{
			URL:          viper.GetString("database.url"),
			LogLevel:     viper.GetString("database.log_level"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			Workers:  viper.GetInt("redis.workers"),
		},
		AI: AIConfig{
			OpenAIAPIKey:    viper.GetString("openai.api_key"),
			OpenAIBaseURL:   viper.GetString("openai.base_url"),
			ChatModel:       viper.GetString("openai.chat_model"),
			TranscribeModel: viper.GetString("openai.transcribe_model"),
			GeminiAPIKey:    viper.GetString("gemini.api_key"),
			ElevenLabsKey:   viper.GetString("elevenlabs.api_key"),
		},
		Audio: AudioConfig{
			Dir:            viper.GetString("audio.dir"),
			VoiceID:        viper.GetString("audio.voice_id"),
			PlaceholderURL: viper.GetString("audio.placeholder_url"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
	}
}
