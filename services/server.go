package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/askmira/backend/queue"
	"github.com/askmira/backend/repository"
	ws "github.com/askmira/backend/websocket"
)

const cvJobStream = "askmira:cv:jobs"

// Server holds all server dependencies
type Server struct {
	config *Config
	repo   *repository.GORMRepository
	db     *gorm.DB

	transcriber       Transcriber
	completer         ChatCompleter
	elevenLabsService *ElevenLabsService
	speechService     *SpeechService
	jobQueue          *queue.RedisJobQueue
	cvPipeline        *CVPipeline

	authService      *AuthService
	authEndpoints    *AuthEndpoints
	cvEndpoints      *CVEndpoints
	chatEndpoints    *ChatEndpoints
	sessionEndpoints *SessionEndpoints
	detectEndpoints  *DetectEndpoints
	voiceHandler     *VoiceHandler
	sweeper          *VoiceSessionSweeper

	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabase sets the database connection
func (s *Server) SetDatabase(repo *repository.GORMRepository, db *gorm.DB) {
	s.repo = repo
	s.db = db
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	// Chat/transcription provider: OpenAI when its key is present, Gemini
	// as the alternate.
	if s.config.AI.OpenAIAPIKey != "" {
		openaiService := NewOpenAIService(
			s.config.AI.OpenAIAPIKey,
			s.config.AI.OpenAIBaseURL,
			s.config.AI.ChatModel,
			s.config.AI.TranscribeModel,
		)
		s.transcriber = openaiService
		s.completer = openaiService
		slog.Info("OpenAI service initialized", "chat_model", openaiService.chatModel)
	} else if s.config.AI.GeminiAPIKey != "" {
		if geminiService := NewGeminiService(s.config.AI.GeminiAPIKey); geminiService != nil {
			s.transcriber = geminiService
			s.completer = geminiService
			slog.Info("Gemini service initialized")
		}
	} else {
		slog.Warn("No AI provider configured, chat and voice endpoints disabled")
	}

	if s.config.AI.ElevenLabsKey != "" {
		s.elevenLabsService = NewElevenLabsService(s.config.AI.ElevenLabsKey)
		slog.Info("ElevenLabs service initialized")
	} else {
		slog.Warn("ElevenLabs key not configured, speech synthesis falls back to placeholder audio")
	}

	voiceID := s.config.Audio.VoiceID
	if voiceID == "" {
		voiceID = PickDeterministicVoice("mira", "female")
	}
	s.speechService = NewSpeechService(
		s.elevenLabsService,
		s.config.Audio.Dir,
		voiceID,
		s.config.Audio.PlaceholderURL,
	)

	// CV analysis queue and worker
	if s.repo != nil && s.completer != nil {
		jobQueue, err := queue.NewRedisJobQueue(queue.Config{
			Addr:     s.config.Redis.Addr,
			Password: s.config.Redis.Password,
			Stream:   cvJobStream,
			Group:    "cv-workers",
		})
		if err != nil {
			slog.Error("Failed to initialize job queue", "error", err)
		} else {
			s.jobQueue = jobQueue
			s.cvPipeline = NewCVPipeline(s.repo, s.completer, s.speechService, 3)
			s.cvEndpoints = NewCVEndpoints(s.repo, s.jobQueue, s.config.Server.UploadDir)
			slog.Info("CV analysis pipeline initialized", "stream", cvJobStream)
		}
	}

	if s.repo != nil && s.completer != nil && s.transcriber != nil {
		s.chatEndpoints = NewChatEndpoints(s.repo, s.completer, s.transcriber, s.speechService)
		slog.Info("Chat endpoints initialized")
	}

	if s.repo != nil {
		s.sessionEndpoints = NewSessionEndpoints(s.repo)
		s.sweeper = NewVoiceSessionSweeper(s.repo)
		slog.Info("Session endpoints initialized")
	}

	s.detectEndpoints = NewDetectEndpoints()

	// Authentication
	if s.config.JWT.Secret != "" && s.repo != nil {
		s.authService = NewAuthService(s.repo, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		slog.Info("Authentication service initialized")
	}

	// Voice session protocol over the hub
	if s.completer != nil && s.transcriber != nil {
		s.voiceHandler = NewVoiceHandler(s.repo, s.transcriber, s.completer, s.speechService)
		slog.Info("Voice handler initialized")
	}

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	return nil
}

// StartWorkers launches the queue consumers and the voice session sweeper.
func (s *Server) StartWorkers(ctx context.Context) {
	if s.jobQueue != nil && s.cvPipeline != nil {
		workers := s.config.Redis.Workers
		if workers <= 0 {
			workers = 2
		}
		s.jobQueue.Start(ctx, workers, s.cvPipeline.Handle)
		slog.Info("CV analysis workers started", "count", workers)
	}
	if s.sweeper != nil {
		s.sweeper.Start(ctx)
	}
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// Generated audio files
	if s.speechService != nil {
		fileServer := http.FileServer(http.Dir(s.speechService.Dir()))
		r.Handle("/audio/*", http.StripPrefix("/audio/", fileServer))
	}

	// Voice session protocol
	r.Get("/ws", s.websocketHandlerFunc)

	r.Route("/api", func(r chi.Router) {
		if s.cvEndpoints != nil {
			s.cvEndpoints.RegisterRoutes(r)
		}
		if s.chatEndpoints != nil {
			s.chatEndpoints.RegisterRoutes(r)
		}
		if s.sessionEndpoints != nil {
			s.sessionEndpoints.RegisterRoutes(r)
		}
		s.detectEndpoints.RegisterRoutes(r)
		if s.authEndpoints != nil {
			s.authEndpoints.RegisterRoutes(r)
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "5000"
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	s.StartWorkers(workerCtx)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	stopWorkers()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if s.jobQueue != nil {
		if err := s.jobQueue.Close(); err != nil {
			slog.Error("Failed to close job queue", "error", err)
		}
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	// Parse allowed origins (comma-separated list)
	allowedOrigins := strings.Split(allowedOriginsStr, ",")

	// Trim whitespace from origins
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	// Check if origin is in allowed list
	for _, allowed := range allowedOrigins {
		if allowed == origin {
			slog.Info("WebSocket connection accepted", "origin", origin)
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"
	redisStatus := "not configured"

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil && sqlDB.Ping() == nil {
			dbStatus = "up"
		} else {
			dbStatus = "down"
			status = "degraded"
		}
	}

	if s.jobQueue != nil {
		if err := s.jobQueue.Ping(r.Context()); err == nil {
			redisStatus = "up"
		} else {
			redisStatus = "down"
			status = "degraded"
		}
	}

	health := map[string]any{
		"status":   status,
		"database": dbStatus,
		"redis":    redisStatus,
	}
	if s.wsHub != nil {
		health["websocket_clients"] = s.wsHub.ClientCount()
	}
	if s.speechService != nil {
		if files, size, err := s.speechService.Stats(); err == nil {
			health["audio_files"] = files
			health["audio_bytes"] = size
		}
	}

	writeJSON(w, http.StatusOK, health)

	slog.Info("Health check", "status", status, "database", dbStatus, "redis", redisStatus)
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	if s.voiceHandler == nil {
		http.Error(w, "Voice chat is not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := s.wsHub.RegisterClient(conn)
	client.MessageHandler = s.voiceHandler.HandleMessage
	client.CloseHandler = s.voiceHandler.HandleClose

	slog.Info("WebSocket connection established", "session_token", client.SessionToken)

	go client.ReadPump()
	go client.WritePump()

	s.voiceHandler.HandleConnection(client)
}
