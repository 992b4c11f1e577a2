package services

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/askmira/backend/models"
	"github.com/askmira/backend/repository"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxVoiceClipBytes   = 10 * 1024 * 1024
)

type ChatEndpoints struct {
	repo        *repository.GORMRepository
	completer   ChatCompleter
	transcriber Transcriber
	speech      *SpeechService
}

type ChatRequest struct {
	Message string `json:"message"`
}

func NewChatEndpoints(repo *repository.GORMRepository, completer ChatCompleter, transcriber Transcriber, speech *SpeechService) *ChatEndpoints {
	return &ChatEndpoints{
		repo:        repo,
		completer:   completer,
		transcriber: transcriber,
		speech:      speech,
	}
}

func (e *ChatEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/", e.ChatHandler)
		r.Get("/history", e.HistoryHandler)
	})
	r.Post("/voice/chat", e.VoiceChatHandler)
}

// ChatHandler answers one text message with the recent history as rolling
// context and persists the exchange. Text chat does not synthesize audio.
func (e *ChatEndpoints) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	history, err := e.repo.GetChatHistory(r.Context(), rollingContextSize)
	if err != nil {
		history = nil
	}

	response, err := e.completer.Complete(r.Context(), miraSystemPrompt, buildConversationPrompt(history, req.Message))
	if err != nil {
		slog.Error("Chat completion failed", "error", err)
		http.Error(w, "Failed to generate response", http.StatusBadGateway)
		return
	}

	message := &models.ChatMessage{
		Message:  req.Message,
		Response: response,
		Type:     models.MessageTypeText,
	}
	if err := e.repo.CreateChatMessage(r.Context(), message); err != nil {
		http.Error(w, "Failed to save message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, message)
}

// HistoryHandler returns the flat conversation oldest first.
func (e *ChatEndpoints) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := e.repo.GetChatHistory(r.Context(), limit)
	if err != nil {
		http.Error(w, "Failed to get history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// VoiceChatHandler is the push-to-talk path: one multipart audio clip in,
// a transcribed exchange with synthesized reply out.
func (e *ChatEndpoints) VoiceChatHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxVoiceClipBytes+512*1024)
	if err := r.ParseMultipartForm(maxVoiceClipBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Missing file field 'audio'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxVoiceClipBytes {
		http.Error(w, "Audio clip too large (max 10MB)", http.StatusRequestEntityTooLarge)
		return
	}

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read audio", http.StatusInternalServerError)
		return
	}
	if len(audioData) == 0 {
		http.Error(w, "Empty audio clip", http.StatusBadRequest)
		return
	}

	userText, err := e.transcriber.Transcribe(r.Context(), audioData, header.Header.Get("Content-Type"))
	if err != nil {
		slog.Error("Voice chat transcription failed", "error", err)
		http.Error(w, "Failed to transcribe audio", http.StatusBadGateway)
		return
	}
	if userText == "" {
		http.Error(w, "No speech detected in the audio", http.StatusBadRequest)
		return
	}

	history, err := e.repo.GetChatHistory(r.Context(), rollingContextSize)
	if err != nil {
		history = nil
	}

	response, err := e.completer.Complete(r.Context(), miraSystemPrompt, buildConversationPrompt(history, userText))
	if err != nil {
		slog.Error("Voice chat completion failed", "error", err)
		http.Error(w, "Failed to generate response", http.StatusBadGateway)
		return
	}

	audioURL := e.speech.Synthesize(r.Context(), response)

	message := &models.ChatMessage{
		Message:  userText,
		Response: response,
		AudioURL: audioURL,
		Type:     models.MessageTypeVoice,
	}
	if err := e.repo.CreateChatMessage(r.Context(), message); err != nil {
		http.Error(w, "Failed to save message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        message.ID,
		"userText":  message.Message,
		"response":  message.Response,
		"audioUrl":  message.AudioURL,
		"type":      message.Type,
		"createdAt": message.CreatedAt,
	})
}
