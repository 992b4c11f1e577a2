package services

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askmira/backend/models"
	"github.com/askmira/backend/repository"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type SessionEndpoints struct {
	repo *repository.GORMRepository
}

func NewSessionEndpoints(repo *repository.GORMRepository) *SessionEndpoints {
	return &SessionEndpoints{repo: repo}
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type AddMessageRequest struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	AudioURL    string `json:"audioUrl,omitempty"`
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", e.CreateSessionHandler)
		r.Get("/", e.ListSessionsHandler)
		r.Get("/active", e.GetActiveSessionHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", e.GetSessionHandler)
			r.Delete("/", e.DeleteSessionHandler)
			r.Post("/activate", e.ActivateSessionHandler)
			r.Post("/messages", e.AddMessageHandler)
			r.Get("/messages", e.ListMessagesHandler)
		})
	})
}

// CreateSessionHandler creates a session and makes it the only active one.
func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	session := &models.ChatSession{Title: req.Title}
	if err := e.repo.CreateChatSession(r.Context(), session); err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (e *SessionEndpoints) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := e.repo.GetChatSessions(r.Context())
	if err != nil {
		http.Error(w, "Failed to get sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (e *SessionEndpoints) GetActiveSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := e.repo.GetActiveChatSession(r.Context())
	if err != nil {
		http.Error(w, "Failed to get active session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "No active session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// GetSessionHandler returns one session with its messages in insertion
// order.
func (e *SessionEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := e.repo.GetChatSessionByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// ActivateSessionHandler swaps the active session to the given one.
func (e *SessionEndpoints) ActivateSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := e.repo.ActivateChatSession(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to activate session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (e *SessionEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := e.repo.DeleteChatSession(r.Context(), id); err != nil {
		if err == gorm.ErrRecordNotFound {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddMessageHandler appends a message to the session; the parent's
// message_count and last_message move with it in the same transaction.
func (e *SessionEndpoints) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AddMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Content is required", http.StatusBadRequest)
		return
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAssistant {
		http.Error(w, "Role must be 'user' or 'assistant'", http.StatusBadRequest)
		return
	}
	switch req.MessageType {
	case "":
		req.MessageType = models.MessageTypeText
	case models.MessageTypeText, models.MessageTypeVoice, models.MessageTypeCVAnalysis:
	default:
		http.Error(w, "Invalid message type", http.StatusBadRequest)
		return
	}

	message := &models.SessionMessage{
		SessionID:   id,
		Role:        req.Role,
		Content:     req.Content,
		MessageType: req.MessageType,
		AudioURL:    req.AudioURL,
	}
	if err := e.repo.AddSessionMessage(r.Context(), message); err != nil {
		if err == gorm.ErrRecordNotFound {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to add message", http.StatusInternalServerError)
		return
	}

	slog.Info("Session message accepted", "session_id", id, "role", req.Role, "message_type", req.MessageType)
	writeJSON(w, http.StatusCreated, message)
}

func (e *SessionEndpoints) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := e.repo.GetChatSessionByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	messages, err := e.repo.GetSessionMessages(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to get messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.SessionMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}
