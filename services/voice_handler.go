package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/askmira/backend/models"
	"github.com/askmira/backend/repository"
	ws "github.com/askmira/backend/websocket"
)

// Events emitted to the client, one struct per protocol message. For a
// single voice_data the order is: processing, transcription_complete,
// processing, then exactly one of voice_response or error.

type SessionStartedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type ProcessingEvent struct {
	Type string `json:"type"`
	Step string `json:"step"`
}

type TranscriptionCompleteEvent struct {
	Type          string `json:"type"`
	Transcription string `json:"transcription"`
}

type VoiceResponseEvent struct {
	Type     string `json:"type"`
	UserText string `json:"userText"`
	Response string `json:"response"`
	AudioURL string `json:"audioUrl"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

const (
	stepTranscription = "transcription"
	stepResponse      = "response"
)

// voiceTurnTimeout bounds one full transcribe-complete-synthesize cycle.
const voiceTurnTimeout = 2 * time.Minute

// safeSend queues a progress event, recovering if the channel is closed.
// A client that cannot keep up just misses the event; terminal frames go
// through deliver instead.
func safeSend(ch chan<- []byte, msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			// Channel is closed, ignore
		}
	}()
	select {
	case ch <- msg:
		// sent
	default:
		// channel full or closed
	}
}

// deliver blocks until the frame is queued. voice_response and error close
// out a turn, so they are never dropped for a slow reader; if the client
// stops draining entirely, the write pump's deadline tears the connection
// down and closes the channel, which the recover absorbs.
func deliver(ch chan<- []byte, msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			// Channel is closed, ignore
		}
	}()
	ch <- msg
}

// VoiceHandler runs the voice session protocol over one WebSocket
// connection: binary clips in, staged progress events and a spoken reply
// out. The repository may be nil when no database is configured; the
// protocol still works, it just leaves no trace.
type VoiceHandler struct {
	repo        *repository.GORMRepository
	transcriber Transcriber
	completer   ChatCompleter
	speech      *SpeechService
}

func NewVoiceHandler(repo *repository.GORMRepository, transcriber Transcriber, completer ChatCompleter, speech *SpeechService) *VoiceHandler {
	return &VoiceHandler{
		repo:        repo,
		transcriber: transcriber,
		completer:   completer,
		speech:      speech,
	}
}

// HandleConnection records the new voice session and tells the client its
// session identifier. Called once, right after the upgrade.
func (h *VoiceHandler) HandleConnection(client *ws.Client) {
	if h.repo != nil {
		session := &models.VoiceSession{
			Token:        client.SessionToken,
			Status:       models.VoiceStatusActive,
			LastActivity: time.Now(),
		}
		if err := h.repo.CreateVoiceSession(context.Background(), session); err != nil {
			slog.Error("Failed to persist voice session", "error", err, "session_token", client.SessionToken)
		}
	}

	h.sendEvent(client, SessionStartedEvent{
		Type:      "session_started",
		SessionID: client.SessionToken,
	})
}

// HandleClose marks the voice session inactive when the socket goes away.
func (h *VoiceHandler) HandleClose(client *ws.Client) {
	if h.repo == nil {
		return
	}
	if err := h.repo.UpdateVoiceSessionStatus(context.Background(), client.SessionToken, models.VoiceStatusInactive); err != nil {
		slog.Error("Failed to close voice session", "error", err, "session_token", client.SessionToken)
	}
}

// HandleMessage routes one inbound frame. Unknown types are logged and
// ignored.
func (h *VoiceHandler) HandleMessage(client *ws.Client, messageBytes []byte) {
	var msg ws.Message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		slog.Error("Failed to unmarshal WebSocket message", "error", err, "session_token", client.SessionToken)
		return
	}

	switch msg.Type {
	case "voice_data":
		audioData, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			slog.Error("Failed to decode Base64 audio data", "error", err, "session_token", client.SessionToken)
			h.sendError(client, "Invalid audio data", stepTranscription)
			return
		}
		if len(audioData) == 0 {
			slog.Error("No audio data provided", "session_token", client.SessionToken)
			h.sendError(client, "Empty audio clip", stepTranscription)
			return
		}

		// One turn at a time per connection: the read loop already runs
		// each message on its own goroutine, so a second clip parks here
		// until the first one has produced its terminal event.
		client.BeginTurn()
		defer client.EndTurn()
		h.processVoiceTurn(client, audioData)

	default:
		slog.Warn("Unknown message type", "type", msg.Type, "session_token", client.SessionToken)
	}
}

// processVoiceTurn walks one clip through transcription, reply generation
// and speech synthesis, emitting progress along the way. Exactly one
// voice_response or error leaves this function.
func (h *VoiceHandler) processVoiceTurn(client *ws.Client, audioData []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), voiceTurnTimeout)
	defer cancel()

	// The inactivity sweeper may have reclaimed the session while the
	// socket sat idle; a reclaimed session gets no more turns.
	if h.repo != nil {
		session, err := h.repo.GetVoiceSessionByToken(ctx, client.SessionToken)
		if err == nil && (session == nil || session.Status == models.VoiceStatusInactive) {
			slog.Warn("Voice turn on a reclaimed session", "session_token", client.SessionToken)
			h.sendError(client, "Session expired", stepTranscription)
			return
		}
	}

	h.setSessionStatus(ctx, client, models.VoiceStatusProcessing)
	defer h.setSessionStatus(ctx, client, models.VoiceStatusActive)

	h.sendEvent(client, ProcessingEvent{Type: "processing", Step: stepTranscription})

	userText, err := h.transcriber.Transcribe(ctx, audioData, "audio/webm")
	if err != nil {
		slog.Error("Voice transcription failed", "error", err, "session_token", client.SessionToken)
		h.sendError(client, "Could not transcribe the audio", stepTranscription)
		return
	}
	if userText == "" {
		slog.Warn("Transcription returned no speech", "session_token", client.SessionToken)
		h.sendError(client, "No speech detected in the audio", stepTranscription)
		return
	}

	h.sendEvent(client, TranscriptionCompleteEvent{Type: "transcription_complete", Transcription: userText})
	h.sendEvent(client, ProcessingEvent{Type: "processing", Step: stepResponse})

	var history []models.ChatMessage
	if h.repo != nil {
		if history, err = h.repo.GetChatHistory(ctx, rollingContextSize); err != nil {
			history = nil
		}
	}

	response, err := h.completer.Complete(ctx, miraSystemPrompt, buildConversationPrompt(history, userText))
	if err != nil {
		slog.Error("Voice reply generation failed", "error", err, "session_token", client.SessionToken)
		h.sendError(client, "Could not generate a response", stepResponse)
		return
	}

	audioURL := h.speech.Synthesize(ctx, response)

	if h.repo != nil {
		message := &models.ChatMessage{
			Message:  userText,
			Response: response,
			AudioURL: audioURL,
			Type:     models.MessageTypeVoice,
		}
		if err := h.repo.CreateChatMessage(ctx, message); err != nil {
			slog.Error("Failed to persist voice exchange", "error", err, "session_token", client.SessionToken)
		}
	}

	h.sendTerminal(client, VoiceResponseEvent{
		Type:     "voice_response",
		UserText: userText,
		Response: response,
		AudioURL: audioURL,
	})

	slog.Info("Voice turn completed", "session_token", client.SessionToken, "transcript_length", len(userText), "response_length", len(response))
}

func (h *VoiceHandler) setSessionStatus(ctx context.Context, client *ws.Client, status string) {
	if h.repo == nil {
		return
	}
	if err := h.repo.UpdateVoiceSessionStatus(ctx, client.SessionToken, status); err != nil {
		slog.Error("Failed to update voice session status", "error", err, "session_token", client.SessionToken)
	}
}

func (h *VoiceHandler) sendEvent(client *ws.Client, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err)
		return
	}
	safeSend(client.Send, data)
}

// sendTerminal queues a frame that closes out a voice turn. Unlike
// sendEvent it waits for room in the channel rather than dropping.
func (h *VoiceHandler) sendTerminal(client *ws.Client, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "error", err)
		return
	}
	deliver(client.Send, data)
}

func (h *VoiceHandler) sendError(client *ws.Client, message, step string) {
	h.sendTerminal(client, ErrorEvent{Type: "error", Message: message, Step: step})
}
