package services

import (
	"context"
	"strings"

	"github.com/askmira/backend/models"
)

// Transcriber converts recorded speech to text.
// Both providers (OpenAI, Gemini) implement this interface.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// ChatCompleter produces assistant replies. CompleteJSON asks the model for
// a JSON object response, used by the CV analysis pipeline.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// miraSystemPrompt is the assistant persona for both text and voice chat.
const miraSystemPrompt = "You are Mira, a friendly and knowledgeable career assistant. " +
	"You help people with career advice, CV feedback, interview preparation and " +
	"professional growth. Keep replies conversational and concise; they may be " +
	"read aloud."

// rollingContextSize is how many recent exchanges are replayed into the
// prompt. The assistant keeps no other server-side memory.
const rollingContextSize = 10

// buildConversationPrompt folds the recent history into a single user
// prompt, oldest exchange first, ending with the new message.
func buildConversationPrompt(history []models.ChatMessage, userText string) string {
	if len(history) == 0 {
		return userText
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, m := range history {
		b.WriteString("User: ")
		b.WriteString(m.Message)
		b.WriteString("\nAssistant: ")
		b.WriteString(m.Response)
		b.WriteString("\n")
	}
	b.WriteString("\nUser: ")
	b.WriteString(userText)
	return b.String()
}
