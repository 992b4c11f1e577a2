package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const GeminiModelName = "gemini-2.5-flash"

// GeminiService is the Gemini-backed provider for chat completion and audio
// transcription, used when only a Gemini key is configured.
type GeminiService struct {
	genaiClient *genai.Client
}

func NewGeminiService(apiKey string) *GeminiService {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		slog.Error("Failed to create genai client", "error", err)
		return nil
	}

	return &GeminiService{genaiClient: genaiClient}
}

func (g *GeminiService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(ctx, systemPrompt, userPrompt, "")
}

func (g *GeminiService) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.generate(ctx, systemPrompt, userPrompt, "application/json")
}

func (g *GeminiService) generate(ctx context.Context, systemPrompt, userPrompt, responseMIMEType string) (string, error) {
	if g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	config := &genai.GenerateContentConfig{}
	if strings.TrimSpace(systemPrompt) != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if responseMIMEType != "" {
		config.ResponseMIMEType = responseMIMEType
	}

	result, err := g.genaiClient.Models.GenerateContent(
		ctx,
		GeminiModelName,
		genai.Text(userPrompt),
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}

	response := strings.TrimSpace(result.Text())
	if response == "" {
		return "", fmt.Errorf("empty response from gemini")
	}
	return response, nil
}

// Transcribe converts recorded speech to text with an inline audio blob.
func (g *GeminiService) Transcribe(ctx context.Context, audioData []byte, mimeType string) (string, error) {
	slog.Info("Transcribing audio with Gemini", "size", len(audioData))

	// Add timeout for transcription
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if g.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "audio/webm"
	}

	parts := []*genai.Part{
		genai.NewPartFromText("Transcribe this audio to text. Provide only the transcript, no additional commentary."),
		{
			InlineData: &genai.Blob{
				MIMEType: mimeType,
				Data:     audioData,
			},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.genaiClient.Models.GenerateContent(
		ctx,
		GeminiModelName,
		contents,
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate transcript: %w", err)
	}

	transcript := strings.TrimSpace(result.Text())
	slog.Info("Audio transcribed successfully", "transcript_length", len(transcript))

	return transcript, nil
}
