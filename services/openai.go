package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultChatModel       = "gpt-4o-mini"
	defaultTranscribeModel = "whisper-1"
)

// OpenAIService calls the OpenAI HTTP API for chat completions and speech
// transcription. Any OpenAI-compatible endpoint works through the base URL.
type OpenAIService struct {
	baseURL         string
	apiKey          string
	chatModel       string
	transcribeModel string
	client          *http.Client
}

func NewOpenAIService(apiKey, baseURL, chatModel, transcribeModel string) *OpenAIService {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(chatModel) == "" {
		chatModel = defaultChatModel
	}
	if strings.TrimSpace(transcribeModel) == "" {
		transcribeModel = defaultTranscribeModel
	}
	return &OpenAIService{
		baseURL:         baseURL,
		apiKey:          strings.TrimSpace(apiKey),
		chatModel:       chatModel,
		transcribeModel: transcribeModel,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (s *OpenAIService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.chat(ctx, systemPrompt, userPrompt, nil)
}

// CompleteJSON uses the chat endpoint's JSON response mode, so the reply is
// always a single JSON object.
func (s *OpenAIService) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.chat(ctx, systemPrompt, userPrompt, &oaiResponseFormat{Type: "json_object"})
}

func (s *OpenAIService) chat(ctx context.Context, systemPrompt, userPrompt string, format *oaiResponseFormat) (string, error) {
	messages := make([]oaiMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(oaiChatRequest{
		Model:          s.chatModel,
		Messages:       messages,
		ResponseFormat: format,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeOpenAIError(resp)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("openai decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai api")
	}
	return text, nil
}

// Transcribe uploads the audio clip to the transcription endpoint and
// returns its text.
func (s *OpenAIService) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", audioFileName(mimeType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := writer.WriteField("model", s.transcribeModel); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeOpenAIError(resp)
	}

	var transcription oaiTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcription); err != nil {
		return "", fmt.Errorf("openai decode: %w", err)
	}
	return strings.TrimSpace(transcription.Text), nil
}

func decodeOpenAIError(resp *http.Response) error {
	var errResp oaiErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error.Message != "" {
		return fmt.Errorf("openai api error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("openai api error: %s", resp.Status)
}

// audioFileName gives the upload part a filename whose extension matches
// the clip's MIME type; the transcription endpoint uses it to pick a
// decoder.
func audioFileName(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/ogg":
		return "audio.ogg"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/mp4", "audio/m4a":
		return "audio.m4a"
	default:
		return "audio.webm"
	}
}

// OpenAI request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponseFormat struct {
	Type string `json:"type"`
}

type oaiChatRequest struct {
	Model          string             `json:"model"`
	Messages       []oaiMessage       `json:"messages"`
	ResponseFormat *oaiResponseFormat `json:"response_format,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiTranscriptionResponse struct {
	Text string `json:"text"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
