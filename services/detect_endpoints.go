package services

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/askmira/backend/detector"
	"github.com/go-chi/chi/v5"
)

// DetectEndpoints exposes the AI-text detector.
type DetectEndpoints struct{}

func NewDetectEndpoints() *DetectEndpoints {
	return &DetectEndpoints{}
}

type DetectRequest struct {
	Text string `json:"text"`
}

func (e *DetectEndpoints) RegisterRoutes(r chi.Router) {
	r.Post("/detect", e.DetectHandler)
}

func (e *DetectEndpoints) DetectHandler(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "Text is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, detector.Detect(req.Text))
}
