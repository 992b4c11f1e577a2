package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/askmira/backend/models"
	"github.com/askmira/backend/queue"
	"github.com/askmira/backend/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxUploadBytes = 10 * 1024 * 1024
	// extractedTextLimit is how much of the CV text read endpoints return.
	extractedTextLimit  = 1000
	recentAnalysesLimit = 20
)

var pdfMagic = []byte("%PDF-")

type CVEndpoints struct {
	repo      *repository.GORMRepository
	jobQueue  *queue.RedisJobQueue
	uploadDir string
}

func NewCVEndpoints(repo *repository.GORMRepository, jobQueue *queue.RedisJobQueue, uploadDir string) *CVEndpoints {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		slog.Error("Failed to create upload directory", "dir", uploadDir, "error", err)
	}
	return &CVEndpoints{
		repo:      repo,
		jobQueue:  jobQueue,
		uploadDir: uploadDir,
	}
}

func (e *CVEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/cv", func(r chi.Router) {
		r.Post("/upload", e.UploadHandler)
		r.Get("/analysis/{id}", e.GetAnalysisHandler)
		r.Get("/analyses", e.ListAnalysesHandler)
	})
}

// UploadHandler accepts a PDF under the multipart field "cv", creates the
// analysis row and queues the background job. All input validation happens
// before any row exists, so a rejected upload leaves nothing behind.
func (e *CVEndpoints) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+512*1024)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "File too large (max 10MB)", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("cv")
	if err != nil {
		http.Error(w, "Missing file field 'cv'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		http.Error(w, "File too large (max 10MB)", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/pdf") {
		http.Error(w, "Only PDF files are accepted", http.StatusUnsupportedMediaType)
		return
	}

	// The declared type is client-controlled; check the magic bytes too.
	magic := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, magic); err != nil || !bytes.Equal(magic, pdfMagic) {
		http.Error(w, "File is not a valid PDF", http.StatusUnsupportedMediaType)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}

	filePath := filepath.Join(e.uploadDir, uuid.New().String()+".pdf")
	dst, err := os.Create(filePath)
	if err != nil {
		slog.Error("Failed to store uploaded CV", "error", err)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(filePath)
		slog.Error("Failed to store uploaded CV", "error", err)
		http.Error(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	dst.Close()

	analysis := &models.CVAnalysis{
		FileName: header.Filename,
		Status:   models.CVStatusProcessing,
	}
	if err := e.repo.CreateCVAnalysis(r.Context(), analysis); err != nil {
		os.Remove(filePath)
		http.Error(w, "Failed to create analysis", http.StatusInternalServerError)
		return
	}

	if _, err := e.jobQueue.Enqueue(r.Context(), analysis.ID, filePath, header.Filename); err != nil {
		slog.Error("Failed to enqueue analysis job", "error", err, "analysis_id", analysis.ID)
		if _, failErr := e.repo.FailCVAnalysis(r.Context(), analysis.ID, "could not queue the analysis"); failErr != nil {
			slog.Error("Failed to settle analysis row", "error", failErr, "analysis_id", analysis.ID)
		}
		http.Error(w, "Failed to queue analysis", http.StatusInternalServerError)
		return
	}

	slog.Info("CV upload accepted", "analysis_id", analysis.ID, "file_name", header.Filename, "size", header.Size)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     analysis.ID,
		"status": analysis.Status,
	})
}

// GetAnalysisHandler returns one analysis record. The extracted text is
// truncated for the response; the full text stays in the database.
func (e *CVEndpoints) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	analysis, err := e.repo.GetCVAnalysisByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to get analysis", http.StatusInternalServerError)
		return
	}
	if analysis == nil {
		http.Error(w, "Analysis not found", http.StatusNotFound)
		return
	}

	analysis.ExtractedText = truncateRunes(analysis.ExtractedText, extractedTextLimit)
	writeJSON(w, http.StatusOK, analysis)
}

// ListAnalysesHandler returns recent analyses for the history panel,
// newest first and without the extracted text.
func (e *CVEndpoints) ListAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	analyses, err := e.repo.GetCVAnalyses(r.Context(), recentAnalysesLimit)
	if err != nil {
		http.Error(w, "Failed to get analyses", http.StatusInternalServerError)
		return
	}
	if analyses == nil {
		analyses = []models.CVAnalysis{}
	}
	writeJSON(w, http.StatusOK, analyses)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
