package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askmira/backend/models"
	"github.com/askmira/backend/pdftext"
	"github.com/askmira/backend/queue"
	"github.com/askmira/backend/repository"
	"gorm.io/datatypes"
)

const cvAnalysisSystemPrompt = "You are Mira, an expert career coach reviewing a CV. " +
	"Respond with a single JSON object of exactly this shape: " +
	`{"strengths": ["..."], "improvements": ["..."], "score": 0, "feedback": "..."}` +
	". strengths and improvements are non-empty arrays of short, specific points, " +
	"score is an integer from 0 to 100, and feedback is two or three spoken-style " +
	"sentences summarizing the review. Do not include any other keys or text."

// CVPipeline is the queue worker behind CV uploads: extract text, ask the
// model for a structured review, synthesize the feedback, then flip the row
// to its terminal status exactly once.
//
// The handler's error return drives the queue: nil acks the job (including
// permanently bad input, which is settled on the row instead), non-nil asks
// for a retry.
type CVPipeline struct {
	repo        *repository.GORMRepository
	completer   ChatCompleter
	speech      *SpeechService
	maxAttempts int
}

func NewCVPipeline(repo *repository.GORMRepository, completer ChatCompleter, speech *SpeechService, maxAttempts int) *CVPipeline {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &CVPipeline{
		repo:        repo,
		completer:   completer,
		speech:      speech,
		maxAttempts: maxAttempts,
	}
}

// Handle processes one analysis job.
func (p *CVPipeline) Handle(ctx context.Context, job queue.AnalysisJob) error {
	analysis, err := p.repo.GetCVAnalysisByID(ctx, job.AnalysisID)
	if err != nil {
		return p.retryable(ctx, job, fmt.Errorf("load analysis row: %w", err))
	}
	if analysis == nil {
		slog.Warn("Analysis row missing, dropping job", "analysis_id", job.AnalysisID, "job_id", job.ID)
		return nil
	}
	if analysis.Status != models.CVStatusProcessing {
		// Redelivered job for a row that already settled.
		slog.Info("Analysis already terminal, dropping job", "analysis_id", job.AnalysisID, "status", analysis.Status)
		return nil
	}

	text, err := pdftext.Extract(job.FilePath)
	if err != nil {
		// Unreadable or textless PDFs never get better on retry.
		slog.Error("CV text extraction failed", "error", err, "analysis_id", job.AnalysisID, "file", job.FileName)
		p.fail(ctx, job.AnalysisID, extractionFailureMessage(err))
		return nil
	}
	if err := p.repo.SetCVAnalysisText(ctx, job.AnalysisID, text); err != nil {
		return p.retryable(ctx, job, err)
	}

	result, err := p.analyze(ctx, text)
	if err != nil {
		return p.retryable(ctx, job, fmt.Errorf("analyze CV: %w", err))
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return p.retryable(ctx, job, fmt.Errorf("encode analysis: %w", err))
	}

	// Synthesis never blocks completion; the placeholder URL stands in
	// when it fails.
	audioURL := p.speech.Synthesize(ctx, result.Feedback)

	transitioned, err := p.repo.CompleteCVAnalysis(ctx, job.AnalysisID, datatypes.JSON(payload), audioURL)
	if err != nil {
		return p.retryable(ctx, job, fmt.Errorf("complete analysis: %w", err))
	}
	if transitioned {
		slog.Info("CV analysis pipeline finished", "analysis_id", job.AnalysisID, "score", result.Score)
	}
	return nil
}

// analyze asks the model for the structured review and validates it.
func (p *CVPipeline) analyze(ctx context.Context, text string) (*models.AnalysisResult, error) {
	raw, err := p.completer.CompleteJSON(ctx, cvAnalysisSystemPrompt, "Review this CV:\n\n"+text)
	if err != nil {
		return nil, err
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("malformed analysis JSON: %w", err)
	}
	if len(result.Strengths) == 0 || len(result.Improvements) == 0 {
		return nil, errors.New("analysis missing strengths or improvements")
	}
	if strings.TrimSpace(result.Feedback) == "" {
		return nil, errors.New("analysis missing feedback")
	}
	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 100 {
		result.Score = 100
	}
	return &result, nil
}

// retryable hands the error back to the queue unless this was the final
// attempt, in which case the row is settled as failed first so it cannot
// stay processing forever.
func (p *CVPipeline) retryable(ctx context.Context, job queue.AnalysisJob, err error) error {
	if job.Attempts >= p.maxAttempts {
		p.fail(ctx, job.AnalysisID, "analysis failed after retries")
	}
	return err
}

func (p *CVPipeline) fail(ctx context.Context, analysisID, reason string) {
	if _, err := p.repo.FailCVAnalysis(ctx, analysisID, reason); err != nil {
		slog.Error("Failed to settle analysis row", "error", err, "analysis_id", analysisID)
	}
}

func extractionFailureMessage(err error) string {
	if errors.Is(err, pdftext.ErrNoText) {
		return "no readable text found in the PDF"
	}
	return "could not read the PDF"
}
