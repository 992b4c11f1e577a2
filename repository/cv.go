package repository

import (
	"context"
	"log/slog"

	"github.com/askmira/backend/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CV analysis operations
func (r *GORMRepository) CreateCVAnalysis(ctx context.Context, analysis *models.CVAnalysis) error {
	if err := r.db.WithContext(ctx).Create(analysis).Error; err != nil {
		slog.Error("Failed to create CV analysis", "error", err)
		return err
	}
	slog.Info("CV analysis created", "analysis_id", analysis.ID, "file_name", analysis.FileName)
	return nil
}

func (r *GORMRepository) GetCVAnalysisByID(ctx context.Context, id string) (*models.CVAnalysis, error) {
	var analysis models.CVAnalysis
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&analysis).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get CV analysis", "error", err, "analysis_id", id)
		return nil, err
	}
	return &analysis, nil
}

// GetCVAnalyses returns the most recent analyses without the extracted text
// column, newest first.
func (r *GORMRepository) GetCVAnalyses(ctx context.Context, limit int) ([]models.CVAnalysis, error) {
	var analyses []models.CVAnalysis
	err := r.db.WithContext(ctx).
		Omit("extracted_text").
		Order("created_at DESC").
		Limit(limit).
		Find(&analyses).Error
	if err != nil {
		slog.Error("Failed to get CV analyses", "error", err)
		return nil, err
	}
	return analyses, nil
}

// SetCVAnalysisText records the extracted CV text on a row that is still
// processing. Terminal rows are left untouched.
func (r *GORMRepository) SetCVAnalysisText(ctx context.Context, id string, text string) error {
	err := r.db.WithContext(ctx).
		Model(&models.CVAnalysis{}).
		Where("id = ? AND status = ?", id, models.CVStatusProcessing).
		Update("extracted_text", text).Error
	if err != nil {
		slog.Error("Failed to store extracted text", "error", err, "analysis_id", id)
		return err
	}
	return nil
}

// CompleteCVAnalysis moves a processing row to completed with its analysis
// payload and audio URL. The WHERE clause only matches rows still in
// processing, so a row that already reached a terminal status is left
// untouched; the boolean reports whether this call performed the
// transition.
func (r *GORMRepository) CompleteCVAnalysis(ctx context.Context, id string, analysis datatypes.JSON, audioURL string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CVAnalysis{}).
		Where("id = ? AND status = ?", id, models.CVStatusProcessing).
		Updates(map[string]interface{}{
			"status":    models.CVStatusCompleted,
			"analysis":  analysis,
			"audio_url": audioURL,
		})
	if result.Error != nil {
		slog.Error("Failed to complete CV analysis", "error", result.Error, "analysis_id", id)
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		slog.Warn("CV analysis already in a terminal status", "analysis_id", id)
		return false, nil
	}
	slog.Info("CV analysis completed", "analysis_id", id)
	return true, nil
}

// FailCVAnalysis moves a processing row to failed with the failure reason.
// Same terminal-status guard as CompleteCVAnalysis.
func (r *GORMRepository) FailCVAnalysis(ctx context.Context, id string, errorMessage string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CVAnalysis{}).
		Where("id = ? AND status = ?", id, models.CVStatusProcessing).
		Updates(map[string]interface{}{
			"status":        models.CVStatusFailed,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		slog.Error("Failed to mark CV analysis failed", "error", result.Error, "analysis_id", id)
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		slog.Warn("CV analysis already in a terminal status", "analysis_id", id)
		return false, nil
	}
	slog.Info("CV analysis marked failed", "analysis_id", id, "reason", errorMessage)
	return true, nil
}
