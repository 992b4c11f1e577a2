package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/askmira/backend/models"
	"gorm.io/gorm"
)

// Voice session operations
func (r *GORMRepository) CreateVoiceSession(ctx context.Context, session *models.VoiceSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create voice session", "error", err)
		return err
	}
	slog.Info("Voice session created", "session_id", session.ID, "token", session.Token)
	return nil
}

func (r *GORMRepository) GetVoiceSessionByToken(ctx context.Context, token string) (*models.VoiceSession, error) {
	var session models.VoiceSession
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get voice session", "error", err)
		return nil, err
	}
	return &session, nil
}

// UpdateVoiceSessionStatus sets the session status and touches
// last_activity.
func (r *GORMRepository) UpdateVoiceSessionStatus(ctx context.Context, token string, status string) error {
	err := r.db.WithContext(ctx).
		Model(&models.VoiceSession{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"status":        status,
			"last_activity": time.Now(),
		}).Error
	if err != nil {
		slog.Error("Failed to update voice session status", "error", err, "status", status)
		return err
	}
	return nil
}

// ReclaimStaleVoiceSessions marks sessions inactive when their last
// activity is older than the cutoff. Covers connections that died without
// a clean close.
func (r *GORMRepository) ReclaimStaleVoiceSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.VoiceSession{}).
		Where("status IN ? AND last_activity < ?", []string{models.VoiceStatusActive, models.VoiceStatusProcessing}, cutoff).
		Update("status", models.VoiceStatusInactive)
	if result.Error != nil {
		slog.Error("Failed to reclaim stale voice sessions", "error", result.Error)
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		slog.Info("Stale voice sessions reclaimed", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}
