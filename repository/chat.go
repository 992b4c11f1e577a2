package repository

import (
	"context"
	"log/slog"

	"github.com/askmira/backend/models"
	"gorm.io/gorm"
)

// Flat chat log operations
func (r *GORMRepository) CreateChatMessage(ctx context.Context, message *models.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		slog.Error("Failed to create chat message", "error", err)
		return err
	}
	slog.Info("Chat message created", "message_id", message.ID, "type", message.Type)
	return nil
}

// GetChatHistory returns the most recent exchanges in chronological order
// (oldest first).
func (r *GORMRepository) GetChatHistory(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get chat history", "error", err)
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Chat session operations

// CreateChatSession inserts the session and makes it the only active one.
// Deactivating the rest and activating the new row happen in one
// transaction, so readers never observe two active sessions.
func (r *GORMRepository) CreateChatSession(ctx context.Context, session *models.ChatSession) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ChatSession{}).Where("is_active = ?", true).Update("is_active", false).Error; err != nil {
			return err
		}
		session.IsActive = true
		return tx.Create(session).Error
	})
	if err != nil {
		slog.Error("Failed to create chat session", "error", err)
		return err
	}
	slog.Info("Chat session created", "session_id", session.ID, "title", session.Title)
	return nil
}

func (r *GORMRepository) GetChatSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&sessions).Error; err != nil {
		slog.Error("Failed to get chat sessions", "error", err)
		return nil, err
	}
	return sessions, nil
}

func (r *GORMRepository) GetChatSessionByID(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get chat session", "error", err, "session_id", id)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) GetActiveChatSession(ctx context.Context) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get active chat session", "error", err)
		return nil, err
	}
	return &session, nil
}

// ActivateChatSession makes the given session the only active one, in a
// single transaction. Returns (nil, nil) when the session does not exist.
func (r *GORMRepository) ActivateChatSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&session).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ChatSession{}).Where("is_active = ? AND id <> ?", true, id).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatSession{}).Where("id = ?", id).Update("is_active", true).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to activate chat session", "error", err, "session_id", id)
		return nil, err
	}
	session.IsActive = true
	slog.Info("Chat session activated", "session_id", id)
	return &session, nil
}

// DeleteChatSession removes the session and all of its messages. Returns
// gorm.ErrRecordNotFound when no such session exists.
func (r *GORMRepository) DeleteChatSession(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.SessionMessage{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.ChatSession{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			slog.Error("Failed to delete chat session", "error", err, "session_id", id)
		}
		return err
	}
	slog.Info("Chat session deleted", "session_id", id)
	return nil
}

// AddSessionMessage inserts the message and updates the parent's
// denormalized columns in one transaction: message_count goes up by exactly
// one and last_message becomes the first hundred characters of the content.
// Returns gorm.ErrRecordNotFound when the session does not exist.
func (r *GORMRepository) AddSessionMessage(ctx context.Context, message *models.SessionMessage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.ChatSession
		if err := tx.Where("id = ?", message.SessionID).First(&session).Error; err != nil {
			return err
		}
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatSession{}).
			Where("id = ?", message.SessionID).
			Updates(map[string]interface{}{
				"message_count": gorm.Expr("message_count + 1"),
				"last_message":  models.LastMessagePreview(message.Content),
			}).Error
	})
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			slog.Error("Failed to add session message", "error", err, "session_id", message.SessionID)
		}
		return err
	}
	slog.Info("Session message added", "message_id", message.ID, "session_id", message.SessionID, "role", message.Role)
	return nil
}

// GetSessionMessages returns a session's messages in insertion order.
func (r *GORMRepository) GetSessionMessages(ctx context.Context, sessionID string) ([]models.SessionMessage, error) {
	var messages []models.SessionMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get session messages", "error", err, "session_id", sessionID)
		return nil, err
	}
	return messages, nil
}
