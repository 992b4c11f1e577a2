package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CVAnalysis status values. A row starts as processing and moves to exactly
// one of completed or failed; the transition is never reversed.
const (
	CVStatusProcessing = "processing"
	CVStatusCompleted  = "completed"
	CVStatusFailed     = "failed"
)

// CVAnalysis records one uploaded CV and the outcome of its background
// analysis. Analysis holds the structured AnalysisResult as jsonb and stays
// null while the row is processing.
type CVAnalysis struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	FileName      string         `gorm:"size:255;not null" json:"fileName"`
	ExtractedText string         `gorm:"type:text" json:"extractedText,omitempty"`
	Analysis      datatypes.JSON `gorm:"type:jsonb" json:"analysis,omitempty"`
	AudioURL      string         `gorm:"size:500" json:"audioUrl,omitempty"`
	Status        string         `gorm:"size:20;not null;default:'processing';index;check:status IN ('processing', 'completed', 'failed')" json:"status"`
	ErrorMessage  string         `gorm:"type:text" json:"errorMessage,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (CVAnalysis) TableName() string {
	return "cv_analyses"
}

func (a *CVAnalysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AnalysisResult is the payload stored in CVAnalysis.Analysis. The chat
// model is instructed to return exactly this shape; Score is clamped to
// [0, 100] before persisting.
type AnalysisResult struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Score        int      `json:"score"`
	Feedback     string   `json:"feedback"`
}
