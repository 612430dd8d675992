package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VideoAssessment is the single video evaluation job of an assessment.
// Status only moves forward, except the explicit FAILED -> PENDING retry reset.
type VideoAssessment struct {
	ID           string                  `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID string                  `gorm:"type:uuid;not null;uniqueIndex" json:"assessmentId"`
	CandidateID  string                  `gorm:"type:uuid;not null;index" json:"candidateId"`
	VideoURL     string                  `gorm:"not null" json:"videoUrl"`
	Status       VideoAssessmentStatus   `gorm:"size:16;not null;index" json:"status"`
	Attempts     int                     `gorm:"not null;default:0" json:"attempts"`
	ErrorMessage *string                 `json:"errorMessage,omitempty"`
	StartedAt    *time.Time              `json:"startedAt,omitempty"`
	CompletedAt  *time.Time              `json:"completedAt,omitempty"`
	Summary      *VideoAssessmentSummary `gorm:"foreignKey:VideoAssessmentID" json:"summary,omitempty"`
	Scores       []VideoDimensionScore   `gorm:"foreignKey:VideoAssessmentID" json:"scores,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}

func (v *VideoAssessment) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	return nil
}

// VideoAssessmentSummary keeps the raw structured model output next to the
// headline numbers derived from it
type VideoAssessmentSummary struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	VideoAssessmentID string         `gorm:"type:uuid;not null;uniqueIndex" json:"videoAssessmentId"`
	OverallScore      float64        `gorm:"not null" json:"overallScore"`
	OverallSummary    string         `gorm:"type:text" json:"overallSummary"`
	EvaluationVersion string         `gorm:"size:64" json:"evaluationVersion"`
	RawAIResponse     datatypes.JSON `gorm:"column:raw_ai_response;type:jsonb" json:"rawAiResponse"`
	CreatedAt         time.Time      `json:"createdAt"`
}

func (s *VideoAssessmentSummary) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// VideoDimensionScore is one scored rubric dimension row
type VideoDimensionScore struct {
	ID                  string                                  `gorm:"type:uuid;primaryKey" json:"id"`
	VideoAssessmentID   string                                  `gorm:"type:uuid;not null;index" json:"videoAssessmentId"`
	DimensionSlug       string                                  `gorm:"size:128;not null" json:"dimensionSlug"`
	Score               *float64                                `json:"score"`
	Rationale           string                                  `gorm:"type:text" json:"rationale"`
	GreenFlags          datatypes.JSONSlice[string]             `gorm:"type:jsonb" json:"greenFlags"`
	RedFlags            datatypes.JSONSlice[string]             `gorm:"type:jsonb" json:"redFlags"`
	ObservableBehaviors datatypes.JSONSlice[ObservableBehavior] `gorm:"type:jsonb" json:"observableBehaviors"`
}

func (d *VideoDimensionScore) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

// ScoreRowsFromRubric derives the persisted score rows of a rubric output
func ScoreRowsFromRubric(videoAssessmentID string, out *RubricAssessmentOutput) []VideoDimensionScore {
	rows := make([]VideoDimensionScore, 0, len(out.DimensionScores))
	for _, d := range out.DimensionScores {
		rows = append(rows, VideoDimensionScore{
			VideoAssessmentID:   videoAssessmentID,
			DimensionSlug:       d.DimensionSlug,
			Score:               d.Score,
			Rationale:           d.Rationale,
			GreenFlags:          datatypes.JSONSlice[string](d.GreenFlags),
			RedFlags:            datatypes.JSONSlice[string](d.RedFlags),
			ObservableBehaviors: datatypes.JSONSlice[ObservableBehavior](d.ObservableBehaviors),
		})
	}
	return rows
}
