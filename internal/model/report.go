package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportVersion identifies the report document layout
const ReportVersion = "2.0"

// AssessmentReport is the externally visible report persisted on the assessment
type AssessmentReport struct {
	GeneratedAt     time.Time        `json:"generatedAt"`
	AssessmentID    string           `json:"assessmentId"`
	CandidateName   string           `json:"candidateName,omitempty"`
	OverallScore    float64          `json:"overallScore"`
	OverallLevel    SkillLevel       `json:"overallLevel"`
	SkillScores     []SkillScore     `json:"skillScores"`
	Narrative       ReportNarrative  `json:"narrative"`
	Recommendations []Recommendation `json:"recommendations"`
	Metrics         ReportMetrics    `json:"metrics"`
	Version         string           `json:"version"`
}

// SkillScore is the deduplicated score of one report category
type SkillScore struct {
	Category string     `json:"category"`
	Score    float64    `json:"score"`
	Level    SkillLevel `json:"level"`
	Evidence []string   `json:"evidence"`
}

type ReportNarrative struct {
	OverallSummary      string   `json:"overallSummary"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areasForImprovement"`
	NotableObservations []string `json:"notableObservations"`
}

type Recommendation struct {
	Category        string                 `json:"category"`
	Priority        RecommendationPriority `json:"priority"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	ActionableSteps []string               `json:"actionableSteps"`
}

// ReportMetrics carries timing and collaboration counts.
// CodeReviewScore is kept for older report consumers and is always null.
type ReportMetrics struct {
	TotalDurationMinutes *int     `json:"totalDurationMinutes"`
	WorkingPhaseMinutes  *int     `json:"workingPhaseMinutes"`
	CoworkersContacted   int      `json:"coworkersContacted"`
	AIToolsUsed          bool     `json:"aiToolsUsed"`
	TestsStatus          string   `json:"testsStatus"`
	CodeReviewScore      *float64 `json:"codeReviewScore"`
}

// Value implements driver.Valuer so the report is stored as a jsonb document
func (r *AssessmentReport) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (r *AssessmentReport) Scan(src interface{}) error {
	return scanJSON(src, r)
}

func scanJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
