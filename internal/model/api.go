package model

import "time"

// FinalizeRequest represents the request body for assessment finalization
type FinalizeRequest struct {
	AssessmentID string `json:"assessmentId" validate:"required,uuid"`
}

// FinalizeResponse represents the outcome of finalization, including the
// degraded-or-not outcome of each side effect
type FinalizeResponse struct {
	Success         bool                `json:"success"`
	Assessment      AssessmentSummary   `json:"assessment"`
	Timing          AssessmentTiming    `json:"timing"`
	PRCleanup       *PRCleanupResult    `json:"prCleanup"`
	VideoAssessment VideoTriggerResult  `json:"videoAssessment"`
	ProfilePhoto    ProfilePhotoOutcome `json:"profilePhoto"`
}

type AssessmentSummary struct {
	ID          string           `json:"id"`
	Status      AssessmentStatus `json:"status"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt *time.Time       `json:"completedAt"`
}

type AssessmentTiming struct {
	StartedAt            time.Time `json:"startedAt"`
	CompletedAt          time.Time `json:"completedAt"`
	TotalDurationSeconds int64     `json:"totalDurationSeconds"`
}

// VideoTriggerResult reports the video evaluation kickoff. Triggered reflects
// that a recording existed, not that the kickoff call succeeded.
type VideoTriggerResult struct {
	Triggered         bool    `json:"triggered"`
	VideoAssessmentID *string `json:"videoAssessmentId"`
	HasRecording      bool    `json:"hasRecording"`
}

type ProfilePhotoOutcome struct {
	Generated bool    `json:"generated"`
	ImageURL  *string `json:"imageUrl"`
}

// ProfilePhotoRequest identifies whose profile photo to generate
type ProfilePhotoRequest struct {
	AssessmentID string `json:"assessmentId"`
	UserID       string `json:"userId"`
}

// ProfilePhotoResult is returned by the photo capability
type ProfilePhotoResult struct {
	Success  bool    `json:"success"`
	ImageURL *string `json:"imageUrl,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// GenerateReportRequest represents the request body for report generation
type GenerateReportRequest struct {
	AssessmentID    string `json:"assessmentId" validate:"required,uuid"`
	ForceRegenerate bool   `json:"forceRegenerate"`
}

type GenerateReportResponse struct {
	Success   bool              `json:"success"`
	Report    *AssessmentReport `json:"report"`
	Cached    bool              `json:"cached"`
	EmailSent bool              `json:"emailSent"`
}

type GetReportResponse struct {
	Report *AssessmentReport `json:"report"`
}

// VideoResultsResponse represents the polled state of a video evaluation
type VideoResultsResponse struct {
	ID           string                `json:"id"`
	AssessmentID string                `json:"assessmentId"`
	Status       VideoAssessmentStatus `json:"status"`
	Attempts     int                   `json:"attempts"`
	Error        *string               `json:"error,omitempty"`
	Summary      *VideoResultSummary   `json:"summary,omitempty"`
}

type VideoResultSummary struct {
	OverallScore      float64                 `json:"overallScore"`
	OverallSummary    string                  `json:"overallSummary"`
	EvaluationVersion string                  `json:"evaluationVersion"`
	Scores            []VideoDimensionScore   `json:"scores"`
	Rubric            *RubricAssessmentOutput `json:"rubric,omitempty"`
}

type VideoRetryResponse struct {
	ID     string                `json:"id"`
	Status VideoAssessmentStatus `json:"status"`
	Queued bool                  `json:"queued"`
}

// CoworkerMemoryResponse is the chat context for one coworker
type CoworkerMemoryResponse struct {
	Memory               CoworkerMemory `json:"memory"`
	CrossCoworkerContext string         `json:"crossCoworkerContext"`
	Prompt               string         `json:"prompt"`
}
