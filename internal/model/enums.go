package model

// Assessment status
type AssessmentStatus string

const (
	AssessmentStatusHRInterview  AssessmentStatus = "HR_INTERVIEW"
	AssessmentStatusOnboarding   AssessmentStatus = "ONBOARDING"
	AssessmentStatusWorking      AssessmentStatus = "WORKING"
	AssessmentStatusFinalDefense AssessmentStatus = "FINAL_DEFENSE"
	AssessmentStatusProcessing   AssessmentStatus = "PROCESSING"
	AssessmentStatusCompleted    AssessmentStatus = "COMPLETED"
)

var ValidAssessmentStatuses = []AssessmentStatus{
	AssessmentStatusHRInterview, AssessmentStatusOnboarding, AssessmentStatusWorking,
	AssessmentStatusFinalDefense, AssessmentStatusProcessing, AssessmentStatusCompleted,
}

// Video assessment status
type VideoAssessmentStatus string

const (
	VideoStatusPending    VideoAssessmentStatus = "PENDING"
	VideoStatusProcessing VideoAssessmentStatus = "PROCESSING"
	VideoStatusCompleted  VideoAssessmentStatus = "COMPLETED"
	VideoStatusFailed     VideoAssessmentStatus = "FAILED"
)

// Conversation types
type ConversationType string

const (
	ConversationTypeText    ConversationType = "text"
	ConversationTypeVoice   ConversationType = "voice"
	ConversationTypeKickoff ConversationType = "kickoff"
	ConversationTypeDefense ConversationType = "defense"
)

// Message roles
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleModel MessageRole = "model"
)

// Recording types
type RecordingType string

const (
	RecordingTypeScreen RecordingType = "screen"
	RecordingTypeWebcam RecordingType = "webcam"
)

// Skill levels
type SkillLevel string

const (
	SkillLevelExceptional      SkillLevel = "exceptional"
	SkillLevelStrong           SkillLevel = "strong"
	SkillLevelAdequate         SkillLevel = "adequate"
	SkillLevelNeedsImprovement SkillLevel = "needs_improvement"
)

// Recommendation priorities
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
)

// CI states reported for a pull request
const (
	CIStatusSuccess = "success"
	CIStatusFailure = "failure"
	CIStatusPending = "pending"
	CIStatusUnknown = "unknown"
)

// PR cleanup actions
const (
	PRActionClosed        = "closed"
	PRActionAlreadyClosed = "already_closed"
	PRActionAlreadyMerged = "already_merged"
	PRActionSkipped       = "skipped"
)
