package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the candidate account that owns assessments
type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	ImageURL  *string   `gorm:"column:image_url" json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Scenario is the simulated company/task a candidate works through
type Scenario struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	CompanyName string    `gorm:"size:255" json:"companyName"`
	RoleFamily  string    `gorm:"size:64;not null;default:engineering" json:"roleFamily"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Scenario) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Coworker is an AI persona the candidate can talk to inside a scenario
type Coworker struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	ScenarioID string `gorm:"type:uuid;not null;index" json:"scenarioId"`
	Name       string `gorm:"size:255;not null" json:"name"`
	Role       string `gorm:"size:255" json:"role"`
}

func (c *Coworker) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Assessment is one candidate's attempt at a scenario.
// CompletedAt is set iff Status is COMPLETED; Report is set only after the
// first successful report generation.
type Assessment struct {
	ID          string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string            `gorm:"type:uuid;not null;index" json:"userId"`
	ScenarioID  string            `gorm:"type:uuid;not null;index" json:"scenarioId"`
	Status      AssessmentStatus  `gorm:"size:32;not null;index" json:"status"`
	StartedAt   time.Time         `gorm:"not null" json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	PRURL       *string           `gorm:"column:pr_url" json:"prUrl,omitempty"`
	PRSnapshot  *PRSnapshot       `gorm:"column:pr_snapshot;type:jsonb" json:"prSnapshot,omitempty"`
	Report      *AssessmentReport `gorm:"column:report;type:jsonb" json:"report,omitempty"`
	ReviewedAt  *time.Time        `json:"reviewedAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (a *Assessment) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// Recording is a screen or webcam capture uploaded during the assessment
type Recording struct {
	ID           string        `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID string        `gorm:"type:uuid;not null;index" json:"assessmentId"`
	Type         RecordingType `gorm:"size:16;not null" json:"type"`
	StorageURL   string        `gorm:"not null" json:"storageUrl"`
	StorageKey   string        `json:"storageKey,omitempty"`
	MIMEType     string        `gorm:"column:mime_type;size:64" json:"mimeType,omitempty"`
	StartTime    time.Time     `gorm:"not null" json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
}

func (r *Recording) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// ChatMessage is one turn of a transcript
type ChatMessage struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation is an append-only transcript between the candidate and a
// coworker (CoworkerID nil for system personas such as the HR interviewer)
type Conversation struct {
	ID           string                           `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID string                           `gorm:"type:uuid;not null;index" json:"assessmentId"`
	CoworkerID   *string                          `gorm:"type:uuid;index" json:"coworkerId,omitempty"`
	Type         ConversationType                 `gorm:"size:16;not null" json:"type"`
	Transcript   datatypes.JSONSlice[ChatMessage] `gorm:"type:jsonb;not null" json:"transcript"`
	CreatedAt    time.Time                        `json:"createdAt"`
	UpdatedAt    time.Time                        `json:"updatedAt"`
}

func (c *Conversation) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
