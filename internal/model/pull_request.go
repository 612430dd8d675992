package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PRSnapshot freezes the candidate's pull request at finalization time
type PRSnapshot struct {
	URL          string      `json:"url"`
	Number       int         `json:"number"`
	Title        string      `json:"title"`
	State        string      `json:"state"`
	Merged       bool        `json:"merged"`
	HeadSHA      string      `json:"headSha"`
	Additions    int         `json:"additions"`
	Deletions    int         `json:"deletions"`
	ChangedFiles int         `json:"changedFiles"`
	Commits      int         `json:"commits"`
	CIStatus     *PRCIStatus `json:"ciStatus,omitempty"`
	CapturedAt   time.Time   `json:"capturedAt"`
}

// PRCIStatus aggregates commit statuses and check runs of a PR head
type PRCIStatus struct {
	State      string    `json:"state"`
	TotalCount int       `json:"totalCount"`
	Checks     []PRCheck `json:"checks"`
}

type PRCheck struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
}

// PRCleanupResult is what the pull request provider reports after cleanup
type PRCleanupResult struct {
	Success    bool        `json:"success"`
	Action     string      `json:"action"`
	Message    string      `json:"message"`
	PRSnapshot *PRSnapshot `json:"prSnapshot,omitempty"`
}

func (s *PRSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal pr snapshot: %w", err)
	}
	return string(b), nil
}

func (s *PRSnapshot) Scan(src interface{}) error {
	return scanJSON(src, s)
}
