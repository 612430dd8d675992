package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worksim/api/internal/model"
)

// MemoryStore is an in-process Store used in development without a
// database and in tests. Rows are copied on the way in and out.
type MemoryStore struct {
	mu               sync.RWMutex
	users            map[string]model.User
	scenarios        map[string]model.Scenario
	coworkers        map[string]model.Coworker
	assessments      map[string]model.Assessment
	recordings       map[string]model.Recording
	conversations    map[string]model.Conversation
	videoAssessments map[string]model.VideoAssessment
	summaries        map[string]model.VideoAssessmentSummary
	scores           map[string][]model.VideoDimensionScore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:            make(map[string]model.User),
		scenarios:        make(map[string]model.Scenario),
		coworkers:        make(map[string]model.Coworker),
		assessments:      make(map[string]model.Assessment),
		recordings:       make(map[string]model.Recording),
		conversations:    make(map[string]model.Conversation),
		videoAssessments: make(map[string]model.VideoAssessment),
		summaries:        make(map[string]model.VideoAssessmentSummary),
		scores:           make(map[string][]model.VideoDimensionScore),
	}
}

func newID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}

// PutUser inserts or replaces a user and returns its id
func (s *MemoryStore) PutUser(u model.User) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = newID(u.ID)
	s.users[u.ID] = u
	return u.ID
}

func (s *MemoryStore) PutScenario(sc model.Scenario) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc.ID = newID(sc.ID)
	s.scenarios[sc.ID] = sc
	return sc.ID
}

func (s *MemoryStore) PutCoworker(c model.Coworker) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newID(c.ID)
	s.coworkers[c.ID] = c
	return c.ID
}

func (s *MemoryStore) PutAssessment(a model.Assessment) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = newID(a.ID)
	s.assessments[a.ID] = a
	return a.ID
}

func (s *MemoryStore) PutRecording(r model.Recording) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = newID(r.ID)
	s.recordings[r.ID] = r
	return r.ID
}

func (s *MemoryStore) PutConversation(c model.Conversation) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newID(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.conversations[c.ID] = c
	return c.ID
}

func (s *MemoryStore) GetAssessment(_ context.Context, id string) (*model.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) CompleteAssessment(_ context.Context, id string, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return false, ErrNotFound
	}
	if a.Status != model.AssessmentStatusWorking {
		return false, nil
	}
	a.Status = model.AssessmentStatusCompleted
	a.CompletedAt = &completedAt
	s.assessments[id] = a
	return true, nil
}

func (s *MemoryStore) SaveReport(_ context.Context, assessmentID string, report *model.AssessmentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[assessmentID]
	if !ok {
		return ErrNotFound
	}
	cp := *report
	a.Report = &cp
	s.assessments[assessmentID] = a
	return nil
}

func (s *MemoryStore) SavePRSnapshot(_ context.Context, assessmentID string, snapshot *model.PRSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[assessmentID]
	if !ok {
		return ErrNotFound
	}
	cp := *snapshot
	a.PRSnapshot = &cp
	s.assessments[assessmentID] = a
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUserImage(_ context.Context, userID, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.ImageURL = &imageURL
	s.users[userID] = u
	return nil
}

func (s *MemoryStore) GetScenario(_ context.Context, id string) (*model.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sc, nil
}

func (s *MemoryStore) ListCoworkers(_ context.Context, scenarioID string) ([]model.Coworker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]model.Coworker, 0)
	for _, c := range s.coworkers {
		if c.ScenarioID == scenarioID {
			rows = append(rows, c)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func (s *MemoryStore) CountRecordings(_ context.Context, assessmentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.recordings {
		if r.AssessmentID == assessmentID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FirstRecording(_ context.Context, assessmentID string) (*model.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first *model.Recording
	for _, r := range s.recordings {
		if r.AssessmentID != assessmentID {
			continue
		}
		if first == nil || r.StartTime.Before(first.StartTime) {
			rc := r
			first = &rc
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	return first, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, assessmentID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]model.Conversation, 0)
	for _, c := range s.conversations {
		if c.AssessmentID == assessmentID {
			rows = append(rows, c)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *MemoryStore) CountContactedCoworkers(_ context.Context, assessmentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, c := range s.conversations {
		if c.AssessmentID == assessmentID && c.CoworkerID != nil {
			seen[*c.CoworkerID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (s *MemoryStore) CreateVideoAssessment(_ context.Context, va *model.VideoAssessment) (*model.VideoAssessment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.videoAssessments {
		if existing.AssessmentID == va.AssessmentID {
			return s.loadVideoLocked(existing), false, nil
		}
	}
	row := *va
	row.ID = newID(row.ID)
	if row.Status == "" {
		row.Status = model.VideoStatusPending
	}
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now
	row.Summary, row.Scores = nil, nil
	s.videoAssessments[row.ID] = row
	return s.loadVideoLocked(row), true, nil
}

func (s *MemoryStore) loadVideoLocked(row model.VideoAssessment) *model.VideoAssessment {
	if sum, ok := s.summaries[row.ID]; ok {
		row.Summary = &sum
	}
	if sc, ok := s.scores[row.ID]; ok {
		row.Scores = append([]model.VideoDimensionScore(nil), sc...)
	}
	return &row
}

func (s *MemoryStore) GetVideoAssessment(_ context.Context, id string) (*model.VideoAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.videoAssessments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.loadVideoLocked(row), nil
}

func (s *MemoryStore) GetVideoAssessmentByAssessment(_ context.Context, assessmentID string) (*model.VideoAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.videoAssessments {
		if row.AssessmentID == assessmentID {
			return s.loadVideoLocked(row), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) StartVideoAssessment(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.videoAssessments[id]
	if !ok {
		return false, ErrNotFound
	}
	if row.Status != model.VideoStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	row.Status = model.VideoStatusProcessing
	row.Attempts++
	row.StartedAt = &now
	row.ErrorMessage = nil
	row.UpdatedAt = now
	s.videoAssessments[id] = row
	return true, nil
}

func (s *MemoryStore) ResetVideoAssessment(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.videoAssessments[id]
	if !ok {
		return false, ErrNotFound
	}
	if row.Status != model.VideoStatusFailed {
		return false, nil
	}
	row.Status = model.VideoStatusPending
	row.ErrorMessage = nil
	row.UpdatedAt = time.Now().UTC()
	s.videoAssessments[id] = row
	return true, nil
}

func (s *MemoryStore) CompleteVideoAssessment(_ context.Context, id string, summary *model.VideoAssessmentSummary, scores []model.VideoDimensionScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.videoAssessments[id]
	if !ok {
		return ErrNotFound
	}
	if row.Status != model.VideoStatusProcessing {
		return ErrConflict
	}

	sum := *summary
	sum.ID = newID(sum.ID)
	sum.VideoAssessmentID = id
	sum.CreatedAt = time.Now().UTC()
	s.summaries[id] = sum

	rows := make([]model.VideoDimensionScore, len(scores))
	for i, sc := range scores {
		sc.ID = newID(sc.ID)
		sc.VideoAssessmentID = id
		rows[i] = sc
	}
	s.scores[id] = rows

	now := time.Now().UTC()
	row.Status = model.VideoStatusCompleted
	row.CompletedAt = &now
	row.ErrorMessage = nil
	row.UpdatedAt = now
	s.videoAssessments[id] = row
	return nil
}

func (s *MemoryStore) FailVideoAssessment(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.videoAssessments[id]
	if !ok {
		return ErrNotFound
	}
	if row.Status != model.VideoStatusProcessing {
		return ErrConflict
	}
	row.Status = model.VideoStatusFailed
	row.ErrorMessage = &message
	row.UpdatedAt = time.Now().UTC()
	s.videoAssessments[id] = row
	return nil
}

func (s *MemoryStore) ExpireVideoAssessment(_ context.Context, id string, startedBefore time.Time, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.videoAssessments[id]
	if !ok {
		return false, ErrNotFound
	}
	if row.Status != model.VideoStatusProcessing {
		return false, nil
	}
	if row.StartedAt != nil && !row.StartedAt.Before(startedBefore) {
		return false, nil
	}
	row.Status = model.VideoStatusFailed
	row.ErrorMessage = &message
	row.UpdatedAt = time.Now().UTC()
	s.videoAssessments[id] = row
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
