package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

type fakeGenerator struct {
	mu         sync.Mutex
	response   string
	err        error
	panicWith  interface{}
	delay      time.Duration
	calls      int32
	prompts    []string
	configured bool
}

func newFakeGenerator(response string) *fakeGenerator {
	return &fakeGenerator{response: response, configured: true}
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, prompt string, _ *client.Media) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	resp, err, p, delay := g.response, g.err, g.panicWith, g.delay
	g.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

func (g *fakeGenerator) IsConfigured() bool { return g.configured }

func (g *fakeGenerator) set(response string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.response, g.err = response, err
}

func (g *fakeGenerator) callCount() int { return int(atomic.LoadInt32(&g.calls)) }

type fakePRProvider struct {
	result    *model.PRCleanupResult
	err       error
	panicWith interface{}
	calls     int32
	ci        *model.PRCIStatus
	ciCalls   int32
}

func (p *fakePRProvider) CleanupPRAfterAssessment(_ context.Context, prURL string) (*model.PRCleanupResult, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	return p.result, p.err
}

func (p *fakePRProvider) FetchPRCIStatus(context.Context, string) (*model.PRCIStatus, error) {
	atomic.AddInt32(&p.ciCalls, 1)
	if p.ci == nil {
		return nil, errors.New("ci status unavailable")
	}
	return p.ci, nil
}

func (p *fakePRProvider) IsConfigured() bool { return true }

type fakeVideoTrigger struct {
	id        string
	err       error
	panicWith interface{}
	calls     int32
}

func (v *fakeVideoTrigger) Kickoff(context.Context, string, string) (string, error) {
	atomic.AddInt32(&v.calls, 1)
	if v.panicWith != nil {
		panic(v.panicWith)
	}
	return v.id, v.err
}

type fakePhoto struct {
	result    *model.ProfilePhotoResult
	err       error
	panicWith interface{}
	block     chan struct{}
}

func (f *fakePhoto) GenerateProfilePhoto(ctx context.Context, _ model.ProfilePhotoRequest) (*model.ProfilePhotoResult, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

type fakeNotifier struct {
	err   error
	sent  []client.ReportEmail
	mu    sync.Mutex
	unset bool
}

func (n *fakeNotifier) SendReportEmail(_ context.Context, email client.ReportEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.err
}

func (n *fakeNotifier) IsConfigured() bool { return !n.unset }

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) EnqueueEvaluation(_ context.Context, videoAssessmentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, videoAssessmentID)
	return q.err
}

// countingStore counts evaluation starts that reach persistence
type countingStore struct {
	store.Store
	starts int32
}

func (s *countingStore) StartVideoAssessment(ctx context.Context, id string) (bool, error) {
	atomic.AddInt32(&s.starts, 1)
	return s.Store.StartVideoAssessment(ctx, id)
}

// recordingCountFailStore fails recording counts and serves everything else
type recordingCountFailStore struct {
	store.Store
}

func (recordingCountFailStore) CountRecordings(context.Context, string) (int64, error) {
	return 0, errors.New("connection reset")
}

func strPtr(s string) *string { return &s }
