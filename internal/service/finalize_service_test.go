package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/worksim/api/internal/logger"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

type finalizeFixture struct {
	store        *store.MemoryStore
	prs          *fakePRProvider
	video        *fakeVideoTrigger
	photo        *fakePhoto
	svc          *FinalizeService
	assessmentID string
	userID       string
	startedAt    time.Time
}

func newFinalizeFixture(t *testing.T, withRecording bool) *finalizeFixture {
	t.Helper()
	st := store.NewMemoryStore()
	userID := st.PutUser(model.User{Email: "dev@example.com", Name: "Dana"})
	scenarioID := st.PutScenario(model.Scenario{Name: "Checkout", RoleFamily: "engineering"})
	startedAt := time.Now().UTC().Add(-90 * time.Minute)
	assessmentID := st.PutAssessment(model.Assessment{
		UserID:     userID,
		ScenarioID: scenarioID,
		Status:     model.AssessmentStatusWorking,
		StartedAt:  startedAt,
		PRURL:      strPtr("https://github.com/acme/checkout/pull/7"),
	})
	if withRecording {
		st.PutRecording(model.Recording{
			AssessmentID: assessmentID,
			Type:         model.RecordingTypeScreen,
			StorageURL:   "https://cdn.example.com/rec.webm",
			StartTime:    startedAt.Add(5 * time.Minute),
		})
	}

	f := &finalizeFixture{
		store: st,
		prs: &fakePRProvider{result: &model.PRCleanupResult{
			Success: true,
			Action:  model.PRActionClosed,
			PRSnapshot: &model.PRSnapshot{
				URL:      "https://github.com/acme/checkout/pull/7",
				Number:   7,
				State:    "closed",
				CIStatus: &model.PRCIStatus{State: model.CIStatusSuccess},
			},
		}},
		video:        &fakeVideoTrigger{id: "va-1"},
		photo:        &fakePhoto{result: &model.ProfilePhotoResult{Success: true, ImageURL: strPtr("https://cdn.example.com/p.webp")}},
		assessmentID: assessmentID,
		userID:       userID,
		startedAt:    startedAt,
	}
	f.svc = NewFinalizeService(st, f.prs, f.video, f.photo, FinalizeTimeouts{
		PRCleanup:    time.Second,
		VideoKickoff: time.Second,
		ProfilePhoto: time.Second,
	}, logger.Discard())
	return f
}

func TestFinalizeAllSideEffectsSucceed(t *testing.T) {
	f := newFinalizeFixture(t, true)
	ctx := context.Background()

	res, err := f.svc.Finalize(ctx, f.assessmentID, f.userID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if !res.Success || res.Assessment.Status != model.AssessmentStatusCompleted || res.Assessment.CompletedAt == nil {
		t.Fatalf("unexpected assessment: %+v", res.Assessment)
	}
	if res.Timing.TotalDurationSeconds < 90*60 || res.Timing.TotalDurationSeconds > 91*60 {
		t.Errorf("duration = %d", res.Timing.TotalDurationSeconds)
	}
	if res.PRCleanup == nil || res.PRCleanup.Action != model.PRActionClosed {
		t.Errorf("pr cleanup = %+v", res.PRCleanup)
	}
	vt := res.VideoAssessment
	if !vt.Triggered || !vt.HasRecording || vt.VideoAssessmentID == nil || *vt.VideoAssessmentID != "va-1" {
		t.Errorf("video = %+v", vt)
	}
	if !res.ProfilePhoto.Generated || res.ProfilePhoto.ImageURL == nil {
		t.Errorf("photo = %+v", res.ProfilePhoto)
	}

	a, _ := f.store.GetAssessment(ctx, f.assessmentID)
	if a.Status != model.AssessmentStatusCompleted || a.CompletedAt == nil {
		t.Errorf("stored assessment = %+v", a)
	}
	if a.PRSnapshot == nil || a.PRSnapshot.Number != 7 {
		t.Errorf("pr snapshot not persisted: %+v", a.PRSnapshot)
	}
}

func TestFinalizeWithoutRecordingOrPR(t *testing.T) {
	f := newFinalizeFixture(t, false)
	ctx := context.Background()
	a, _ := f.store.GetAssessment(ctx, f.assessmentID)
	a.PRURL = nil
	f.store.PutAssessment(*a)

	res, err := f.svc.Finalize(ctx, f.assessmentID, f.userID)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.PRCleanup != nil {
		t.Errorf("pr cleanup = %+v, want nil", res.PRCleanup)
	}
	if res.VideoAssessment.Triggered || res.VideoAssessment.HasRecording || res.VideoAssessment.VideoAssessmentID != nil {
		t.Errorf("video = %+v", res.VideoAssessment)
	}
	if f.video.calls != 0 || f.prs.calls != 0 {
		t.Errorf("kickoff calls = %d, pr calls = %d", f.video.calls, f.prs.calls)
	}
}

func TestFinalizeKicksOffWhenRecordingCountFails(t *testing.T) {
	tests := []struct {
		name          string
		kickoffID     string
		kickoffErr    error
		wantTriggered bool
	}{
		{"recording found by kickoff", "va-1", nil, true},
		{"no recording", "", ErrNoRecording, false},
		{"store down", "", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFinalizeFixture(t, true)
			f.video.id, f.video.err = tt.kickoffID, tt.kickoffErr
			svc := NewFinalizeService(recordingCountFailStore{f.store}, f.prs, f.video, f.photo, FinalizeTimeouts{
				PRCleanup:    time.Second,
				VideoKickoff: time.Second,
				ProfilePhoto: time.Second,
			}, logger.Discard())

			res, err := svc.Finalize(context.Background(), f.assessmentID, f.userID)
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if f.video.calls != 1 {
				t.Errorf("kickoff calls = %d, want 1", f.video.calls)
			}
			vt := res.VideoAssessment
			if vt.Triggered != tt.wantTriggered || vt.HasRecording != tt.wantTriggered {
				t.Errorf("video = %+v", vt)
			}
			if tt.wantTriggered && (vt.VideoAssessmentID == nil || *vt.VideoAssessmentID != tt.kickoffID) {
				t.Errorf("video assessment id = %v", vt.VideoAssessmentID)
			}
		})
	}
}

func TestFinalizeSideEffectFailuresDegrade(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *finalizeFixture)
		check func(t *testing.T, res *model.FinalizeResponse)
	}{
		{
			name:  "pr cleanup error",
			setup: func(f *finalizeFixture) { f.prs.result, f.prs.err = nil, errors.New("github down") },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if res.PRCleanup != nil {
					t.Errorf("pr cleanup = %+v, want nil", res.PRCleanup)
				}
			},
		},
		{
			name:  "pr cleanup panic",
			setup: func(f *finalizeFixture) { f.prs.panicWith = "boom" },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if res.PRCleanup != nil {
					t.Errorf("pr cleanup = %+v, want nil", res.PRCleanup)
				}
			},
		},
		{
			name:  "video kickoff error",
			setup: func(f *finalizeFixture) { f.video.id, f.video.err = "", errors.New("db timeout") },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				vt := res.VideoAssessment
				if !vt.Triggered || !vt.HasRecording || vt.VideoAssessmentID != nil {
					t.Errorf("video = %+v", vt)
				}
			},
		},
		{
			name:  "video kickoff panic",
			setup: func(f *finalizeFixture) { f.video.panicWith = errors.New("nil map") },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if !res.VideoAssessment.Triggered || res.VideoAssessment.VideoAssessmentID != nil {
					t.Errorf("video = %+v", res.VideoAssessment)
				}
			},
		},
		{
			name:  "photo error",
			setup: func(f *finalizeFixture) { f.photo.result, f.photo.err = nil, errors.New("quota") },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if res.ProfilePhoto.Generated || res.ProfilePhoto.ImageURL != nil {
					t.Errorf("photo = %+v", res.ProfilePhoto)
				}
			},
		},
		{
			name:  "photo unsuccessful",
			setup: func(f *finalizeFixture) { f.photo.result = &model.ProfilePhotoResult{Success: false, Error: "no face"} },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if res.ProfilePhoto.Generated {
					t.Errorf("photo = %+v", res.ProfilePhoto)
				}
			},
		},
		{
			name:  "photo panic",
			setup: func(f *finalizeFixture) { f.photo.panicWith = "decoder" },
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if res.ProfilePhoto.Generated {
					t.Errorf("photo = %+v", res.ProfilePhoto)
				}
			},
		},
		{
			name: "photo timeout",
			setup: func(f *finalizeFixture) {
				f.photo.block = make(chan struct{})
				f.svc.timeouts.ProfilePhoto = 20 * time.Millisecond
			},
			check: func(t *testing.T, res *model.FinalizeResponse) {
				if res.ProfilePhoto.Generated {
					t.Errorf("photo = %+v", res.ProfilePhoto)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFinalizeFixture(t, true)
			tt.setup(f)

			res, err := f.svc.Finalize(context.Background(), f.assessmentID, f.userID)
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if !res.Success || res.Assessment.Status != model.AssessmentStatusCompleted {
				t.Fatalf("finalization must succeed: %+v", res)
			}
			tt.check(t, res)

			a, _ := f.store.GetAssessment(context.Background(), f.assessmentID)
			if a.Status != model.AssessmentStatusCompleted {
				t.Errorf("stored status = %s", a.Status)
			}
		})
	}
}

func TestFinalizeStateGuard(t *testing.T) {
	statuses := []model.AssessmentStatus{
		model.AssessmentStatusHRInterview,
		model.AssessmentStatusOnboarding,
		model.AssessmentStatusFinalDefense,
		model.AssessmentStatusProcessing,
		model.AssessmentStatusCompleted,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			f := newFinalizeFixture(t, true)
			ctx := context.Background()
			a, _ := f.store.GetAssessment(ctx, f.assessmentID)
			a.Status = status
			f.store.PutAssessment(*a)

			_, err := f.svc.Finalize(ctx, f.assessmentID, f.userID)
			var stateErr *InvalidStateError
			if !errors.As(err, &stateErr) {
				t.Fatalf("err = %v, want InvalidStateError", err)
			}
			if stateErr.Actual != status || stateErr.Expected != model.AssessmentStatusWorking {
				t.Errorf("state error = %+v", stateErr)
			}
			if f.prs.calls != 0 || f.video.calls != 0 {
				t.Error("side effects must not run on a rejected finalization")
			}
			after, _ := f.store.GetAssessment(ctx, f.assessmentID)
			if after.Status != status {
				t.Errorf("status changed to %s", after.Status)
			}
		})
	}
}

func TestFinalizeRejectsOtherUser(t *testing.T) {
	f := newFinalizeFixture(t, true)

	if _, err := f.svc.Finalize(context.Background(), f.assessmentID, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	a, _ := f.store.GetAssessment(context.Background(), f.assessmentID)
	if a.Status != model.AssessmentStatusWorking {
		t.Errorf("status = %s, want WORKING", a.Status)
	}
}

func TestFinalizeUnknownAssessment(t *testing.T) {
	f := newFinalizeFixture(t, true)

	if _, err := f.svc.Finalize(context.Background(), "missing", f.userID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFinalizeConcurrentCallsCompleteOnce(t *testing.T) {
	f := newFinalizeFixture(t, false)
	ctx := context.Background()

	const n = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Finalize(ctx, f.assessmentID, f.userID)
			var stateErr *InvalidStateError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.As(err, &stateErr) && stateErr.Actual == model.AssessmentStatusCompleted:
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || rejected != n-1 {
		t.Errorf("successes = %d, rejected = %d", successes, rejected)
	}
}
