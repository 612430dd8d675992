package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

// VideoTrigger starts the video evaluation of an assessment
type VideoTrigger interface {
	Kickoff(ctx context.Context, assessmentID, candidateID string) (string, error)
}

// ProfilePhotoGenerator produces the candidate's profile photo
type ProfilePhotoGenerator interface {
	GenerateProfilePhoto(ctx context.Context, req model.ProfilePhotoRequest) (*model.ProfilePhotoResult, error)
}

// FinalizeTimeouts bounds each finalization side effect
type FinalizeTimeouts struct {
	PRCleanup    time.Duration
	VideoKickoff time.Duration
	ProfilePhoto time.Duration
}

// FinalizeService closes out an assessment: WORKING -> COMPLETED, then PR
// cleanup, video evaluation kickoff and profile photo generation. Only the
// ownership check, the state guard and the status update can fail the call.
type FinalizeService struct {
	store    store.Store
	prs      client.PRProvider
	video    VideoTrigger
	photos   ProfilePhotoGenerator
	timeouts FinalizeTimeouts
	log      *logrus.Logger
	now      func() time.Time
}

func NewFinalizeService(
	st store.Store,
	prs client.PRProvider,
	video VideoTrigger,
	photos ProfilePhotoGenerator,
	timeouts FinalizeTimeouts,
	log *logrus.Logger,
) *FinalizeService {
	if timeouts.PRCleanup <= 0 {
		timeouts.PRCleanup = 30 * time.Second
	}
	if timeouts.VideoKickoff <= 0 {
		timeouts.VideoKickoff = 15 * time.Second
	}
	if timeouts.ProfilePhoto <= 0 {
		timeouts.ProfilePhoto = 60 * time.Second
	}
	return &FinalizeService{
		store:    st,
		prs:      prs,
		video:    video,
		photos:   photos,
		timeouts: timeouts,
		log:      log,
		now:      time.Now,
	}
}

func (s *FinalizeService) Finalize(ctx context.Context, assessmentID, userID string) (*model.FinalizeResponse, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrForbidden
	}
	if a.Status != model.AssessmentStatusWorking {
		return nil, &InvalidStateError{Actual: a.Status, Expected: model.AssessmentStatusWorking}
	}

	completedAt := s.now().UTC()
	updated, err := s.store.CompleteAssessment(ctx, assessmentID, completedAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		current, err := s.store.GetAssessment(ctx, assessmentID)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidStateError{Actual: current.Status, Expected: model.AssessmentStatusWorking}
	}
	a.Status = model.AssessmentStatusCompleted
	a.CompletedAt = &completedAt

	entry := s.log.WithField("assessment_id", assessmentID)
	entry.Info("assessment completed")

	res := &model.FinalizeResponse{
		Success: true,
		Assessment: model.AssessmentSummary{
			ID:          a.ID,
			Status:      a.Status,
			StartedAt:   a.StartedAt,
			CompletedAt: a.CompletedAt,
		},
		Timing: model.AssessmentTiming{
			StartedAt:            a.StartedAt,
			CompletedAt:          completedAt,
			TotalDurationSeconds: int64(completedAt.Sub(a.StartedAt).Seconds()),
		},
	}

	// The status change is durable; side effects must not die with the request.
	base := context.WithoutCancel(ctx)

	var wg conc.WaitGroup
	wg.Go(func() {
		s.isolate(entry, "pr_cleanup", func() {
			res.PRCleanup = s.cleanupPR(base, entry, a)
		})
	})
	wg.Go(func() {
		s.isolate(entry, "video_assessment", func() {
			s.triggerVideo(base, entry, a, &res.VideoAssessment)
		})
	})
	wg.Go(func() {
		s.isolate(entry, "profile_photo", func() {
			res.ProfilePhoto = s.generatePhoto(base, entry, a)
		})
	})
	wg.Wait()

	return res, nil
}

// isolate runs one side effect, turning a panic into a log line
func (s *FinalizeService) isolate(entry *logrus.Entry, name string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		entry.WithFields(logrus.Fields{
			"side_effect": name,
			"panic":       r.Value,
		}).Error("finalize side effect panicked")
	}
}

func (s *FinalizeService) cleanupPR(ctx context.Context, entry *logrus.Entry, a *model.Assessment) *model.PRCleanupResult {
	if a.PRURL == nil || *a.PRURL == "" || s.prs == nil {
		return nil
	}
	entry = entry.WithField("side_effect", "pr_cleanup")

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.PRCleanup)
	defer cancel()

	result, err := s.prs.CleanupPRAfterAssessment(ctx, *a.PRURL)
	if err != nil {
		entry.WithError(err).Warn("pr cleanup failed")
		return nil
	}
	if result != nil && result.PRSnapshot != nil {
		if err := s.store.SavePRSnapshot(ctx, a.ID, result.PRSnapshot); err != nil {
			entry.WithError(err).Warn("failed to store pr snapshot")
		}
	}
	return result
}

// triggerVideo reports triggered=true as soon as a recording exists, even
// when the kickoff itself fails
func (s *FinalizeService) triggerVideo(ctx context.Context, entry *logrus.Entry, a *model.Assessment, out *model.VideoTriggerResult) {
	entry = entry.WithField("side_effect", "video_assessment")

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.VideoKickoff)
	defer cancel()

	n, err := s.store.CountRecordings(ctx, a.ID)
	if err != nil {
		entry.WithError(err).Warn("failed to count recordings, attempting kickoff anyway")
		if s.video != nil {
			s.kickoffUncounted(ctx, entry, a, out)
		}
		return
	}
	if n == 0 || s.video == nil {
		out.HasRecording = n > 0
		return
	}
	out.HasRecording = true
	out.Triggered = true

	id, err := s.video.Kickoff(ctx, a.ID, a.UserID)
	if id != "" {
		out.VideoAssessmentID = &id
	}
	if err != nil {
		entry.WithError(err).Warn("video evaluation kickoff failed")
	}
}

// kickoffUncounted lets the kickoff itself find the recording. A returned
// id proves one exists.
func (s *FinalizeService) kickoffUncounted(ctx context.Context, entry *logrus.Entry, a *model.Assessment, out *model.VideoTriggerResult) {
	id, err := s.video.Kickoff(ctx, a.ID, a.UserID)
	if errors.Is(err, ErrNoRecording) {
		return
	}
	if id != "" {
		out.VideoAssessmentID = &id
		out.HasRecording = true
		out.Triggered = true
	}
	if err != nil {
		entry.WithError(err).Warn("video evaluation kickoff failed")
	}
}

func (s *FinalizeService) generatePhoto(ctx context.Context, entry *logrus.Entry, a *model.Assessment) model.ProfilePhotoOutcome {
	if s.photos == nil {
		return model.ProfilePhotoOutcome{}
	}
	entry = entry.WithField("side_effect", "profile_photo")

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.ProfilePhoto)
	defer cancel()

	result, err := s.photos.GenerateProfilePhoto(ctx, model.ProfilePhotoRequest{
		AssessmentID: a.ID,
		UserID:       a.UserID,
	})
	if err != nil {
		entry.WithError(err).Warn("profile photo generation failed")
		return model.ProfilePhotoOutcome{}
	}
	if result == nil || !result.Success || result.ImageURL == nil {
		return model.ProfilePhotoOutcome{}
	}
	return model.ProfilePhotoOutcome{Generated: true, ImageURL: result.ImageURL}
}
