package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

const (
	reportEmailTimeout = 15 * time.Second
	ciStatusTimeout    = 10 * time.Second
)

// VideoEvaluator is the part of the video evaluator report generation needs
type VideoEvaluator interface {
	Create(ctx context.Context, assessmentID, candidateID, videoURL string) (*model.VideoAssessment, error)
	Evaluate(ctx context.Context, id string) (*model.VideoAssessment, error)
}

// ReportService builds and persists the assessment report from the video
// evaluation, evaluating synchronously when no result exists yet
type ReportService struct {
	store    store.Store
	video    VideoEvaluator
	prs      client.PRProvider
	notifier client.Notifier
	taxonomy *Taxonomy
	baseURL  string
	log      *logrus.Logger
	now      func() time.Time
}

func NewReportService(st store.Store, video VideoEvaluator, prs client.PRProvider, notifier client.Notifier, appBaseURL string, log *logrus.Logger) *ReportService {
	return &ReportService{
		store:    st,
		video:    video,
		prs:      prs,
		notifier: notifier,
		taxonomy: defaultTaxonomy,
		baseURL:  strings.TrimRight(appBaseURL, "/"),
		log:      log,
		now:      time.Now,
	}
}

func (s *ReportService) GenerateReport(ctx context.Context, assessmentID, userID string, force bool) (*model.GenerateReportResponse, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrForbidden
	}
	if a.Status != model.AssessmentStatusCompleted {
		return nil, &InvalidStateError{Actual: a.Status, Expected: model.AssessmentStatusCompleted}
	}

	if a.Report != nil && !force {
		return &model.GenerateReportResponse{Success: true, Report: a.Report, Cached: true}, nil
	}

	rec, err := s.store.FirstRecording(ctx, assessmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoRecording
	}
	if err != nil {
		return nil, err
	}

	entry := s.log.WithField("assessment_id", assessmentID)

	va, err := s.completedEvaluation(ctx, a, rec)
	if err != nil {
		return nil, err
	}
	rubric, err := RubricFromSummary(va.Summary)
	if err != nil {
		return nil, fmt.Errorf("load evaluation %s: %w", va.ID, err)
	}

	user, err := s.store.GetUser(ctx, a.UserID)
	if err != nil {
		entry.WithError(err).Warn("failed to load candidate")
	}
	coworkers, err := s.store.CountContactedCoworkers(ctx, assessmentID)
	if err != nil {
		entry.WithError(err).Warn("failed to count contacted coworkers")
	}

	now := s.now().UTC()
	opts := ConvertOptions{
		AssessmentID:       assessmentID,
		Timing:             reportTiming(a, rec, now),
		CoworkersContacted: coworkers,
		Now:                now,
		Taxonomy:           s.taxonomy,
	}
	if user != nil {
		opts.CandidateName = user.Name
	}
	if ci := s.ciStatus(ctx, entry, a); ci != nil {
		opts.TestsStatus = ci.State
	}

	report := ConvertRubricToReport(rubric, opts)
	if err := s.store.SaveReport(ctx, assessmentID, report); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	entry.WithFields(logrus.Fields{
		"overall_score": report.OverallScore,
		"forced":        force,
	}).Info("report generated")

	return &model.GenerateReportResponse{
		Success:   true,
		Report:    report,
		EmailSent: s.sendEmail(ctx, entry, a, user, report),
	}, nil
}

// ciStatus returns the CI status captured when the PR was closed. When the
// snapshot lacks one it is fetched from the code host and stored with the
// snapshot.
func (s *ReportService) ciStatus(ctx context.Context, entry *logrus.Entry, a *model.Assessment) *model.PRCIStatus {
	if a.PRSnapshot != nil && a.PRSnapshot.CIStatus != nil {
		return a.PRSnapshot.CIStatus
	}
	if a.PRURL == nil || s.prs == nil || !s.prs.IsConfigured() {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, ciStatusTimeout)
	defer cancel()
	ci, err := s.prs.FetchPRCIStatus(fetchCtx, *a.PRURL)
	if err != nil {
		entry.WithError(err).Warn("failed to fetch pr ci status")
		return nil
	}

	snapshot := model.PRSnapshot{URL: *a.PRURL, CapturedAt: s.now().UTC()}
	if a.PRSnapshot != nil {
		snapshot = *a.PRSnapshot
	}
	snapshot.CIStatus = ci
	if err := s.store.SavePRSnapshot(ctx, a.ID, &snapshot); err != nil {
		entry.WithError(err).Warn("failed to store pr ci status")
	}
	return ci
}

// completedEvaluation returns the COMPLETED video evaluation of the
// assessment, running it when it is not yet COMPLETED. A live PROCESSING
// attempt surfaces as ErrEvaluationInProgress; a stale one is rerun.
func (s *ReportService) completedEvaluation(ctx context.Context, a *model.Assessment, rec *model.Recording) (*model.VideoAssessment, error) {
	va, err := s.video.Create(ctx, a.ID, a.UserID, rec.StorageURL)
	if err != nil {
		return nil, err
	}

	if va.Status != model.VideoStatusCompleted {
		if va, err = s.video.Evaluate(ctx, va.ID); err != nil {
			return nil, err
		}
	}

	if va.Summary == nil {
		return s.store.GetVideoAssessment(ctx, va.ID)
	}
	return va, nil
}

func reportTiming(a *model.Assessment, rec *model.Recording, now time.Time) *ReportTiming {
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	t := &ReportTiming{}
	if !a.StartedAt.IsZero() && end.After(a.StartedAt) {
		total := int(end.Sub(a.StartedAt).Minutes())
		t.TotalDurationMinutes = &total
	}
	if rec != nil && !rec.StartTime.IsZero() && end.After(rec.StartTime) {
		working := int(end.Sub(rec.StartTime).Minutes())
		t.WorkingPhaseMinutes = &working
	}
	return t
}

func (s *ReportService) sendEmail(ctx context.Context, entry *logrus.Entry, a *model.Assessment, user *model.User, report *model.AssessmentReport) bool {
	if s.notifier == nil || !s.notifier.IsConfigured() || user == nil || user.Email == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportEmailTimeout)
	defer cancel()

	scenarioName := ""
	if sc, err := s.store.GetScenario(ctx, a.ScenarioID); err == nil {
		scenarioName = sc.Name
	}

	err := s.notifier.SendReportEmail(ctx, client.ReportEmail{
		To:            user.Email,
		CandidateName: user.Name,
		ScenarioName:  scenarioName,
		ReportURL:     fmt.Sprintf("%s/assessments/%s/report", s.baseURL, a.ID),
		Report:        report,
	})
	if err != nil {
		entry.WithError(err).Warn("failed to send report email")
		return false
	}
	return true
}

// GetReport returns the persisted report of an assessment
func (s *ReportService) GetReport(ctx context.Context, assessmentID, userID string) (*model.AssessmentReport, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrForbidden
	}
	if a.Report == nil {
		return nil, store.ErrNotFound
	}
	return a.Report, nil
}
