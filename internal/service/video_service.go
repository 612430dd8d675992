package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

const (
	defaultRoleFamily = "engineering"

	// staleGrace is added to the evaluation timeout before a PROCESSING row
	// with no live worker is reclaimed
	staleGrace = 2 * time.Minute

	staleMessage = "evaluation timed out"
)

// VideoServiceConfig holds the evaluator tunables
type VideoServiceConfig struct {
	EvaluationTimeout time.Duration
	SignedURLExpiry   time.Duration
}

// VideoService drives the video evaluation state machine
// PENDING -> PROCESSING -> COMPLETED | FAILED.
//
// At most one evaluation runs per video assessment: concurrent callers in
// this process share one flight, a redis lock covers other processes, and
// the PENDING -> PROCESSING store update is a compare-and-swap.
type VideoService struct {
	store     store.Store
	analyzer  client.ContentGenerator
	storage   client.StorageClient
	queue     EvaluationQueue
	locker    Locker
	taxonomy  *Taxonomy
	validator *validator.Validate
	cfg       VideoServiceConfig
	flights   singleflight.Group
	now       func() time.Time
	log       *logrus.Logger
}

func NewVideoService(
	st store.Store,
	analyzer client.ContentGenerator,
	storage client.StorageClient,
	queue EvaluationQueue,
	locker Locker,
	v *validator.Validate,
	cfg VideoServiceConfig,
	log *logrus.Logger,
) *VideoService {
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = 10 * time.Minute
	}
	if cfg.SignedURLExpiry <= 0 {
		cfg.SignedURLExpiry = 6 * time.Hour
	}
	return &VideoService{
		store:     st,
		analyzer:  analyzer,
		storage:   storage,
		queue:     queue,
		locker:    locker,
		taxonomy:  defaultTaxonomy,
		validator: v,
		cfg:       cfg,
		now:       time.Now,
		log:       log,
	}
}

// Create registers the evaluation of an assessment's recording. An existing
// evaluation of the assessment is returned unchanged.
func (s *VideoService) Create(ctx context.Context, assessmentID, candidateID, videoURL string) (*model.VideoAssessment, error) {
	va, _, err := s.store.CreateVideoAssessment(ctx, &model.VideoAssessment{
		AssessmentID: assessmentID,
		CandidateID:  candidateID,
		VideoURL:     videoURL,
		Status:       model.VideoStatusPending,
	})
	if err != nil {
		return nil, err
	}
	return va, nil
}

// Kickoff creates the evaluation for the assessment's first recording and
// schedules it. It returns the video assessment id.
func (s *VideoService) Kickoff(ctx context.Context, assessmentID, candidateID string) (string, error) {
	rec, err := s.store.FirstRecording(ctx, assessmentID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoRecording
	}
	if err != nil {
		return "", err
	}

	va, err := s.Create(ctx, assessmentID, candidateID, rec.StorageURL)
	if err != nil {
		return "", err
	}
	if va.Status == model.VideoStatusCompleted || va.Status == model.VideoStatusProcessing {
		return va.ID, nil
	}

	if err := s.schedule(ctx, va.ID); err != nil {
		return va.ID, err
	}
	return va.ID, nil
}

// Retry reschedules a failed evaluation for its owner
func (s *VideoService) Retry(ctx context.Context, id, userID string) (*model.VideoRetryResponse, error) {
	va, err := s.store.GetVideoAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if va.CandidateID != userID {
		return nil, ErrForbidden
	}
	if va, err = s.reclaimStale(ctx, va); err != nil {
		return nil, err
	}

	switch va.Status {
	case model.VideoStatusFailed:
		if _, err := s.store.ResetVideoAssessment(ctx, id); err != nil {
			return nil, err
		}
	case model.VideoStatusPending:
	default:
		return nil, ErrNotRetryable
	}

	if err := s.schedule(ctx, id); err != nil {
		return nil, err
	}
	return &model.VideoRetryResponse{ID: id, Status: model.VideoStatusPending, Queued: true}, nil
}

func (s *VideoService) schedule(ctx context.Context, id string) error {
	if s.queue != nil {
		return s.queue.EnqueueEvaluation(ctx, id)
	}

	go func() {
		if _, err := s.Evaluate(context.Background(), id); err != nil && !errors.Is(err, ErrEvaluationInProgress) {
			s.log.WithField("video_assessment_id", id).WithError(err).Warn("background evaluation failed")
		}
	}()
	return nil
}

// Evaluate runs the analysis of a PENDING or FAILED evaluation. A COMPLETED
// evaluation is returned as is; a PROCESSING one yields
// ErrEvaluationInProgress unless its attempt is stale, in which case it is
// failed and run again. Analysis failures leave the row FAILED and are
// returned wrapped in ErrEvaluationFailed.
func (s *VideoService) Evaluate(ctx context.Context, id string) (*model.VideoAssessment, error) {
	v, err, _ := s.flights.Do(id, func() (interface{}, error) {
		return s.evaluate(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.VideoAssessment), nil
}

func (s *VideoService) evaluate(ctx context.Context, id string) (*model.VideoAssessment, error) {
	va, err := s.store.GetVideoAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if va, err = s.reclaimStale(ctx, va); err != nil {
		return nil, err
	}

	switch va.Status {
	case model.VideoStatusCompleted:
		return va, nil
	case model.VideoStatusProcessing:
		return nil, ErrEvaluationInProgress
	case model.VideoStatusFailed:
		if _, err := s.store.ResetVideoAssessment(ctx, id); err != nil {
			return nil, err
		}
	}

	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, "video-evaluate:"+va.AssessmentID, s.cfg.EvaluationTimeout+time.Minute)
		if err != nil {
			s.log.WithField("video_assessment_id", id).WithError(err).Warn("evaluation lock unavailable, relying on store guard")
		} else if release == nil {
			return nil, ErrEvaluationInProgress
		} else {
			defer release()
		}
	}

	started, err := s.store.StartVideoAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !started {
		current, err := s.store.GetVideoAssessment(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == model.VideoStatusCompleted {
			return current, nil
		}
		return nil, ErrEvaluationInProgress
	}

	entry := s.log.WithFields(logrus.Fields{
		"video_assessment_id": id,
		"assessment_id":       va.AssessmentID,
	})
	entry.Info("video evaluation started")

	analyzeCtx, cancel := context.WithTimeout(ctx, s.cfg.EvaluationTimeout)
	defer cancel()

	var (
		out *model.RubricAssessmentOutput
		raw []byte
		pc  panics.Catcher
	)
	pc.Try(func() {
		out, raw, err = s.analyze(analyzeCtx, va)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		entry.WithError(err).Warn("video evaluation failed")
		if ferr := s.store.FailVideoAssessment(persistCtx, id, err.Error()); ferr != nil {
			entry.WithError(ferr).Error("failed to mark evaluation FAILED")
		}
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	summary := &model.VideoAssessmentSummary{
		OverallScore:      out.OverallScore,
		OverallSummary:    out.OverallSummary,
		EvaluationVersion: out.EvaluationVersion,
		RawAIResponse:     datatypes.JSON(raw),
	}
	if err := s.store.CompleteVideoAssessment(persistCtx, id, summary, model.ScoreRowsFromRubric(id, out)); err != nil {
		entry.WithError(err).Error("failed to persist evaluation")
		if ferr := s.store.FailVideoAssessment(persistCtx, id, "persist evaluation: "+err.Error()); ferr != nil {
			entry.WithError(ferr).Error("failed to mark evaluation FAILED")
		}
		return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	entry.WithField("overall_score", out.OverallScore).Info("video evaluation completed")
	return s.store.GetVideoAssessment(persistCtx, id)
}

// reclaimStale fails a PROCESSING row whose attempt outlived the
// evaluation timeout, which happens when the process running it died. The
// returned row reflects the store after the reclaim.
func (s *VideoService) reclaimStale(ctx context.Context, va *model.VideoAssessment) (*model.VideoAssessment, error) {
	if va.Status != model.VideoStatusProcessing {
		return va, nil
	}
	cutoff := s.now().UTC().Add(-(s.cfg.EvaluationTimeout + staleGrace))
	if va.StartedAt != nil && !va.StartedAt.Before(cutoff) {
		return va, nil
	}

	expired, err := s.store.ExpireVideoAssessment(ctx, va.ID, cutoff, staleMessage)
	if err != nil {
		return nil, err
	}
	if expired {
		s.log.WithFields(logrus.Fields{
			"video_assessment_id": va.ID,
			"started_at":          va.StartedAt,
		}).Warn("reclaimed stale video evaluation")
	}
	return s.store.GetVideoAssessment(ctx, va.ID)
}

func (s *VideoService) analyze(ctx context.Context, va *model.VideoAssessment) (*model.RubricAssessmentOutput, []byte, error) {
	if s.analyzer == nil || !s.analyzer.IsConfigured() {
		return nil, nil, fmt.Errorf("analysis capability not configured")
	}

	videoURL := s.resolveVideoURL(ctx, va)
	prompt := BuildRubricPrompt(s.taxonomy.DimensionsFor(s.roleFamily(ctx, va.AssessmentID)))

	raw, err := s.analyzer.GenerateContent(ctx, prompt, &client.Media{
		URI:      videoURL,
		MIMEType: videoMIMEType(videoURL),
	})
	if err != nil {
		return nil, nil, err
	}
	return ParseRubricOutput(raw, s.validator)
}

// resolveVideoURL re-signs private recordings so retries never use an
// expired link
func (s *VideoService) resolveVideoURL(ctx context.Context, va *model.VideoAssessment) string {
	if s.storage == nil {
		return va.VideoURL
	}
	rec, err := s.store.FirstRecording(ctx, va.AssessmentID)
	if err != nil || rec.StorageKey == "" {
		return va.VideoURL
	}
	signed, err := s.storage.GetSignedURL(ctx, rec.StorageKey, s.cfg.SignedURLExpiry)
	if err != nil {
		s.log.WithField("video_assessment_id", va.ID).WithError(err).Warn("failed to sign recording url")
		return va.VideoURL
	}
	return signed
}

func (s *VideoService) roleFamily(ctx context.Context, assessmentID string) string {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return defaultRoleFamily
	}
	sc, err := s.store.GetScenario(ctx, a.ScenarioID)
	if err != nil || sc.RoleFamily == "" {
		return defaultRoleFamily
	}
	return sc.RoleFamily
}

func videoMIMEType(u string) string {
	p := u
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	default:
		return "video/webm"
	}
}

// ParseRubricOutput cleans, decodes and validates a raw model response.
// It returns the cleaned JSON document alongside the decoded output.
func ParseRubricOutput(raw string, v *validator.Validate) (*model.RubricAssessmentOutput, []byte, error) {
	cleaned := client.CleanJSONResponse(raw)
	if cleaned == "" {
		return nil, nil, fmt.Errorf("empty model response")
	}

	var out model.RubricAssessmentOutput
	if err := sonic.UnmarshalString(cleaned, &out); err != nil {
		return nil, nil, fmt.Errorf("malformed rubric output: %w", err)
	}
	if err := v.Struct(&out); err != nil {
		return nil, nil, fmt.Errorf("rubric output failed validation: %w", err)
	}

	if out.DimensionScores == nil {
		out.DimensionScores = []model.DimensionScoreOutput{}
	}
	return &out, []byte(cleaned), nil
}

// GetResults returns the evaluation state to its candidate, with scores
// and the rubric once COMPLETED
func (s *VideoService) GetResults(ctx context.Context, id, userID string) (*model.VideoResultsResponse, error) {
	va, err := s.store.GetVideoAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if va.CandidateID != userID {
		return nil, ErrForbidden
	}

	resp := &model.VideoResultsResponse{
		ID:           va.ID,
		AssessmentID: va.AssessmentID,
		Status:       va.Status,
		Attempts:     va.Attempts,
		Error:        va.ErrorMessage,
	}
	if va.Status != model.VideoStatusCompleted || va.Summary == nil {
		return resp, nil
	}

	summary := &model.VideoResultSummary{
		OverallScore:      va.Summary.OverallScore,
		OverallSummary:    va.Summary.OverallSummary,
		EvaluationVersion: va.Summary.EvaluationVersion,
		Scores:            va.Scores,
	}
	if summary.Scores == nil {
		summary.Scores = []model.VideoDimensionScore{}
	}
	if rubric, err := RubricFromSummary(va.Summary); err == nil {
		summary.Rubric = rubric
	}
	resp.Summary = summary
	return resp, nil
}

// RubricFromSummary decodes the rubric output stored with a summary
func RubricFromSummary(sum *model.VideoAssessmentSummary) (*model.RubricAssessmentOutput, error) {
	if sum == nil || len(sum.RawAIResponse) == 0 {
		return nil, fmt.Errorf("summary has no rubric output")
	}
	var out model.RubricAssessmentOutput
	if err := sonic.Unmarshal(sum.RawAIResponse, &out); err != nil {
		return nil, fmt.Errorf("decode stored rubric: %w", err)
	}
	return &out, nil
}

// BuildRubricPrompt instructs the video model to score the given dimensions
// and answer with the rubric JSON document
func BuildRubricPrompt(dims []RubricDimension) string {
	var b strings.Builder
	b.WriteString("You are evaluating a screen recording of a candidate completing a simulated software job.\n")
	b.WriteString("Score each dimension from 1 (weak) to 4 (exceptional), or null when the recording shows no evidence.\n\n")
	b.WriteString("Dimensions:\n")
	for _, d := range dims {
		fmt.Fprintf(&b, "- %s: %s\n", d.Slug, d.Description)
	}
	b.WriteString(`
Respond with JSON only, matching:
{
  "overallScore": number 0-4,
  "overallSummary": string,
  "dimensionScores": [{
    "dimensionSlug": string,
    "score": number 1-4 or null,
    "rationale": string,
    "greenFlags": [string],
    "redFlags": [string],
    "observableBehaviors": [{"timestamp": "MM:SS", "behavior": string}]
  }],
  "topStrengths": [{"dimension": string, "description": string}],
  "growthAreas": [{"dimension": string, "description": string}],
  "detectedRedFlags": [{"dimension": string, "evidence": string, "timestamp": "MM:SS"}],
  "evaluationVersion": "rubric-v1"
}`)
	return b.String()
}
