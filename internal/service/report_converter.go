package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/worksim/api/internal/model"
)

const (
	maxNotableObservations = 5
	maxRecommendations     = 3
	maxActionableSteps     = 3
)

var defaultTaxonomy = DefaultTaxonomy()

// ReportTiming carries the durations reported in the metrics block
type ReportTiming struct {
	TotalDurationMinutes *int
	WorkingPhaseMinutes  *int
}

// ConvertOptions is the context the rubric output is converted in
type ConvertOptions struct {
	AssessmentID       string
	CandidateName      string
	Timing             *ReportTiming
	CoworkersContacted int
	// TestsStatus overrides the "unknown" default when CI status is known
	TestsStatus string
	Now         time.Time
	Taxonomy    *Taxonomy
}

type categoryScore struct {
	category  string
	dimension model.DimensionScoreOutput
	score     float64
}

// ConvertRubricToReport turns a completed video evaluation into the report
// document. It is total: any well-typed output, including one without
// dimension scores, yields a valid report.
func ConvertRubricToReport(out *model.RubricAssessmentOutput, opts ConvertOptions) *model.AssessmentReport {
	tax := opts.Taxonomy
	if tax == nil {
		tax = defaultTaxonomy
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if out == nil {
		out = &model.RubricAssessmentOutput{}
	}

	best := bestPerCategory(out.DimensionScores, tax)

	skillScores := make([]model.SkillScore, 0, len(best))
	for _, cs := range best {
		skillScores = append(skillScores, model.SkillScore{
			Category: cs.category,
			Score:    cs.score,
			Level:    ScoreToLevel(cs.score),
			Evidence: flagEvidence(cs.dimension),
		})
	}

	testsStatus := opts.TestsStatus
	if testsStatus == "" {
		testsStatus = model.CIStatusUnknown
	}
	metrics := model.ReportMetrics{
		CoworkersContacted: opts.CoworkersContacted,
		AIToolsUsed:        true,
		TestsStatus:        testsStatus,
	}
	if opts.Timing != nil {
		metrics.TotalDurationMinutes = opts.Timing.TotalDurationMinutes
		metrics.WorkingPhaseMinutes = opts.Timing.WorkingPhaseMinutes
	}

	return &model.AssessmentReport{
		GeneratedAt:     now,
		AssessmentID:    opts.AssessmentID,
		CandidateName:   opts.CandidateName,
		OverallScore:    out.OverallScore,
		OverallLevel:    ScoreToLevel(out.OverallScore),
		SkillScores:     skillScores,
		Narrative:       buildNarrative(out),
		Recommendations: buildRecommendations(best, out.DetectedRedFlags, tax),
		Metrics:         metrics,
		Version:         model.ReportVersion,
	}
}

// bestPerCategory keeps the highest scoring dimension of each category, in
// order of the category's first appearance. Unscored dimensions are skipped.
func bestPerCategory(dims []model.DimensionScoreOutput, tax *Taxonomy) []categoryScore {
	index := make(map[string]int)
	out := make([]categoryScore, 0)
	for _, d := range dims {
		if d.Score == nil {
			continue
		}
		cat := tax.CategoryFor(d.DimensionSlug)
		i, seen := index[cat]
		if !seen {
			index[cat] = len(out)
			out = append(out, categoryScore{category: cat, dimension: d, score: *d.Score})
			continue
		}
		if *d.Score > out[i].score {
			out[i].dimension = d
			out[i].score = *d.Score
		}
	}
	return out
}

// ScoreToLevel maps a 1-4 score to its level; boundaries are inclusive
func ScoreToLevel(score float64) model.SkillLevel {
	switch {
	case score >= 3.5:
		return model.SkillLevelExceptional
	case score >= 2.5:
		return model.SkillLevelStrong
	case score >= 1.5:
		return model.SkillLevelAdequate
	default:
		return model.SkillLevelNeedsImprovement
	}
}

func flagEvidence(d model.DimensionScoreOutput) []string {
	evidence := make([]string, 0, len(d.GreenFlags)+len(d.RedFlags))
	for _, f := range d.GreenFlags {
		evidence = append(evidence, "+ "+f)
	}
	for _, f := range d.RedFlags {
		evidence = append(evidence, "- "+f)
	}
	return evidence
}

func buildNarrative(out *model.RubricAssessmentOutput) model.ReportNarrative {
	strengths := make([]string, 0, len(out.TopStrengths))
	for _, s := range out.TopStrengths {
		strengths = append(strengths, s.Description)
	}

	areas := make([]string, 0, len(out.GrowthAreas)+len(out.DetectedRedFlags))
	for _, g := range out.GrowthAreas {
		areas = append(areas, g.Description)
	}
	for _, rf := range out.DetectedRedFlags {
		areas = append(areas, "Red flag: "+rf.Evidence)
	}

	observations := make([]string, 0, maxNotableObservations)
	for _, d := range out.DimensionScores {
		if len(observations) == maxNotableObservations {
			break
		}
		if d.Score == nil || *d.Score < 3 || len(d.ObservableBehaviors) == 0 {
			continue
		}
		b := d.ObservableBehaviors[0]
		observations = append(observations, fmt.Sprintf("[%s] %s", b.Timestamp, b.Behavior))
	}

	return model.ReportNarrative{
		OverallSummary:      out.OverallSummary,
		Strengths:           strengths,
		AreasForImprovement: areas,
		NotableObservations: observations,
	}
}

// buildRecommendations targets the weakest categories (score <= 2). Steps
// come from the negative evidence of the category's skill score first, then
// from the detected red flags of the category.
func buildRecommendations(best []categoryScore, detected []model.DetectedRedFlag, tax *Taxonomy) []model.Recommendation {
	weak := make([]categoryScore, 0)
	for _, cs := range best {
		if cs.score <= 2 {
			weak = append(weak, cs)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].score < weak[j].score })
	if len(weak) > maxRecommendations {
		weak = weak[:maxRecommendations]
	}

	recs := make([]model.Recommendation, 0, len(weak))
	for _, cs := range weak {
		priority := model.PriorityMedium
		if cs.score <= 1 {
			priority = model.PriorityHigh
		}

		flags := make([]string, 0)
		for _, e := range flagEvidence(cs.dimension) {
			if f, ok := strings.CutPrefix(e, "- "); ok {
				flags = append(flags, f)
			}
		}
		for _, rf := range detected {
			if tax.CategoryFor(rf.Dimension) == cs.category {
				flags = append(flags, rf.Evidence)
			}
		}

		steps := make([]string, 0, maxActionableSteps)
		seen := make(map[string]struct{})
		for _, f := range flags {
			if len(steps) == maxActionableSteps {
				break
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			steps = append(steps, "Address: "+f)
		}

		description := fmt.Sprintf("Scored %.1f/4 in %s.", cs.score, humanizeCategory(cs.category))
		if cs.dimension.Rationale != "" {
			description += " " + cs.dimension.Rationale
		}

		recs = append(recs, model.Recommendation{
			Category:        cs.category,
			Priority:        priority,
			Title:           "Strengthen " + humanizeCategory(cs.category),
			Description:     description,
			ActionableSteps: steps,
		})
	}
	return recs
}

func humanizeCategory(category string) string {
	words := strings.Fields(strings.ReplaceAll(category, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
