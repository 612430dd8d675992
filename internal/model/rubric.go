package model

// RubricAssessmentOutput is the structured output the video analysis model
// must return. The validate tags are the schema checked before persistence.
type RubricAssessmentOutput struct {
	OverallScore      float64                `json:"overallScore" validate:"gte=0,lte=4"`
	OverallSummary    string                 `json:"overallSummary"`
	DimensionScores   []DimensionScoreOutput `json:"dimensionScores" validate:"dive"`
	TopStrengths      []StrengthOutput       `json:"topStrengths" validate:"dive"`
	GrowthAreas       []GrowthAreaOutput     `json:"growthAreas" validate:"dive"`
	DetectedRedFlags  []DetectedRedFlag      `json:"detectedRedFlags" validate:"dive"`
	EvaluationVersion string                 `json:"evaluationVersion"`
}

// DimensionScoreOutput is the score of one rubric dimension; Score is nil
// when the recording gave no evidence for the dimension
type DimensionScoreOutput struct {
	DimensionSlug       string               `json:"dimensionSlug" validate:"required"`
	Score               *float64             `json:"score" validate:"omitempty,gte=1,lte=4"`
	Rationale           string               `json:"rationale"`
	GreenFlags          []string             `json:"greenFlags"`
	RedFlags            []string             `json:"redFlags"`
	ObservableBehaviors []ObservableBehavior `json:"observableBehaviors" validate:"dive"`
}

// ObservableBehavior is a timestamped behavior seen in the recording
type ObservableBehavior struct {
	Timestamp string `json:"timestamp"`
	Behavior  string `json:"behavior" validate:"required"`
}

type StrengthOutput struct {
	Dimension   string `json:"dimension"`
	Description string `json:"description" validate:"required"`
}

type GrowthAreaOutput struct {
	Dimension   string `json:"dimension"`
	Description string `json:"description" validate:"required"`
}

type DetectedRedFlag struct {
	Dimension string `json:"dimension"`
	Evidence  string `json:"evidence" validate:"required"`
	Timestamp string `json:"timestamp,omitempty"`
}
