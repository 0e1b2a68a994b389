package analysis

import (
	"encoding/json"
	"time"
)

// AnalysisID tipe untuk hasil analisis gabungan
type AnalysisID string

// BackendID identifies one registered classification backend
type BackendID string

// Status of a combined analysis
type Status string

const (
	StatusComplete Status = "complete" // every requested backend succeeded
	StatusPartial  Status = "partial"  // some backends failed
	StatusDegraded Status = "degraded" // no backend succeeded
)

// Detail level enum
type DetailLevel string

const (
	DetailBasic         DetailLevel = "basic"
	DetailDetailed      DetailLevel = "detailed"
	DetailComprehensive DetailLevel = "comprehensive"
)

// AnalysisOptions value object
type AnalysisOptions struct {
	DetailLevel       DetailLevel `json:"detail_level,omitempty"`
	IncludeConfidence bool        `json:"include_confidence"`
	IncludeTreatment  bool        `json:"include_treatment"`
	IncludeTimeline   bool        `json:"include_timeline"`
}

// AnalysisRequest is the single input of the engine.
// Exactly one of ImageURL / ImageData must be set; ImageData is base64.
type AnalysisRequest struct {
	ImageURL  string          `json:"image_url,omitempty"`
	ImageData string          `json:"image_data,omitempty"`
	ImageMIME string          `json:"image_mime,omitempty"`
	Prompt    string          `json:"prompt,omitempty"`
	Context   map[string]any  `json:"context,omitempty"`
	Backends  []BackendID     `json:"backends"`
	Options   AnalysisOptions `json:"options"`
}

// Identification candidate for the plant in the image
type Identification struct {
	Species    string  `json:"species"`
	CommonName string  `json:"common_name,omitempty"`
	Family     string  `json:"family,omitempty"`
	Genus      string  `json:"genus,omitempty"`
	Confidence float64 `json:"confidence"`
}

type StressFactor struct {
	Type        string `json:"type"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description,omitempty"`
}

// HealthAssessment; OverallHealth is 0..100
type HealthAssessment struct {
	OverallHealth        int            `json:"overall_health"`
	StressFactors        []StressFactor `json:"stress_factors,omitempty"`
	NutrientDeficiencies []string       `json:"nutrient_deficiencies,omitempty"`
}

type PestDetection struct {
	Type         string  `json:"type"`
	Severity     string  `json:"severity"`
	Confidence   float64 `json:"confidence"`
	AffectedArea string  `json:"affected_area,omitempty"`
	Treatment    string  `json:"treatment,omitempty"`
}

type DiseaseDetection struct {
	Type       string   `json:"type"`
	Severity   string   `json:"severity"`
	Confidence float64  `json:"confidence"`
	Symptoms   []string `json:"symptoms,omitempty"`
	Treatment  string   `json:"treatment,omitempty"`
}

type GrowthAnalysis struct {
	Stage string `json:"stage,omitempty"`
	Rate  string `json:"rate,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// NormalizedResult is one backend's output in the common schema
type NormalizedResult struct {
	Identification  *Identification    `json:"identification,omitempty"`
	Health          *HealthAssessment  `json:"health,omitempty"`
	Pests           []PestDetection    `json:"pests,omitempty"`
	Diseases        []DiseaseDetection `json:"diseases,omitempty"`
	Growth          *GrowthAnalysis    `json:"growth,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Summary         string             `json:"summary,omitempty"`
	Confidence      float64            `json:"confidence"`
}

// BackendResult hasil sukses dari satu backend
type BackendResult struct {
	Backend    BackendID        `json:"backend"`
	Timestamp  time.Time        `json:"timestamp"`
	DurationMS int64            `json:"duration_ms"`
	Result     NormalizedResult `json:"result"`
	Raw        json.RawMessage  `json:"raw,omitempty"`
}

// BackendFailure records a backend invocation that did not produce a result
type BackendFailure struct {
	Backend BackendID `json:"backend"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// ConsensusResult merged view over all successful results
type ConsensusResult struct {
	Identification *Identification    `json:"identification,omitempty"`
	Health         *HealthAssessment  `json:"health,omitempty"`
	Pests          []PestDetection    `json:"pests"`
	Diseases       []DiseaseDetection `json:"diseases"`
	AgreementScore float64            `json:"agreement_score"`
}

// Recommendation category enum
type Category string

const (
	CategoryMonitoring       Category = "monitoring"
	CategoryPestControl      Category = "pest_control"
	CategoryDiseaseTreatment Category = "disease_treatment"
)

// Priority enum
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type Recommendation struct {
	Category    Category `json:"category"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Timeline    string   `json:"timeline"`
	Confidence  float64  `json:"confidence"`
}

// Aggregate Root: CombinedAnalysisResult.
// Built once by the dispatcher and never mutated after it is stored.
type CombinedAnalysisResult struct {
	ID              AnalysisID       `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	Request         AnalysisRequest  `json:"request"`
	Results         []BackendResult  `json:"results"`
	Failures        []BackendFailure `json:"failures,omitempty"`
	Consensus       ConsensusResult  `json:"consensus"`
	Confidence      float64          `json:"confidence"`
	ElapsedMS       int64            `json:"elapsed_ms"`
	Recommendations []Recommendation `json:"recommendations"`
	Status          Status           `json:"status"`
}

// StatusFor derives the result status from how many backends were requested
// and how many produced a result.
func StatusFor(requested, succeeded int) Status {
	switch {
	case succeeded == 0:
		return StatusDegraded
	case succeeded < requested:
		return StatusPartial
	default:
		return StatusComplete
	}
}
