// Package backends holds one adapter per classification backend type. Each
// adapter turns the backend's wire format into analysis.NormalizedResult.
package backends

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"unicode/utf8"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/infra/ai/extract"
)

// Default self-reported confidence per backend type, used when the backend
// does not supply one.
const (
	DefaultVisionLabelConfidence     = 0.7
	DefaultOpenAIJSONConfidence      = 0.8
	DefaultGeminiVisionConfidence    = 0.85
	DefaultAdvisoryConfidence        = 0.9
	DefaultPlantClassifierConfidence = 0.75

	// heuristic scan defaults
	heuristicDetectionConfidence = 0.7
	heuristicSeverity            = "moderate"

	// labeled-feature fallback when no label looks like a plant
	noCandidateConfidence = 0.5
)

var plantKeywords = []string{"plant", "leaf", "flower", "crop"}

// label is one ranked label from a vision-label service
type label struct {
	Description string
	Score       float64
}

// fromLabels is strategy 1: labeled-feature classification.
func fromLabels(labels []label) domain.NormalizedResult {
	var best *label
	for i := range labels {
		l := &labels[i]
		lower := strings.ToLower(l.Description)
		candidate := false
		for _, kw := range plantKeywords {
			if strings.Contains(lower, kw) {
				candidate = true
				break
			}
		}
		if candidate && (best == nil || l.Score > best.Score) {
			best = l
		}
	}

	if best == nil {
		return domain.NormalizedResult{
			Summary:    summarizeLabels(labels),
			Confidence: noCandidateConfidence,
		}
	}
	return domain.NormalizedResult{
		Identification: &domain.Identification{
			Species:    best.Description,
			CommonName: best.Description,
			Confidence: clamp01(best.Score),
		},
		Summary:    summarizeLabels(labels),
		Confidence: DefaultVisionLabelConfidence,
	}
}

func summarizeLabels(labels []label) string {
	if len(labels) == 0 {
		return ""
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Description)
	}
	return "Detected labels: " + strings.Join(names, ", ")
}

// fromText runs strategy 2 (JSON-in-text) and falls back to strategy 3
// (heuristic scan). Empty text is a parse failure.
func fromText(text string, defaultConfidence float64) (domain.NormalizedResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.NormalizedResult{}, errors.New("empty response text")
	}
	if r, ok := fromJSONText(text, defaultConfidence); ok {
		return r, nil
	}
	return fromHeuristics(text, defaultConfidence), nil
}

func fromJSONText(text string, defaultConfidence float64) (domain.NormalizedResult, bool) {
	var r domain.NormalizedResult
	if err := extract.DecodeJSON(text, &r); err != nil {
		return domain.NormalizedResult{}, false
	}
	if isEmpty(r) {
		return domain.NormalizedResult{}, false
	}
	return sanitize(r, defaultConfidence), true
}

func isEmpty(r domain.NormalizedResult) bool {
	return r.Identification == nil && r.Health == nil && len(r.Pests) == 0 &&
		len(r.Diseases) == 0 && r.Growth == nil && len(r.Recommendations) == 0 &&
		r.Summary == "" && r.Confidence == 0
}

// sanitize clamps numeric fields and fills defaults the backend left out.
func sanitize(r domain.NormalizedResult, defaultConfidence float64) domain.NormalizedResult {
	if r.Confidence <= 0 {
		r.Confidence = defaultConfidence
	}
	r.Confidence = clamp01(r.Confidence)
	if r.Identification != nil {
		if r.Identification.Confidence <= 0 {
			r.Identification.Confidence = r.Confidence
		}
		r.Identification.Confidence = clamp01(r.Identification.Confidence)
	}
	if r.Health != nil {
		r.Health.OverallHealth = clampHealth(r.Health.OverallHealth)
	}
	for i := range r.Pests {
		r.Pests[i].Severity = normSeverity(r.Pests[i].Severity)
		if r.Pests[i].Confidence <= 0 {
			r.Pests[i].Confidence = heuristicDetectionConfidence
		}
		r.Pests[i].Confidence = clamp01(r.Pests[i].Confidence)
	}
	for i := range r.Diseases {
		r.Diseases[i].Severity = normSeverity(r.Diseases[i].Severity)
		if r.Diseases[i].Confidence <= 0 {
			r.Diseases[i].Confidence = heuristicDetectionConfidence
		}
		r.Diseases[i].Confidence = clamp01(r.Diseases[i].Confidence)
	}
	return r
}

// fromHeuristics is strategy 3.
func fromHeuristics(text string, defaultConfidence float64) domain.NormalizedResult {
	r := domain.NormalizedResult{
		Health:          &domain.HealthAssessment{OverallHealth: extract.HealthScore(text)},
		Recommendations: extract.RecommendationClauses(text),
		Summary:         firstSentence(text),
		Confidence:      defaultConfidence,
	}
	for _, p := range extract.KeywordHits(text, extract.PestVocabulary) {
		r.Pests = append(r.Pests, domain.PestDetection{
			Type:       p,
			Severity:   heuristicSeverity,
			Confidence: heuristicDetectionConfidence,
		})
	}
	for _, d := range extract.KeywordHits(text, extract.DiseaseVocabulary) {
		r.Diseases = append(r.Diseases, domain.DiseaseDetection{
			Type:       d,
			Severity:   heuristicSeverity,
			Confidence: heuristicDetectionConfidence,
		})
	}
	return r
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?\n"); i >= 0 {
		text = text[:i+1]
	}
	if len(text) > 280 {
		text = truncate(text, 280) + "..."
	}
	return strings.TrimSpace(text)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func normSeverity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return heuristicSeverity
	}
	return s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampHealth(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// kindForStatus maps an upstream HTTP status onto a failure kind.
func kindForStatus(code int) domain.ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.KindAuth
	case code == http.StatusTooManyRequests:
		return domain.KindQuota
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return domain.KindTimeout
	default:
		return domain.KindNetwork
	}
}

// statusError builds the BackendError for a non-2xx response.
func statusError(id domain.BackendID, code int, body []byte) error {
	kind := kindForStatus(code)
	msg := truncate(strings.TrimSpace(strings.ToValidUTF8(string(body), "?")), 200)
	err := fmt.Errorf("upstream returned status %d: %s", code, msg)
	if kind == domain.KindQuota {
		err = fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
	}
	return domain.NewBackendError(id, kind, err)
}

// dataURI renders inline image data for APIs that accept data URLs.
func dataURI(req domain.AnalysisRequest) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeOf(req), req.ImageData)
}

func mimeOf(req domain.AnalysisRequest) string {
	if req.ImageMIME == "" {
		return "image/jpeg"
	}
	return req.ImageMIME
}

// imageBytes decodes the request's inline image.
func imageBytes(req domain.AnalysisRequest) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		return nil, fmt.Errorf("decode image_data: %w", err)
	}
	return b, nil
}
