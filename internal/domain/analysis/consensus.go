package analysis

import (
	"math"
	"strings"
)

// BuildConsensus merges successful normalized results into one view.
// It is pure and deterministic for a given input order.
//
// Identification is chosen, not merged: the highest confidence wins and the
// first one in input order wins a tie. Health is the rounded mean of every
// reported OverallHealth. Pests and diseases are grouped by case-insensitive
// type, keeping the more confident entry (first seen on a tie).
func BuildConsensus(results []NormalizedResult) ConsensusResult {
	out := ConsensusResult{
		Pests:    []PestDetection{},
		Diseases: []DiseaseDetection{},
	}
	if len(results) == 0 {
		return out
	}

	out.Identification = pickIdentification(results)
	out.Health = mergeHealth(results)
	out.Pests = mergePests(results)
	out.Diseases = mergeDiseases(results)
	out.AgreementScore = AgreementScore(results)
	return out
}

// AgreementScore is 1 - population variance of the self-reported confidences,
// floored at 0. One result agrees with itself (1.0); no results score 0.
// It measures spread of stated confidence only, not whether the backends
// identified the same plant.
func AgreementScore(results []NormalizedResult) float64 {
	switch len(results) {
	case 0:
		return 0
	case 1:
		return 1
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	mean := sum / float64(len(results))
	var sq float64
	for _, r := range results {
		d := r.Confidence - mean
		sq += d * d
	}
	variance := sq / float64(len(results))
	return math.Max(0, 1-variance)
}

func pickIdentification(results []NormalizedResult) *Identification {
	var best *Identification
	for i := range results {
		id := results[i].Identification
		if id == nil {
			continue
		}
		if best == nil || id.Confidence > best.Confidence {
			best = id
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func mergeHealth(results []NormalizedResult) *HealthAssessment {
	var (
		total    int
		count    int
		stress   []StressFactor
		nutrient []string
	)
	for _, r := range results {
		if r.Health == nil {
			continue
		}
		total += r.Health.OverallHealth
		count++
		stress = append(stress, r.Health.StressFactors...)
		nutrient = append(nutrient, r.Health.NutrientDeficiencies...)
	}
	if count == 0 {
		return nil
	}
	return &HealthAssessment{
		OverallHealth:        int(math.Round(float64(total) / float64(count))),
		StressFactors:        stress,
		NutrientDeficiencies: nutrient,
	}
}

func typeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func mergePests(results []NormalizedResult) []PestDetection {
	out := []PestDetection{}
	index := map[string]int{}
	for _, r := range results {
		for _, p := range r.Pests {
			k := typeKey(p.Type)
			if i, ok := index[k]; ok {
				if p.Confidence > out[i].Confidence {
					out[i] = p
				}
				continue
			}
			index[k] = len(out)
			out = append(out, p)
		}
	}
	return out
}

func mergeDiseases(results []NormalizedResult) []DiseaseDetection {
	out := []DiseaseDetection{}
	index := map[string]int{}
	for _, r := range results {
		for _, d := range r.Diseases {
			d.Symptoms = append([]string(nil), d.Symptoms...)
			k := typeKey(d.Type)
			if i, ok := index[k]; ok {
				if d.Confidence > out[i].Confidence {
					out[i] = d
				}
				continue
			}
			index[k] = len(out)
			out = append(out, d)
		}
	}
	return out
}
