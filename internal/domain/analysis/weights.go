package analysis

// Default backend ids shipped with the sample configuration.
const (
	BackendGoogleVision  BackendID = "google_vision"
	BackendOpenAIVision  BackendID = "openai_vision"
	BackendGemini        BackendID = "gemini"
	BackendOpenAIAdvisor BackendID = "openai_advisor"
	BackendPlantID       BackendID = "plant_id"
)

// DefaultFallbackWeight applies to backends missing from the table.
const DefaultFallbackWeight = 0.70

// WeightTable maps backend id to a reliability weight in [0,1].
type WeightTable struct {
	Weights  map[BackendID]float64
	Fallback float64
}

// DefaultWeights is the table used when the deployment supplies none.
func DefaultWeights() WeightTable {
	return WeightTable{
		Weights: map[BackendID]float64{
			BackendGemini:        0.90,
			BackendOpenAIVision:  0.85,
			BackendPlantID:       0.80,
			BackendGoogleVision:  0.75,
			BackendOpenAIAdvisor: 0.95,
		},
		Fallback: DefaultFallbackWeight,
	}
}

// Weight returns the clamped weight for id.
func (t WeightTable) Weight(id BackendID) float64 {
	w, ok := t.Weights[id]
	if !ok {
		w = t.Fallback
	}
	return clamp01(w)
}

// WeightedConfidence = Σ(confidence_i × weight_i) / Σ(weight_i) over the
// successful results. No results (or zero total weight) yields 0.
func WeightedConfidence(results []BackendResult, table WeightTable) float64 {
	var num, den float64
	for _, r := range results {
		w := table.Weight(r.Backend)
		num += clamp01(r.Result.Confidence) * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
