package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/infra/ai/extract"
)

const (
	defaultPlantIDEndpoint = "https://plant.id/api/v3/identification"
	// suggestions below this probability are noise
	minSuggestionProbability = 0.1
)

// PlantClassifierClient talks to a plant.id style identification + health API.
type PlantClassifierClient struct {
	ID       domain.BackendID
	Endpoint string
	APIKey   string
	HTTP     *http.Client
}

type plantIDRequest struct {
	Images        []string `json:"images"`
	Health        string   `json:"health"`
	SimilarImages bool     `json:"similar_images"`
	PlantAge      string   `json:"plant_age,omitempty"`
}

type plantIDSuggestion struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Details     struct {
		CommonNames []string `json:"common_names"`
		Taxonomy    struct {
			Family string `json:"family"`
			Genus  string `json:"genus"`
		} `json:"taxonomy"`
		Description struct {
			Value string `json:"value"`
		} `json:"description"`
		Treatment struct {
			Biological []string `json:"biological"`
			Chemical   []string `json:"chemical"`
			Prevention []string `json:"prevention"`
		} `json:"treatment"`
	} `json:"details"`
}

type plantIDResponse struct {
	Result struct {
		IsPlant struct {
			Probability float64 `json:"probability"`
			Binary      bool    `json:"binary"`
		} `json:"is_plant"`
		Classification struct {
			Suggestions []plantIDSuggestion `json:"suggestions"`
		} `json:"classification"`
		Disease struct {
			Suggestions []plantIDSuggestion `json:"suggestions"`
		} `json:"disease"`
		IsHealthy *struct {
			Probability float64 `json:"probability"`
			Binary      bool    `json:"binary"`
		} `json:"is_healthy"`
	} `json:"result"`
}

func (c *PlantClassifierClient) Classify(ctx context.Context, req domain.AnalysisRequest) (domain.NormalizedResult, json.RawMessage, error) {
	image := req.ImageURL
	if req.ImageData != "" {
		image = dataURI(req)
	}
	body, err := json.Marshal(plantIDRequest{
		Images:   []string{image},
		Health:   "all",
		PlantAge: req.ContextString("plant_age"),
	})
	if err != nil {
		return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindParse, fmt.Errorf("failed to marshal request: %w", err))
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultPlantIDEndpoint
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?details=common_names,taxonomy,description,treatment", bytes.NewReader(body))
	if err != nil {
		return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindNetwork, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.APIKey)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	raw, err := doJSON(ctx, client, c.ID, httpReq)
	if err != nil {
		return domain.NormalizedResult{}, nil, err
	}

	var resp plantIDResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.NormalizedResult{}, raw, domain.NewBackendError(c.ID, domain.KindParse, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(resp.Result.Classification.Suggestions) == 0 && resp.Result.IsHealthy == nil {
		return domain.NormalizedResult{}, raw, domain.NewBackendError(c.ID, domain.KindParse, errors.New("response has neither classification nor health"))
	}
	return fromPlantID(resp), raw, nil
}

func fromPlantID(resp plantIDResponse) domain.NormalizedResult {
	out := domain.NormalizedResult{Confidence: DefaultPlantClassifierConfidence}

	if s := resp.Result.Classification.Suggestions; len(s) > 0 {
		top := s[0]
		for _, x := range s[1:] {
			if x.Probability > top.Probability {
				top = x
			}
		}
		id := &domain.Identification{
			Species:    top.Name,
			Family:     top.Details.Taxonomy.Family,
			Genus:      top.Details.Taxonomy.Genus,
			Confidence: clamp01(top.Probability),
		}
		if len(top.Details.CommonNames) > 0 {
			id.CommonName = top.Details.CommonNames[0]
		}
		out.Identification = id
		out.Confidence = clamp01(top.Probability)
		out.Summary = top.Details.Description.Value
	}

	if h := resp.Result.IsHealthy; h != nil {
		out.Health = &domain.HealthAssessment{OverallHealth: clampHealth(int(math.Round(h.Probability * 100)))}
	}

	for _, s := range resp.Result.Disease.Suggestions {
		if s.Probability < minSuggestionProbability {
			continue
		}
		treatment := firstOf(s.Details.Treatment.Biological, s.Details.Treatment.Chemical, s.Details.Treatment.Prevention)
		// plant.id reports insect damage among its "diseases"
		if len(extract.KeywordHits(s.Name, extract.PestVocabulary)) > 0 {
			out.Pests = append(out.Pests, domain.PestDetection{
				Type:       s.Name,
				Severity:   severityFromProbability(s.Probability),
				Confidence: clamp01(s.Probability),
				Treatment:  treatment,
			})
			continue
		}
		out.Diseases = append(out.Diseases, domain.DiseaseDetection{
			Type:       s.Name,
			Severity:   severityFromProbability(s.Probability),
			Confidence: clamp01(s.Probability),
			Treatment:  treatment,
		})
		out.Recommendations = append(out.Recommendations, s.Details.Treatment.Prevention...)
	}
	return out
}

func severityFromProbability(p float64) string {
	switch {
	case p >= 0.8:
		return "severe"
	case p >= 0.4:
		return "moderate"
	default:
		return "mild"
	}
}

func firstOf(lists ...[]string) string {
	for _, l := range lists {
		for _, s := range l {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
