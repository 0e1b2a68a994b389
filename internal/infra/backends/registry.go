package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanwahyu/agrivision/internal/config"
	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	aiopenai "github.com/bryanwahyu/agrivision/internal/infra/ai/openai"
)

// NewRegistry builds one adapter per enabled backend entry.
func NewRegistry(ctx context.Context, cfgs map[string]config.BackendConfig, httpClient *http.Client) (domain.Registry, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	reg := make(domain.Registry, len(cfgs))
	for name, bc := range cfgs {
		if bc.Disabled {
			continue
		}
		c, err := New(ctx, domain.BackendID(name), bc, httpClient)
		if err != nil {
			return nil, err
		}
		reg[domain.BackendID(name)] = WithTimeout(c, bc.Timeout)
	}
	return reg, nil
}

// New builds the adapter for one backend entry.
func New(ctx context.Context, id domain.BackendID, bc config.BackendConfig, httpClient *http.Client) (domain.Classifier, error) {
	switch bc.Type {
	case config.TypeVisionLabel:
		return &VisionLabelClient{ID: id, Endpoint: bc.Endpoint, APIKey: bc.APIKey, MaxResults: bc.MaxResults, HTTP: httpClient}, nil
	case config.TypePlantClassifier:
		return &PlantClassifierClient{ID: id, Endpoint: bc.Endpoint, APIKey: bc.APIKey, HTTP: httpClient}, nil
	case config.TypeOpenAIJSON:
		return &OpenAIVisionClient{ID: id, Client: aiopenai.NewClient(bc.APIKey, bc.Model, bc.Endpoint, httpClient)}, nil
	case config.TypeOpenAIAdvisory:
		return &OpenAIAdvisorClient{ID: id, Client: aiopenai.NewClient(bc.APIKey, bc.Model, bc.Endpoint, httpClient)}, nil
	case config.TypeGeminiVision:
		return NewGeminiClient(ctx, id, bc.APIKey, bc.Model, bc.Endpoint, httpClient)
	default:
		return nil, fmt.Errorf("backend %s: unsupported type %q", id, bc.Type)
	}
}

// WithTimeout bounds every call to c; d <= 0 returns c unchanged.
func WithTimeout(c domain.Classifier, d time.Duration) domain.Classifier {
	if d <= 0 {
		return c
	}
	return domain.ClassifierFunc(func(ctx context.Context, req domain.AnalysisRequest) (domain.NormalizedResult, json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return c.Classify(ctx, req)
	})
}
