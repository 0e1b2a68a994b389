package backends

import (
	"context"
	"encoding/json"
	"errors"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	aiopenai "github.com/bryanwahyu/agrivision/internal/infra/ai/openai"
	"github.com/bryanwahyu/agrivision/internal/infra/ai/prompt"
)

// completer is the part of the openai client the adapters use
type completer interface {
	Complete(ctx context.Context, in aiopenai.Completion) (string, error)
}

// OpenAIVisionClient is the JSON-mode multimodal backend.
type OpenAIVisionClient struct {
	ID     domain.BackendID
	Client completer
}

func (c *OpenAIVisionClient) Classify(ctx context.Context, req domain.AnalysisRequest) (domain.NormalizedResult, json.RawMessage, error) {
	image := req.ImageURL
	if req.ImageData != "" {
		image = dataURI(req)
	}
	text, err := c.Client.Complete(ctx, aiopenai.Completion{
		System:   prompt.GetSystemPrompt(),
		User:     prompt.GetUserPrompt(req),
		ImageURL: image,
		JSON:     true,
	})
	if err != nil {
		return domain.NormalizedResult{}, nil, completionError(ctx, c.ID, err)
	}
	return textResult(c.ID, text, DefaultOpenAIJSONConfidence)
}

// OpenAIAdvisorClient is the text-only advisory backend. It never sees the
// image bytes; it works from the URL and the grower's context.
type OpenAIAdvisorClient struct {
	ID     domain.BackendID
	Client completer
}

func (c *OpenAIAdvisorClient) Classify(ctx context.Context, req domain.AnalysisRequest) (domain.NormalizedResult, json.RawMessage, error) {
	text, err := c.Client.Complete(ctx, aiopenai.Completion{
		System: prompt.GetAdvisorSystemPrompt(),
		User:   prompt.GetAdvisorPrompt(req),
	})
	if err != nil {
		return domain.NormalizedResult{}, nil, completionError(ctx, c.ID, err)
	}
	return textResult(c.ID, text, DefaultAdvisoryConfidence)
}

func completionError(ctx context.Context, id domain.BackendID, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.NewBackendError(id, domain.KindOf(ctxErr), err)
	}
	if errors.Is(err, aiopenai.ErrEmptyCompletion) {
		return domain.NewBackendError(id, domain.KindParse, err)
	}
	if code := aiopenai.StatusCode(err); code != 0 {
		kind := kindForStatus(code)
		if kind == domain.KindQuota {
			return domain.NewBackendError(id, kind, errors.Join(domain.ErrQuotaExceeded, err))
		}
		return domain.NewBackendError(id, kind, err)
	}
	return domain.NewBackendError(id, domain.KindNetwork, err)
}

// textResult parses model prose and keeps it as the raw payload.
func textResult(id domain.BackendID, text string, defaultConfidence float64) (domain.NormalizedResult, json.RawMessage, error) {
	raw, _ := json.Marshal(map[string]string{"text": text})
	r, err := fromText(text, defaultConfidence)
	if err != nil {
		return domain.NormalizedResult{}, raw, domain.NewBackendError(id, domain.KindParse, err)
	}
	return r, raw, nil
}
