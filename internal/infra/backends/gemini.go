package backends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
	"github.com/bryanwahyu/agrivision/internal/infra/ai/prompt"
)

const defaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is satisfied by *genai.Models.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient is the multimodal Gemini backend.
type GeminiClient struct {
	ID     domain.BackendID
	Model  string
	Models contentGenerator
}

// NewGeminiClient builds the adapter on top of the genai SDK.
func NewGeminiClient(ctx context.Context, id domain.BackendID, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini backend %s: api key is required", id)
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{ID: id, Model: model, Models: client.Models}, nil
}

func (c *GeminiClient) Classify(ctx context.Context, req domain.AnalysisRequest) (domain.NormalizedResult, json.RawMessage, error) {
	var image *genai.Part
	if req.ImageData != "" {
		b, err := imageBytes(req)
		if err != nil {
			return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindParse, err)
		}
		image = genai.NewPartFromBytes(b, mimeOf(req))
	} else {
		image = genai.NewPartFromURI(req.ImageURL, guessMIME(req.ImageURL))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt.GetUserPrompt(req)),
			image,
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.GetSystemPrompt(), genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	model := c.Model
	if model == "" {
		model = defaultGeminiModel
	}
	resp, err := c.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return domain.NormalizedResult{}, nil, geminiError(ctx, c.ID, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindParse, errors.New("gemini returned no candidates"))
	}
	return textResult(c.ID, resp.Text(), DefaultGeminiVisionConfidence)
}

func geminiError(ctx context.Context, id domain.BackendID, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.NewBackendError(id, domain.KindOf(ctxErr), err)
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == 0 {
		return domain.NewBackendError(id, domain.KindNetwork, err)
	}
	kind := kindForStatus(code)
	if kind == domain.KindQuota {
		err = errors.Join(domain.ErrQuotaExceeded, err)
	}
	return domain.NewBackendError(id, kind, err)
}

// guessMIME picks an image type from the URL extension.
func guessMIME(u string) string {
	lower := strings.ToLower(u)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
