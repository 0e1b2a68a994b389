package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

const (
	defaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"
	defaultVisionLabels   = 15
	maxResponseBytes      = 4 << 20
)

// VisionLabelClient talks to a Google Cloud Vision style label-detection API.
type VisionLabelClient struct {
	ID         domain.BackendID
	Endpoint   string
	APIKey     string
	MaxResults int
	HTTP       *http.Client
}

type visionRequest struct {
	Requests []visionAnnotateRequest `json:"requests"`
}

type visionAnnotateRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string             `json:"content,omitempty"`
	Source  *visionImageSource `json:"source,omitempty"`
}

type visionImageSource struct {
	ImageURI string `json:"imageUri"`
}

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type visionResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (c *VisionLabelClient) Classify(ctx context.Context, req domain.AnalysisRequest) (domain.NormalizedResult, json.RawMessage, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindParse, fmt.Errorf("failed to marshal request: %w", err))
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultVisionEndpoint
	}
	if c.APIKey != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindNetwork, err)
		}
		q := u.Query()
		q.Set("key", c.APIKey)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.NormalizedResult{}, nil, domain.NewBackendError(c.ID, domain.KindNetwork, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	raw, err := doJSON(ctx, c.httpClient(), c.ID, httpReq)
	if err != nil {
		return domain.NormalizedResult{}, nil, err
	}

	var resp visionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.NormalizedResult{}, raw, domain.NewBackendError(c.ID, domain.KindParse, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(resp.Responses) == 0 {
		return domain.NormalizedResult{}, raw, domain.NewBackendError(c.ID, domain.KindParse, errors.New("empty responses array"))
	}
	first := resp.Responses[0]
	if first.Error != nil {
		return domain.NormalizedResult{}, raw, domain.NewBackendError(c.ID, domain.KindNetwork, fmt.Errorf("vision error %d: %s", first.Error.Code, first.Error.Message))
	}

	labels := make([]label, 0, len(first.LabelAnnotations))
	for _, a := range first.LabelAnnotations {
		labels = append(labels, label{Description: a.Description, Score: a.Score})
	}
	return fromLabels(labels), raw, nil
}

func (c *VisionLabelClient) buildRequest(req domain.AnalysisRequest) visionRequest {
	img := visionImage{}
	if req.ImageData != "" {
		img.Content = req.ImageData
	} else {
		img.Source = &visionImageSource{ImageURI: req.ImageURL}
	}
	n := c.MaxResults
	if n <= 0 {
		n = defaultVisionLabels
	}
	return visionRequest{Requests: []visionAnnotateRequest{{
		Image:    img,
		Features: []visionFeature{{Type: "LABEL_DETECTION", MaxResults: n}},
	}}}
}

func (c *VisionLabelClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// doJSON executes req and returns the body of a 2xx response.
func doJSON(ctx context.Context, client *http.Client, id domain.BackendID, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.NewBackendError(id, domain.KindOf(ctxErr), err)
		}
		return nil, domain.NewBackendError(id, domain.KindNetwork, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewBackendError(id, domain.KindNetwork, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(id, resp.StatusCode, body)
	}
	return body, nil
}
