package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	maxTokens    = 2048
	defaultModel = "gpt-4o"
)

// ErrEmptyCompletion is returned when the API answers without choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

type Client struct {
	*openai.Client
	Model string
}

// NewClient builds a client; baseURL may be empty for the public API.
func NewClient(apiKey, model, baseURL string, httpClient *http.Client) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// Completion describes one chat call.
// ImageURL may be an http(s) URL or a data: URI; empty means text only.
type Completion struct {
	System   string
	User     string
	ImageURL string
	JSON     bool
}

// Complete runs a chat completion and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, in Completion) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if in.ImageURL != "" {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: in.User},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    in.ImageURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	} else {
		user.Content = in.User
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: in.System},
			user,
		},
	}
	if in.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
