// Package llm talks to an OpenAI-compatible chat completions endpoint
// (Ollama by default) and holds the prompts for classification and
// location extraction.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"thirdcoast.systems/scanwatch/internal/httpclient"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	APIURL            string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client issues non-streaming chat completions.
type Client struct {
	apiURL string
	http   *httpclient.Client
}

func NewClient(cfg Config) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "http://localhost:11434/v1"
	}
	h := http.Header{}
	if cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		apiURL: apiURL,
		http: httpclient.New(httpclient.Options{
			Service:           "llm",
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			MaxElapsed:        20 * time.Second,
			Header:            h,
		}),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    float64         `json:"temperature"`
	TopP           float64         `json:"top_p"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Chat sends messages to model with deterministic sampling and a JSON
// response format, returning the first choice's content.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, maxTokens int) (string, error) {
	if model == "" {
		return "", errors.New("llm: model is required")
	}
	req := chatRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    0,
		TopP:           1,
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	var resp chatResponse
	if err := c.http.PostJSON(ctx, c.apiURL+"/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("llm: chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
