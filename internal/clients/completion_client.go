package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CompletionRequest is one prompt sent to the language model.
type CompletionRequest struct {
	System string
	Prompt string
}

// CompletionClient produces text for a prompt.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionConfig configures an OpenAI-compatible chat completions endpoint.
type CompletionConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

type chatCompletionClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ CompletionClient = (*chatCompletionClient)(nil)

func NewCompletionClient(cfg CompletionConfig) CompletionClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &chatCompletionClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *chatCompletionClient) Complete(ctx context.Context, in CompletionRequest) (string, error) {
	if c.endpoint == "" || c.model == "" {
		return "", errors.New("completion client misconfigured")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return "", errors.New("empty prompt")
	}

	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(in.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: in.Prompt})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: completion request: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: completion error %s: %s", ErrTransport, resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode completion: %v", ErrTransport, err)
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", fmt.Errorf("%w: completion error: %s", ErrTransport, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", ErrTransport)
	}

	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: completion returned empty content", ErrTransport)
	}
	return content, nil
}
