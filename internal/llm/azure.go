// Package llm talks to an Azure OpenAI chat-completions deployment.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatsql/chatsql/internal/chat"
)

var ErrNoChoices = errors.New("empty chat completion choices")

const maxErrorBody = 512

type AzureConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	Timeout    time.Duration
}

type AzureClient struct {
	url    string
	apiKey string
	client *http.Client
}

func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	deployment := strings.TrimSpace(cfg.Deployment)
	if deployment == "" {
		return nil, fmt.Errorf("deployment is required")
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		return nil, fmt.Errorf("api version is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AzureClient{
		url:    endpoint + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions?api-version=" + url.QueryEscape(version),
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type completionRequest struct {
	Messages    []chat.Message `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete returns the first choice of one chat completion.
func (c *AzureClient) Complete(ctx context.Context, req chat.CompletionRequest) (chat.Message, error) {
	body, err := json.Marshal(completionRequest{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return chat.Message{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return chat.Message{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return chat.Message{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chat.Message{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, truncate(rawRespBody))
	}

	var parsed completionResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return chat.Message{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return chat.Message{}, ErrNoChoices
	}

	choice := parsed.Choices[0].Message
	role := chat.Role(choice.Role)
	if role == "" {
		role = chat.RoleAssistant
	}
	return chat.Message{Role: role, Content: choice.Content}, nil
}

func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
