// Package remote forwards a chat payload to an HTTP query-execution service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatsql/chatsql/internal/chat"
)

const maxErrorBody = 512

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

type Executor struct {
	endpoint string
	client   *http.Client
}

func NewExecutor(cfg Config) (*Executor, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("query endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{endpoint: endpoint, client: &http.Client{Timeout: timeout}}, nil
}

// ExecuteQuery posts the whole payload and returns the decoded JSON reply
// as is. Numbers keep their literal form.
func (e *Executor) ExecuteQuery(ctx context.Context, payload chat.Payload) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal query payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request query execution: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read query response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(rawRespBody) > maxErrorBody {
			rawRespBody = rawRespBody[:maxErrorBody]
		}
		return nil, fmt.Errorf("query execution failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	decoder := json.NewDecoder(bytes.NewReader(rawRespBody))
	decoder.UseNumber()
	var result any
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("decode query response: trailing data")
	}
	return result, nil
}
