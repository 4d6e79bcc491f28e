// Package search queries an Azure Cognitive Search index for documents that
// give the model extra context.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chatsql/chatsql/internal/chat"
)

const (
	DefaultAPIVersion = "2020-06-30"
	maxErrorBody      = 512
)

type Config struct {
	Endpoint   string
	APIKey     string
	Index      string
	APIVersion string
	Timeout    time.Duration
}

type Client struct {
	url    string
	apiKey string
	client *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	index := strings.TrimSpace(cfg.Index)
	if index == "" {
		return nil, fmt.Errorf("index is required")
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:    endpoint + "/indexes/" + url.PathEscape(index) + "/docs/search?api-version=" + url.QueryEscape(version),
		apiKey: strings.TrimSpace(cfg.APIKey),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Search    string `json:"search"`
	Top       int    `json:"top"`
	QueryType string `json:"queryType"`
}

// Search returns up to top documents in index order.
func (c *Client) Search(ctx context.Context, query string, top int) ([]chat.Document, error) {
	body, err := json.Marshal(searchRequest{Search: query, Top: top, QueryType: "simple"})
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := rawRespBody
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, fmt.Errorf("search failed status=%d body=%s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	docs := make([]chat.Document, 0, len(parsed.Value))
	for _, raw := range parsed.Value {
		docs = append(docs, chat.Document{Content: flatten(raw)})
	}
	return docs, nil
}

// flatten uses the content field when it is a non-empty string and the
// compact JSON of the whole document otherwise.
func flatten(raw json.RawMessage) string {
	var doc struct {
		Content any `json:"content"`
	}
	if err := json.Unmarshal(raw, &doc); err == nil {
		if content, ok := doc.Content.(string); ok && content != "" {
			return content
		}
	}
	compact := bytes.NewBuffer(nil)
	if err := json.Compact(compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
