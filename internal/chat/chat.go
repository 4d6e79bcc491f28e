// Package chat turns a caller conversation into an assistant reply. A reply
// may carry a SQL payload extracted from the model answer, the rows the query
// backend returned for it, and a Markdown rendering of those rows.
package chat

import (
	"context"
	"errors"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Document is one search hit flattened to text.
type Document struct {
	Content string
}

const (
	SQLKey = "SQL"
	// ResultKey is where the query result, or the error marker, is attached.
	ResultKey         = "mysqlResult"
	QueryErrorMessage = "Error calling MySQL endpoint"
)

// Payload is the JSON object embedded in a model answer.
type Payload map[string]any

// SQL returns the trimmed SQL field, or "" when it is absent or not a string.
func (p Payload) SQL() string {
	value, ok := p[SQLKey].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// Response is what a caller gets back for one conversation turn. Nil fields
// serialise as JSON null.
type Response struct {
	Message           Message `json:"message"`
	ExtractedJSON     Payload `json:"extractedJson"`
	FormattedMarkdown *string `json:"formattedMarkdown"`
}

const (
	SearchTop               = 3
	MaxTokens               = 500
	ConversationTemperature = 0.7
	FormattingTemperature   = 0.3
	MaxSelectColumns        = 6
)

var (
	ErrNoMessages  = errors.New("no messages provided")
	ErrInvalidRole = errors.New("invalid message role")
)

type Retriever interface {
	Search(ctx context.Context, query string, top int) ([]Document, error)
}

type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Message, error)
}

// QueryExecutor runs the query carried by a payload. The result is passed
// through to the caller untouched.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, payload Payload) (any, error)
}
