package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatsql/chatsql/internal/markdown"
	"github.com/chatsql/chatsql/internal/observability"
)

const formatterInstruction = "You are a helpful assistant that formats data."

// FormattingConversation builds the two-message conversation that asks the
// model to render result as Markdown tables.
func FormattingConversation(result any) ([]Message, error) {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode query result: %w", err)
	}
	prompt := "Please format the following SQL query result into well-structured Markdown table(s).\n\n" +
		"SQL Query Result:\n```json\n" + string(raw) + "\n```\n\n" +
		"Format the output using Markdown syntax with proper table headers and rows."
	return []Message{
		{Role: RoleSystem, Content: formatterInstruction},
		{Role: RoleUser, Content: prompt},
	}, nil
}

// format returns nil when the rendering turn fails; the primary reply stands
// on its own.
func (s *Service) format(ctx context.Context, result any) *string {
	conversation, err := FormattingConversation(result)
	if err != nil {
		observability.ObserveFormat("error", 0)
		s.logger().ErrorContext(ctx, "format query result failed", slog.Any("error", err))
		return nil
	}

	started := time.Now()
	reply, err := s.Completer.Complete(ctx, CompletionRequest{
		Messages:    conversation,
		MaxTokens:   MaxTokens,
		Temperature: FormattingTemperature,
	})
	observability.ObserveStage("format", time.Since(started))
	if err != nil {
		observability.ObserveFormat("error", 0)
		s.logger().ErrorContext(ctx, "format query result failed", slog.Any("error", err))
		return nil
	}

	summary := markdown.Inspect(reply.Content)
	observability.ObserveFormat("ok", summary.Tables)
	s.logger().DebugContext(ctx, "formatted query result",
		slog.Int("tables", summary.Tables),
		slog.Int("rows", summary.Rows),
	)
	text := reply.Content
	return &text
}
