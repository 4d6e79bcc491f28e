package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatsql/chatsql/internal/observability"
)

// Service runs one conversation turn: search, assemble, complete, extract,
// and when the answer carries SQL, execute and format. Stages run strictly
// in order. Service holds no per-request state.
type Service struct {
	Retriever Retriever
	Completer Completer
	Executor  QueryExecutor
	Assembler *Assembler
	Logger    *slog.Logger
}

// ValidateMessages reports ErrNoMessages or a wrapped ErrInvalidRole.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for i, message := range messages {
		if !message.Role.Valid() {
			return fmt.Errorf("message %d role %q: %w", i, message.Role, ErrInvalidRole)
		}
	}
	return nil
}

// Reply fails only when messages are invalid, the primary completion fails
// or ctx ends before a stage starts. Search, query and formatting failures
// are absorbed into the response.
func (s *Service) Reply(ctx context.Context, messages []Message) (Response, error) {
	if err := ValidateMessages(messages); err != nil {
		observability.ObserveChatRequest("invalid")
		return Response{}, err
	}
	if s.Completer == nil {
		observability.ObserveChatRequest("failed")
		return Response{}, errors.New("completer is not configured")
	}

	resp, err := s.reply(ctx, messages)
	switch {
	case err == nil:
		observability.ObserveChatRequest("ok")
	case ctx.Err() != nil:
		observability.ObserveChatRequest("canceled")
	default:
		observability.ObserveChatRequest("failed")
	}
	return resp, err
}

func (s *Service) reply(ctx context.Context, messages []Message) (Response, error) {
	logger := s.logger()

	docs := s.retrieve(ctx, messages[len(messages)-1].Content)
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("before completion: %w", err)
	}

	conversation := s.assembler().Assemble(messages, docs)
	started := time.Now()
	answer, err := s.Completer.Complete(ctx, CompletionRequest{
		Messages:    conversation,
		MaxTokens:   MaxTokens,
		Temperature: ConversationTemperature,
	})
	observability.ObserveStage("completion", time.Since(started))
	if err != nil {
		return Response{}, fmt.Errorf("complete conversation: %w", err)
	}

	resp := Response{Message: answer}
	payload, err := ExtractPayload(answer.Content)
	switch {
	case err != nil:
		observability.ObservePayloadExtraction("invalid")
		logger.WarnContext(ctx, "failed to parse embedded payload", slog.Any("error", err))
	case payload == nil:
		observability.ObservePayloadExtraction("none")
	default:
		observability.ObservePayloadExtraction("parsed")
		resp.ExtractedJSON = payload
	}

	if payload == nil || payload.SQL() == "" {
		s.logResponse(ctx, resp)
		return resp, nil
	}

	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("before query: %w", err)
	}
	result, ok := s.dispatch(ctx, payload)
	if ok {
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("before formatting: %w", err)
		}
		resp.FormattedMarkdown = s.format(ctx, result)
	}

	s.logResponse(ctx, resp)
	return resp, nil
}

func (s *Service) logResponse(ctx context.Context, resp Response) {
	s.logger().DebugContext(ctx, "chat reply assembled",
		slog.Int("answer_chars", len(resp.Message.Content)),
		slog.Bool("payload", resp.ExtractedJSON != nil),
		slog.Bool("formatted", resp.FormattedMarkdown != nil),
	)
}

func (s *Service) assembler() *Assembler {
	if s.Assembler != nil {
		return s.Assembler
	}
	return &Assembler{}
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}
