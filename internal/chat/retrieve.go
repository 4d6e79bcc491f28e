package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chatsql/chatsql/internal/observability"
)

// retrieve never fails: a search error only costs the model its extra context.
func (s *Service) retrieve(ctx context.Context, utterance string) []Document {
	if s.Retriever == nil || strings.TrimSpace(utterance) == "" {
		return nil
	}
	started := time.Now()
	docs, err := s.Retriever.Search(ctx, utterance, SearchTop)
	observability.ObserveStage("search", time.Since(started))
	if err != nil {
		observability.IncrementSearchFailure()
		s.logger().WarnContext(ctx, "search failed, continuing without context", slog.Any("error", err))
		return nil
	}
	return docs
}
