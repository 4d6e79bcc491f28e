package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chatsql/chatsql/internal/observability"
)

var errNoExecutor = errors.New("query executor is not configured")

// dispatch attaches the query result, or the error marker, to payload under
// ResultKey. It reports whether the query succeeded.
func (s *Service) dispatch(ctx context.Context, payload Payload) (any, bool) {
	started := time.Now()
	result, err := s.execute(ctx, payload)
	observability.ObserveStage("query", time.Since(started))
	if err != nil {
		observability.ObserveQueryDispatch("error")
		s.logger().ErrorContext(ctx, "query execution failed", slog.String("sql", payload.SQL()), slog.Any("error", err))
		payload[ResultKey] = map[string]any{"error": QueryErrorMessage}
		return nil, false
	}
	observability.ObserveQueryDispatch("ok")
	payload[ResultKey] = result
	return result, true
}

func (s *Service) execute(ctx context.Context, payload Payload) (any, error) {
	if s.Executor == nil {
		return nil, errNoExecutor
	}
	return s.Executor.ExecuteQuery(ctx, payload)
}
