package chat

import (
	"context"
	"errors"
	"sync"
)

type fakeRetriever struct {
	docs    []Document
	err     error
	queries []string
	tops    []int
}

func (f *fakeRetriever) Search(_ context.Context, query string, top int) ([]Document, error) {
	f.queries = append(f.queries, query)
	f.tops = append(f.tops, top)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

// scriptedCompleter answers each call with the next reply in order.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []completion
	requests []CompletionRequest
}

type completion struct {
	message Message
	err     error
}

func (c *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return Message{}, errors.New("unexpected completion call")
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next.message, next.err
}

func answer(content string) completion {
	return completion{message: Message{Role: RoleAssistant, Content: content}}
}

type fakeExecutor struct {
	result   any
	err      error
	payloads []Payload
}

func (f *fakeExecutor) ExecuteQuery(_ context.Context, payload Payload) (any, error) {
	snapshot := Payload{}
	for key, value := range payload {
		snapshot[key] = value
	}
	f.payloads = append(f.payloads, snapshot)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
