package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const providersAnswer = "We want to retrieve all the providers.\n{\n  \"SQL\": \"SELECT * FROM PROVEEDOR\"\n}\nThis query will return all the providers."

const providersTable = "| ID | NAME |\n| --- | --- |\n| 1 | Acme |\n"

func userMessages(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

func TestReplyRunsFullPipelineForProviders(t *testing.T) {
	retriever := &fakeRetriever{docs: []Document{{Content: "providers are suppliers"}}}
	completer := &scriptedCompleter{replies: []completion{answer(providersAnswer), answer(providersTable)}}
	rows := []any{map[string]any{"ID": float64(1), "NAME": "Acme"}}
	executor := &fakeExecutor{result: rows}
	svc := &Service{Retriever: retriever, Completer: completer, Executor: executor}

	resp, err := svc.Reply(context.Background(), userMessages("what providers exist?"))
	require.NoError(t, err)

	assert.Equal(t, []string{"what providers exist?"}, retriever.queries)
	assert.Equal(t, []int{SearchTop}, retriever.tops)

	assert.Equal(t, Message{Role: RoleAssistant, Content: providersAnswer}, resp.Message)
	require.NotNil(t, resp.ExtractedJSON)
	assert.Equal(t, "SELECT * FROM PROVEEDOR", resp.ExtractedJSON["SQL"])
	assert.Equal(t, rows, resp.ExtractedJSON[ResultKey])
	require.NotNil(t, resp.FormattedMarkdown)
	assert.Equal(t, providersTable, *resp.FormattedMarkdown)

	require.Len(t, executor.payloads, 1)
	assert.Equal(t, Payload{"SQL": "SELECT * FROM PROVEEDOR"}, executor.payloads[0])

	require.Len(t, completer.requests, 2)
	primary := completer.requests[0]
	assert.Equal(t, MaxTokens, primary.MaxTokens)
	assert.Equal(t, ConversationTemperature, primary.Temperature)
	require.Len(t, primary.Messages, 3)
	assert.Equal(t, contextPrefix+"providers are suppliers", primary.Messages[1].Content)
	assert.Equal(t, userMessages("what providers exist?")[0], primary.Messages[2])

	formatting := completer.requests[1]
	assert.Equal(t, MaxTokens, formatting.MaxTokens)
	assert.Equal(t, FormattingTemperature, formatting.Temperature)
	require.Len(t, formatting.Messages, 2)
	assert.Equal(t, Message{Role: RoleSystem, Content: formatterInstruction}, formatting.Messages[0])
	assert.Contains(t, formatting.Messages[1].Content, "```json\n[\n  {\n    \"ID\": 1,\n    \"NAME\": \"Acme\"\n  }\n]\n```")
}

func TestReplyWithoutBracesSkipsQuery(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{answer("Which time range do you need?")}}
	executor := &fakeExecutor{}
	svc := &Service{Retriever: &fakeRetriever{}, Completer: completer, Executor: executor}

	resp, err := svc.Reply(context.Background(), userMessages("orders?"))
	require.NoError(t, err)
	assert.Nil(t, resp.ExtractedJSON)
	assert.Nil(t, resp.FormattedMarkdown)
	assert.Empty(t, executor.payloads)
	assert.Len(t, completer.requests, 1)
}

func TestReplySurvivesSearchFailure(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{answer(providersAnswer), answer(providersTable)}}
	svc := &Service{
		Retriever: &fakeRetriever{err: errors.New("search unavailable")},
		Completer: completer,
		Executor:  &fakeExecutor{result: []any{}},
	}

	resp, err := svc.Reply(context.Background(), userMessages("what providers exist?"))
	require.NoError(t, err)
	require.NotNil(t, resp.ExtractedJSON)
	assert.Equal(t, "SELECT * FROM PROVEEDOR", resp.ExtractedJSON.SQL())

	// Only the instructions and the caller message: no context block.
	require.Len(t, completer.requests[0].Messages, 2)
}

func TestReplyMarksQueryFailureAndSkipsFormatting(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{answer(providersAnswer)}}
	svc := &Service{
		Retriever: &fakeRetriever{},
		Completer: completer,
		Executor:  &fakeExecutor{err: errors.New("connection refused")},
	}

	resp, err := svc.Reply(context.Background(), userMessages("what providers exist?"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": QueryErrorMessage}, resp.ExtractedJSON[ResultKey])
	assert.Nil(t, resp.FormattedMarkdown)
	assert.Len(t, completer.requests, 1)
}

func TestReplyWithoutExecutorUsesErrorMarker(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{answer(providersAnswer)}}
	svc := &Service{Completer: completer}

	resp, err := svc.Reply(context.Background(), userMessages("what providers exist?"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"error": QueryErrorMessage}, resp.ExtractedJSON[ResultKey])
}

func TestReplyKeepsAnswerWhenFormattingFails(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{
		answer(providersAnswer),
		{err: errors.New("rate limited")},
	}}
	svc := &Service{Completer: completer, Executor: &fakeExecutor{result: []any{"row"}}}

	resp, err := svc.Reply(context.Background(), userMessages("what providers exist?"))
	require.NoError(t, err)
	assert.Equal(t, providersAnswer, resp.Message.Content)
	assert.Equal(t, []any{"row"}, resp.ExtractedJSON[ResultKey])
	assert.Nil(t, resp.FormattedMarkdown)
}

func TestReplyTreatsUnparseablePayloadAsPlainTurn(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{answer("sets look like {a, b} in maths")}}
	executor := &fakeExecutor{}
	svc := &Service{Completer: completer, Executor: executor}

	resp, err := svc.Reply(context.Background(), userMessages("explain sets"))
	require.NoError(t, err)
	assert.Nil(t, resp.ExtractedJSON)
	assert.Nil(t, resp.FormattedMarkdown)
	assert.Empty(t, executor.payloads)
}

func TestReplyKeepsPayloadWithoutSQL(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{answer(`Noted: {"note": "no query yet"}`)}}
	executor := &fakeExecutor{}
	svc := &Service{Completer: completer, Executor: executor}

	resp, err := svc.Reply(context.Background(), userMessages("hello"))
	require.NoError(t, err)
	assert.Equal(t, Payload{"note": "no query yet"}, resp.ExtractedJSON)
	assert.Empty(t, executor.payloads)
}

func TestReplyFailsWhenPrimaryCompletionFails(t *testing.T) {
	completer := &scriptedCompleter{replies: []completion{{err: errors.New("llm down")}}}
	executor := &fakeExecutor{}
	svc := &Service{Retriever: &fakeRetriever{}, Completer: completer, Executor: executor}

	_, err := svc.Reply(context.Background(), userMessages("what providers exist?"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm down")
	assert.Empty(t, executor.payloads)
}

func TestReplyRejectsInvalidInputWithoutCollaborators(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &scriptedCompleter{}
	svc := &Service{Retriever: retriever, Completer: completer}

	_, err := svc.Reply(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = svc.Reply(context.Background(), []Message{{Role: "tool", Content: "x"}})
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.Empty(t, retriever.queries)
	assert.Empty(t, completer.requests)
}

func TestReplyStopsWhenContextIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := &scriptedCompleter{replies: []completion{answer(providersAnswer)}}
	svc := &Service{Retriever: &fakeRetriever{}, Completer: completer}

	_, err := svc.Reply(ctx, userMessages("what providers exist?"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, completer.requests)
}

func TestReplyUsesLastMessageForSearch(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &scriptedCompleter{replies: []completion{answer("ok")}}
	svc := &Service{Retriever: retriever, Completer: completer}

	messages := []Message{
		{Role: RoleSystem, Content: "custom"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
	}
	_, err := svc.Reply(context.Background(), messages)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, retriever.queries)
	assert.Equal(t, messages, completer.requests[0].Messages)
}

func TestResponseSerialisesNullFields(t *testing.T) {
	raw, err := json.Marshal(Response{Message: Message{Role: RoleAssistant, Content: "hi"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":{"role":"assistant","content":"hi"},"extractedJson":null,"formattedMarkdown":null}`, string(raw))
}

func TestFormattingConversationRejectsUnencodableResult(t *testing.T) {
	_, err := FormattingConversation(map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "encode query result"))
}
