package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chatsql/chatsql/internal/chat"
)

const (
	maxChatBodyBytes   = 1 << 20
	chatFailureMessage = "An error occurred while processing your request."
)

type chatRequest struct {
	Messages json.RawMessage `json:"messages"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Chat == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat dependencies are not configured", false, nil)
		return
	}

	var request chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGES_REQUIRED", "no messages provided", false, map[string]any{"details": err.Error()})
		return
	}

	raw := bytes.TrimSpace(request.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGES_REQUIRED", "no messages provided", false, nil)
		return
	}
	var messages []chat.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE", "messages must be objects with role and content", false, map[string]any{"details": err.Error()})
		return
	}

	if err := chat.ValidateMessages(messages); err != nil {
		writeValidationError(w, r, err)
		return
	}

	response, err := deps.Chat.Reply(r.Context(), messages)
	if err != nil {
		if errors.Is(err, chat.ErrNoMessages) || errors.Is(err, chat.ErrInvalidRole) {
			writeValidationError(w, r, err)
			return
		}
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "chat request failed", slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_FAILED", chatFailureMessage, true, nil)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, chat.ErrNoMessages) {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGES_REQUIRED", "no messages provided", false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MESSAGE", "message role must be system, user or assistant", false, map[string]any{"details": err.Error()})
}
