package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/service"
)

// ChatHandler serves /api/chat. Every route requires a signed-in caller.
type ChatHandler struct {
	chat   *service.ChatService
	logger *slog.Logger
}

func NewChatHandler(chat *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

var errBadConversation = apperror.ValidationFailed("id", "Invalid conversation id")

// HandleOpenDirect: POST /api/chat/direct/{userId}
func (h *ChatHandler) HandleOpenDirect(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chat.OpenDirect(r.Context(), currentUserID(r), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"conversation": conv})
}

// HandleListConversations: GET /api/chat/conversations
func (h *ChatHandler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chat.ListConversations(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"conversations": convs})
}

// HandleListMessages: GET /api/chat/conversations/{id}/messages?limit=50&offset=0
func (h *ChatHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, r, h.logger, errBadConversation)
		return
	}
	msgs, err := h.chat.ListMessages(r.Context(), id, currentUserID(r), intQuery(r, "limit"), intQuery(r, "offset"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"messages": msgs})
}

// HandleSendMessage: POST /api/chat/conversations/{id}/messages
// Body: {"content": "...", "type": "text"|"image"|"system", "metadata": {...}}
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, r, h.logger, errBadConversation)
		return
	}
	var body struct {
		Content  string          `json:"content"`
		Type     string          `json:"type"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), id, currentUserID(r), service.SendInput{
		Type:     body.Type,
		Content:  body.Content,
		Metadata: body.Metadata,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "Message sent", M{"message": msg})
}

// HandleMarkRead: PATCH /api/chat/conversations/{id}/read
func (h *ChatHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(r, "id")
	if !ok {
		writeError(w, r, h.logger, errBadConversation)
		return
	}
	state, err := h.chat.MarkRead(r.Context(), id, currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"read_state": state})
}
