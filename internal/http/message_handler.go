package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/saturday/internal/application"
)

type messageService interface {
	Send(ctx context.Context, principal application.Principal, recipientID, body string) (application.Message, error)
	Conversation(ctx context.Context, principal application.Principal, partnerID string, limit int) ([]application.Message, error)
	Conversations(ctx context.Context, principal application.Principal) ([]application.Conversation, error)
}

type MessageHandler struct {
	service   messageService
	responder responder
	logger    *slog.Logger
}

func NewMessageHandler(service messageService, logger *slog.Logger) *MessageHandler {
	base := defaultLogger(logger)
	return &MessageHandler{service: service, responder: newResponder(base), logger: base}
}

// Conversations lists the caller's conversations, most recent first.
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	conversations, err := h.service.Conversations(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]conversationDTO, 0, len(conversations))
	for _, c := range conversations {
		dtos = append(dtos, conversationDTO{
			Partner:     toUserDTO(c.Partner),
			LastMessage: toMessageDTO(c.LastMessage),
			UnreadCount: c.UnreadCount,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, conversationListResponse{Conversations: dtos})
}

// Conversation returns the messages exchanged with the user in the path and marks them read.
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"limit": "must be a non-negative integer"},
			})
			return
		}
		limit = parsed
	}

	messages, err := h.service.Conversation(r.Context(), principal, r.PathValue("userID"), limit)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]messageDTO, 0, len(messages))
	for _, m := range messages {
		dtos = append(dtos, toMessageDTO(m))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageListResponse{Messages: dtos})
}

// Send posts a message to the user in the path.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		handlerLogger(r.Context(), h.logger, "MessageHandler", "Send", "error_kind", "bad_request").
			WarnContext(r.Context(), "failed to decode message request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	message, err := h.service.Send(r.Context(), principal, r.PathValue("userID"), req.Body)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, messageResponse{Message: toMessageDTO(message)})
}

type messageRequest struct {
	Body string `json:"body"`
}

type messageDTO struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Body        string `json:"body"`
	CreatedAt   string `json:"createdAt"`
	ReadAt      string `json:"readAt,omitempty"`
}

type messageResponse struct {
	Message messageDTO `json:"message"`
}

type messageListResponse struct {
	Messages []messageDTO `json:"messages"`
}

type conversationDTO struct {
	Partner     userDTO    `json:"partner"`
	LastMessage messageDTO `json:"lastMessage"`
	UnreadCount int        `json:"unreadCount"`
}

type conversationListResponse struct {
	Conversations []conversationDTO `json:"conversations"`
}

func toMessageDTO(m application.Message) messageDTO {
	dto := messageDTO{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		CreatedAt:   formatTimestamp(m.CreatedAt),
	}
	if m.ReadAt != nil {
		dto.ReadAt = formatTimestamp(*m.ReadAt)
	}
	return dto
}
