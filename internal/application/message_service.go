package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxMessageLength         = 2000
	defaultConversationLimit = 100
)

// MessageSentEvent is published after a message is stored.
type MessageSentEvent struct {
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	SchoolID    string    `json:"schoolId"`
	SentAt      time.Time `json:"sentAt"`
}

// MessageService delivers direct messages between members of the same school.
type MessageService struct {
	messages    MessageRepository
	users       UserRepository
	events      EventPublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMessageService constructs a message service.
func NewMessageService(messages MessageRepository, users UserRepository, events EventPublisher, idGenerator func() string, now func() time.Time) *MessageService {
	return NewMessageServiceWithLogger(messages, users, events, idGenerator, now, nil)
}

// NewMessageServiceWithLogger constructs a message service with a specified logger.
func NewMessageServiceWithLogger(messages MessageRepository, users UserRepository, events EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MessageService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MessageService{
		messages:    messages,
		users:       users,
		events:      defaultPublisher(events),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *MessageService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MessageService", operation, attrs...)
}

func (s *MessageService) ready(principal Principal) error {
	if s == nil || s.messages == nil || s.users == nil {
		return fmt.Errorf("message service dependencies not configured")
	}
	return requireSchool(principal)
}

// Send stores a message from the caller to recipientID.
func (s *MessageService) Send(ctx context.Context, principal Principal, recipientID, body string) (message Message, err error) {
	if err = s.ready(principal); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Send", "principal_id", principal.UserID, "recipient_id", recipientID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to send message")
			return
		}
		logger.InfoContext(ctx, "message sent", "message_id", message.ID)
	}()

	body = strings.TrimSpace(body)
	vErr := &ValidationError{}
	switch n := utf8.RuneCountInString(body); {
	case n == 0:
		vErr.add("body", "is required")
	case n > maxMessageLength:
		vErr.add("body", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}
	if recipientID == principal.UserID {
		vErr.add("recipient", "cannot message yourself")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, err = sameSchoolUser(ctx, s.users, principal, recipientID); err != nil {
		return
	}

	message = Message{
		ID:          s.idGenerator(),
		SenderID:    principal.UserID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   s.now().UTC(),
	}
	if err = s.messages.CreateMessage(ctx, message); err != nil {
		err = mapRepoError(err)
		return
	}

	publish(ctx, s.events, logger, EventMessageSent, MessageSentEvent{
		MessageID:   message.ID,
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		SchoolID:    principal.SchoolID,
		SentAt:      message.CreatedAt,
	})
	return
}

// Conversation returns the latest messages exchanged with partnerID, oldest first, and marks
// the partner's messages to the caller as read.
func (s *MessageService) Conversation(ctx context.Context, principal Principal, partnerID string, limit int) (messages []Message, err error) {
	if err = s.ready(principal); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Conversation", "principal_id", principal.UserID, "partner_id", partnerID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to load conversation")
		}
	}()

	if _, err = sameSchoolUser(ctx, s.users, principal, partnerID); err != nil {
		return
	}
	if limit <= 0 || limit > defaultConversationLimit {
		limit = defaultConversationLimit
	}

	messages, err = s.messages.ListConversation(ctx, principal.UserID, partnerID, limit)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if messages == nil {
		messages = []Message{}
	}

	if err = s.messages.MarkConversationRead(ctx, principal.UserID, partnerID, s.now().UTC()); err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

// Conversations lists the caller's conversations, most recent first. Partners who left the
// caller's school are omitted.
func (s *MessageService) Conversations(ctx context.Context, principal Principal) (conversations []Conversation, err error) {
	if err = s.ready(principal); err != nil {
		return
	}

	summaries, err := s.messages.ListConversations(ctx, principal.UserID)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, s.loggerWith(ctx, "Conversations", "principal_id", principal.UserID), err, "failed to list conversations")
		return
	}

	conversations = make([]Conversation, 0, len(summaries))
	for _, summary := range summaries {
		partner, lookupErr := sameSchoolUser(ctx, s.users, principal, summary.PartnerID)
		if errors.Is(lookupErr, ErrNotFound) {
			continue
		}
		if lookupErr != nil {
			err = lookupErr
			return
		}
		conversations = append(conversations, Conversation{
			Partner:     partner,
			LastMessage: summary.LastMessage,
			UnreadCount: summary.UnreadCount,
		})
	}
	return
}
