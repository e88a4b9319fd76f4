package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/saturday/internal/persistence"
)

const messageColumns = `id, sender_id, recipient_id, body, created_at, read_at`

// CreateMessage stores a direct message.
func (s *Storage) CreateMessage(ctx context.Context, message persistence.Message) error {
	if message.ID == "" || message.SenderID == "" || message.RecipientID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.helper.Exec(ctx, s.pool.db,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.SenderID,
		message.RecipientID,
		message.Body,
		formatTime(message.CreatedAt),
		nullableTime(message.ReadAt),
	)
	return MapError(err)
}

// ListConversation returns the most recent messages exchanged between the two users, oldest
// first.
func (s *Storage) ListConversation(ctx context.Context, userID, partnerID string, limit int) ([]persistence.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	messages, err := s.queryMessages(ctx, query, userID, partnerID, partnerID, userID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkConversationRead stamps every unread message from sender to recipient.
func (s *Storage) MarkConversationRead(ctx context.Context, recipientID, senderID string, readAt time.Time) error {
	_, err := s.helper.Exec(ctx, s.pool.db,
		`UPDATE messages SET read_at = ? WHERE recipient_id = ? AND sender_id = ? AND read_at IS NULL`,
		formatTime(readAt), recipientID, senderID,
	)
	return MapError(err)
}

// ListConversations returns one summary per partner, most recent conversation first.
func (s *Storage) ListConversations(ctx context.Context, userID string) ([]persistence.ConversationSummary, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at DESC, id DESC`
	messages, err := s.queryMessages(ctx, query, userID, userID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var summaries []persistence.ConversationSummary
	for _, message := range messages {
		partner := message.RecipientID
		if partner == userID {
			partner = message.SenderID
		}
		i, ok := index[partner]
		if !ok {
			i = len(summaries)
			index[partner] = i
			summaries = append(summaries, persistence.ConversationSummary{PartnerID: partner, LastMessage: message})
		}
		if message.RecipientID == userID && message.ReadAt == nil {
			summaries[i].UnreadCount++
		}
	}
	return summaries, nil
}

func (s *Storage) queryMessages(ctx context.Context, query string, args ...any) ([]persistence.Message, error) {
	rows, err := s.helper.Query(ctx, s.pool.db, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var messages []persistence.Message
	for rows.Next() {
		var (
			message   persistence.Message
			createdAt string
			readAt    sql.NullString
		)
		if err := rows.Scan(&message.ID, &message.SenderID, &message.RecipientID, &message.Body, &createdAt, &readAt); err != nil {
			return nil, err
		}
		if message.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t, err := parseTime(readAt.String)
			if err != nil {
				return nil, err
			}
			message.ReadAt = &t
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
