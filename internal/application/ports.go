package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/saturday/internal/auth"
	"github.com/example/saturday/internal/calendar"
)

// SchoolRepository captures the persistence operations for the school catalog.
type SchoolRepository interface {
	UpsertSchool(ctx context.Context, school School) (School, error)
	GetSchool(ctx context.Context, id string) (School, error)
	GetSchoolBySlug(ctx context.Context, slug string) (School, error)
	ListSchools(ctx context.Context) ([]School, error)
}

// UserRepository captures the persistence operations for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, creds UserCredentials) error
	UpdateUser(ctx context.Context, creds UserCredentials) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserCredentials(ctx context.Context, id string) (UserCredentials, error)
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUserCredentialsByUsername(ctx context.Context, username string) (UserCredentials, error)
	ListUsers(ctx context.Context, query UserQuery) ([]User, error)
}

// AvailabilityRepository captures the persistence operations for per-day availability.
type AvailabilityRepository interface {
	UpsertAvailability(ctx context.Context, record Availability) (Availability, error)
	DeleteAvailability(ctx context.Context, userID string, date calendar.Date) (bool, error)
	ListAvailability(ctx context.Context, userID string, start, end calendar.Date) ([]Availability, error)
	ListSchoolAvailability(ctx context.Context, schoolID string, date calendar.Date) ([]Availability, error)
}

// MessageRepository captures the persistence operations for direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, message Message) error
	ListConversation(ctx context.Context, userID, partnerID string, limit int) ([]Message, error)
	MarkConversationRead(ctx context.Context, recipientID, senderID string, readAt time.Time) error
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)
}

// PregameRepository captures the persistence operations for pregames.
type PregameRepository interface {
	CreatePregame(ctx context.Context, pregame Pregame) error
	GetPregame(ctx context.Context, id string) (Pregame, error)
	UpdatePregameStatus(ctx context.Context, id string, from []PregameStatus, to PregameStatus, at time.Time) error
	ConfirmPregame(ctx context.Context, id string, at time.Time) error
	ListPregames(ctx context.Context, participantID string, status PregameStatus) ([]Pregame, error)
}

// RatingRepository captures the persistence operations for ratings.
type RatingRepository interface {
	CreateRating(ctx context.Context, rating Rating) error
	ListRatingsForUser(ctx context.Context, userID string) ([]Rating, error)
}

// TokenIssuer signs session tokens once an identity has been persisted.
type TokenIssuer interface {
	Issue(identity auth.Identity, tenant auth.Tenant) (string, auth.Claims, error)
}

// Event subjects published by the services.
const (
	EventMessageSent      = "message.sent"
	EventPregameScheduled = "pregame.scheduled"
	EventPregameUpdated   = "pregame.updated"
	EventRatingCreated    = "rating.created"
)

// EventPublisher delivers domain events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, any) error { return nil }

func defaultPublisher(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// publish delivers an event. Failures are logged and never fail the operation that produced
// the event.
func publish(ctx context.Context, publisher EventPublisher, logger *slog.Logger, subject string, payload any) {
	if err := publisher.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}

// requireSchool rejects principals without a resolved school.
func requireSchool(p Principal) error {
	if p.UserID == "" {
		return ErrUnauthorized
	}
	if !p.HasSchool() {
		return ErrSchoolRequired
	}
	return nil
}
