package persistence

import (
	"context"
	"time"
)

// SchoolRepository stores the school catalog.
type SchoolRepository interface {
	UpsertSchool(ctx context.Context, school School) (School, error)
	GetSchool(ctx context.Context, id string) (School, error)
	GetSchoolBySlug(ctx context.Context, slug string) (School, error)
	ListSchools(ctx context.Context) ([]School, error)
}

// UserFilter narrows directory queries.
type UserFilter struct {
	SchoolID    string
	AccountType string
	Query       string
	Limit       int
}

// UserRepository exposes CRUD operations for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

// AvailabilityRepository stores per-day availability keyed by (user, date).
type AvailabilityRepository interface {
	UpsertAvailability(ctx context.Context, record Availability) (Availability, error)
	DeleteAvailability(ctx context.Context, userID, date string) (bool, error)
	ListAvailability(ctx context.Context, userID, startDate, endDate string) ([]Availability, error)
	ListSchoolAvailability(ctx context.Context, schoolID, date string) ([]Availability, error)
}

// MessageRepository stores direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, message Message) error
	ListConversation(ctx context.Context, userID, partnerID string, limit int) ([]Message, error)
	MarkConversationRead(ctx context.Context, recipientID, senderID string, readAt time.Time) error
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)
}

// PregameFilter narrows pregame listings.
type PregameFilter struct {
	ParticipantID string
	Status        string
}

// PregameRepository stores scheduled pregames.
type PregameRepository interface {
	CreatePregame(ctx context.Context, pregame Pregame) error
	GetPregame(ctx context.Context, id string) (Pregame, error)
	// UpdatePregameStatus moves a pregame to toStatus when its current status is one of from.
	UpdatePregameStatus(ctx context.Context, id string, from []string, toStatus string, updatedAt time.Time) error
	// ConfirmPregame marks a pending pregame confirmed and both participants planned for its
	// date in one transaction.
	ConfirmPregame(ctx context.Context, id string, confirmedAt time.Time) error
	ListPregames(ctx context.Context, filter PregameFilter) ([]Pregame, error)
}

// RatingRepository stores post-event ratings.
type RatingRepository interface {
	CreateRating(ctx context.Context, rating Rating) error
	ListRatingsForUser(ctx context.Context, userID string) ([]Rating, error)
}
