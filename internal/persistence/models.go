package persistence

import "time"

// School is a campus tenant.
type School struct {
	ID        string
	Slug      string
	Name      string
	Domain    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a student or organization account.
type User struct {
	ID           string
	SchoolID     *string
	Email        string
	Username     string
	DisplayName  string
	AccountType  string
	Bio          string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Availability is one user's stored state for one calendar day. Days without a record are unset.
type Availability struct {
	UserID    string
	Date      string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a direct message between two users.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Body        string
	CreatedAt   time.Time
	ReadAt      *time.Time
}

// ConversationSummary aggregates the latest message exchanged with one partner.
type ConversationSummary struct {
	PartnerID   string
	LastMessage Message
	UnreadCount int
}

// Pregame is a scheduled gathering between a host and a guest.
type Pregame struct {
	ID        string
	SchoolID  string
	HostID    string
	GuestID   string
	Date      string
	Location  string
	Notes     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Rating is a post-event score one participant gives the other.
type Rating struct {
	ID        string
	PregameID string
	RaterID   string
	RateeID   string
	Score     int
	Comment   string
	CreatedAt time.Time
}
