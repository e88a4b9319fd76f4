package application

import (
	"time"

	"github.com/example/saturday/internal/calendar"
)

// Principal represents the authenticated user invoking a service method. It is built from
// verified token claims.
type Principal struct {
	UserID     string
	SchoolID   string
	SchoolSlug string
	Email      string
	Username   string
}

// HasSchool reports whether the principal is scoped to a school.
func (p Principal) HasSchool() bool {
	return p.SchoolID != ""
}

// AccountType distinguishes students from campus organizations.
type AccountType string

const (
	AccountStudent      AccountType = "student"
	AccountOrganization AccountType = "organization"
)

// Valid reports whether the account type is known.
func (t AccountType) Valid() bool {
	return t == AccountStudent || t == AccountOrganization
}

// School is a campus tenant.
type School struct {
	ID        string
	Slug      string
	Name      string
	Domain    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SchoolInput is one catalog entry to seed.
type SchoolInput struct {
	Slug   string
	Name   string
	Domain string
}

// User is an account exposed by the application services. It never carries the password hash.
type User struct {
	ID          string
	SchoolID    string
	Email       string
	Username    string
	DisplayName string
	AccountType AccountType
	Bio         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// UserQuery narrows directory lookups at the repository.
type UserQuery struct {
	SchoolID    string
	AccountType AccountType
	Query       string
	Limit       int
}

// DirectoryFilter captures caller supplied directory filters.
type DirectoryFilter struct {
	AccountType AccountType
	Query       string
	Limit       int
}

// ProfileInput captures profile fields a user may change. Nil fields are left untouched.
type ProfileInput struct {
	DisplayName *string
	Bio         *string
}

// RegisterParams captures the data required to create an account.
type RegisterParams struct {
	Email       string
	Username    string
	Password    string
	DisplayName string
	AccountType AccountType
	SchoolSlug  string
}

// LoginParams captures login credentials. Identifier is an email or a username.
type LoginParams struct {
	Identifier string
	Password   string
}

// AuthResult is returned by flows that issue a token.
type AuthResult struct {
	User      User
	School    *School
	Token     string
	ExpiresAt time.Time
}

// Availability is one user's state for one day.
type Availability struct {
	UserID    string
	Date      calendar.Date
	State     calendar.State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayEntry is one school member's state on a given day.
type DayEntry struct {
	User  User
	State calendar.State
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

// ConversationSummary is the repository view of a conversation.
type ConversationSummary struct {
	PartnerID   string
	LastMessage Message
	UnreadCount int
}

// Conversation is a conversation summary resolved to the partner account.
type Conversation struct {
	Partner     User
	LastMessage Message
	UnreadCount int
}

// PregameStatus is the lifecycle state of a pregame.
type PregameStatus string

const (
	PregamePending   PregameStatus = "pending"
	PregameConfirmed PregameStatus = "confirmed"
	PregameDeclined  PregameStatus = "declined"
	PregameCancelled PregameStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s PregameStatus) Valid() bool {
	switch s {
	case PregamePending, PregameConfirmed, PregameDeclined, PregameCancelled:
		return true
	}
	return false
}

// PregameAction is a participant's response to a pregame.
type PregameAction string

const (
	ActionAccept  PregameAction = "accept"
	ActionDecline PregameAction = "decline"
	ActionCancel  PregameAction = "cancel"
)

// Pregame is a gathering proposed by a host to a guest on one day.
type Pregame struct {
	ID        string
	SchoolID  string
	HostID    string
	GuestID   string
	Date      calendar.Date
	Location  string
	Notes     string
	Status    PregameStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Involves reports whether userID is the host or the guest.
func (p Pregame) Involves(userID string) bool {
	return p.HostID == userID || p.GuestID == userID
}

// Partner returns the other participant.
func (p Pregame) Partner(userID string) string {
	if p.HostID == userID {
		return p.GuestID
	}
	return p.HostID
}

// ScheduleParams captures the data required to propose a pregame.
type ScheduleParams struct {
	GuestID  string
	Date     calendar.Date
	Location string
	Notes    string
}

// Rating is a score one participant gives the other after a pregame.
type Rating struct {
	ID        string
	PregameID string
	RaterID   string
	RateeID   string
	Score     int
	Comment   string
	CreatedAt time.Time
}

// RatingInput captures caller provided rating fields.
type RatingInput struct {
	Score   int
	Comment string
}

// UserRatings lists the ratings a user received with their average score.
type UserRatings struct {
	UserID  string
	Ratings []Rating
	Average float64
}
