package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/example/saturday/internal/application"
)

var userCounter atomic.Uint64

// DefaultPassword is the password given to every fixture account.
const DefaultPassword = "correct-horse-battery"

// UserFixture describes an account to register.
type UserFixture struct {
	Email       string
	Username    string
	Password    string
	DisplayName string
	AccountType application.AccountType
	School      string
}

// UserOption configures a UserFixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a unique student at the "state" school.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := userCounter.Add(1)
	username := fmt.Sprintf("student_%03d", idx)
	fixture := UserFixture{
		Email:       username + "@state.example.edu",
		Username:    username,
		Password:    DefaultPassword,
		DisplayName: fmt.Sprintf("Student %03d", idx),
		AccountType: application.AccountStudent,
		School:      "state",
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUsername overrides the username and derives the email from it.
func WithUsername(username string) UserOption {
	return func(f *UserFixture) {
		f.Username = username
		f.Email = username + "@state.example.edu"
	}
}

// WithSchool sets the school slug. An empty slug registers without a school.
func WithSchool(slug string) UserOption {
	return func(f *UserFixture) {
		f.School = slug
	}
}

// WithOrganization registers the account as a campus organization.
func WithOrganization() UserOption {
	return func(f *UserFixture) {
		f.AccountType = application.AccountOrganization
	}
}

// Params returns the registration parameters.
func (f UserFixture) Params() application.RegisterParams {
	return application.RegisterParams{
		Email:       f.Email,
		Username:    f.Username,
		Password:    f.Password,
		DisplayName: f.DisplayName,
		AccountType: f.AccountType,
		SchoolSlug:  f.School,
	}
}

// Register creates the account directly through the auth service and returns the principal
// its token would carry.
func (s *Stack) Register(tb testing.TB, fixture UserFixture) (application.User, application.Principal) {
	tb.Helper()
	result, err := s.Server.Auth.Register(context.Background(), fixture.Params())
	if err != nil {
		tb.Fatalf("register %s: %v", fixture.Username, err)
	}
	principal := application.Principal{
		UserID:   result.User.ID,
		Email:    result.User.Email,
		Username: result.User.Username,
	}
	if result.School != nil {
		principal.SchoolID = result.School.ID
		principal.SchoolSlug = result.School.Slug
	}
	return result.User, principal
}
