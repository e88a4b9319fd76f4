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
	maxBioLength          = 500
	defaultDirectoryLimit = 50
	maxDirectoryLimit     = 200
)

// UserService exposes the school directory and profile edits.
type UserService struct {
	users  UserRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, now func() time.Time, logger *slog.Logger) *UserService {
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, now: now, logger: defaultLogger(logger)}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// Directory lists members of the caller's school.
func (s *UserService) Directory(ctx context.Context, principal Principal, filter DirectoryFilter) ([]User, error) {
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("user repository not configured")
	}
	if err := requireSchool(principal); err != nil {
		return nil, err
	}
	if filter.AccountType != "" && !filter.AccountType.Valid() {
		return nil, fieldError("type", "must be student or organization")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDirectoryLimit
	}
	if limit > maxDirectoryLimit {
		limit = maxDirectoryLimit
	}

	users, err := s.users.ListUsers(ctx, UserQuery{
		SchoolID:    principal.SchoolID,
		AccountType: filter.AccountType,
		Query:       strings.TrimSpace(filter.Query),
		Limit:       limit,
	})
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, s.loggerWith(ctx, "Directory", "principal_id", principal.UserID), err, "failed to list directory")
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Get returns a member of the caller's school. Accounts in other schools are reported as not
// found.
func (s *UserService) Get(ctx context.Context, principal Principal, userID string) (User, error) {
	if s == nil || s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	if err := requireSchool(principal); err != nil {
		return User{}, err
	}
	return sameSchoolUser(ctx, s.users, principal, userID)
}

// UpdateProfile changes the caller's display name or bio.
func (s *UserService) UpdateProfile(ctx context.Context, principal Principal, input ProfileInput) (user User, err error) {
	if s == nil || s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}
	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "UpdateProfile", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to update profile")
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	vErr := &ValidationError{}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			vErr.add("displayName", "is required")
		} else if utf8.RuneCountInString(name) > maxDisplayNameLength {
			vErr.add("displayName", fmt.Sprintf("must be at most %d characters", maxDisplayNameLength))
		}
	}
	if input.Bio != nil && utf8.RuneCountInString(strings.TrimSpace(*input.Bio)) > maxBioLength {
		vErr.add("bio", fmt.Sprintf("must be at most %d characters", maxBioLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	creds, err := s.users.GetUserCredentials(ctx, principal.UserID)
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}

	if input.DisplayName != nil {
		creds.User.DisplayName = strings.TrimSpace(*input.DisplayName)
	}
	if input.Bio != nil {
		creds.User.Bio = strings.TrimSpace(*input.Bio)
	}
	creds.User.UpdatedAt = s.now().UTC()

	if err = s.users.UpdateUser(ctx, creds); err != nil {
		err = mapRepoError(err)
		return
	}
	user = creds.User
	return
}

// sameSchoolUser loads userID and hides accounts outside the principal's school.
func sameSchoolUser(ctx context.Context, users UserRepository, principal Principal, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	user, err := users.GetUser(ctx, userID)
	if err != nil {
		return User{}, mapRepoError(err)
	}
	if user.SchoolID != principal.SchoolID {
		return User{}, ErrNotFound
	}
	return user, nil
}
