package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/saturday/internal/auth"
)

// SchoolDirectory resolves schools for token tenants.
type SchoolDirectory interface {
	GetSchool(ctx context.Context, id string) (School, error)
	GetBySlug(ctx context.Context, slug string) (School, error)
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

const maxDisplayNameLength = 80

// AuthService coordinates registration, login and tenant membership. Tokens are issued only
// after the identity they name has been persisted.
type AuthService struct {
	users       UserRepository
	schools     SchoolDirectory
	tokens      TokenIssuer
	passwords   PasswordHasher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAuthService constructs an AuthService with the provided dependencies.
func NewAuthService(users UserRepository, schools SchoolDirectory, tokens TokenIssuer, passwords PasswordHasher, idGenerator func() string, now func() time.Time) *AuthService {
	return NewAuthServiceWithLogger(users, schools, tokens, passwords, idGenerator, now, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(users UserRepository, schools SchoolDirectory, tokens TokenIssuer, passwords PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AuthService {
	if passwords == nil {
		passwords = Argon2idHasher{Params: DefaultArgon2idParams}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:       users,
		schools:     schools,
		tokens:      tokens,
		passwords:   passwords,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready() error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if s.users == nil || s.schools == nil || s.tokens == nil {
		return fmt.Errorf("auth service dependencies not configured")
	}
	return nil
}

// Register creates an account, optionally joining the school named by SchoolSlug, and issues a
// token for it.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (result AuthResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	input := normalizeRegisterParams(params)
	logger := s.loggerWith(ctx, "Register",
		"email", input.Email,
		"username", input.Username,
		"school_slug", input.SchoolSlug,
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "registration failed")
			return
		}
		logger.InfoContext(ctx, "user registered", "user_id", result.User.ID)
	}()

	if vErr := validateRegisterParams(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var school *School
	if input.SchoolSlug != "" {
		resolved, lookupErr := s.schools.GetBySlug(ctx, input.SchoolSlug)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				err = fieldError("school", "unknown school")
				return
			}
			err = lookupErr
			return
		}
		school = &resolved
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now().UTC()
	user := User{
		ID:          s.idGenerator(),
		Email:       input.Email,
		Username:    input.Username,
		DisplayName: input.DisplayName,
		AccountType: input.AccountType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if school != nil {
		user.SchoolID = school.ID
	}

	if err = s.users.CreateUser(ctx, UserCredentials{User: user, PasswordHash: hash}); err != nil {
		err = s.mapDuplicateAccount(ctx, input, mapRepoError(err))
		return
	}

	result, err = s.issue(user, school)
	return
}

// mapDuplicateAccount names the taken field when a unique constraint rejected the account.
func (s *AuthService) mapDuplicateAccount(ctx context.Context, input RegisterParams, err error) error {
	if !errors.Is(err, ErrAlreadyExists) {
		return err
	}
	if _, lookupErr := s.users.GetUserCredentialsByEmail(ctx, input.Email); lookupErr == nil {
		return fmt.Errorf("%w: email is already registered", ErrAlreadyExists)
	}
	return fmt.Errorf("%w: username is already taken", ErrAlreadyExists)
}

// Login verifies credentials and issues a token scoped to the user's school. Unknown accounts
// and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (result AuthResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	identifier := strings.ToLower(strings.TrimSpace(params.Identifier))
	logger := s.loggerWith(ctx, "Login", "identifier", identifier)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "login failed")
			return
		}
		logger.InfoContext(ctx, "login succeeded", "user_id", result.User.ID)
	}()

	if identifier == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	if strings.Contains(identifier, "@") {
		creds, err = s.users.GetUserCredentialsByEmail(ctx, identifier)
	} else {
		creds, err = s.users.GetUserCredentialsByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			err = ErrInvalidCredentials
		}
		return
	}

	if verifyErr := s.passwords.Verify(creds.PasswordHash, params.Password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	school, err := s.schoolOf(ctx, creds.User)
	if err != nil {
		return
	}
	result, err = s.issue(creds.User, school)
	return
}

// CurrentUser returns the account and school behind a verified principal. A token for an
// account that no longer exists yields ErrUnauthorized.
func (s *AuthService) CurrentUser(ctx context.Context, principal Principal) (user User, school *School, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}

	user, err = s.users.GetUser(ctx, principal.UserID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}
	school, err = s.schoolOf(ctx, user)
	return
}

// JoinSchool attaches the caller to the school with slug and issues a token for the new
// tenant. Joining the school the caller already belongs to just reissues the token; moving to
// another school is a conflict.
func (s *AuthService) JoinSchool(ctx context.Context, principal Principal, slug string) (result AuthResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	slug = strings.ToLower(strings.TrimSpace(slug))
	logger := s.loggerWith(ctx, "JoinSchool", "principal_id", principal.UserID, "school_slug", slug)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "join school failed")
			return
		}
		logger.InfoContext(ctx, "school joined", "school_id", result.User.SchoolID)
	}()

	if principal.UserID == "" {
		err = ErrUnauthorized
		return
	}
	if slug == "" {
		err = fieldError("school", "is required")
		return
	}

	school, err := s.schools.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = fieldError("school", "unknown school")
		}
		return
	}

	creds, err := s.users.GetUserCredentials(ctx, principal.UserID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}

	switch creds.User.SchoolID {
	case school.ID:
	case "":
		creds.User.SchoolID = school.ID
		creds.User.UpdatedAt = s.now().UTC()
		if err = s.users.UpdateUser(ctx, creds); err != nil {
			err = mapRepoError(err)
			return
		}
	default:
		err = fmt.Errorf("%w: account already belongs to another school", ErrConflict)
		return
	}

	result, err = s.issue(creds.User, &school)
	return
}

func (s *AuthService) schoolOf(ctx context.Context, user User) (*School, error) {
	if user.SchoolID == "" {
		return nil, nil
	}
	school, err := s.schools.GetSchool(ctx, user.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("resolve school %s: %w", user.SchoolID, err)
	}
	return &school, nil
}

func (s *AuthService) issue(user User, school *School) (AuthResult, error) {
	tenant := auth.Tenant{}
	if school != nil {
		tenant = auth.Tenant{ID: school.ID, Slug: school.Slug}
	}
	token, claims, err := s.tokens.Issue(auth.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
	}, tenant)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{User: user, School: school, Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

func normalizeRegisterParams(params RegisterParams) RegisterParams {
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.Username = strings.ToLower(strings.TrimSpace(params.Username))
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	if params.DisplayName == "" {
		params.DisplayName = params.Username
	}
	if params.AccountType == "" {
		params.AccountType = AccountStudent
	}
	params.SchoolSlug = strings.ToLower(strings.TrimSpace(params.SchoolSlug))
	return params
}

func validateRegisterParams(params RegisterParams) *ValidationError {
	vErr := &ValidationError{}
	if params.Email == "" {
		vErr.add("email", "is required")
	} else if addr, err := mail.ParseAddress(params.Email); err != nil || addr.Address != params.Email {
		vErr.add("email", "must be a valid email address")
	}
	if !usernamePattern.MatchString(params.Username) {
		vErr.add("username", "must be 3-30 lowercase letters, digits or underscores")
	}
	if utf8.RuneCountInString(params.Password) < MinPasswordLength {
		vErr.add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if utf8.RuneCountInString(params.DisplayName) > maxDisplayNameLength {
		vErr.add("displayName", fmt.Sprintf("must be at most %d characters", maxDisplayNameLength))
	}
	if !params.AccountType.Valid() {
		vErr.add("accountType", "must be student or organization")
	}
	return vErr
}
