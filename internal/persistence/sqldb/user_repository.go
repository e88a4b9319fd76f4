package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/saturday/internal/persistence"
)

const userColumns = `id, school_id, email, username, display_name, account_type, bio, password_hash, created_at, updated_at`

// defaultUserLimit caps directory listings when the filter sets no limit.
const defaultUserLimit = 100

// CreateUser inserts a new account. Email and username are stored lower-cased.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.helper.Exec(ctx, s.pool.db, query,
		user.ID,
		nullableString(user.SchoolID),
		normalizeEmail(user.Email),
		normalizeUsername(user.Username),
		user.DisplayName,
		user.AccountType,
		user.Bio,
		user.PasswordHash,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return MapError(err)
}

// UpdateUser overwrites the mutable fields of an account.
func (s *Storage) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		UPDATE users
		SET school_id = ?, email = ?, username = ?, display_name = ?, account_type = ?, bio = ?,
			password_hash = ?, updated_at = ?
		WHERE id = ?`
	result, err := s.helper.Exec(ctx, s.pool.db, query,
		nullableString(user.SchoolID),
		normalizeEmail(user.Email),
		normalizeUsername(user.Username),
		user.DisplayName,
		user.AccountType,
		user.Bio,
		user.PasswordHash,
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetUser returns the account with id.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUserBy(ctx, "id", id)
}

// GetUserByEmail looks an account up by case-insensitive email.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUserBy(ctx, "email", email)
}

// GetUserByUsername looks an account up by case-insensitive username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	username = normalizeUsername(username)
	if username == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return s.getUserBy(ctx, "username", username)
}

func (s *Storage) getUserBy(ctx context.Context, column, value string) (persistence.User, error) {
	row := s.helper.QueryRow(ctx, s.pool.db, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	user, err := scanUser(row)
	if err != nil {
		return persistence.User{}, MapError(err)
	}
	return user, nil
}

// ListUsers returns the accounts matching filter ordered by display name.
func (s *Storage) ListUsers(ctx context.Context, filter persistence.UserFilter) ([]persistence.User, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.SchoolID != "" {
		clauses = append(clauses, "school_id = ?")
		args = append(args, filter.SchoolID)
	}
	if filter.AccountType != "" {
		clauses = append(clauses, "account_type = ?")
		args = append(args, filter.AccountType)
	}
	if term := strings.TrimSpace(filter.Query); term != "" {
		pattern := likePattern(term)
		clauses = append(clauses, `(LOWER(username) LIKE ? ESCAPE '\' OR LOWER(display_name) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultUserLimit
	}
	query += ` ORDER BY display_name, username LIMIT ?`
	args = append(args, limit)

	rows, err := s.helper.Query(ctx, s.pool.db, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row scanner) (persistence.User, error) {
	var (
		user                 persistence.User
		schoolID             sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&user.ID,
		&schoolID,
		&user.Email,
		&user.Username,
		&user.DisplayName,
		&user.AccountType,
		&user.Bio,
		&user.PasswordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.User{}, persistence.ErrNotFound
		}
		return persistence.User{}, err
	}
	if schoolID.Valid {
		id := schoolID.String
		user.SchoolID = &id
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
