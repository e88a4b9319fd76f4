package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/saturday/internal/persistence"
)

const schoolColumns = `id, slug, name, domain, created_at, updated_at`

// UpsertSchool inserts a school or updates the name and domain of the school with the same slug.
// The stored row is returned so callers learn the surviving id.
func (s *Storage) UpsertSchool(ctx context.Context, school persistence.School) (persistence.School, error) {
	if school.ID == "" || strings.TrimSpace(school.Slug) == "" {
		return persistence.School{}, persistence.ErrConstraintViolation
	}
	query := `
		INSERT INTO schools (` + schoolColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET name = excluded.name, domain = excluded.domain, updated_at = excluded.updated_at
		RETURNING ` + schoolColumns

	row := s.helper.QueryRow(ctx, s.pool.db, query,
		school.ID,
		strings.ToLower(strings.TrimSpace(school.Slug)),
		school.Name,
		school.Domain,
		formatTime(school.CreatedAt),
		formatTime(school.UpdatedAt),
	)
	stored, err := scanSchool(row)
	if err != nil {
		return persistence.School{}, MapError(err)
	}
	return stored, nil
}

// GetSchool returns the school with id.
func (s *Storage) GetSchool(ctx context.Context, id string) (persistence.School, error) {
	if id == "" {
		return persistence.School{}, persistence.ErrNotFound
	}
	row := s.helper.QueryRow(ctx, s.pool.db, `SELECT `+schoolColumns+` FROM schools WHERE id = ?`, id)
	school, err := scanSchool(row)
	if err != nil {
		return persistence.School{}, MapError(err)
	}
	return school, nil
}

// GetSchoolBySlug returns the school with slug.
func (s *Storage) GetSchoolBySlug(ctx context.Context, slug string) (persistence.School, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return persistence.School{}, persistence.ErrNotFound
	}
	row := s.helper.QueryRow(ctx, s.pool.db, `SELECT `+schoolColumns+` FROM schools WHERE slug = ?`, slug)
	school, err := scanSchool(row)
	if err != nil {
		return persistence.School{}, MapError(err)
	}
	return school, nil
}

// ListSchools returns every school ordered by name.
func (s *Storage) ListSchools(ctx context.Context) ([]persistence.School, error) {
	rows, err := s.helper.Query(ctx, s.pool.db, `SELECT `+schoolColumns+` FROM schools ORDER BY name, slug`)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var schools []persistence.School
	for rows.Next() {
		school, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		schools = append(schools, school)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schools: %w", err)
	}
	return schools, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchool(row scanner) (persistence.School, error) {
	var school persistence.School
	var createdAt, updatedAt string
	if err := row.Scan(&school.ID, &school.Slug, &school.Name, &school.Domain, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return persistence.School{}, persistence.ErrNotFound
		}
		return persistence.School{}, err
	}
	var err error
	if school.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.School{}, err
	}
	if school.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.School{}, err
	}
	return school, nil
}
