package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/saturday/internal/persistence"
)

const availabilityColumns = `user_id, date, state, created_at, updated_at`

const upsertAvailabilityQuery = `
	INSERT INTO availability (` + availabilityColumns + `)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (user_id, date) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	RETURNING ` + availabilityColumns

// UpsertAvailability stores the state for (user, date), keeping at most one record per pair.
// created_at survives updates.
func (s *Storage) UpsertAvailability(ctx context.Context, record persistence.Availability) (persistence.Availability, error) {
	return s.upsertAvailability(ctx, s.pool.db, record)
}

func (s *Storage) upsertAvailability(ctx context.Context, q queryer, record persistence.Availability) (persistence.Availability, error) {
	if record.UserID == "" || record.Date == "" {
		return persistence.Availability{}, persistence.ErrConstraintViolation
	}
	row := s.helper.QueryRow(ctx, q, upsertAvailabilityQuery,
		record.UserID,
		record.Date,
		record.State,
		formatTime(record.CreatedAt),
		formatTime(record.UpdatedAt),
	)
	stored, err := scanAvailability(row)
	if err != nil {
		return persistence.Availability{}, MapError(err)
	}
	return stored, nil
}

// DeleteAvailability removes the record for (user, date) and reports whether one existed.
func (s *Storage) DeleteAvailability(ctx context.Context, userID, date string) (bool, error) {
	result, err := s.helper.Exec(ctx, s.pool.db, `DELETE FROM availability WHERE user_id = ? AND date = ?`, userID, date)
	if err != nil {
		return false, MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListAvailability returns the user's records with start <= date <= end in date order.
// Empty bounds are open.
func (s *Storage) ListAvailability(ctx context.Context, userID, startDate, endDate string) ([]persistence.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availability WHERE user_id = ?`
	args := []any{userID}
	if startDate != "" {
		query += ` AND date >= ?`
		args = append(args, startDate)
	}
	if endDate != "" {
		query += ` AND date <= ?`
		args = append(args, endDate)
	}
	query += ` ORDER BY date`

	return s.queryAvailability(ctx, query, args...)
}

// ListSchoolAvailability returns every record on date for members of the school.
func (s *Storage) ListSchoolAvailability(ctx context.Context, schoolID, date string) ([]persistence.Availability, error) {
	query := `
		SELECT a.user_id, a.date, a.state, a.created_at, a.updated_at
		FROM availability a
		JOIN users u ON u.id = a.user_id
		WHERE u.school_id = ? AND a.date = ?
		ORDER BY u.display_name, u.username`
	return s.queryAvailability(ctx, query, schoolID, date)
}

func (s *Storage) queryAvailability(ctx context.Context, query string, args ...any) ([]persistence.Availability, error) {
	rows, err := s.helper.Query(ctx, s.pool.db, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var records []persistence.Availability
	for rows.Next() {
		record, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}
	return records, nil
}

func scanAvailability(row scanner) (persistence.Availability, error) {
	var (
		record               persistence.Availability
		createdAt, updatedAt string
	)
	if err := row.Scan(&record.UserID, &record.Date, &record.State, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Availability{}, persistence.ErrNotFound
		}
		return persistence.Availability{}, err
	}
	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Availability{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Availability{}, err
	}
	return record, nil
}
