package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/saturday/internal/persistence"
)

const pregameColumns = `id, school_id, host_id, guest_id, date, location, notes, status, created_at, updated_at`

// CreatePregame stores a new pregame.
func (s *Storage) CreatePregame(ctx context.Context, pregame persistence.Pregame) error {
	if pregame.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.helper.Exec(ctx, s.pool.db,
		`INSERT INTO pregames (`+pregameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pregame.ID,
		pregame.SchoolID,
		pregame.HostID,
		pregame.GuestID,
		pregame.Date,
		pregame.Location,
		pregame.Notes,
		pregame.Status,
		formatTime(pregame.CreatedAt),
		formatTime(pregame.UpdatedAt),
	)
	return MapError(err)
}

// GetPregame returns the pregame with id.
func (s *Storage) GetPregame(ctx context.Context, id string) (persistence.Pregame, error) {
	return s.getPregame(ctx, s.pool.db, id)
}

func (s *Storage) getPregame(ctx context.Context, q queryer, id string) (persistence.Pregame, error) {
	if id == "" {
		return persistence.Pregame{}, persistence.ErrNotFound
	}
	row := s.helper.QueryRow(ctx, q, `SELECT `+pregameColumns+` FROM pregames WHERE id = ?`, id)
	pregame, err := scanPregame(row)
	if err != nil {
		return persistence.Pregame{}, MapError(err)
	}
	return pregame, nil
}

// UpdatePregameStatus moves the pregame to toStatus if it is currently in one of from.
// ErrNotFound is returned for unknown ids and ErrConflict when the status does not match.
func (s *Storage) UpdatePregameStatus(ctx context.Context, id string, from []string, toStatus string, updatedAt time.Time) error {
	return s.updatePregameStatus(ctx, s.pool.db, id, from, toStatus, updatedAt)
}

func (s *Storage) updatePregameStatus(ctx context.Context, q queryer, id string, from []string, toStatus string, updatedAt time.Time) error {
	if len(from) == 0 {
		return persistence.ErrConstraintViolation
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `UPDATE pregames SET status = ?, updated_at = ? WHERE id = ? AND status IN (` + placeholders + `)`

	args := []any{toStatus, formatTime(updatedAt), id}
	for _, status := range from {
		args = append(args, status)
	}

	result, err := s.helper.Exec(ctx, q, query, args...)
	if err != nil {
		return MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := s.getPregame(ctx, q, id); err != nil {
		return err
	}
	return persistence.ErrConflict
}

// ConfirmPregame confirms a pending pregame and marks host and guest planned on its date.
func (s *Storage) ConfirmPregame(ctx context.Context, id string, confirmedAt time.Time) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		pregame, err := s.getPregame(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.updatePregameStatus(ctx, tx, id, []string{"pending"}, "confirmed", confirmedAt); err != nil {
			return err
		}
		for _, userID := range []string{pregame.HostID, pregame.GuestID} {
			_, err := s.upsertAvailability(ctx, tx, persistence.Availability{
				UserID:    userID,
				Date:      pregame.Date,
				State:     "planned",
				CreatedAt: confirmedAt,
				UpdatedAt: confirmedAt,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListPregames returns pregames matching filter ordered by date.
func (s *Storage) ListPregames(ctx context.Context, filter persistence.PregameFilter) ([]persistence.Pregame, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ParticipantID != "" {
		clauses = append(clauses, "(host_id = ? OR guest_id = ?)")
		args = append(args, filter.ParticipantID, filter.ParticipantID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + pregameColumns + ` FROM pregames`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY date, created_at`

	rows, err := s.helper.Query(ctx, s.pool.db, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var pregames []persistence.Pregame
	for rows.Next() {
		pregame, err := scanPregame(rows)
		if err != nil {
			return nil, err
		}
		pregames = append(pregames, pregame)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pregames: %w", err)
	}
	return pregames, nil
}

func scanPregame(row scanner) (persistence.Pregame, error) {
	var (
		pregame              persistence.Pregame
		createdAt, updatedAt string
	)
	err := row.Scan(
		&pregame.ID,
		&pregame.SchoolID,
		&pregame.HostID,
		&pregame.GuestID,
		&pregame.Date,
		&pregame.Location,
		&pregame.Notes,
		&pregame.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Pregame{}, persistence.ErrNotFound
		}
		return persistence.Pregame{}, err
	}
	if pregame.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Pregame{}, err
	}
	if pregame.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Pregame{}, err
	}
	return pregame, nil
}
