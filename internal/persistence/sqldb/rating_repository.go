package sqldb

import (
	"context"
	"fmt"

	"github.com/example/saturday/internal/persistence"
)

const ratingColumns = `id, pregame_id, rater_id, ratee_id, score, comment, created_at`

// CreateRating stores a rating. A second rating by the same rater for the same pregame fails
// with ErrDuplicate.
func (s *Storage) CreateRating(ctx context.Context, rating persistence.Rating) error {
	if rating.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.helper.Exec(ctx, s.pool.db,
		`INSERT INTO ratings (`+ratingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rating.ID,
		rating.PregameID,
		rating.RaterID,
		rating.RateeID,
		rating.Score,
		rating.Comment,
		formatTime(rating.CreatedAt),
	)
	return MapError(err)
}

// ListRatingsForUser returns the ratings a user received, newest first.
func (s *Storage) ListRatingsForUser(ctx context.Context, userID string) ([]persistence.Rating, error) {
	rows, err := s.helper.Query(ctx, s.pool.db,
		`SELECT `+ratingColumns+` FROM ratings WHERE ratee_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var ratings []persistence.Rating
	for rows.Next() {
		var (
			rating    persistence.Rating
			createdAt string
		)
		if err := rows.Scan(&rating.ID, &rating.PregameID, &rating.RaterID, &rating.RateeID, &rating.Score, &rating.Comment, &createdAt); err != nil {
			return nil, err
		}
		if rating.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}
