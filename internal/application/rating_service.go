package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/saturday/internal/calendar"
)

const maxCommentLength = 500

// RatingCreatedEvent is published after a rating is stored.
type RatingCreatedEvent struct {
	RatingID  string `json:"ratingId"`
	PregameID string `json:"pregameId"`
	RaterID   string `json:"raterId"`
	RateeID   string `json:"rateeId"`
	Score     int    `json:"score"`
}

// RatingService records ratings between pregame participants.
type RatingService struct {
	ratings     RatingRepository
	pregames    PregameRepository
	users       UserRepository
	events      EventPublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRatingService constructs a rating service.
func NewRatingService(ratings RatingRepository, pregames PregameRepository, users UserRepository, events EventPublisher, idGenerator func() string, now func() time.Time) *RatingService {
	return NewRatingServiceWithLogger(ratings, pregames, users, events, idGenerator, now, nil)
}

// NewRatingServiceWithLogger constructs a rating service with a specified logger.
func NewRatingServiceWithLogger(ratings RatingRepository, pregames PregameRepository, users UserRepository, events EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RatingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RatingService{
		ratings:     ratings,
		pregames:    pregames,
		users:       users,
		events:      defaultPublisher(events),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RatingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RatingService", operation, attrs...)
}

func (s *RatingService) ready(principal Principal) error {
	if s == nil || s.ratings == nil || s.pregames == nil || s.users == nil {
		return fmt.Errorf("rating service dependencies not configured")
	}
	return requireSchool(principal)
}

// Rate records the caller's rating of the other participant of a confirmed pregame. Ratings
// open on the day of the pregame and each participant rates once.
func (s *RatingService) Rate(ctx context.Context, principal Principal, pregameID string, input RatingInput) (rating Rating, err error) {
	if err = s.ready(principal); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Rate", "principal_id", principal.UserID, "pregame_id", pregameID)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to rate pregame")
			return
		}
		logger.InfoContext(ctx, "rating recorded", "rating_id", rating.ID, "score", rating.Score)
	}()

	comment := strings.TrimSpace(input.Comment)
	vErr := &ValidationError{}
	if input.Score < 1 || input.Score > 5 {
		vErr.add("score", "must be between 1 and 5")
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		vErr.add("comment", fmt.Sprintf("must be at most %d characters", maxCommentLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	pregame, err := s.pregames.GetPregame(ctx, pregameID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !pregame.Involves(principal.UserID) || pregame.SchoolID != principal.SchoolID {
		err = ErrNotFound
		return
	}
	if pregame.Status != PregameConfirmed {
		err = fmt.Errorf("%w: only confirmed pregames can be rated", ErrConflict)
		return
	}
	if pregame.Date.After(calendar.DateOf(s.now())) {
		err = fmt.Errorf("%w: pregame has not happened yet", ErrConflict)
		return
	}

	rating = Rating{
		ID:        s.idGenerator(),
		PregameID: pregame.ID,
		RaterID:   principal.UserID,
		RateeID:   pregame.Partner(principal.UserID),
		Score:     input.Score,
		Comment:   comment,
		CreatedAt: s.now().UTC(),
	}
	if err = s.ratings.CreateRating(ctx, rating); err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrAlreadyExists) {
			err = fmt.Errorf("%w: pregame already rated", ErrAlreadyExists)
		}
		rating = Rating{}
		return
	}

	publish(ctx, s.events, logger, EventRatingCreated, RatingCreatedEvent{
		RatingID:  rating.ID,
		PregameID: rating.PregameID,
		RaterID:   rating.RaterID,
		RateeID:   rating.RateeID,
		Score:     rating.Score,
	})
	return
}

// ForUser returns the ratings a member of the caller's school received and their average.
func (s *RatingService) ForUser(ctx context.Context, principal Principal, userID string) (UserRatings, error) {
	if err := s.ready(principal); err != nil {
		return UserRatings{}, err
	}
	if _, err := sameSchoolUser(ctx, s.users, principal, userID); err != nil {
		return UserRatings{}, err
	}

	ratings, err := s.ratings.ListRatingsForUser(ctx, userID)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, s.loggerWith(ctx, "ForUser", "principal_id", principal.UserID, "user_id", userID), err, "failed to list ratings")
		return UserRatings{}, err
	}

	result := UserRatings{UserID: userID, Ratings: ratings}
	if result.Ratings == nil {
		result.Ratings = []Rating{}
	}
	if len(ratings) > 0 {
		total := 0
		for _, r := range ratings {
			total += r.Score
		}
		result.Average = float64(total) / float64(len(ratings))
	}
	return result, nil
}
