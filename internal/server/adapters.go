package server

import (
	"context"
	"fmt"
	"time"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/calendar"
	"github.com/example/saturday/internal/persistence"
)

// Repositories is the storage surface the services are wired to. sqldb.Storage implements it.
type Repositories interface {
	persistence.SchoolRepository
	persistence.UserRepository
	persistence.AvailabilityRepository
	persistence.MessageRepository
	persistence.PregameRepository
	persistence.RatingRepository
}

type schoolRepositoryAdapter struct {
	repo persistence.SchoolRepository
}

func newSchoolRepositoryAdapter(repo persistence.SchoolRepository) *schoolRepositoryAdapter {
	return &schoolRepositoryAdapter{repo: repo}
}

func (a *schoolRepositoryAdapter) UpsertSchool(ctx context.Context, school application.School) (application.School, error) {
	stored, err := a.repo.UpsertSchool(ctx, toPersistenceSchool(school))
	if err != nil {
		return application.School{}, err
	}
	return toApplicationSchool(stored), nil
}

func (a *schoolRepositoryAdapter) GetSchool(ctx context.Context, id string) (application.School, error) {
	stored, err := a.repo.GetSchool(ctx, id)
	if err != nil {
		return application.School{}, err
	}
	return toApplicationSchool(stored), nil
}

func (a *schoolRepositoryAdapter) GetSchoolBySlug(ctx context.Context, slug string) (application.School, error) {
	stored, err := a.repo.GetSchoolBySlug(ctx, slug)
	if err != nil {
		return application.School{}, err
	}
	return toApplicationSchool(stored), nil
}

func (a *schoolRepositoryAdapter) ListSchools(ctx context.Context) ([]application.School, error) {
	models, err := a.repo.ListSchools(ctx)
	if err != nil {
		return nil, err
	}
	schools := make([]application.School, 0, len(models))
	for _, model := range models {
		schools = append(schools, toApplicationSchool(model))
	}
	return schools, nil
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, creds application.UserCredentials) error {
	return a.repo.CreateUser(ctx, toPersistenceUser(creds))
}

func (a *userRepositoryAdapter) UpdateUser(ctx context.Context, creds application.UserCredentials) error {
	return a.repo.UpdateUser(ctx, toPersistenceUser(creds))
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentials(ctx context.Context, id string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return toApplicationCredentials(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return toApplicationCredentials(stored), nil
}

func (a *userRepositoryAdapter) GetUserCredentialsByUsername(ctx context.Context, username string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return toApplicationCredentials(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context, query application.UserQuery) ([]application.User, error) {
	models, err := a.repo.ListUsers(ctx, persistence.UserFilter{
		SchoolID:    query.SchoolID,
		AccountType: string(query.AccountType),
		Query:       query.Query,
		Limit:       query.Limit,
	})
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

type availabilityRepositoryAdapter struct {
	repo persistence.AvailabilityRepository
}

func newAvailabilityRepositoryAdapter(repo persistence.AvailabilityRepository) *availabilityRepositoryAdapter {
	return &availabilityRepositoryAdapter{repo: repo}
}

func (a *availabilityRepositoryAdapter) UpsertAvailability(ctx context.Context, record application.Availability) (application.Availability, error) {
	stored, err := a.repo.UpsertAvailability(ctx, persistence.Availability{
		UserID:    record.UserID,
		Date:      record.Date.String(),
		State:     string(record.State),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	})
	if err != nil {
		return application.Availability{}, err
	}
	return toApplicationAvailability(stored)
}

func (a *availabilityRepositoryAdapter) DeleteAvailability(ctx context.Context, userID string, date calendar.Date) (bool, error) {
	return a.repo.DeleteAvailability(ctx, userID, date.String())
}

func (a *availabilityRepositoryAdapter) ListAvailability(ctx context.Context, userID string, start, end calendar.Date) ([]application.Availability, error) {
	models, err := a.repo.ListAvailability(ctx, userID, dateBound(start), dateBound(end))
	if err != nil {
		return nil, err
	}
	return toApplicationAvailabilities(models)
}

func (a *availabilityRepositoryAdapter) ListSchoolAvailability(ctx context.Context, schoolID string, date calendar.Date) ([]application.Availability, error) {
	models, err := a.repo.ListSchoolAvailability(ctx, schoolID, date.String())
	if err != nil {
		return nil, err
	}
	return toApplicationAvailabilities(models)
}

type messageRepositoryAdapter struct {
	repo persistence.MessageRepository
}

func newMessageRepositoryAdapter(repo persistence.MessageRepository) *messageRepositoryAdapter {
	return &messageRepositoryAdapter{repo: repo}
}

func (a *messageRepositoryAdapter) CreateMessage(ctx context.Context, message application.Message) error {
	return a.repo.CreateMessage(ctx, persistence.Message{
		ID:          message.ID,
		SenderID:    message.SenderID,
		RecipientID: message.RecipientID,
		Body:        message.Body,
		CreatedAt:   message.CreatedAt,
		ReadAt:      cloneTime(message.ReadAt),
	})
}

func (a *messageRepositoryAdapter) ListConversation(ctx context.Context, userID, partnerID string, limit int) ([]application.Message, error) {
	models, err := a.repo.ListConversation(ctx, userID, partnerID, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]application.Message, 0, len(models))
	for _, model := range models {
		messages = append(messages, toApplicationMessage(model))
	}
	return messages, nil
}

func (a *messageRepositoryAdapter) MarkConversationRead(ctx context.Context, recipientID, senderID string, readAt time.Time) error {
	return a.repo.MarkConversationRead(ctx, recipientID, senderID, readAt)
}

func (a *messageRepositoryAdapter) ListConversations(ctx context.Context, userID string) ([]application.ConversationSummary, error) {
	models, err := a.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]application.ConversationSummary, 0, len(models))
	for _, model := range models {
		summaries = append(summaries, application.ConversationSummary{
			PartnerID:   model.PartnerID,
			LastMessage: toApplicationMessage(model.LastMessage),
			UnreadCount: model.UnreadCount,
		})
	}
	return summaries, nil
}

type pregameRepositoryAdapter struct {
	repo persistence.PregameRepository
}

func newPregameRepositoryAdapter(repo persistence.PregameRepository) *pregameRepositoryAdapter {
	return &pregameRepositoryAdapter{repo: repo}
}

func (a *pregameRepositoryAdapter) CreatePregame(ctx context.Context, pregame application.Pregame) error {
	return a.repo.CreatePregame(ctx, persistence.Pregame{
		ID:        pregame.ID,
		SchoolID:  pregame.SchoolID,
		HostID:    pregame.HostID,
		GuestID:   pregame.GuestID,
		Date:      pregame.Date.String(),
		Location:  pregame.Location,
		Notes:     pregame.Notes,
		Status:    string(pregame.Status),
		CreatedAt: pregame.CreatedAt,
		UpdatedAt: pregame.UpdatedAt,
	})
}

func (a *pregameRepositoryAdapter) GetPregame(ctx context.Context, id string) (application.Pregame, error) {
	stored, err := a.repo.GetPregame(ctx, id)
	if err != nil {
		return application.Pregame{}, err
	}
	return toApplicationPregame(stored)
}

func (a *pregameRepositoryAdapter) UpdatePregameStatus(ctx context.Context, id string, from []application.PregameStatus, to application.PregameStatus, at time.Time) error {
	statuses := make([]string, 0, len(from))
	for _, status := range from {
		statuses = append(statuses, string(status))
	}
	return a.repo.UpdatePregameStatus(ctx, id, statuses, string(to), at)
}

func (a *pregameRepositoryAdapter) ConfirmPregame(ctx context.Context, id string, at time.Time) error {
	return a.repo.ConfirmPregame(ctx, id, at)
}

func (a *pregameRepositoryAdapter) ListPregames(ctx context.Context, participantID string, status application.PregameStatus) ([]application.Pregame, error) {
	models, err := a.repo.ListPregames(ctx, persistence.PregameFilter{ParticipantID: participantID, Status: string(status)})
	if err != nil {
		return nil, err
	}
	pregames := make([]application.Pregame, 0, len(models))
	for _, model := range models {
		pregame, err := toApplicationPregame(model)
		if err != nil {
			return nil, err
		}
		pregames = append(pregames, pregame)
	}
	return pregames, nil
}

type ratingRepositoryAdapter struct {
	repo persistence.RatingRepository
}

func newRatingRepositoryAdapter(repo persistence.RatingRepository) *ratingRepositoryAdapter {
	return &ratingRepositoryAdapter{repo: repo}
}

func (a *ratingRepositoryAdapter) CreateRating(ctx context.Context, rating application.Rating) error {
	return a.repo.CreateRating(ctx, persistence.Rating{
		ID:        rating.ID,
		PregameID: rating.PregameID,
		RaterID:   rating.RaterID,
		RateeID:   rating.RateeID,
		Score:     rating.Score,
		Comment:   rating.Comment,
		CreatedAt: rating.CreatedAt,
	})
}

func (a *ratingRepositoryAdapter) ListRatingsForUser(ctx context.Context, userID string) ([]application.Rating, error) {
	models, err := a.repo.ListRatingsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ratings := make([]application.Rating, 0, len(models))
	for _, model := range models {
		ratings = append(ratings, application.Rating{
			ID:        model.ID,
			PregameID: model.PregameID,
			RaterID:   model.RaterID,
			RateeID:   model.RateeID,
			Score:     model.Score,
			Comment:   model.Comment,
			CreatedAt: model.CreatedAt,
		})
	}
	return ratings, nil
}

func toApplicationSchool(model persistence.School) application.School {
	return application.School{
		ID:        model.ID,
		Slug:      model.Slug,
		Name:      model.Name,
		Domain:    model.Domain,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceSchool(school application.School) persistence.School {
	return persistence.School{
		ID:        school.ID,
		Slug:      school.Slug,
		Name:      school.Name,
		Domain:    school.Domain,
		CreatedAt: school.CreatedAt,
		UpdatedAt: school.UpdatedAt,
	}
}

func toApplicationUser(model persistence.User) application.User {
	user := application.User{
		ID:          model.ID,
		Email:       model.Email,
		Username:    model.Username,
		DisplayName: model.DisplayName,
		AccountType: application.AccountType(model.AccountType),
		Bio:         model.Bio,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	if model.SchoolID != nil {
		user.SchoolID = *model.SchoolID
	}
	return user
}

func toApplicationCredentials(model persistence.User) application.UserCredentials {
	return application.UserCredentials{User: toApplicationUser(model), PasswordHash: model.PasswordHash}
}

func toPersistenceUser(creds application.UserCredentials) persistence.User {
	user := creds.User
	model := persistence.User{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		AccountType:  string(user.AccountType),
		Bio:          user.Bio,
		PasswordHash: creds.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if user.SchoolID != "" {
		schoolID := user.SchoolID
		model.SchoolID = &schoolID
	}
	return model
}

func toApplicationAvailability(model persistence.Availability) (application.Availability, error) {
	date, err := calendar.ParseDate(model.Date)
	if err != nil {
		return application.Availability{}, fmt.Errorf("stored availability for %s: %w", model.UserID, err)
	}
	state, err := calendar.ParseState(model.State)
	if err != nil {
		return application.Availability{}, fmt.Errorf("stored availability for %s on %s: %w", model.UserID, model.Date, err)
	}
	return application.Availability{
		UserID:    model.UserID,
		Date:      date,
		State:     state,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

func toApplicationAvailabilities(models []persistence.Availability) ([]application.Availability, error) {
	records := make([]application.Availability, 0, len(models))
	for _, model := range models {
		record, err := toApplicationAvailability(model)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func toApplicationMessage(model persistence.Message) application.Message {
	return application.Message{
		ID:          model.ID,
		SenderID:    model.SenderID,
		RecipientID: model.RecipientID,
		Body:        model.Body,
		CreatedAt:   model.CreatedAt,
		ReadAt:      cloneTime(model.ReadAt),
	}
}

func toApplicationPregame(model persistence.Pregame) (application.Pregame, error) {
	date, err := calendar.ParseDate(model.Date)
	if err != nil {
		return application.Pregame{}, fmt.Errorf("stored pregame %s: %w", model.ID, err)
	}
	return application.Pregame{
		ID:        model.ID,
		SchoolID:  model.SchoolID,
		HostID:    model.HostID,
		GuestID:   model.GuestID,
		Date:      date,
		Location:  model.Location,
		Notes:     model.Notes,
		Status:    application.PregameStatus(model.Status),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}, nil
}

// dateBound renders an optional range bound; the zero date is open.
func dateBound(d calendar.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
