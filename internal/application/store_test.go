package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/saturday/internal/auth"
	"github.com/example/saturday/internal/calendar"
	"github.com/example/saturday/internal/persistence"
)

// memStore is an in-memory implementation of every repository used by the services. It
// returns persistence sentinels the way the SQL storage does.
type memStore struct {
	mu           sync.Mutex
	schools      map[string]School
	users        map[string]UserCredentials
	availability map[string]Availability
	messages     []Message
	pregames     map[string]Pregame
	ratings      []Rating

	failUpsert error
}

func newMemStore() *memStore {
	return &memStore{
		schools:      make(map[string]School),
		users:        make(map[string]UserCredentials),
		availability: make(map[string]Availability),
		pregames:     make(map[string]Pregame),
	}
}

func availabilityKey(userID string, date calendar.Date) string {
	return userID + "|" + date.String()
}

func (m *memStore) UpsertSchool(_ context.Context, school School) (School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.schools {
		if existing.Slug == school.Slug {
			existing.Name, existing.Domain, existing.UpdatedAt = school.Name, school.Domain, school.UpdatedAt
			m.schools[id] = existing
			return existing, nil
		}
	}
	m.schools[school.ID] = school
	return school, nil
}

func (m *memStore) GetSchool(_ context.Context, id string) (School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	school, ok := m.schools[id]
	if !ok {
		return School{}, persistence.ErrNotFound
	}
	return school, nil
}

func (m *memStore) GetSchoolBySlug(_ context.Context, slug string) (School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, school := range m.schools {
		if school.Slug == slug {
			return school, nil
		}
	}
	return School{}, persistence.ErrNotFound
}

func (m *memStore) ListSchools(context.Context) ([]School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []School
	for _, school := range m.schools {
		out = append(out, school)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateUser(_ context.Context, creds UserCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.User.Email == creds.User.Email || existing.User.Username == creds.User.Username {
			return persistence.ErrDuplicate
		}
	}
	if creds.User.SchoolID != "" {
		if _, ok := m.schools[creds.User.SchoolID]; !ok {
			return persistence.ErrForeignKeyViolation
		}
	}
	m.users[creds.User.ID] = creds
	return nil
}

func (m *memStore) UpdateUser(_ context.Context, creds UserCredentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[creds.User.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.users[creds.User.ID] = creds
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id string) (User, error) {
	creds, err := m.GetUserCredentials(ctx, id)
	return creds.User, err
}

func (m *memStore) GetUserCredentials(_ context.Context, id string) (UserCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.users[id]
	if !ok {
		return UserCredentials{}, persistence.ErrNotFound
	}
	return creds, nil
}

func (m *memStore) findUser(match func(User) bool) (UserCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, creds := range m.users {
		if match(creds.User) {
			return creds, nil
		}
	}
	return UserCredentials{}, persistence.ErrNotFound
}

func (m *memStore) GetUserCredentialsByEmail(_ context.Context, email string) (UserCredentials, error) {
	return m.findUser(func(u User) bool { return u.Email == strings.ToLower(email) })
}

func (m *memStore) GetUserCredentialsByUsername(_ context.Context, username string) (UserCredentials, error) {
	return m.findUser(func(u User) bool { return u.Username == strings.ToLower(username) })
}

func (m *memStore) ListUsers(_ context.Context, query UserQuery) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, creds := range m.users {
		u := creds.User
		if query.SchoolID != "" && u.SchoolID != query.SchoolID {
			continue
		}
		if query.AccountType != "" && u.AccountType != query.AccountType {
			continue
		}
		if query.Query != "" && !strings.Contains(strings.ToLower(u.DisplayName+" "+u.Username), strings.ToLower(query.Query)) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (m *memStore) UpsertAvailability(_ context.Context, record Availability) (Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert != nil {
		return Availability{}, m.failUpsert
	}
	key := availabilityKey(record.UserID, record.Date)
	if existing, ok := m.availability[key]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	m.availability[key] = record
	return record, nil
}

func (m *memStore) DeleteAvailability(_ context.Context, userID string, date calendar.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := availabilityKey(userID, date)
	_, ok := m.availability[key]
	delete(m.availability, key)
	return ok, nil
}

func (m *memStore) ListAvailability(_ context.Context, userID string, start, end calendar.Date) ([]Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Availability
	for _, record := range m.availability {
		if record.UserID == userID && !record.Date.Before(start) && !record.Date.After(end) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memStore) ListSchoolAvailability(_ context.Context, schoolID string, date calendar.Date) ([]Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Availability
	for _, record := range m.availability {
		if record.Date == date && m.users[record.UserID].User.SchoolID == schoolID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) CreateMessage(_ context.Context, message Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *memStore) ListConversation(_ context.Context, userID, partnerID string, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages {
		if (msg.SenderID == userID && msg.RecipientID == partnerID) || (msg.SenderID == partnerID && msg.RecipientID == userID) {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memStore) MarkConversationRead(_ context.Context, recipientID, senderID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, msg := range m.messages {
		if msg.RecipientID == recipientID && msg.SenderID == senderID && msg.ReadAt == nil {
			at := readAt
			m.messages[i].ReadAt = &at
		}
	}
	return nil
}

func (m *memStore) ListConversations(_ context.Context, userID string) ([]ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	index := map[string]int{}
	var out []ConversationSummary
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.SenderID != userID && msg.RecipientID != userID {
			continue
		}
		partner := msg.RecipientID
		if partner == userID {
			partner = msg.SenderID
		}
		j, ok := index[partner]
		if !ok {
			j = len(out)
			index[partner] = j
			out = append(out, ConversationSummary{PartnerID: partner, LastMessage: msg})
		}
		if msg.RecipientID == userID && msg.ReadAt == nil {
			out[j].UnreadCount++
		}
	}
	return out, nil
}

func (m *memStore) CreatePregame(_ context.Context, pregame Pregame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pregames[pregame.ID] = pregame
	return nil
}

func (m *memStore) GetPregame(_ context.Context, id string) (Pregame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pregame, ok := m.pregames[id]
	if !ok {
		return Pregame{}, persistence.ErrNotFound
	}
	return pregame, nil
}

func (m *memStore) UpdatePregameStatus(_ context.Context, id string, from []PregameStatus, to PregameStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatusLocked(id, from, to, at)
}

func (m *memStore) updateStatusLocked(id string, from []PregameStatus, to PregameStatus, at time.Time) error {
	pregame, ok := m.pregames[id]
	if !ok {
		return persistence.ErrNotFound
	}
	for _, status := range from {
		if pregame.Status == status {
			pregame.Status, pregame.UpdatedAt = to, at
			m.pregames[id] = pregame
			return nil
		}
	}
	return persistence.ErrConflict
}

func (m *memStore) ConfirmPregame(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateStatusLocked(id, []PregameStatus{PregamePending}, PregameConfirmed, at); err != nil {
		return err
	}
	pregame := m.pregames[id]
	for _, userID := range []string{pregame.HostID, pregame.GuestID} {
		m.availability[availabilityKey(userID, pregame.Date)] = Availability{
			UserID: userID, Date: pregame.Date, State: calendar.StatePlanned, CreatedAt: at, UpdatedAt: at,
		}
	}
	return nil
}

func (m *memStore) ListPregames(_ context.Context, participantID string, status PregameStatus) ([]Pregame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Pregame
	for _, pregame := range m.pregames {
		if participantID != "" && !pregame.Involves(participantID) {
			continue
		}
		if status != "" && pregame.Status != status {
			continue
		}
		out = append(out, pregame)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateRating(_ context.Context, rating Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ratings {
		if existing.PregameID == rating.PregameID && existing.RaterID == rating.RaterID {
			return persistence.ErrDuplicate
		}
	}
	m.ratings = append(m.ratings, rating)
	return nil
}

func (m *memStore) ListRatingsForUser(_ context.Context, userID string) ([]Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Rating
	for _, rating := range m.ratings {
		if rating.RateeID == userID {
			out = append(out, rating)
		}
	}
	return out, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2025, time.March, 5, 18, 0, 0, 0, time.UTC) // Wednesday

// fixture wires every service against one memStore.
type fixture struct {
	store        *memStore
	events       *recordingPublisher
	issuer       *auth.Issuer
	schools      *SchoolService
	auth         *AuthService
	availability *AvailabilityService
	users        *UserService
	messages     *MessageService
	pregames     *PregameService
	ratings      *RatingService
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), events: &recordingPublisher{}, now: testNow}
	clock := func() time.Time { return f.now }

	issuer, err := auth.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), auth.WithClock(clock))
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	f.issuer = issuer

	logger := quietLogger()
	ids := sequentialIDs("id")
	f.schools = NewSchoolServiceWithLogger(f.store, ids, clock, time.Minute, logger)
	f.auth = NewAuthServiceWithLogger(f.store, f.schools, issuer, testHasher, ids, clock, logger)
	f.availability = NewAvailabilityServiceWithLogger(f.store, f.store, clock, logger)
	f.users = NewUserServiceWithLogger(f.store, clock, logger)
	f.messages = NewMessageServiceWithLogger(f.store, f.store, f.events, ids, clock, logger)
	f.pregames = NewPregameServiceWithLogger(f.store, f.store, f.events, ids, clock, logger)
	f.ratings = NewRatingServiceWithLogger(f.store, f.store, f.store, f.events, ids, clock, logger)

	if _, err := f.schools.Seed(context.Background(), []SchoolInput{
		{Slug: "state", Name: "State University", Domain: "state.edu"},
		{Slug: "tech", Name: "Tech Institute", Domain: "tech.edu"},
	}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	return f
}

// register creates an account and returns the principal its token describes.
func (f *fixture) register(t *testing.T, username, school string) Principal {
	t.Helper()
	result, err := f.auth.Register(context.Background(), RegisterParams{
		Email:       username + "@example.edu",
		Username:    username,
		Password:    "password123",
		DisplayName: strings.ToUpper(username[:1]) + username[1:],
		SchoolSlug:  school,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", username, err)
	}
	claims, err := f.issuer.Verify(result.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return Principal{
		UserID:     claims.UserID,
		SchoolID:   claims.SchoolID,
		SchoolSlug: claims.SchoolSlug,
		Email:      claims.Email,
		Username:   claims.Username,
	}
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func assertValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if _, ok := vErr.FieldErrors[field]; !ok {
		t.Fatalf("expected validation error for %q, got %v", field, vErr.FieldErrors)
	}
}
