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
	"github.com/example/saturday/internal/scheduler"
)

const (
	maxLocationLength = 120
	maxNotesLength    = 500
)

// PregameEvent is published when a pregame is scheduled or changes status.
type PregameEvent struct {
	PregameID string        `json:"pregameId"`
	SchoolID  string        `json:"schoolId"`
	HostID    string        `json:"hostId"`
	GuestID   string        `json:"guestId"`
	Date      calendar.Date `json:"date"`
	Status    PregameStatus `json:"status"`
	ActorID   string        `json:"actorId"`
}

// PregameService schedules pregames between members of one school and moves them through
// pending, confirmed, declined and cancelled.
type PregameService struct {
	pregames    PregameRepository
	users       UserRepository
	events      EventPublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPregameService constructs a pregame service.
func NewPregameService(pregames PregameRepository, users UserRepository, events EventPublisher, idGenerator func() string, now func() time.Time) *PregameService {
	return NewPregameServiceWithLogger(pregames, users, events, idGenerator, now, nil)
}

// NewPregameServiceWithLogger constructs a pregame service with a specified logger.
func NewPregameServiceWithLogger(pregames PregameRepository, users UserRepository, events EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PregameService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PregameService{
		pregames:    pregames,
		users:       users,
		events:      defaultPublisher(events),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *PregameService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PregameService", operation, attrs...)
}

func (s *PregameService) ready(principal Principal) error {
	if s == nil || s.pregames == nil || s.users == nil {
		return fmt.Errorf("pregame service dependencies not configured")
	}
	return requireSchool(principal)
}

// Schedule proposes a pregame hosted by the caller. It starts pending until the guest responds.
func (s *PregameService) Schedule(ctx context.Context, principal Principal, params ScheduleParams) (pregame Pregame, err error) {
	if err = s.ready(principal); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Schedule",
		"principal_id", principal.UserID,
		"guest_id", params.GuestID,
		"date", params.Date.String(),
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to schedule pregame")
			return
		}
		logger.InfoContext(ctx, "pregame scheduled", "pregame_id", pregame.ID)
	}()

	params.GuestID = strings.TrimSpace(params.GuestID)
	params.Location = strings.TrimSpace(params.Location)
	params.Notes = strings.TrimSpace(params.Notes)

	today := calendar.DateOf(s.now())
	vErr := &ValidationError{}
	switch {
	case params.GuestID == "":
		vErr.add("guestId", "is required")
	case params.GuestID == principal.UserID:
		vErr.add("guestId", "cannot invite yourself")
	}
	switch {
	case params.Date.IsZero():
		vErr.add("date", "must be a YYYY-MM-DD date")
	case params.Date.Before(today):
		vErr.add("date", "must not be in the past")
	}
	if utf8.RuneCountInString(params.Location) > maxLocationLength {
		vErr.add("location", fmt.Sprintf("must be at most %d characters", maxLocationLength))
	}
	if utf8.RuneCountInString(params.Notes) > maxNotesLength {
		vErr.add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if _, err = sameSchoolUser(ctx, s.users, principal, params.GuestID); err != nil {
		return
	}

	now := s.now().UTC()
	candidate := Pregame{
		ID:        s.idGenerator(),
		SchoolID:  principal.SchoolID,
		HostID:    principal.UserID,
		GuestID:   params.GuestID,
		Date:      params.Date,
		Location:  params.Location,
		Notes:     params.Notes,
		Status:    PregamePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.checkDoubleBooking(ctx, candidate); err != nil {
		return
	}
	if err = s.pregames.CreatePregame(ctx, candidate); err != nil {
		err = mapRepoError(err)
		return
	}
	pregame = candidate

	publish(ctx, s.events, logger, EventPregameScheduled, pregameEvent(pregame, principal.UserID))
	return
}

// List returns the caller's pregames, optionally narrowed to one status.
func (s *PregameService) List(ctx context.Context, principal Principal, status PregameStatus) ([]Pregame, error) {
	if err := s.ready(principal); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, fieldError("status", "must be pending, confirmed, declined or cancelled")
	}

	pregames, err := s.pregames.ListPregames(ctx, principal.UserID, status)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, s.loggerWith(ctx, "List", "principal_id", principal.UserID), err, "failed to list pregames")
		return nil, err
	}

	scoped := make([]Pregame, 0, len(pregames))
	for _, pregame := range pregames {
		if pregame.SchoolID == principal.SchoolID {
			scoped = append(scoped, pregame)
		}
	}
	return scoped, nil
}

// Get returns one of the caller's pregames.
func (s *PregameService) Get(ctx context.Context, principal Principal, id string) (Pregame, error) {
	if err := s.ready(principal); err != nil {
		return Pregame{}, err
	}
	return s.participantPregame(ctx, principal, id)
}

// Respond applies a participant's action. Only the guest may accept or decline a pending
// pregame; either participant may cancel one that is pending or confirmed. Accepting marks both
// participants planned for the day.
func (s *PregameService) Respond(ctx context.Context, principal Principal, id string, action PregameAction) (pregame Pregame, err error) {
	if err = s.ready(principal); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Respond",
		"principal_id", principal.UserID,
		"pregame_id", id,
		"action", string(action),
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to respond to pregame")
			return
		}
		logger.InfoContext(ctx, "pregame updated", "status", string(pregame.Status))
	}()

	current, err := s.participantPregame(ctx, principal, id)
	if err != nil {
		return
	}

	now := s.now().UTC()
	switch action {
	case ActionAccept:
		if current.GuestID != principal.UserID {
			err = ErrForbidden
			return
		}
		if current.Status == PregamePending {
			if err = s.checkDoubleBooking(ctx, current); err != nil {
				return
			}
		}
		err = s.pregames.ConfirmPregame(ctx, id, now)
	case ActionDecline:
		if current.GuestID != principal.UserID {
			err = ErrForbidden
			return
		}
		err = s.pregames.UpdatePregameStatus(ctx, id, []PregameStatus{PregamePending}, PregameDeclined, now)
	case ActionCancel:
		err = s.pregames.UpdatePregameStatus(ctx, id, []PregameStatus{PregamePending, PregameConfirmed}, PregameCancelled, now)
	default:
		err = fieldError("action", "must be accept, decline or cancel")
		return
	}
	if err != nil {
		err = mapRepoError(err)
		if errors.Is(err, ErrConflict) {
			err = fmt.Errorf("%w: pregame is %s", ErrConflict, current.Status)
		}
		return
	}

	pregame, err = s.pregames.GetPregame(ctx, id)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	publish(ctx, s.events, logger, EventPregameUpdated, pregameEvent(pregame, principal.UserID))
	return
}

// checkDoubleBooking rejects candidate when either participant already has a pending or
// confirmed pregame on the same day.
func (s *PregameService) checkDoubleBooking(ctx context.Context, candidate Pregame) error {
	var existing []scheduler.Booking
	for _, participant := range []string{candidate.HostID, candidate.GuestID} {
		pregames, err := s.pregames.ListPregames(ctx, participant, "")
		if err != nil {
			return mapRepoError(err)
		}
		for _, p := range pregames {
			if p.Status != PregamePending && p.Status != PregameConfirmed {
				continue
			}
			existing = append(existing, scheduler.Booking{ID: p.ID, Date: p.Date, Participants: []string{p.HostID, p.GuestID}})
		}
	}

	conflicts := scheduler.DetectConflicts(existing, scheduler.Booking{
		ID:           candidate.ID,
		Date:         candidate.Date,
		Participants: []string{candidate.HostID, candidate.GuestID},
	})
	if len(conflicts) == 0 {
		return nil
	}
	who := "guest"
	if conflicts[0].Participant == candidate.HostID {
		who = "host"
	}
	return fmt.Errorf("%w: %s already has a pregame on %s", ErrConflict, who, candidate.Date)
}

// participantPregame loads id and hides pregames the principal does not take part in.
func (s *PregameService) participantPregame(ctx context.Context, principal Principal, id string) (Pregame, error) {
	if strings.TrimSpace(id) == "" {
		return Pregame{}, ErrNotFound
	}
	pregame, err := s.pregames.GetPregame(ctx, id)
	if err != nil {
		return Pregame{}, mapRepoError(err)
	}
	if !pregame.Involves(principal.UserID) || pregame.SchoolID != principal.SchoolID {
		return Pregame{}, ErrNotFound
	}
	return pregame, nil
}

func pregameEvent(pregame Pregame, actorID string) PregameEvent {
	return PregameEvent{
		PregameID: pregame.ID,
		SchoolID:  pregame.SchoolID,
		HostID:    pregame.HostID,
		GuestID:   pregame.GuestID,
		Date:      pregame.Date,
		Status:    pregame.Status,
		ActorID:   actorID,
	}
}
