package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/saturday/internal/calendar"
)

// MaxAvailabilitySpanDays bounds a single listing request.
const MaxAvailabilitySpanDays = 366

// AvailabilityService reads and writes the caller's own per-day availability. Every operation
// requires a principal scoped to a school.
type AvailabilityService struct {
	availability AvailabilityRepository
	users        UserRepository
	now          func() time.Time
	logger       *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(availability AvailabilityRepository, users UserRepository, now func() time.Time) *AvailabilityService {
	return NewAvailabilityServiceWithLogger(availability, users, now, nil)
}

// NewAvailabilityServiceWithLogger constructs an availability service with a specified logger.
func NewAvailabilityServiceWithLogger(availability AvailabilityRepository, users UserRepository, now func() time.Time, logger *slog.Logger) *AvailabilityService {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityService{availability: availability, users: users, now: now, logger: defaultLogger(logger)}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// List returns the caller's records with start <= date <= end. Zero bounds default to today
// and three months ahead.
func (s *AvailabilityService) List(ctx context.Context, principal Principal, start, end calendar.Date) (records []Availability, err error) {
	if s == nil || s.availability == nil {
		return nil, fmt.Errorf("availability repository not configured")
	}
	if err = requireSchool(principal); err != nil {
		return
	}

	defaultStart, defaultEnd := calendar.DefaultRange(s.now())
	if start.IsZero() {
		start = defaultStart
	}
	if end.IsZero() {
		end = defaultEnd
		if end.Before(start) {
			end = start.AddMonths(calendar.DefaultWindowMonths)
		}
	}

	logger := s.loggerWith(ctx, "List",
		"principal_id", principal.UserID,
		"start", start.String(),
		"end", end.String(),
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to list availability")
			return
		}
		logger.DebugContext(ctx, "availability listed", "count", len(records))
	}()

	if end.Before(start) {
		err = fieldError("endDate", "must not be before startDate")
		return
	}
	if start.DaysUntil(end) > MaxAvailabilitySpanDays {
		err = fieldError("endDate", fmt.Sprintf("range must not exceed %d days", MaxAvailabilitySpanDays))
		return
	}

	records, err = s.availability.ListAvailability(ctx, principal.UserID, start, end)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if records == nil {
		records = []Availability{}
	}
	return
}

// Set stores state for date. Only available and planned are stored; clearing a day goes
// through Clear.
func (s *AvailabilityService) Set(ctx context.Context, principal Principal, date calendar.Date, state calendar.State) (record Availability, err error) {
	if s == nil || s.availability == nil {
		err = fmt.Errorf("availability repository not configured")
		return
	}
	if err = requireSchool(principal); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Set",
		"principal_id", principal.UserID,
		"date", date.String(),
		"state", state.String(),
	)
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to set availability")
			return
		}
		logger.InfoContext(ctx, "availability set")
	}()

	vErr := &ValidationError{}
	if date.IsZero() {
		vErr.add("date", "must be a YYYY-MM-DD date")
	}
	if !state.Stored() {
		vErr.add("state", "must be available or planned")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now().UTC()
	record, err = s.availability.UpsertAvailability(ctx, Availability{
		UserID:    principal.UserID,
		Date:      date,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	})
	err = mapRepoError(err)
	return
}

// Clear removes the record for date. Clearing a day without a record succeeds.
func (s *AvailabilityService) Clear(ctx context.Context, principal Principal, date calendar.Date) (err error) {
	if s == nil || s.availability == nil {
		return fmt.Errorf("availability repository not configured")
	}
	if err = requireSchool(principal); err != nil {
		return
	}
	if date.IsZero() {
		return fieldError("date", "must be a YYYY-MM-DD date")
	}

	logger := s.loggerWith(ctx, "Clear", "principal_id", principal.UserID, "date", date.String())

	removed, err := s.availability.DeleteAvailability(ctx, principal.UserID, date)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(ctx, logger, err, "failed to clear availability")
		return
	}
	logger.InfoContext(ctx, "availability cleared", "removed", removed)
	return nil
}

// SchoolDay lists the members of the caller's school with a stored state on date, excluding
// the caller.
func (s *AvailabilityService) SchoolDay(ctx context.Context, principal Principal, date calendar.Date) (entries []DayEntry, err error) {
	if s == nil || s.availability == nil || s.users == nil {
		return nil, fmt.Errorf("availability service dependencies not configured")
	}
	if err = requireSchool(principal); err != nil {
		return
	}
	if date.IsZero() {
		return nil, fieldError("date", "must be a YYYY-MM-DD date")
	}

	logger := s.loggerWith(ctx, "SchoolDay", "principal_id", principal.UserID, "date", date.String())
	defer func() {
		if err != nil {
			logOutcome(ctx, logger, err, "failed to list school day")
		}
	}()

	records, err := s.availability.ListSchoolAvailability(ctx, principal.SchoolID, date)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	entries = []DayEntry{}
	for _, record := range records {
		if record.UserID == principal.UserID {
			continue
		}
		user, lookupErr := s.users.GetUser(ctx, record.UserID)
		if lookupErr != nil {
			err = mapRepoError(lookupErr)
			return
		}
		entries = append(entries, DayEntry{User: user, State: record.State})
	}
	return
}
