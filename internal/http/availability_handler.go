package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/calendar"
)

type availabilityService interface {
	List(ctx context.Context, principal application.Principal, start, end calendar.Date) ([]application.Availability, error)
	Set(ctx context.Context, principal application.Principal, date calendar.Date, state calendar.State) (application.Availability, error)
	Clear(ctx context.Context, principal application.Principal, date calendar.Date) error
	SchoolDay(ctx context.Context, principal application.Principal, date calendar.Date) ([]application.DayEntry, error)
}

type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	logger    *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AvailabilityHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AvailabilityHandler", operation, attrs...)
}

// List returns the caller's records between the optional startDate and endDate query
// parameters, inclusive.
func (h *AvailabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	query := r.URL.Query()
	vErr := &application.ValidationError{}
	start := parseQueryDate(query.Get("startDate"), "startDate", vErr)
	end := parseQueryDate(query.Get("endDate"), "endDate", vErr)
	if vErr.HasErrors() {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	records, err := h.service.List(r.Context(), principal, start, end)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]availabilityDTO, 0, len(records))
	for _, record := range records {
		dtos = append(dtos, toAvailabilityDTO(record))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityListResponse{Availability: dtos})
}

// Update creates or replaces the caller's state for the date in the path.
func (h *AvailabilityHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}

	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode availability request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}
	state, err := calendar.ParseState(req.State)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"state": "must be available or planned"},
		})
		return
	}

	record, err := h.service.Set(r.Context(), principal, date, state)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, availabilityResponse{Availability: toAvailabilityDTO(record)})
}

// Delete removes the caller's record for the date in the path, returning the day to unset.
// Deleting a day that has no record succeeds.
func (h *AvailabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}
	if err := h.service.Clear(r.Context(), principal, date); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// SchoolDay lists who in the caller's school is available or planned on a date.
func (h *AvailabilityHandler) SchoolDay(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}
	entries, err := h.service.SchoolDay(r.Context(), principal, date)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]dayEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, dayEntryDTO{User: toUserDTO(entry.User), State: string(entry.State)})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, schoolDayResponse{Date: date.String(), Entries: dtos})
}

func (h *AvailabilityHandler) pathDate(w http.ResponseWriter, r *http.Request) (calendar.Date, bool) {
	date, err := calendar.ParseDate(r.PathValue("date"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"date": errInvalidDate.Error()},
		})
		return calendar.Date{}, false
	}
	return date, true
}

func parseQueryDate(value, field string, vErr *application.ValidationError) calendar.Date {
	value = strings.TrimSpace(value)
	if value == "" {
		return calendar.Date{}
	}
	date, err := calendar.ParseDate(value)
	if err != nil {
		if vErr.FieldErrors == nil {
			vErr.FieldErrors = make(map[string]string)
		}
		vErr.FieldErrors[field] = errInvalidDate.Error()
		return calendar.Date{}
	}
	return date
}

type availabilityRequest struct {
	State string `json:"state"`
}

type availabilityDTO struct {
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	State     string `json:"state"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type availabilityResponse struct {
	Availability availabilityDTO `json:"availability"`
}

type availabilityListResponse struct {
	Availability []availabilityDTO `json:"availability"`
}

type dayEntryDTO struct {
	User  userDTO `json:"user"`
	State string  `json:"state"`
}

type schoolDayResponse struct {
	Date    string        `json:"date"`
	Entries []dayEntryDTO `json:"entries"`
}

func toAvailabilityDTO(record application.Availability) availabilityDTO {
	return availabilityDTO{
		UserID:    record.UserID,
		Date:      record.Date.String(),
		State:     string(record.State),
		CreatedAt: formatTimestamp(record.CreatedAt),
		UpdatedAt: formatTimestamp(record.UpdatedAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
