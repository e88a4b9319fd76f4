package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/calendar"
)

type pregameService interface {
	Schedule(ctx context.Context, principal application.Principal, params application.ScheduleParams) (application.Pregame, error)
	List(ctx context.Context, principal application.Principal, status application.PregameStatus) ([]application.Pregame, error)
	Get(ctx context.Context, principal application.Principal, id string) (application.Pregame, error)
	Respond(ctx context.Context, principal application.Principal, id string, action application.PregameAction) (application.Pregame, error)
}

type PregameHandler struct {
	service   pregameService
	ratings   ratingService
	responder responder
	logger    *slog.Logger
}

func NewPregameHandler(service pregameService, ratings ratingService, logger *slog.Logger) *PregameHandler {
	base := defaultLogger(logger)
	return &PregameHandler{service: service, ratings: ratings, responder: newResponder(base), logger: base}
}

func (h *PregameHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "PregameHandler", operation, attrs...)
}

// List returns the caller's pregames, optionally filtered by the status query parameter.
func (h *PregameHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	status := application.PregameStatus(strings.ToLower(r.URL.Query().Get("status")))
	pregames, err := h.service.List(r.Context(), principal, status)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]pregameDTO, 0, len(pregames))
	for _, p := range pregames {
		dtos = append(dtos, toPregameDTO(p))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pregameListResponse{Pregames: dtos})
}

func (h *PregameHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	pregame, err := h.service.Get(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pregameResponse{Pregame: toPregameDTO(pregame)})
}

// Create proposes a pregame hosted by the caller.
func (h *PregameHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req pregameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode pregame request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	var date calendar.Date
	if strings.TrimSpace(req.Date) != "" {
		parsed, err := calendar.ParseDate(req.Date)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"date": errInvalidDate.Error()},
			})
			return
		}
		date = parsed
	}

	pregame, err := h.service.Schedule(r.Context(), principal, application.ScheduleParams{
		GuestID:  req.GuestID,
		Date:     date,
		Location: req.Location,
		Notes:    req.Notes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, pregameResponse{Pregame: toPregameDTO(pregame)})
}

// Respond applies the accept, decline or cancel action named in the path.
func (h *PregameHandler) Respond(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	action := application.PregameAction(strings.ToLower(r.PathValue("action")))
	pregame, err := h.service.Respond(r.Context(), principal, r.PathValue("id"), action)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pregameResponse{Pregame: toPregameDTO(pregame)})
}

// Rate records the caller's rating of the other participant.
func (h *PregameHandler) Rate(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req ratingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Rate", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode rating request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	rating, err := h.ratings.Rate(r.Context(), principal, r.PathValue("id"), application.RatingInput{
		Score:   req.Score,
		Comment: req.Comment,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, ratingResponse{Rating: toRatingDTO(rating)})
}

type pregameRequest struct {
	GuestID  string `json:"guestId"`
	Date     string `json:"date"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

type ratingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type pregameDTO struct {
	ID        string `json:"id"`
	HostID    string `json:"hostId"`
	GuestID   string `json:"guestId"`
	Date      string `json:"date"`
	Location  string `json:"location,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type pregameResponse struct {
	Pregame pregameDTO `json:"pregame"`
}

type pregameListResponse struct {
	Pregames []pregameDTO `json:"pregames"`
}

type ratingDTO struct {
	ID        string `json:"id"`
	PregameID string `json:"pregameId"`
	RaterID   string `json:"raterId"`
	RateeID   string `json:"rateeId"`
	Score     int    `json:"score"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type ratingResponse struct {
	Rating ratingDTO `json:"rating"`
}

func toPregameDTO(p application.Pregame) pregameDTO {
	return pregameDTO{
		ID:        p.ID,
		HostID:    p.HostID,
		GuestID:   p.GuestID,
		Date:      p.Date.String(),
		Location:  p.Location,
		Notes:     p.Notes,
		Status:    string(p.Status),
		CreatedAt: formatTimestamp(p.CreatedAt),
		UpdatedAt: formatTimestamp(p.UpdatedAt),
	}
}

func toRatingDTO(r application.Rating) ratingDTO {
	return ratingDTO{
		ID:        r.ID,
		PregameID: r.PregameID,
		RaterID:   r.RaterID,
		RateeID:   r.RateeID,
		Score:     r.Score,
		Comment:   r.Comment,
		CreatedAt: formatTimestamp(r.CreatedAt),
	}
}
