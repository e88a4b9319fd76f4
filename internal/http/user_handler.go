package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/example/saturday/internal/application"
)

type userService interface {
	Directory(ctx context.Context, principal application.Principal, filter application.DirectoryFilter) ([]application.User, error)
	Get(ctx context.Context, principal application.Principal, userID string) (application.User, error)
	UpdateProfile(ctx context.Context, principal application.Principal, input application.ProfileInput) (application.User, error)
}

type ratingService interface {
	Rate(ctx context.Context, principal application.Principal, pregameID string, input application.RatingInput) (application.Rating, error)
	ForUser(ctx context.Context, principal application.Principal, userID string) (application.UserRatings, error)
}

type UserHandler struct {
	service   userService
	ratings   ratingService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, ratings ratingService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, ratings: ratings, responder: newResponder(base), logger: base}
}

// List returns the caller's school directory, filtered by the type and q query parameters.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	query := r.URL.Query()
	filter := application.DirectoryFilter{
		AccountType: application.AccountType(query.Get("type")),
		Query:       query.Get("q"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"limit": "must be a non-negative integer"},
			})
			return
		}
		filter.Limit = limit
	}

	users, err := h.service.Directory(r.Context(), principal, filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]userDTO, 0, len(users))
	for _, user := range users {
		dtos = append(dtos, toUserDTO(user))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userListResponse{Users: dtos})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	user, err := h.service.Get(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

// UpdateMe edits the caller's own profile.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		handlerLogger(r.Context(), h.logger, "UserHandler", "UpdateMe", "error_kind", "bad_request").
			WarnContext(r.Context(), "failed to decode profile request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), principal, application.ProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toSelfDTO(user)})
}

// Ratings returns the ratings a school member received.
func (h *UserHandler) Ratings(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	summary, err := h.ratings.ForUser(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]ratingDTO, 0, len(summary.Ratings))
	for _, rating := range summary.Ratings {
		dtos = append(dtos, toRatingDTO(rating))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userRatingsResponse{
		UserID:  summary.UserID,
		Average: summary.Average,
		Count:   len(dtos),
		Ratings: dtos,
	})
}

type profileRequest struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
}

type userDTO struct {
	ID          string `json:"id"`
	SchoolID    string `json:"schoolId,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AccountType string `json:"accountType"`
	Bio         string `json:"bio,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

type userListResponse struct {
	Users []userDTO `json:"users"`
}

type userRatingsResponse struct {
	UserID  string      `json:"userId"`
	Average float64     `json:"average"`
	Count   int         `json:"count"`
	Ratings []ratingDTO `json:"ratings"`
}

// toUserDTO renders another member's public profile. Email addresses are only shown to their
// owner.
func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:          user.ID,
		SchoolID:    user.SchoolID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AccountType: string(user.AccountType),
		Bio:         user.Bio,
		CreatedAt:   formatTimestamp(user.CreatedAt),
	}
}

func toSelfDTO(user application.User) userDTO {
	dto := toUserDTO(user)
	dto.Email = user.Email
	return dto
}
