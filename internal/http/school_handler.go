package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/saturday/internal/application"
)

type schoolService interface {
	List(ctx context.Context) ([]application.School, error)
	GetBySlug(ctx context.Context, slug string) (application.School, error)
}

type SchoolHandler struct {
	service   schoolService
	responder responder
}

func NewSchoolHandler(service schoolService, logger *slog.Logger) *SchoolHandler {
	return &SchoolHandler{service: service, responder: newResponder(defaultLogger(logger))}
}

// List returns the school catalog offered at registration.
func (h *SchoolHandler) List(w http.ResponseWriter, r *http.Request) {
	schools, err := h.service.List(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dtos := make([]schoolDTO, 0, len(schools))
	for _, school := range schools {
		dtos = append(dtos, toSchoolDTO(school))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, schoolListResponse{Schools: dtos})
}

func (h *SchoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	school, err := h.service.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, schoolResponse{School: toSchoolDTO(school)})
}

type schoolDTO struct {
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

type schoolResponse struct {
	School schoolDTO `json:"school"`
}

type schoolListResponse struct {
	Schools []schoolDTO `json:"schools"`
}

func toSchoolDTO(school application.School) schoolDTO {
	return schoolDTO{ID: school.ID, Slug: school.Slug, Name: school.Name, Domain: school.Domain}
}

func toSchoolDTOPtr(school *application.School) *schoolDTO {
	if school == nil {
		return nil
	}
	dto := toSchoolDTO(*school)
	return &dto
}
