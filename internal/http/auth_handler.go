package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/saturday/internal/application"
)

type authService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.AuthResult, error)
	Login(ctx context.Context, params application.LoginParams) (application.AuthResult, error)
	CurrentUser(ctx context.Context, principal application.Principal) (application.User, *application.School, error)
	JoinSchool(ctx context.Context, principal application.Principal, slug string) (application.AuthResult, error)
}

type AuthHandler struct {
	service   authService
	cookies   CookiePolicy
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, cookies CookiePolicy, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, cookies: cookies, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// Register creates an account, optionally joining a school, and sets the auth cookie.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Register", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode register request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Register(r.Context(), application.RegisterParams{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		AccountType: application.AccountType(req.AccountType),
		SchoolSlug:  req.School,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.set(w, result.Token, result.ExpiresAt)
	h.log(r.Context(), "Register", "user_id", result.User.ID).InfoContext(r.Context(), "account registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toAuthResponse(result))
}

// Login verifies credentials and sets the auth cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode login request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Login(r.Context(), application.LoginParams{
		Identifier: req.identifier(),
		Password:   req.Password,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.set(w, result.Token, result.ExpiresAt)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuthResponse(result))
}

// Logout clears the auth cookie. Tokens are not revoked server side.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Me reports the caller's identity. Guests receive authenticated=false rather than an error.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.responder.writeJSON(r.Context(), w, http.StatusOK, meResponse{Authenticated: false})
		return
	}

	user, school, err := h.service.CurrentUser(r.Context(), principal)
	if err != nil {
		if errors.Is(err, application.ErrUnauthorized) {
			h.cookies.clear(w)
			h.responder.writeJSON(r.Context(), w, http.StatusOK, meResponse{Authenticated: false})
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dto := toSelfDTO(user)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, meResponse{
		Authenticated: true,
		User:          &dto,
		School:        toSchoolDTOPtr(school),
	})
}

// JoinSchool attaches the caller to a school and replaces the auth cookie with a token scoped
// to it.
func (h *AuthHandler) JoinSchool(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req joinSchoolRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.JoinSchool(r.Context(), principal, req.School)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.cookies.set(w, result.Token, result.ExpiresAt)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAuthResponse(result))
}

type registerRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	AccountType string `json:"accountType"`
	School      string `json:"school"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (r loginRequest) identifier() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Email != "":
		return r.Email
	}
	return r.Username
}

type joinSchoolRequest struct {
	School string `json:"school"`
}

type authResponse struct {
	User      userDTO    `json:"user"`
	School    *schoolDTO `json:"school"`
	ExpiresAt string     `json:"expiresAt"`
}

type meResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *userDTO   `json:"user,omitempty"`
	School        *schoolDTO `json:"school,omitempty"`
}

func toAuthResponse(result application.AuthResult) authResponse {
	return authResponse{
		User:      toSelfDTO(result.User),
		School:    toSchoolDTOPtr(result.School),
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
