package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/auth"
	"github.com/example/saturday/internal/logging"
)

// TokenVerifier validates session tokens.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// Authenticator resolves the principal from the auth cookie.
type Authenticator struct {
	verifier  TokenVerifier
	cookies   CookiePolicy
	responder responder
	logger    *slog.Logger
}

// NewAuthenticator constructs the authentication middleware set.
func NewAuthenticator(verifier TokenVerifier, cookies CookiePolicy, logger *slog.Logger) *Authenticator {
	base := defaultLogger(logger)
	return &Authenticator{verifier: verifier, cookies: cookies, responder: newResponder(base), logger: base}
}

// resolve verifies the cookie token. ok is false when the cookie is absent; err is non-nil when
// the cookie is present but fails verification for any reason.
func (a *Authenticator) resolve(r *http.Request) (principal application.Principal, ok bool, err error) {
	token := tokenFromRequest(r)
	if token == "" {
		return application.Principal{}, false, nil
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return application.Principal{}, true, err
	}
	return principalFromClaims(claims), true, nil
}

// RequireAuth rejects requests without a valid token. An invalid token clears the cookie; all
// verification failures produce the same response.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, present, err := a.resolve(r)
		switch {
		case !present:
			a.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
				ErrorCode: CodeAuthRequired,
				Message:   "authentication required",
			})
			return
		case err != nil:
			handlerLogger(r.Context(), a.logger, "Authenticator", "RequireAuth").
				WarnContext(r.Context(), "token rejected", "reason", auth.Kind(err))
			a.cookies.clear(w)
			a.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
				ErrorCode: CodeAuthInvalid,
				Message:   "session is invalid or expired, please sign in again",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// OptionalAuth attaches the principal when a valid token is present and otherwise continues
// anonymously. An invalid token is discarded by clearing the cookie.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, present, err := a.resolve(r)
		if present && err != nil {
			handlerLogger(r.Context(), a.logger, "Authenticator", "OptionalAuth").
				InfoContext(r.Context(), "discarding invalid token", "reason", auth.Kind(err))
			a.cookies.clear(w)
		}
		if present && err == nil {
			r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSchool rejects authenticated principals without a school. It must run after
// RequireAuth and never touches the cookie.
func RequireSchool(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
					ErrorCode: CodeAuthRequired,
					Message:   "authentication required",
				})
				return
			}
			if !principal.HasSchool() {
				responder.writeJSON(r.Context(), w, http.StatusForbidden, errorResponse{
					ErrorCode: CodeSchoolRequired,
					Message:   "join a school to continue",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principalFromClaims(claims auth.Claims) application.Principal {
	return application.Principal{
		UserID:     claims.UserID,
		SchoolID:   claims.SchoolID,
		SchoolSlug: claims.SchoolSlug,
		Email:      claims.Email,
		Username:   claims.Username,
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if !s.wroteHeader {
		s.status = status
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
