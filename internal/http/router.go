package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker reports whether backing storage is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Authenticator *Authenticator
	Auth          *AuthHandler
	Schools       *SchoolHandler
	Availability  *AvailabilityHandler
	Users         *UserHandler
	Messages      *MessageHandler
	Pregames      *PregameHandler
	Metrics       *Metrics
	Health        HealthChecker
	Logger        *slog.Logger
	Middleware    []func(http.Handler) http.Handler
}

// access is the gate a route sits behind.
type access int

const (
	public access = iota
	optional
	authenticated
	scoped
)

type router struct {
	mux        *http.ServeMux
	auth       *Authenticator
	metrics    *Metrics
	schoolGate func(http.Handler) http.Handler
}

func (rt *router) handle(pattern string, gate access, h http.HandlerFunc) {
	var handler http.Handler = h
	switch gate {
	case optional:
		handler = rt.auth.OptionalAuth(handler)
	case authenticated:
		handler = rt.auth.RequireAuth(handler)
	case scoped:
		handler = rt.auth.RequireAuth(rt.schoolGate(handler))
	}
	rt.mux.Handle(pattern, rt.metrics.Instrument(pattern, handler))
}

func NewRouter(cfg RouterConfig) http.Handler {
	rt := &router{
		mux:        http.NewServeMux(),
		auth:       cfg.Authenticator,
		metrics:    cfg.Metrics,
		schoolGate: RequireSchool(cfg.Logger),
	}
	responder := newResponder(cfg.Logger)

	rt.handle("GET /health", public, func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Health.Ping(ctx); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		rt.mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}

	if cfg.Schools != nil {
		rt.handle("GET /api/schools", public, cfg.Schools.List)
		rt.handle("GET /api/schools/{slug}", public, cfg.Schools.Get)
	}

	if cfg.Authenticator != nil {
		if cfg.Auth != nil {
			rt.handle("POST /api/auth/register", public, cfg.Auth.Register)
			rt.handle("POST /api/auth/login", public, cfg.Auth.Login)
			rt.handle("POST /api/auth/logout", public, cfg.Auth.Logout)
			rt.handle("GET /api/auth/me", optional, cfg.Auth.Me)
			rt.handle("PUT /api/auth/school", authenticated, cfg.Auth.JoinSchool)
		}

		if cfg.Availability != nil {
			rt.handle("GET /api/availability", scoped, cfg.Availability.List)
			rt.handle("GET /api/availability/school/{date}", scoped, cfg.Availability.SchoolDay)
			rt.handle("PATCH /api/availability/{date}", scoped, cfg.Availability.Update)
			rt.handle("DELETE /api/availability/{date}", scoped, cfg.Availability.Delete)
		}

		if cfg.Users != nil {
			rt.handle("GET /api/users", scoped, cfg.Users.List)
			rt.handle("PATCH /api/users/me", authenticated, cfg.Users.UpdateMe)
			rt.handle("GET /api/users/{id}", scoped, cfg.Users.Get)
			rt.handle("GET /api/users/{id}/ratings", scoped, cfg.Users.Ratings)
		}

		if cfg.Messages != nil {
			rt.handle("GET /api/messages", scoped, cfg.Messages.Conversations)
			rt.handle("GET /api/messages/{userID}", scoped, cfg.Messages.Conversation)
			rt.handle("POST /api/messages/{userID}", scoped, cfg.Messages.Send)
		}

		if cfg.Pregames != nil {
			rt.handle("GET /api/pregames", scoped, cfg.Pregames.List)
			rt.handle("POST /api/pregames", scoped, cfg.Pregames.Create)
			rt.handle("GET /api/pregames/{id}", scoped, cfg.Pregames.Get)
			rt.handle("POST /api/pregames/{id}/ratings", scoped, cfg.Pregames.Rate)
			rt.handle("POST /api/pregames/{id}/{action}", scoped, cfg.Pregames.Respond)
		}
	}

	var handler http.Handler = rt.mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
