// Package server assembles the Saturday HTTP API from storage, services and transport.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/auth"
	httptransport "github.com/example/saturday/internal/http"
	"github.com/example/saturday/internal/seed"
)

// Options configures New.
type Options struct {
	Secret       []byte
	TokenTTL     time.Duration
	CookieSecure bool
	Logger       *slog.Logger
	Events       application.EventPublisher
	Metrics      *httptransport.Metrics
	Health       httptransport.HealthChecker
	Passwords    application.PasswordHasher
	Now          func() time.Time
	IDGenerator  func() string
}

// Server holds the wired services and the root handler.
type Server struct {
	Handler      http.Handler
	Issuer       *auth.Issuer
	Schools      *application.SchoolService
	Auth         *application.AuthService
	Availability *application.AvailabilityService
	Users        *application.UserService
	Messages     *application.MessageService
	Pregames     *application.PregameService
	Ratings      *application.RatingService
	Metrics      *httptransport.Metrics

	logger *slog.Logger
}

// New wires every service over repos and builds the router.
func New(repos Repositories, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idGenerator := opts.IDGenerator
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	passwords := opts.Passwords
	if passwords == nil {
		passwords = application.Argon2idHasher{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = httptransport.NewMetrics()
	}

	issuerOpts := []auth.Option{auth.WithClock(now)}
	if opts.TokenTTL > 0 {
		issuerOpts = append(issuerOpts, auth.WithTTL(opts.TokenTTL))
	}
	issuer, err := auth.NewIssuer(opts.Secret, issuerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	schoolRepo := newSchoolRepositoryAdapter(repos)
	userRepo := newUserRepositoryAdapter(repos)
	availabilityRepo := newAvailabilityRepositoryAdapter(repos)
	messageRepo := newMessageRepositoryAdapter(repos)
	pregameRepo := newPregameRepositoryAdapter(repos)
	ratingRepo := newRatingRepositoryAdapter(repos)

	s := &Server{Issuer: issuer, Metrics: metrics, logger: logger}
	s.Schools = application.NewSchoolServiceWithLogger(schoolRepo, idGenerator, now, application.DefaultSchoolCacheTTL, logger)
	s.Auth = application.NewAuthServiceWithLogger(userRepo, s.Schools, issuer, passwords, idGenerator, now, logger)
	s.Availability = application.NewAvailabilityServiceWithLogger(availabilityRepo, userRepo, now, logger)
	s.Users = application.NewUserServiceWithLogger(userRepo, now, logger)
	s.Messages = application.NewMessageServiceWithLogger(messageRepo, userRepo, opts.Events, idGenerator, now, logger)
	s.Pregames = application.NewPregameServiceWithLogger(pregameRepo, userRepo, opts.Events, idGenerator, now, logger)
	s.Ratings = application.NewRatingServiceWithLogger(ratingRepo, pregameRepo, userRepo, opts.Events, idGenerator, now, logger)

	cookies := httptransport.CookiePolicy{Secure: opts.CookieSecure, MaxAge: issuer.TTL(), Now: now}
	s.Handler = httptransport.NewRouter(httptransport.RouterConfig{
		Authenticator: httptransport.NewAuthenticator(issuer, cookies, logger),
		Auth:          httptransport.NewAuthHandler(s.Auth, cookies, logger),
		Schools:       httptransport.NewSchoolHandler(s.Schools, logger),
		Availability:  httptransport.NewAvailabilityHandler(s.Availability, logger),
		Users:         httptransport.NewUserHandler(s.Users, s.Ratings, logger),
		Messages:      httptransport.NewMessageHandler(s.Messages, logger),
		Pregames:      httptransport.NewPregameHandler(s.Pregames, s.Ratings, logger),
		Metrics:       metrics,
		Health:        opts.Health,
		Logger:        logger,
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
	return s, nil
}

// Seed upserts the school catalog at path, or the embedded catalog when path is empty.
func (s *Server) Seed(ctx context.Context, path string) (int, error) {
	entries, err := seed.Load(path)
	if err != nil {
		return 0, err
	}
	inputs := make([]application.SchoolInput, 0, len(entries))
	for _, entry := range entries {
		inputs = append(inputs, application.SchoolInput{Slug: entry.Slug, Name: entry.Name, Domain: entry.Domain})
	}
	return s.Schools.Seed(ctx, inputs)
}
