package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/persistence/sqldb"
	"github.com/example/saturday/internal/server"
)

// TestSecret signs tokens in stacks built by NewStack.
var TestSecret = []byte("saturday-test-secret-0123456789abcdef")

// Stack is a complete API over a temporary SQLite database, served by httptest.
type Stack struct {
	Clock   *Clock
	IDs     *IDGenerator
	Storage *sqldb.Storage
	Server  *server.Server
	HTTP    *httptest.Server
}

// StackOption configures NewStack.
type StackOption func(*stackConfig)

type stackConfig struct {
	clock  *Clock
	events application.EventPublisher
	logger *slog.Logger
}

// WithClock overrides the stack clock.
func WithClock(clock *Clock) StackOption {
	return func(c *stackConfig) {
		c.clock = clock
	}
}

// WithEvents sets the event publisher handed to the services.
func WithEvents(events application.EventPublisher) StackOption {
	return func(c *stackConfig) {
		c.events = events
	}
}

// WithLogger sets the server logger. Stacks log nowhere by default.
func WithLogger(logger *slog.Logger) StackOption {
	return func(c *stackConfig) {
		c.logger = logger
	}
}

// NewStack migrates a fresh database, seeds the embedded school catalog and starts an
// httptest server in front of the router.
func NewStack(tb testing.TB, opts ...StackOption) *Stack {
	tb.Helper()

	cfg := stackConfig{
		clock:  NewClock(ReferenceTime()),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	stack := &Stack{
		Clock:   cfg.clock,
		IDs:     NewIDGenerator("id"),
		Storage: NewSQLiteStorage(tb),
	}

	srv, err := server.New(stack.Storage, server.Options{
		Secret:      TestSecret,
		Logger:      cfg.logger,
		Events:      cfg.events,
		Health:      stack.Storage,
		Passwords:   FastHasher(),
		Now:         stack.Clock.NowFunc(),
		IDGenerator: stack.IDs.NextFunc(),
	})
	if err != nil {
		tb.Fatalf("failed to build server: %v", err)
	}
	if _, err := srv.Seed(context.Background(), ""); err != nil {
		tb.Fatalf("failed to seed schools: %v", err)
	}
	stack.Server = srv

	stack.HTTP = httptest.NewServer(srv.Handler)
	tb.Cleanup(stack.HTTP.Close)
	return stack
}

// URL returns the base URL of the running server.
func (s *Stack) URL() string {
	return s.HTTP.URL
}

// FastHasher is an argon2id hasher with parameters small enough for tests.
func FastHasher() application.PasswordHasher {
	return application.Argon2idHasher{Params: application.Argon2idParams{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}}
}
