// Package events publishes domain events to NATS subjects.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to every event subject.
const DefaultSubjectPrefix = "saturday."

// ErrClosed is returned when publishing on a closed publisher.
var ErrClosed = errors.New("events: publisher closed")

// Publisher delivers an event payload to subscribers of subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// Envelope wraps every payload published on the wire.
type Envelope struct {
	Subject     string          `json:"subject"`
	PublishedAt time.Time       `json:"publishedAt"`
	Data        json.RawMessage `json:"data"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes JSON envelopes on a NATS connection.
type NATSPublisher struct {
	conn   conn
	prefix string
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a NATSPublisher.
type Option func(*NATSPublisher)

// WithSubjectPrefix overrides DefaultSubjectPrefix.
func WithSubjectPrefix(prefix string) Option {
	return func(p *NATSPublisher) {
		if prefix != "" && !strings.HasSuffix(prefix, ".") {
			prefix += "."
		}
		p.prefix = prefix
	}
}

// WithClock overrides the timestamp source for envelopes.
func WithClock(now func() time.Time) Option {
	return func(p *NATSPublisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger used for connection state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(p *NATSPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Connect dials url and returns a publisher over the new connection.
func Connect(url string, opts ...Option) (*NATSPublisher, error) {
	p := newPublisher(nil, opts...)
	nc, err := nats.Connect(url,
		nats.Name("saturday"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				p.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			p.logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	p.conn = nc
	return p, nil
}

func newPublisher(c conn, opts ...Option) *NATSPublisher {
	p := &NATSPublisher{
		conn:   c,
		prefix: DefaultSubjectPrefix,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the wire subject for an event name.
func (p *NATSPublisher) Subject(name string) string {
	return p.prefix + name
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", subject, err)
	}
	wire := p.Subject(subject)
	body, err := json.Marshal(Envelope{Subject: wire, PublishedAt: p.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", subject, err)
	}
	if err := p.conn.Publish(wire, body); err != nil {
		return fmt.Errorf("publish %s: %w", wire, err)
	}
	return nil
}

// Close flushes pending events and drains the connection.
func (p *NATSPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	flushErr := p.conn.FlushWithContext(ctx)
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("flush NATS connection: %w", flushErr)
	}
	return nil
}
