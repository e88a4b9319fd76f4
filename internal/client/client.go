// Package client is a typed Go client for the Saturday API together with the client-side
// session store and the optimistic availability planner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/example/saturday/internal/calendar"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// IsUnauthenticated reports whether err is a 401 from the API.
func IsUnauthenticated(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// User is an account as returned by the API.
type User struct {
	ID          string `json:"id"`
	SchoolID    string `json:"schoolId,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AccountType string `json:"accountType"`
	Bio         string `json:"bio,omitempty"`
}

// School is a campus tenant.
type School struct {
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// Session is the signed-in identity reported by the server.
type Session struct {
	User      User      `json:"user"`
	School    *School   `json:"school"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Record is one availability record.
type Record struct {
	Date      calendar.Date
	State     calendar.State
	UpdatedAt time.Time
}

// UnmarshalJSON decodes the API representation, where timestamps may be empty.
func (r *Record) UnmarshalJSON(data []byte) error {
	var wire struct {
		Date      calendar.Date `json:"date"`
		State     string        `json:"state"`
		UpdatedAt string        `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	state, err := calendar.ParseState(wire.State)
	if err != nil {
		return err
	}
	*r = Record{Date: wire.Date, State: state}
	if wire.UpdatedAt != "" {
		if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, wire.UpdatedAt); err != nil {
			return fmt.Errorf("record updatedAt: %w", err)
		}
	}
	return nil
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
	AccountType string `json:"accountType,omitempty"`
	School      string `json:"school,omitempty"`
}

// Client calls the Saturday API. The auth token lives only in the cookie jar.
type Client struct {
	base  *url.URL
	http  *http.Client
	store *Store
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar must be set for authenticated
// calls to work.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithJar sets the cookie jar holding the auth cookie.
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) {
		if jar != nil {
			c.http.Jar = jar
		}
	}
}

// WithStore sets the session store updated from server responses.
func WithStore(store *Store) Option {
	return func(c *Client) {
		if store != nil {
			c.store = store
		}
	}
}

// New constructs a client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		base:  base,
		http:  &http.Client{Jar: jar, Timeout: 30 * time.Second},
		store: NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Store returns the session store.
func (c *Client) Store() *Store {
	return c.store
}

// BaseURL returns the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Register creates an account and signs in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &session); err != nil {
		return Session{}, err
	}
	c.store.Set(session)
	return session, nil
}

// Login signs in with an email or username.
func (c *Client) Login(ctx context.Context, identifier, password string) (Session, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &session); err != nil {
		return Session{}, err
	}
	c.store.Set(session)
	return session, nil
}

// Logout clears the auth cookie.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.store.Clear()
	return err
}

// Me resolves the cookie identity. ok is false for guests.
func (c *Client) Me(ctx context.Context) (session Session, ok bool, err error) {
	var resp struct {
		Authenticated bool    `json:"authenticated"`
		User          *User   `json:"user"`
		School        *School `json:"school"`
	}
	if err = c.do(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return Session{}, false, err
	}
	if !resp.Authenticated || resp.User == nil {
		c.store.Clear()
		return Session{}, false, nil
	}
	session = Session{User: *resp.User, School: resp.School}
	if current, found := c.store.Session(); found && current.User.ID == session.User.ID {
		session.ExpiresAt = current.ExpiresAt
	}
	c.store.Set(session)
	return session, true, nil
}

// JoinSchool attaches the account to a school; the server replaces the cookie.
func (c *Client) JoinSchool(ctx context.Context, slug string) (Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPut, "/api/auth/school", map[string]string{"school": slug}, &session); err != nil {
		return Session{}, err
	}
	c.store.Set(session)
	return session, nil
}

// ListSchools returns the school catalog.
func (c *Client) ListSchools(ctx context.Context) ([]School, error) {
	var resp struct {
		Schools []School `json:"schools"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/schools", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Schools, nil
}

// ListAvailability returns the caller's records between start and end. Zero dates leave the
// bound to the server default.
func (c *Client) ListAvailability(ctx context.Context, start, end calendar.Date) ([]Record, error) {
	query := url.Values{}
	if !start.IsZero() {
		query.Set("startDate", start.String())
	}
	if !end.IsZero() {
		query.Set("endDate", end.String())
	}
	path := "/api/availability"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Availability []Record `json:"availability"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Availability, nil
}

// SetAvailability upserts the caller's state for date.
func (c *Client) SetAvailability(ctx context.Context, date calendar.Date, state calendar.State) (Record, error) {
	var resp struct {
		Availability Record `json:"availability"`
	}
	body := map[string]string{"state": string(state)}
	if err := c.do(ctx, http.MethodPatch, "/api/availability/"+date.String(), body, &resp); err != nil {
		return Record{}, err
	}
	return resp.Availability, nil
}

// ClearAvailability deletes the caller's record for date.
func (c *Client) ClearAvailability(ctx context.Context, date calendar.Date) error {
	return c.do(ctx, http.MethodDelete, "/api/availability/"+date.String(), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			ErrorCode string            `json:"error_code"`
			Message   string            `json:"message"`
			Errors    map[string]string `json:"errors"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)); readErr == nil && json.Unmarshal(data, &payload) == nil {
			apiErr.Code = payload.ErrorCode
			if payload.Message != "" {
				apiErr.Message = payload.Message
			}
			apiErr.Fields = payload.Errors
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.store.Clear()
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
