package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/auth"
	"github.com/example/saturday/internal/calendar"
)

var testSecret = []byte("test-secret-test-secret-test-secret")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIssuer(t *testing.T, now func() time.Time) *auth.Issuer {
	t.Helper()
	issuer, err := auth.NewIssuer(testSecret, auth.WithClock(now))
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	return issuer
}

func issueToken(t *testing.T, issuer *auth.Issuer, userID, schoolID string) string {
	t.Helper()
	tenant := auth.Tenant{}
	if schoolID != "" {
		tenant = auth.Tenant{ID: schoolID, Slug: schoolID + "-slug"}
	}
	token, _, err := issuer.Issue(auth.Identity{UserID: userID, Email: userID + "@example.edu", Username: userID}, tenant)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func authCookie(token string) *http.Cookie {
	return &http.Cookie{Name: CookieName, Value: token}
}

func responseCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func newRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// fakeAvailability stores records per user in memory.
type fakeAvailability struct {
	mu      sync.Mutex
	records map[string]application.Availability
	err     error
}

func newFakeAvailability() *fakeAvailability {
	return &fakeAvailability{records: make(map[string]application.Availability)}
}

func (f *fakeAvailability) key(userID string, date calendar.Date) string {
	return userID + "|" + date.String()
}

func (f *fakeAvailability) List(_ context.Context, p application.Principal, start, end calendar.Date) ([]application.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []application.Availability
	for _, r := range f.records {
		if r.UserID != p.UserID {
			continue
		}
		if (!start.IsZero() && r.Date.Before(start)) || (!end.IsZero() && r.Date.After(end)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (f *fakeAvailability) Set(_ context.Context, p application.Principal, date calendar.Date, state calendar.State) (application.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return application.Availability{}, f.err
	}
	record := application.Availability{UserID: p.UserID, Date: date, State: state, UpdatedAt: time.Unix(0, 0)}
	f.records[f.key(p.UserID, date)] = record
	return record, nil
}

func (f *fakeAvailability) Clear(_ context.Context, p application.Principal, date calendar.Date) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.records, f.key(p.UserID, date))
	return nil
}

func (f *fakeAvailability) SchoolDay(_ context.Context, p application.Principal, date calendar.Date) ([]application.DayEntry, error) {
	return []application.DayEntry{{
		User:  application.User{ID: "alex", SchoolID: p.SchoolID, Username: "alex", Email: "alex@example.edu"},
		State: calendar.StateAvailable,
	}}, nil
}

// fakeAuth issues real tokens for a fixed account.
type fakeAuth struct {
	issuer *auth.Issuer
	user   application.User
	school *application.School
}

func (f *fakeAuth) result() (application.AuthResult, error) {
	tenant := auth.Tenant{}
	if f.school != nil {
		tenant = auth.Tenant{ID: f.school.ID, Slug: f.school.Slug}
	}
	token, claims, err := f.issuer.Issue(auth.Identity{UserID: f.user.ID, Email: f.user.Email, Username: f.user.Username}, tenant)
	if err != nil {
		return application.AuthResult{}, err
	}
	return application.AuthResult{User: f.user, School: f.school, Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

func (f *fakeAuth) Register(context.Context, application.RegisterParams) (application.AuthResult, error) {
	return f.result()
}

func (f *fakeAuth) Login(_ context.Context, params application.LoginParams) (application.AuthResult, error) {
	if params.Identifier != f.user.Username || params.Password != "password123" {
		return application.AuthResult{}, application.ErrInvalidCredentials
	}
	return f.result()
}

func (f *fakeAuth) CurrentUser(_ context.Context, p application.Principal) (application.User, *application.School, error) {
	if p.UserID != f.user.ID {
		return application.User{}, nil, application.ErrUnauthorized
	}
	return f.user, f.school, nil
}

func (f *fakeAuth) JoinSchool(_ context.Context, _ application.Principal, slug string) (application.AuthResult, error) {
	if slug != "state" {
		return application.AuthResult{}, &application.ValidationError{FieldErrors: map[string]string{"school": "unknown school"}}
	}
	f.school = &application.School{ID: "school-1", Slug: "state", Name: "State University"}
	f.user.SchoolID = f.school.ID
	return f.result()
}

type testServer struct {
	handler      http.Handler
	issuer       *auth.Issuer
	availability *fakeAvailability
	auth         *fakeAuth
	metrics      *Metrics
	now          time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{now: time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)}
	ts.issuer = newTestIssuer(t, func() time.Time { return ts.now })
	ts.availability = newFakeAvailability()
	ts.auth = &fakeAuth{
		issuer: ts.issuer,
		user:   application.User{ID: "user-1", Email: "sam@example.edu", Username: "sam", DisplayName: "Sam", AccountType: application.AccountStudent},
	}
	ts.metrics = NewMetrics()

	logger := quietLogger()
	cookies := CookiePolicy{Secure: false, MaxAge: ts.issuer.TTL(), Now: func() time.Time { return ts.now }}
	ts.handler = NewRouter(RouterConfig{
		Authenticator: NewAuthenticator(ts.issuer, cookies, logger),
		Auth:          NewAuthHandler(ts.auth, cookies, logger),
		Availability:  NewAvailabilityHandler(ts.availability, logger),
		Metrics:       ts.metrics,
		Logger:        logger,
		Middleware:    []func(http.Handler) http.Handler{RequestLogger(logger)},
	})
	return ts
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}
