package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })
	stale := newTestIssuer(t, func() time.Time { return now.Add(-8 * 24 * time.Hour) })
	other, err := auth.NewIssuer([]byte("another-secret-another-secret-123"), auth.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}

	valid := issueToken(t, issuer, "user-1", "school-1")
	tampered := valid[:len(valid)-2] + "xx"

	tests := []struct {
		name        string
		cookie      *http.Cookie
		wantStatus  int
		wantCode    string
		wantCleared bool
	}{
		{name: "missing cookie", wantStatus: http.StatusUnauthorized, wantCode: CodeAuthRequired},
		{name: "malformed token", cookie: authCookie("not-a-token"), wantStatus: http.StatusUnauthorized, wantCode: CodeAuthInvalid, wantCleared: true},
		{name: "tampered signature", cookie: authCookie(tampered), wantStatus: http.StatusUnauthorized, wantCode: CodeAuthInvalid, wantCleared: true},
		{name: "foreign secret", cookie: authCookie(issueToken(t, other, "user-1", "school-1")), wantStatus: http.StatusUnauthorized, wantCode: CodeAuthInvalid, wantCleared: true},
		{name: "expired token", cookie: authCookie(issueToken(t, stale, "user-1", "school-1")), wantStatus: http.StatusUnauthorized, wantCode: CodeAuthInvalid, wantCleared: true},
		{name: "valid token", cookie: authCookie(valid), wantStatus: http.StatusOK},
	}

	authenticator := NewAuthenticator(issuer, CookiePolicy{MaxAge: auth.DefaultTTL}, quietLogger())
	var invalidBodies []string

	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tc.cookie != nil {
			req.AddCookie(tc.cookie)
		}
		rec := httptest.NewRecorder()

		var got application.Principal
		handler := authenticator.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(rec, req)

		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.wantStatus, rec.Code)
		}
		cookie := responseCookie(rec)
		if tc.wantCleared {
			if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
				t.Fatalf("%s: expected cleared cookie, got %+v", tc.name, cookie)
			}
			invalidBodies = append(invalidBodies, rec.Body.String())
		} else if cookie != nil {
			t.Fatalf("%s: expected cookie untouched, got %+v", tc.name, cookie)
		}
		if tc.wantCode != "" {
			var body errorResponse
			decodeBody(t, rec, &body)
			if body.ErrorCode != tc.wantCode {
				t.Fatalf("%s: expected code %s, got %s", tc.name, tc.wantCode, body.ErrorCode)
			}
		}
		if tc.wantStatus == http.StatusOK && (got.UserID != "user-1" || got.SchoolID != "school-1") {
			t.Fatalf("%s: unexpected principal %+v", tc.name, got)
		}
	}

	for _, body := range invalidBodies[1:] {
		if body != invalidBodies[0] {
			t.Fatalf("verification failures must be indistinguishable: %q vs %q", body, invalidBodies[0])
		}
	}
}

func TestOptionalAuth(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t, time.Now)
	authenticator := NewAuthenticator(issuer, CookiePolicy{MaxAge: auth.DefaultTTL}, quietLogger())

	tests := []struct {
		name          string
		cookie        *http.Cookie
		wantPrincipal bool
		wantCleared   bool
	}{
		{name: "guest"},
		{name: "invalid token", cookie: authCookie("garbage"), wantCleared: true},
		{name: "valid token", cookie: authCookie(issueToken(t, issuer, "user-1", "")), wantPrincipal: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rec := httptest.NewRecorder()
			called := false
			authenticator.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				_, ok := PrincipalFromContext(r.Context())
				if ok != tc.wantPrincipal {
					t.Errorf("expected principal present=%v", tc.wantPrincipal)
				}
			})).ServeHTTP(rec, req)

			if !called {
				t.Fatalf("optional auth must always call the next handler")
			}
			if cleared := responseCookie(rec) != nil; cleared != tc.wantCleared {
				t.Fatalf("expected cookie cleared=%v", tc.wantCleared)
			}
		})
	}
}

func TestRequireSchool(t *testing.T) {
	t.Parallel()

	gate := RequireSchool(quietLogger())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name       string
		principal  *application.Principal
		wantStatus int
		wantCode   string
	}{
		{name: "no principal", wantStatus: http.StatusUnauthorized, wantCode: CodeAuthRequired},
		{name: "no school", principal: &application.Principal{UserID: "u"}, wantStatus: http.StatusForbidden, wantCode: CodeSchoolRequired},
		{name: "scoped", principal: &application.Principal{UserID: "u", SchoolID: "s"}, wantStatus: http.StatusTeapot},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tc.principal))
			}
			rec := httptest.NewRecorder()
			gate(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			if responseCookie(rec) != nil {
				t.Fatalf("school gate must not touch the cookie")
			}
			if tc.wantCode != "" {
				var body errorResponse
				decodeBody(t, rec, &body)
				if body.ErrorCode != tc.wantCode {
					t.Fatalf("expected %s, got %s", tc.wantCode, body.ErrorCode)
				}
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var entry map[string]any
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["msg"] != "request completed" || entry["path"] != "/health" {
		t.Fatalf("unexpected log entry %v", entry)
	}
	if entry["status"] != float64(http.StatusAccepted) || entry["request_id"] != float64(1) {
		t.Fatalf("expected status and request id in %v", entry)
	}
}
