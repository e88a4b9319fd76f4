package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/saturday/internal/application"
	"github.com/example/saturday/internal/calendar"
)

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("login sets the auth cookie and keeps the token out of the body", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.serve(newRequest(http.MethodPost, "/api/auth/login", map[string]string{"username": "sam", "password": "password123"}))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		cookie := responseCookie(rec)
		if cookie == nil {
			t.Fatalf("expected auth cookie")
		}
		if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
			t.Fatalf("unexpected cookie attributes %+v", cookie)
		}
		if cookie.MaxAge != int(ts.issuer.TTL()/time.Second) {
			t.Fatalf("cookie max-age %d must equal token lifetime", cookie.MaxAge)
		}
		claims, err := ts.issuer.Verify(cookie.Value)
		if err != nil {
			t.Fatalf("cookie does not carry a valid token: %v", err)
		}
		if !cookie.Expires.Equal(claims.ExpiresAt) {
			t.Fatalf("cookie expires %v, token expires %v", cookie.Expires, claims.ExpiresAt)
		}
		if strings.Contains(rec.Body.String(), cookie.Value) {
			t.Fatalf("token must not appear in the response body")
		}
	})

	t.Run("login rejects bad credentials", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.serve(newRequest(http.MethodPost, "/api/auth/login", map[string]string{"email": "sam@example.edu", "password": "nope"}))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if responseCookie(rec) != nil {
			t.Fatalf("failed login must not set a cookie")
		}
	})

	t.Run("login rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		rec := ts.serve(req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("me reports guests without failing", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.serve(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		var body meResponse
		decodeBody(t, rec, &body)
		if rec.Code != http.StatusOK || body.Authenticated {
			t.Fatalf("expected guest response, got %d %+v", rec.Code, body)
		}
	})

	t.Run("me resolves the cookie identity", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(authCookie(issueToken(t, ts.issuer, "user-1", "")))
		rec := ts.serve(req)

		var body meResponse
		decodeBody(t, rec, &body)
		if !body.Authenticated || body.User == nil || body.User.Email != "sam@example.edu" || body.School != nil {
			t.Fatalf("unexpected me response %+v", body)
		}
	})

	t.Run("join school reissues a scoped token", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		req := newRequest(http.MethodPut, "/api/auth/school", map[string]string{"school": "state"})
		req.AddCookie(authCookie(issueToken(t, ts.issuer, "user-1", "")))
		rec := ts.serve(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		claims, err := ts.issuer.Verify(responseCookie(rec).Value)
		if err != nil || claims.SchoolID != "school-1" || claims.SchoolSlug != "state" {
			t.Fatalf("expected school-scoped token, got %+v, %v", claims, err)
		}
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.serve(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
		cookie := responseCookie(rec)
		if rec.Code != http.StatusNoContent || cookie == nil || cookie.MaxAge >= 0 {
			t.Fatalf("expected cleared cookie, got %d %+v", rec.Code, cookie)
		}
	})
}

func TestAvailabilityHandlers(t *testing.T) {
	t.Parallel()

	t.Run("no cookie is rejected without data", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.availability.records["user-1|2025-03-08"] = application.Availability{UserID: "user-1", Date: calendar.MustParseDate("2025-03-08"), State: calendar.StateAvailable}

		rec := ts.serve(httptest.NewRequest(http.MethodGet, "/api/availability", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		var body errorResponse
		decodeBody(t, rec, &body)
		if body.ErrorCode != CodeAuthRequired || strings.Contains(rec.Body.String(), "2025-03-08") {
			t.Fatalf("unexpected body %s", rec.Body.String())
		}
		if responseCookie(rec) != nil {
			t.Fatalf("absent cookie must not be cleared")
		}
	})

	t.Run("expired token is rejected and the cookie cleared", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		token := issueToken(t, ts.issuer, "user-1", "school-1")
		ts.now = ts.now.Add(ts.issuer.TTL() + time.Second)

		req := httptest.NewRequest(http.MethodGet, "/api/availability", nil)
		req.AddCookie(authCookie(token))
		rec := ts.serve(req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		cookie := responseCookie(rec)
		if cookie == nil || cookie.MaxAge >= 0 {
			t.Fatalf("expected cleared cookie, got %+v", cookie)
		}
	})

	t.Run("token without school is rejected by the tenant gate", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/availability", nil)
		req.AddCookie(authCookie(issueToken(t, ts.issuer, "user-1", "")))
		rec := ts.serve(req)

		var body errorResponse
		decodeBody(t, rec, &body)
		if rec.Code != http.StatusForbidden || body.ErrorCode != CodeSchoolRequired {
			t.Fatalf("expected 403 SCHOOL_REQUIRED, got %d %+v", rec.Code, body)
		}
		if responseCookie(rec) != nil {
			t.Fatalf("tenant gate must keep the cookie")
		}
	})

	t.Run("patch, list and delete round trip", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		cookie := authCookie(issueToken(t, ts.issuer, "user-1", "school-1"))

		req := newRequest(http.MethodPatch, "/api/availability/2025-03-08", map[string]string{"state": "available"})
		req.AddCookie(cookie)
		rec := ts.serve(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var updated availabilityResponse
		decodeBody(t, rec, &updated)
		if updated.Availability.State != "available" || updated.Availability.Date != "2025-03-08" {
			t.Fatalf("unexpected record %+v", updated)
		}

		req = httptest.NewRequest(http.MethodGet, "/api/availability?startDate=2025-03-01&endDate=2025-03-31", nil)
		req.AddCookie(cookie)
		rec = ts.serve(req)
		var list availabilityListResponse
		decodeBody(t, rec, &list)
		if len(list.Availability) != 1 || list.Availability[0].UserID != "user-1" {
			t.Fatalf("unexpected list %+v", list)
		}

		for i := 0; i < 2; i++ {
			req = httptest.NewRequest(http.MethodDelete, "/api/availability/2025-03-08", nil)
			req.AddCookie(cookie)
			if rec = ts.serve(req); rec.Code != http.StatusNoContent {
				t.Fatalf("delete %d: expected 204, got %d", i, rec.Code)
			}
		}
		if len(ts.availability.records) != 0 {
			t.Fatalf("expected record removed")
		}
	})

	t.Run("invalid input is a validation failure", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		cookie := authCookie(issueToken(t, ts.issuer, "user-1", "school-1"))

		cases := []struct {
			req   *http.Request
			field string
		}{
			{newRequest(http.MethodPatch, "/api/availability/2025-02-30", map[string]string{"state": "available"}), "date"},
			{newRequest(http.MethodPatch, "/api/availability/2025-03-08", map[string]string{"state": "unset"}), "state"},
			{httptest.NewRequest(http.MethodGet, "/api/availability?startDate=tomorrow", nil), "startDate"},
		}
		for _, tc := range cases {
			tc.req.AddCookie(cookie)
			rec := ts.serve(tc.req)
			var body errorResponse
			decodeBody(t, rec, &body)
			if rec.Code != http.StatusUnprocessableEntity || body.ErrorCode != CodeValidationFailed {
				t.Fatalf("%s %s: expected 422, got %d %+v", tc.req.Method, tc.req.URL, rec.Code, body)
			}
			if _, ok := body.Errors[tc.field]; !ok {
				t.Fatalf("expected error for %s, got %v", tc.field, body.Errors)
			}
		}
	})

	t.Run("school day hides member emails", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/availability/school/2025-03-08", nil)
		req.AddCookie(authCookie(issueToken(t, ts.issuer, "user-1", "school-1")))
		rec := ts.serve(req)

		var body schoolDayResponse
		decodeBody(t, rec, &body)
		if len(body.Entries) != 1 || body.Entries[0].User.Email != "" || body.Entries[0].State != "available" {
			t.Fatalf("unexpected school day %+v", body)
		}
	})
}

func TestHandleServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{application.ErrUnauthorized, http.StatusUnauthorized, CodeAuthRequired, ""},
		{application.ErrInvalidCredentials, http.StatusUnauthorized, CodeAuthInvalid, ""},
		{application.ErrSchoolRequired, http.StatusForbidden, CodeSchoolRequired, ""},
		{application.ErrForbidden, http.StatusForbidden, CodeForbidden, ""},
		{fmt.Errorf("wrap: %w", application.ErrNotFound), http.StatusNotFound, CodeNotFound, ""},
		{fmt.Errorf("%w: username is already taken", application.ErrAlreadyExists), http.StatusConflict, CodeConflict, "username is already taken"},
		{fmt.Errorf("%w: pregame is declined", application.ErrConflict), http.StatusConflict, CodeConflict, "pregame is declined"},
		{&application.ValidationError{FieldErrors: map[string]string{"email": "is required"}}, http.StatusUnprocessableEntity, CodeValidationFailed, ""},
		{errors.New("database is on fire"), http.StatusInternalServerError, CodeInternal, "internal server error"},
	}

	r := newResponder(quietLogger())
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		r.handleServiceError(context.Background(), rec, tc.err)

		var body errorResponse
		decodeBody(t, rec, &body)
		if rec.Code != tc.wantStatus || body.ErrorCode != tc.wantCode {
			t.Fatalf("%v: expected %d %s, got %d %s", tc.err, tc.wantStatus, tc.wantCode, rec.Code, body.ErrorCode)
		}
		if tc.wantMsg != "" && body.Message != tc.wantMsg {
			t.Fatalf("%v: expected message %q, got %q", tc.err, tc.wantMsg, body.Message)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	ts.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := ts.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `saturday_http_requests_total{code="200",route="GET /health"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", body)
	}
}
