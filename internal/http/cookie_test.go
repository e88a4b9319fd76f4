package http

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestCookiePolicyMaxAgeTracksTokenExpiry(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)
	ttl := 7 * 24 * time.Hour
	expires := issued.Add(ttl)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "at issue", now: issued, want: int(ttl / time.Second)},
		{name: "sub-second after issue rounds down", now: issued.Add(600 * time.Millisecond), want: int(ttl/time.Second) - 1},
		{name: "clock behind issue is capped at lifetime", now: issued.Add(-3 * time.Second), want: int(ttl / time.Second)},
		{name: "one hour left", now: expires.Add(-time.Hour), want: 3600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy := CookiePolicy{MaxAge: ttl, Now: func() time.Time { return tt.now }}

			rec := httptest.NewRecorder()
			policy.set(rec, "token", expires)
			cookie := responseCookie(rec)
			if cookie == nil {
				t.Fatalf("expected auth cookie")
			}
			if cookie.MaxAge != tt.want {
				t.Fatalf("max-age = %d, want %d", cookie.MaxAge, tt.want)
			}
			if tt.now.Add(time.Duration(cookie.MaxAge) * time.Second).After(expires) {
				t.Fatalf("cookie outlives token: now %v + %ds > %v", tt.now, cookie.MaxAge, expires)
			}
		})
	}
}

func TestCookiePolicyExpiredTokenClearsCookie(t *testing.T) {
	t.Parallel()

	expires := time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)
	policy := CookiePolicy{MaxAge: time.Hour, Now: func() time.Time { return expires.Add(-300 * time.Millisecond) }}

	rec := httptest.NewRecorder()
	policy.set(rec, "token", expires)
	cookie := responseCookie(rec)
	if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Fatalf("expected a clearing cookie, got %+v", cookie)
	}
}
