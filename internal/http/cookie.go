package http

import (
	"net/http"
	"strings"
	"time"
)

// CookieName is the cookie carrying the session token.
const CookieName = "auth_token"

// CookiePolicy controls the attributes of the auth cookie. The cookie never outlives the token
// it carries: MaxAge counts down to the token expiry and is capped at the token lifetime.
type CookiePolicy struct {
	Secure bool
	MaxAge time.Duration
	Now    func() time.Time
}

func (p CookiePolicy) set(w http.ResponseWriter, token string, expires time.Time) {
	maxAge := p.maxAge(expires)
	if maxAge <= 0 {
		p.clear(w)
		return
	}
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

// maxAge returns the whole seconds left until expires, rounded down.
func (p CookiePolicy) maxAge(expires time.Time) int {
	if expires.IsZero() {
		return int(p.MaxAge / time.Second)
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	remaining := expires.Sub(now())
	if p.MaxAge > 0 && remaining > p.MaxAge {
		remaining = p.MaxAge
	}
	return int(remaining / time.Second)
}

func (p CookiePolicy) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenFromRequest reads the token from the auth cookie. Headers, query strings and bodies
// are never consulted.
func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
