package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// storedCookie is the on-disk form of one cookie.
type storedCookie struct {
	Host    string    `json:"host"`
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path"`
	Secure  bool      `json:"secure,omitempty"`
	Expires time.Time `json:"expires"`
}

// fileJar is a cookie jar persisted as JSON so the auth cookie survives between invocations.
// Cookies are host-only; the API never sets a Domain attribute.
type fileJar struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	cookies []storedCookie
	err     error
}

func openFileJar(path string, now func() time.Time) (*fileJar, error) {
	if now == nil {
		now = time.Now
	}
	jar := &fileJar{path: path, now: now}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return jar, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return jar, nil
	}
	if err := json.Unmarshal(data, &jar.cookies); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	return jar, nil
}

// SetCookies implements http.CookieJar.
func (j *fileJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		j.remove(u.Hostname(), c.Name, path)

		expires := c.Expires
		switch {
		case c.MaxAge < 0:
			continue
		case c.MaxAge > 0:
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if !expires.IsZero() && !expires.After(now) {
			continue
		}
		j.cookies = append(j.cookies, storedCookie{
			Host:    u.Hostname(),
			Name:    c.Name,
			Value:   c.Value,
			Path:    path,
			Secure:  c.Secure,
			Expires: expires,
		})
	}
	j.err = j.save()
}

// Cookies implements http.CookieJar.
func (j *fileJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var out []*http.Cookie
	for _, c := range j.cookies {
		if c.Host != u.Hostname() || !strings.HasPrefix(u.EscapedPath()+"/", strings.TrimSuffix(c.Path, "/")+"/") {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Err reports the last failure to write the session file.
func (j *fileJar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *fileJar) remove(host, name, path string) {
	kept := j.cookies[:0]
	for _, c := range j.cookies {
		if c.Host == host && c.Name == name && c.Path == path {
			continue
		}
		kept = append(kept, c)
	}
	j.cookies = kept
}

func (j *fileJar) save() error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	data, err := json.MarshalIndent(j.cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
