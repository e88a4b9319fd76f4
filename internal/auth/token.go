// Package auth issues and verifies the signed session token carried in the auth cookie.
//
// Tokens are compact HS256 JWS values. They bind a persisted user identity to the school
// (tenant) the user belongs to and expire after a fixed lifetime. There is no server side
// revocation; a token stays valid until it expires.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// IssuerName is the token issuer claim.
const IssuerName = "saturday"

// DefaultTTL is the lifetime of issued tokens and of the cookie carrying them.
const DefaultTTL = 7 * 24 * time.Hour

// MinSecretLength is the minimum HMAC key size accepted by NewIssuer.
const MinSecretLength = 32

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("auth: signing secret is required")
	// ErrWeakSecret is returned when the signing secret is too short.
	ErrWeakSecret = fmt.Errorf("auth: signing secret must be at least %d bytes", MinSecretLength)
	// ErrInvalidIdentity is returned when Issue is called for an identity that was not persisted.
	ErrInvalidIdentity = errors.New("auth: identity must have a user id")

	// ErrInvalidToken is the parent of every verification failure.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMalformedToken indicates the token could not be parsed.
	ErrMalformedToken = fmt.Errorf("%w: malformed", ErrInvalidToken)
	// ErrInvalidSignature indicates the token was not signed with the configured secret.
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	// ErrTokenExpired indicates the token lifetime has passed.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// Identity is the persisted user a token is issued to.
type Identity struct {
	UserID   string
	Email    string
	Username string
}

// Tenant is the school a token is scoped to. The zero Tenant means the user has not joined a
// school yet.
type Tenant struct {
	ID   string
	Slug string
}

// Claims is the verified token payload.
type Claims struct {
	UserID     string
	SchoolID   string
	SchoolSlug string
	Email      string
	Username   string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// HasSchool reports whether the token carries a resolved tenant.
func (c Claims) HasSchool() bool {
	return c.SchoolID != ""
}

type privateClaims struct {
	SchoolID   string `json:"school_id,omitempty"`
	SchoolSlug string `json:"school_slug,omitempty"`
	Email      string `json:"email"`
	Username   string `json:"username"`
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// Issuer signs and verifies tokens with a shared secret. It is safe for concurrent use.
type Issuer struct {
	secret []byte
	signer jose.Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer. A missing or short secret is a configuration error.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	key := append([]byte(nil), secret...)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: create signer: %w", err)
	}

	issuer := &Issuer{secret: key, signer: signer, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// TTL returns the lifetime of issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for identity scoped to tenant.
func (i *Issuer) Issue(identity Identity, tenant Tenant) (string, Claims, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return "", Claims{}, ErrInvalidIdentity
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	claims := Claims{
		UserID:     identity.UserID,
		SchoolID:   tenant.ID,
		SchoolSlug: tenant.Slug,
		Email:      identity.Email,
		Username:   identity.Username,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(i.ttl),
	}

	registered := jwt.Claims{
		Issuer:   IssuerName,
		Subject:  claims.UserID,
		IssuedAt: jwt.NewNumericDate(claims.IssuedAt),
		Expiry:   jwt.NewNumericDate(claims.ExpiresAt),
	}
	private := privateClaims{
		SchoolID:   claims.SchoolID,
		SchoolSlug: claims.SchoolSlug,
		Email:      claims.Email,
		Username:   claims.Username,
	}

	token, err := jwt.Signed(i.signer).Claims(registered).Claims(private).Serialize()
	if err != nil {
		return "", Claims{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return token, claims, nil
}

// Verify checks the token signature and lifetime and returns its claims. Every failure wraps
// ErrInvalidToken and is one of ErrMalformedToken, ErrInvalidSignature or ErrTokenExpired.
func (i *Issuer) Verify(token string) (Claims, error) {
	switch compactEncoding(token) {
	case encodingInvalid:
		return Claims{}, ErrMalformedToken
	case encodingNonCanonical:
		// Altered trailing bits: the token is not the one that was signed.
		return Claims{}, ErrInvalidSignature
	}

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, ErrMalformedToken
	}

	// Signature first: nothing in the payload is trusted before it verifies.
	if err := parsed.Claims(i.secret); err != nil {
		return Claims{}, ErrInvalidSignature
	}

	var registered jwt.Claims
	var private privateClaims
	if err := parsed.Claims(i.secret, &registered, &private); err != nil {
		return Claims{}, ErrMalformedToken
	}
	if registered.Subject == "" || registered.Expiry == nil || registered.IssuedAt == nil {
		return Claims{}, ErrMalformedToken
	}

	err = registered.ValidateWithLeeway(jwt.Expected{Issuer: IssuerName, Time: i.now()}, 0)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrExpired):
		return Claims{}, ErrTokenExpired
	default:
		return Claims{}, ErrMalformedToken
	}

	return Claims{
		UserID:     registered.Subject,
		SchoolID:   private.SchoolID,
		SchoolSlug: private.SchoolSlug,
		Email:      private.Email,
		Username:   private.Username,
		IssuedAt:   registered.IssuedAt.Time().UTC(),
		ExpiresAt:  registered.Expiry.Time().UTC(),
	}, nil
}

// Kind returns a stable label for a verification failure, for logs only.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "signature"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	}
	return "unknown"
}

type encoding int

const (
	encodingCanonical encoding = iota
	encodingNonCanonical
	encodingInvalid
)

// compactEncoding classifies the three base64url segments of token. Non-canonical encodings
// decode to the signed bytes and would otherwise verify.
func compactEncoding(token string) encoding {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return encodingInvalid
	}
	result := encodingCanonical
	for _, part := range parts {
		if part == "" {
			return encodingInvalid
		}
		if _, err := base64.RawURLEncoding.Strict().DecodeString(part); err == nil {
			continue
		}
		if _, err := base64.RawURLEncoding.DecodeString(part); err != nil {
			return encodingInvalid
		}
		result = encodingNonCanonical
	}
	return result
}
