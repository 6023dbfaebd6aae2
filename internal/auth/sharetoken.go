package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/tradeguard/backend-quotes/internal/common"
)

// ShareSigner issues and verifies signed quote share tokens. Tokens are HS256
// with the quote id as subject.
type ShareSigner struct {
	Secret []byte
	TTL    time.Duration
	Issuer string

	now func() time.Time
}

// WithNow overrides the clock, for tests.
func (s *ShareSigner) WithNow(now func() time.Time) { s.now = now }

func (s *ShareSigner) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Sign issues a share token for the quote.
func (s *ShareSigner) Sign(quoteID string) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("auth: share secret not configured")
	}
	now := s.clock()
	builder := jwt.NewBuilder().
		Subject(quoteID).
		IssuedAt(now).
		Expiration(now.Add(s.TTL))
	if s.Issuer != "" {
		builder = builder.Issuer(s.Issuer)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("auth: build share token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign share token: %w", err)
	}
	return string(signed), nil
}

// Verify checks the token signature, expiry, and quote binding.
func (s *ShareSigner) Verify(token, quoteID string) error {
	if len(s.Secret) == 0 {
		return errors.New("auth: share secret not configured")
	}
	options := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, s.Secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(s.clock)),
	}
	if s.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.Issuer))
	}
	tok, err := jwt.Parse([]byte(token), options...)
	if err != nil {
		return fmt.Errorf("auth: parse share token: %w", err)
	}
	if tok.Subject() != quoteID {
		return errors.New("auth: share token bound to different quote")
	}
	return nil
}

// ShareLink wraps a share URL builder so issued links carry a signed token in
// the "t" query parameter. With a nil signer links are returned untokenized,
// matching deployments where RequireShareToken is a no-op.
func ShareLink(signer *ShareSigner, base func(quoteID string) string) func(quoteID string) string {
	return func(quoteID string) string {
		u := base(quoteID)
		if signer == nil {
			return u
		}
		token, err := signer.Sign(quoteID)
		if err != nil {
			return u
		}
		return u + "?t=" + url.QueryEscape(token)
	}
}

// RequireShareToken verifies the "t" query parameter against the quote id
// path segment. With a nil signer the middleware is a no-op, keeping quote
// links public in deployments that do not enforce tokens.
func RequireShareToken(signer *ShareSigner, quoteIDFromRequest func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signer == nil {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimSpace(r.URL.Query().Get("t"))
			if token == "" {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing share token", nil)
				return
			}
			if err := signer.Verify(token, quoteIDFromRequest(r)); err != nil {
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid share token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
