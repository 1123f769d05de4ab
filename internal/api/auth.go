package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ScopeControl is the only scope a control token carries. It allows
// commands and reconnects; reads need no token.
const ScopeControl = "control"

// defaultTokenTTL applies when IssueToken is given a non-positive ttl.
const defaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenInvalid is returned when a bearer token fails validation.
	ErrTokenInvalid = errors.New("api: invalid token")

	// ErrAuthNotConfigured is returned when no signing secret is set.
	ErrAuthNotConfigured = errors.New("api: no jwt secret configured")
)

// Claims is the payload of a control token.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// IssueToken signs an HS256 control token for subject.
//
// Parameters:
//   - secret: api.auth.jwt_secret
//   - subject: who the token is for, recorded in request logs
//   - ttl: lifetime; zero or negative means 24 hours
//
// Returns:
//   - string: the compact JWT
//   - error: ErrAuthNotConfigured without a secret, or a signing failure
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrAuthNotConfigured
	}
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: ScopeControl,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing control token: %w", err)
	}
	return signed, nil
}

// ParseToken validates signature, expiry, subject and scope.
func ParseToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrAuthNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Scope != ScopeControl {
		return nil, fmt.Errorf("%w: scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}

// authMiddleware admits requests carrying a valid control token in the
// Authorization header. Without a configured secret every request is
// refused, so the control routes are closed by default.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.Auth.JWTSecret
		if secret == "" {
			writeUnauthorized(w, "control API disabled: api.auth.jwt_secret is not set")
			return
		}

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := ParseToken(strings.TrimSpace(raw), secret)
		if err != nil {
			s.logger.Warn("rejected control request",
				"path", r.URL.Path,
				"error", err,
				"request_id", r.Context().Value(ctxKeyRequestID),
			)
			writeUnauthorized(w, "invalid token")
			return
		}

		s.logger.Debug("control request authorised",
			"subject", claims.Subject,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r)
	})
}
