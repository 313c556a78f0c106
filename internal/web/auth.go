package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"turnstile/internal/config"
	"turnstile/internal/services"
)

// tokenClaims is the JWT payload for API tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
}

// MintToken signs an HS256 bearer token for the configured secret. A zero
// ttl falls back to the configured token lifetime.
func MintToken(cfg *config.Config, subject string, ttl time.Duration) (string, time.Time, error) {
	if cfg == nil || cfg.Web.AuthSecret == "" {
		return "", time.Time{}, services.Wrap(services.ErrConfiguration, "web", "mint token",
			"no auth secret configured", nil)
	}
	if subject == "" {
		subject = "api"
	}
	if ttl <= 0 {
		ttl = time.Duration(cfg.Web.TokenTTLHours) * time.Hour
	}
	now := time.Now()
	expires := now.Add(ttl)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Web.AuthIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Web.AuthSecret))
	if err != nil {
		return "", time.Time{}, services.Wrap(services.ErrConfiguration, "web", "mint token", "sign token", err)
	}
	return signed, expires, nil
}

// parseToken validates signature, expiry, and issuer.
func parseToken(cfg *config.Config, tokenStr string) (*tokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.Web.AuthSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if cfg.Web.AuthIssuer != "" && claims.Issuer != cfg.Web.AuthIssuer {
		return nil, errors.New("issuer mismatch")
	}
	return claims, nil
}

// requireAuth enforces bearer tokens on the wrapped routes. It is only
// installed when an auth secret is configured. The token subject is
// informational; any token signed with the secret grants full access.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			s.writeAuthError(w, "missing bearer token")
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		if _, err := parseToken(s.cfg, tokenStr); err != nil {
			s.writeAuthError(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeAuthError(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: message, Kind: "unauthorized"})
}
