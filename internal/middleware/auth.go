package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

// Claims are the JWT claims vaultd accepts. The caller principal is taken
// from Principal when present, otherwise from the subject.
type Claims struct {
	Principal string `json:"principal,omitempty"`
	jwt.RegisteredClaims
}

type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p vault.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (vault.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(vault.Principal)
	return p, ok && !p.IsZero()
}

// AuthMiddleware authenticates callers with HMAC-signed bearer tokens.
type AuthMiddleware struct {
	secret []byte
	log    *logger.Logger
}

// NewAuthMiddleware creates the middleware. An empty secret rejects every
// token.
func NewAuthMiddleware(secret string, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{secret: []byte(secret), log: log}
}

// Handler rejects requests without a valid bearer token and stores the
// caller principal in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.New("missing Authorization header"))
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, r, errors.New("invalid Authorization header format"))
			return
		}

		caller, err := m.Authenticate(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}
		m.log.WithField("caller", caller).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), caller)))
	})
}

// Authenticate validates a token and returns the caller principal.
func (m *AuthMiddleware) Authenticate(tokenString string) (vault.Principal, error) {
	if len(m.secret) == 0 {
		return "", errors.New("authentication is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	raw := claims.Principal
	if raw == "" {
		raw = claims.Subject
	}
	caller, err := vault.ParsePrincipal(raw)
	if err != nil {
		return "", fmt.Errorf("token principal: %w", err)
	}
	return caller, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	m.log.WithError(err).WithField("path", r.URL.Path).WithField("method", r.Method).Warn("authentication failed")
	WriteError(w, http.StatusUnauthorized, "unauthorized", 0, err.Error())
}

// IssueToken signs a token for p. vaultd uses it for operator tooling and
// tests; production tokens come from the deployment's identity provider.
func IssueToken(secret string, p vault.Principal, claims jwt.RegisteredClaims) (string, error) {
	c := Claims{Principal: string(p), RegisteredClaims: claims}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
