package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
)

const testSecret = "test-secret-0123456789abcdef"

func testPrincipal(b byte) vault.Principal {
	var u util.Uint160
	u[0] = b
	return vault.PrincipalFromHash(u)
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p))
	})
}

func TestAuthMiddleware(t *testing.T) {
	alice := testPrincipal(3)
	auth := NewAuthMiddleware(testSecret, logger.Discard())
	handler := auth.Handler(echoCaller())

	valid, err := IssueToken(testSecret, alice, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, alice, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	foreign, err := IssueToken("another-secret", alice, jwt.RegisteredClaims{})
	require.NoError(t, err)
	subjectOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: alice.Hex(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "not-a-principal",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"subject claim", "Bearer " + subjectOnly, http.StatusOK},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + foreign, http.StatusUnauthorized},
		{"bad principal", "Bearer " + badSubject, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/deposits", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, string(alice), rec.Body.String())
				return
			}
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body.Error)
		})
	}
}

func TestAuthMiddleware_NoSecret(t *testing.T) {
	token, err := IssueToken("", testPrincipal(3), jwt.RegisteredClaims{})
	if err == nil {
		_, err = NewAuthMiddleware("", logger.Discard()).Authenticate(token)
	}
	require.Error(t, err)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logger.Discard())
	handler := rl.Handler(echoCaller())

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/tvl", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"), "same host shares a bucket")
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000"))

	now := time.Now()
	rl.now = func() time.Time { return now.Add(time.Hour) }
	rl.getLimiter("10.0.0.3")
	assert.Equal(t, 1, rl.Cleanup(time.Minute))
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := NewRateLimiter(0, 0, logger.Discard()).Handler(echoCaller())
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(logger.Discard()))
	r.Handle("/v1/protocols/{id}", echoCaller())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/protocols/1", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/v1/protocols/1", nil)
	req.Header.Set(RequestIDHeader, "fixed")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "fixed", rec.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	handler := NewCORSMiddleware([]string{"https://app.example.org/"}).Handler(echoCaller())

	req := httptest.NewRequest(http.MethodOptions, "/v1/deposits", nil)
	req.Header.Set("Origin", "https://app.example.org")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/tvl", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
