package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/medibook/pkg/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func adminRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin/appointments/today", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdminJWT(t *testing.T) {
	now := time.Now()
	valid, err := IssueAdminToken("secret", "desk-1", 5*time.Minute, now)
	require.NoError(t, err)
	wrongSecret, err := IssueAdminToken("other", "desk-1", 5*time.Minute, now)
	require.NoError(t, err)
	expired, err := IssueAdminToken("secret", "desk-1", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "desk-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: AdminRole}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
		want   int
	}{
		{name: "disabled", secret: "", token: valid, want: http.StatusUnauthorized},
		{name: "missing header", secret: "secret", want: http.StatusUnauthorized},
		{name: "wrong secret", secret: "secret", token: wrongSecret, want: http.StatusUnauthorized},
		{name: "expired", secret: "secret", token: expired, want: http.StatusUnauthorized},
		{name: "missing role", secret: "secret", token: noRole, want: http.StatusUnauthorized},
		{name: "missing expiry", secret: "secret", token: noExpiry, want: http.StatusUnauthorized},
		{name: "valid", secret: "secret", token: valid, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var claims AdminClaims
			h := AdminJWT(tt.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				claims, _ = AdminClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			rec := serve(h, adminRequest(tt.token))
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "desk-1", claims.Subject)
				assert.Equal(t, AdminRole, claims.Role)
			}
		})
	}
}

func TestIssueAdminTokenRequiresSecret(t *testing.T) {
	_, err := IssueAdminToken("", "desk", time.Minute, time.Now())
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{" https://clinic.example ", ""})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://clinic.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://clinic.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/admin/appointments/today", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = serve(h, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSWildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := serve(CORS([]string{"*"})(okHandler), req)
	assert.Equal(t, "https://anything.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	current := time.Date(2025, time.February, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return current }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	current = current.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))

	current = current.Add(time.Hour)
	rl.Allow("10.0.0.3")
	assert.Len(t, rl.clients, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(0.001, 1)(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "192.0.2.1:5555"

	assert.Equal(t, http.StatusOK, serve(h, req).Code)
	rec := serve(h, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "debug", "json")
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments/today", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := serve(h, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["msg"])
	assert.Equal(t, "http", line["component"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, float64(15), line["bytes"])
	assert.Equal(t, "req-123", line["request_id"])
}
