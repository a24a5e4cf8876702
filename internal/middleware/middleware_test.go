package middleware

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antonminaichev/wholesale/internal/types/user"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
)

type stubUserRepo struct {
	users map[string]*user.User
}

func (r *stubUserRepo) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	assert.NoError(t, err)
	return s
}

func TestJWTMiddleware(t *testing.T) {
	repo := &stubUserRepo{users: map[string]*user.User{
		"buyer@example.com":  {ID: 3, Email: "buyer@example.com", Name: "Buyer", IsActive: true},
		"frozen@example.com": {ID: 4, Email: "frozen@example.com", IsActive: false},
	}}
	var got user.Actor
	h := JWTMiddleware([]byte("secret"), repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"valid", "Bearer " + signToken(t, "secret", "buyer@example.com"), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", "buyer@example.com"), http.StatusUnauthorized},
		{"inactive user", "Bearer " + signToken(t, "secret", "frozen@example.com"), http.StatusUnauthorized},
		{"unknown user", "Bearer " + signToken(t, "secret", "ghost@example.com"), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "203.0.113.9", got.IP)
	assert.False(t, got.Admin)
}

func TestAdminOnly(t *testing.T) {
	h := AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rec, req.WithContext(ContextWithActor(req.Context(), user.Actor{ID: 2})))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ContextWithActor(req.Context(), user.Actor{ID: 1, Admin: true})))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignatureHandler(t *testing.T) {
	var seen string
	h := SignatureHandler("X-Signature", "hook-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
	}))
	body := `{"event_type":"shipment.delivered"}`

	tests := []struct {
		name       string
		sig        string
		wantStatus int
	}{
		{"valid", hex.EncodeToString(Sign([]byte(body), "hook-secret")), http.StatusOK},
		{"absent", "", http.StatusOK},
		{"wrong", hex.EncodeToString(Sign([]byte(body), "nope")), http.StatusUnauthorized},
		{"not hex", "zz", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
			if tt.sig != "" {
				req.Header.Set("X-Signature", tt.sig)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, body, seen)
			}
		})
	}
}

func TestGzipHandler(t *testing.T) {
	h := GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}
