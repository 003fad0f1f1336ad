package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/mitrahelp/mitrahelp-api/api"
)

var testSecret = []byte("test-secret")

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(testSecret)
	assert.NoError(t, err)
	return raw
}

func echoIdentity(t *testing.T, captured *api.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := api.IdentityFromContext(r.Context())
		assert.True(t, ok)
		*captured = identity
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	m := api.Middleware{Secret: testSecret}
	var got api.Identity

	raw := signedToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"name": "Adi",
		"role": "requester",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest("GET", "/api/v1/emergencies/user", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()

	m.Wrap(echoIdentity(t, &got)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, api.Identity{ID: "user-1", Name: "Adi", Role: "requester"}, got)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	m := api.Middleware{Secret: testSecret}

	req := httptest.NewRequest("GET", "/api/v1/emergencies/user", nil)
	rr := httptest.NewRecorder()

	m.Wrap(http.NotFoundHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"error": "unauthorized"}`, rr.Body.String())
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	m := api.Middleware{Secret: testSecret}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	raw, err := token.SignedString([]byte("some-other-secret"))
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/emergencies/user", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()

	m.Wrap(http.NotFoundHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	m := api.Middleware{Secret: testSecret}

	raw := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	req := httptest.NewRequest("GET", "/api/v1/emergencies/user", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()

	m.Wrap(http.NotFoundHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareRejectsTokenWithoutSubject(t *testing.T) {
	m := api.Middleware{Secret: testSecret}

	raw := signedToken(t, jwt.MapClaims{"name": "Adi"})

	req := httptest.NewRequest("GET", "/api/v1/emergencies/user", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()

	m.Wrap(http.NotFoundHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
