package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "s3cret", Issuer: "fitpulse-auth"}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":       "coach-1",
		"tenant_id": "tenant-1",
		"iss":       "fitpulse-auth",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"scopes":    []string{ScopeDashboardRead, ScopeActivitiesRead},
	}
}

func TestParseClaims(t *testing.T) {
	claims, err := ParseClaims(signToken(t, testConfig.Secret, validClaims()), testConfig)
	require.NoError(t, err)
	require.Equal(t, "coach-1", claims.Subject)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.True(t, claims.HasScope(ScopeDashboardRead))
	require.False(t, claims.HasScope(ScopeCacheInvalidate))
}

func TestParseClaimsSpaceSeparatedScopes(t *testing.T) {
	c := validClaims()
	c["scopes"] = "dashboard:read  cache:invalidate"

	claims, err := ParseClaims(signToken(t, testConfig.Secret, c), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeCacheInvalidate))
}

func TestParseClaimsRejects(t *testing.T) {
	cases := map[string]func() (string, error){
		"wrong secret": func() (string, error) {
			return signToken(t, "other", validClaims()), ErrInvalidToken
		},
		"wrong issuer": func() (string, error) {
			c := validClaims()
			c["iss"] = "someone-else"
			return signToken(t, testConfig.Secret, c), ErrInvalidToken
		},
		"expired": func() (string, error) {
			c := validClaims()
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return signToken(t, testConfig.Secret, c), ErrInvalidToken
		},
		"no expiry": func() (string, error) {
			c := validClaims()
			delete(c, "exp")
			return signToken(t, testConfig.Secret, c), ErrInvalidToken
		},
		"no tenant": func() (string, error) {
			c := validClaims()
			delete(c, "tenant_id")
			return signToken(t, testConfig.Secret, c), ErrInvalidToken
		},
		"blank": func() (string, error) {
			return "  ", ErrMissingToken
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			token, want := build()
			_, err := ParseClaims(token, testConfig)
			require.True(t, errors.Is(err, want), "got %v", err)
		})
	}
}

func TestClaimsNilHasNoScopes(t *testing.T) {
	var c *Claims
	require.False(t, c.HasScope(ScopeDashboardRead))
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testConfig.Secret, validClaims()))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, "tenant-1", seen.TenantID)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"type":"unauthorized","detail":"missing bearer token"}`, rec.Body.String())
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/dashboard", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("public paths skip auth", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/metrics"} {
			seen = nil
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusNoContent, rec.Code)
			require.Nil(t, seen)
		}
	})
}
