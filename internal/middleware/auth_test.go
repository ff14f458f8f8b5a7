package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/maverick-software/toolboxd/internal/models"
)

func signedTestToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("Failed to sign test token: %v", err)
	}
	return signed
}

func authTestRouter(captured *models.Caller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authentication())
	r.GET("/probe", func(c *gin.Context) {
		if caller, ok := CallerFrom(c); ok {
			*captured = caller
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuthentication_ExtractsCallerWithRoles(t *testing.T) {
	var caller models.Caller
	r := authTestRouter(&caller)

	token := signedTestToken(t, jwt.MapClaims{
		"sub":      "auth0|user-42",
		"exp":      time.Now().Add(time.Hour).Unix(),
		RolesClaim: []interface{}{"admin", "support"},
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if caller.UserId != "auth0|user-42" {
		t.Fatalf("Expected user id auth0|user-42, got %q", caller.UserId)
	}
	if !caller.IsAdmin() {
		t.Fatalf("Expected admin role extracted, got %v", caller.Roles)
	}
}

func TestAuthentication_NoRolesClaim(t *testing.T) {
	var caller models.Caller
	r := authTestRouter(&caller)

	token := signedTestToken(t, jwt.MapClaims{
		"sub": "auth0|user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if caller.IsAdmin() {
		t.Fatal("Expected no roles without the roles claim")
	}
}

func TestAuthentication_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not a bearer token", header: "Basic dXNlcjpwYXNz"},
		{name: "malformed token", header: "Bearer not.a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caller models.Caller
			r := authTestRouter(&caller)

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("Expected 401, got %d", w.Code)
			}
		})
	}
}

func TestAuthentication_ExpiredToken(t *testing.T) {
	var caller models.Caller
	r := authTestRouter(&caller)

	token := signedTestToken(t, jwt.MapClaims{
		"sub": "auth0|user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for expired token, got %d", w.Code)
	}
}

func TestAuthentication_MissingSubject(t *testing.T) {
	var caller models.Caller
	r := authTestRouter(&caller)

	token := signedTestToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without sub claim, got %d", w.Code)
	}
}
