package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/auth"
)

var testTokenConfig = auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

func tokenRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TokenAuth(testTokenConfig))
	r.GET("/open", func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"uid": id})
	})
	r.GET("/private", RequireUser(), func(c *gin.Context) {
		id, ok := UserIDFromContext(c)
		if !ok || id != 42 || UsernameFromContext(c) != "alice" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func doGet(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenAuth_SetsUser(t *testing.T) {
	tok, err := auth.CreateToken(42, "alice", testTokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	w := doGet(tokenRouter(), "/private", "Token "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTokenAuth_AnonymousPassesOpenRoutes(t *testing.T) {
	w := doGet(tokenRouter(), "/open", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireUser_RejectsAnonymous(t *testing.T) {
	w := doGet(tokenRouter(), "/private", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if body := w.Body.String(); body != `{"detail":"Authentication credentials were not provided."}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestTokenAuth_RejectsBadTokens(t *testing.T) {
	tok, err := auth.CreateToken(42, "alice", testTokenConfig)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	for _, header := range []string{"Bearer " + tok, "Token", "Token not-a-jwt"} {
		w := doGet(tokenRouter(), "/open", header)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, w.Code)
		}
	}
}
