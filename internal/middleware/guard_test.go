package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"eventfinder/internal/model"
	"eventfinder/internal/session"
)

type fixedSession session.State

func (f fixedSession) State() session.State { return session.State(f) }

func guardRouter(st session.State) *gin.Engine {
	gin.SetMode(gin.TestMode)
	src := fixedSession(st)
	r := gin.New()
	r.GET("/profile", Protected(src), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/login", GuestOnly(src), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestProtected(t *testing.T) {
	signedIn := session.State{Status: session.StatusAuthenticated, Token: "t", User: &model.User{Username: "alice"}}
	cases := []struct {
		name  string
		state session.State
		code  int
		body  string
	}{
		{"anonymous", session.State{Status: session.StatusIdle}, http.StatusUnauthorized, `{"error":"Authentication required","redirect":"/login"}`},
		{"loading", session.State{Status: session.StatusProfileLoading, Token: "t"}, http.StatusServiceUnavailable, `{"error":"Session loading"}`},
		{"signed in", signedIn, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doGet(guardRouter(tc.state), "/profile", "")
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestGuestOnly(t *testing.T) {
	w := doGet(guardRouter(session.State{Status: session.StatusIdle}), "/login", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	signedIn := session.State{Status: session.StatusAuthenticated, Token: "t", User: &model.User{}}
	w = doGet(guardRouter(signedIn), "/login", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w.Body.String() != `{"redirect":"/"}` {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}
