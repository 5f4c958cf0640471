// Package guard decides whether a view may be shown for a session snapshot.
package guard

import "eventfinder/internal/session"

type Decision int

const (
	Allow Decision = iota
	// RedirectLogin sends an unauthenticated visitor to the login view.
	RedirectLogin
	// Wait means the session is still resolving a stored token.
	Wait
	// RedirectHome keeps signed-in users out of the guest-only views.
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case Wait:
		return "wait"
	case RedirectHome:
		return "redirect-home"
	}
	return "unknown"
}

// Protected gates views that need a signed-in user.
func Protected(st session.State) Decision {
	switch {
	case st.Authenticated():
		return Allow
	case st.Status == session.StatusProfileLoading && st.Token != "":
		return Wait
	}
	return RedirectLogin
}

// GuestOnly gates the login and register views.
func GuestOnly(st session.State) Decision {
	if st.Authenticated() {
		return RedirectHome
	}
	return Allow
}
