package admin

import (
	"crypto/subtle"
	"net/http"
	"sync/atomic"
)

// Authenticator decides whether a request carrying the supplied secret may
// use a protected route.
type Authenticator interface {
	Authorize(r *http.Request, supplied string) bool
}

// PasswordAuth compares against one shared password. The password can be
// swapped at runtime (config reload).
type PasswordAuth struct {
	pw atomic.Pointer[string]
}

func NewPasswordAuth(password string) *PasswordAuth {
	a := &PasswordAuth{}
	a.SetPassword(password)
	return a
}

func (a *PasswordAuth) SetPassword(password string) {
	a.pw.Store(&password)
}

func (a *PasswordAuth) Authorize(_ *http.Request, supplied string) bool {
	want := a.pw.Load()
	if want == nil || *want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(*want)) == 1
}
