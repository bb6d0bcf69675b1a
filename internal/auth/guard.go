// Package auth provides the access guard consulted before collection mutations and the
// local session it is backed by.
//
// There is no credential check: signing in records a [models.Session] under the "user"
// storage key, and the guard only asks whether one is present.
package auth

// Guard reports whether a session is active. Callers abort the pending mutation when it
// returns false.
type Guard interface {
	RequireSession() bool
}

// GuardFunc adapts a function to [Guard].
type GuardFunc func() bool

// RequireSession implements [Guard].
func (f GuardFunc) RequireSession() bool { return f() }

var (
	// Allow is a guard that always passes.
	Allow Guard = GuardFunc(func() bool { return true })
	// Deny is a guard that never passes.
	Deny Guard = GuardFunc(func() bool { return false })
)
