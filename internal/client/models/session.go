// Package models defines the client-side domain types shared by the
// session, polling and read-model layers.
package models

// Phase is the authentication phase of the single client session.
type Phase string

const (
	PhaseUnauthenticated Phase = "UNAUTHENTICATED"
	PhaseVerifying       Phase = "VERIFYING"
	PhaseAuthenticated   Phase = "AUTHENTICATED"
	PhaseExpired         Phase = "EXPIRED"
)

// Identity is the verified user behind the current credential.
type Identity struct {
	ID       string
	Username string
	IsAdmin  bool
}
