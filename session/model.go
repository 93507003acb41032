package session

// Session defines a public type used by authcore APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	SessionID string
	UserID    string
	Email     string
	Roles     []string

	// RefreshHash is sha256 of the current refresh secret. The plaintext
	// secret only ever exists inside the opaque refresh token handed to
	// the caller.
	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
