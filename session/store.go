package session

import (
	"context"
	"errors"
)

// ErrPartialCredentials is returned when Save is given a pair missing either token.
var ErrPartialCredentials = errors.New("credential pair must carry both access and refresh tokens")

// ErrStoreUnavailable wraps backend failures (Redis, filesystem).
var ErrStoreUnavailable = errors.New("credential store unavailable")

// ErrStoreCorrupt is returned when persisted state cannot be decoded.
var ErrStoreCorrupt = errors.New("credential store corrupt")

// Store is the credential store contract. Every write must be visible to the next Load
// made by the same process.
type Store interface {
	// Load returns the current state. A signed-out store returns a zero State and no error.
	Load(ctx context.Context) (State, error)

	// Save replaces the credential pair. A nil user keeps the stored profile.
	Save(ctx context.Context, creds Credentials, user *User) error

	// Clear signs out. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

func validateCredentials(creds Credentials) error {
	if !creds.Complete() {
		return ErrPartialCredentials
	}
	return nil
}
