package flows

import (
	"context"

	"github.com/MrEthical07/authpipe/session"
)

// CredentialLoader reads the current session. Flows never cache what it returns.
type CredentialLoader interface {
	Load(ctx context.Context) (session.State, error)
}

// CredentialStore is the subset of session.Store the recover flow mutates.
type CredentialStore interface {
	CredentialLoader
	Clear(ctx context.Context) error
}

// Refresher is satisfied by *refresh.Coordinator.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Deps groups flow dependency sets. The root pipeline builds this once and
// delegates each phase of a round trip to the matching flow.
type Deps struct {
	Attach  AttachDeps
	Recover RecoverDeps
}
