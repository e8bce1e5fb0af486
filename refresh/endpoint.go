package refresh

import (
	"context"

	"github.com/MrEthical07/authpipe/session"
)

// TokenPair is what a successful exchange returns. An empty RefreshToken means the server
// does not rotate refresh tokens and the current one stays valid. User is optional.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	User         *session.User
}

// Endpoint exchanges a refresh token for a new pair. Idempotency and rate limiting are the
// endpoint's concern.
type Endpoint interface {
	Exchange(ctx context.Context, refreshToken string) (TokenPair, error)
}

// EndpointFunc adapts a function to [Endpoint].
type EndpointFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// Exchange calls f.
func (f EndpointFunc) Exchange(ctx context.Context, refreshToken string) (TokenPair, error) {
	return f(ctx, refreshToken)
}
