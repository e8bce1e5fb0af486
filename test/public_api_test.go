package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/MrEthical07/authpipe"
	"github.com/MrEthical07/authpipe/jwt"
	"github.com/MrEthical07/authpipe/refresh"
	"github.com/MrEthical07/authpipe/session"
)

// Guards public API compile-compat for consumers.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = authpipe.New

	var _ *authpipe.Pipeline
	var _ http.RoundTripper = (*authpipe.Pipeline)(nil)
	var _ authpipe.Config
	var _ authpipe.Notifier
	var _ authpipe.AuditSink
	var _ session.Store = (*session.MemoryStore)(nil)
	var _ session.Store = (*session.FileStore)(nil)
	var _ session.Store = (*session.RedisStore)(nil)
	var _ session.Store = (*session.Watched)(nil)
	var _ refresh.Endpoint = (*refresh.HTTPEndpoint)(nil)

	var _ error = authpipe.ErrUnauthenticated
	var _ error = authpipe.ErrForbidden
	var _ error = authpipe.ErrServerError
	var _ error = authpipe.ErrTransport
	var _ error = authpipe.ErrRefreshFailed
	var _ error = authpipe.ErrNoRefreshToken
	var _ error = authpipe.ErrBodyNotReplayable

	var _ func(string) (*jwt.Payload, bool) = jwt.Decode
	var _ func(*authpipe.Pipeline, context.Context, *http.Request) (*http.Response, error) = (*authpipe.Pipeline).Send
	var _ func(*authpipe.Pipeline, context.Context) (string, error) = (*authpipe.Pipeline).Refresh
	var _ func(*refresh.Coordinator, context.Context) (string, error) = (*refresh.Coordinator).Refresh
}
