package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authpipe/session"
)

const maxTokenResponseBytes = 1 << 20

// Format selects the request encoding of [HTTPEndpoint].
type Format string

const (
	// FormatJSON posts {"refresh_token": "..."} as application/json.
	FormatJSON Format = "json"
	// FormatForm posts an OAuth2 refresh grant as application/x-www-form-urlencoded.
	FormatForm Format = "form"
)

// HTTPEndpointConfig configures [HTTPEndpoint].
type HTTPEndpointConfig struct {
	URL      string
	Format   Format
	ClientID string // sent as client_id with FormatForm when set
	Header   http.Header
	// Client performs the exchange. It must not be an authpipe client. Nil uses a
	// dedicated client with a 30s timeout.
	Client *http.Client
}

// HTTPEndpoint exchanges refresh tokens against a remote HTTP token endpoint.
type HTTPEndpoint struct {
	url      string
	format   Format
	clientID string
	header   http.Header
	client   *http.Client
}

// NewHTTPEndpoint validates cfg.
func NewHTTPEndpoint(cfg HTTPEndpointConfig) (*HTTPEndpoint, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("refresh endpoint URL must be absolute")
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatJSON
	case FormatJSON, FormatForm:
	default:
		return nil, fmt.Errorf("unsupported refresh endpoint format %q", cfg.Format)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultTimeout}
	}

	return &HTTPEndpoint{
		url:      u.String(),
		format:   cfg.Format,
		clientID: cfg.ClientID,
		header:   cfg.Header.Clone(),
		client:   cfg.Client,
	}, nil
}

type userResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

type tokenResponse struct {
	AccessToken       string        `json:"access_token"`
	RefreshToken      string        `json:"refresh_token"`
	AccessTokenCamel  string        `json:"accessToken"`
	RefreshTokenCamel string        `json:"refreshToken"`
	User              *userResponse `json:"user"`
}

// Exchange posts refreshToken and decodes the new pair. 400, 401 and 403 map to
// [ErrRejected]; other failures map to [ErrEndpointUnavailable].
func (e *HTTPEndpoint) Exchange(ctx context.Context, refreshToken string) (TokenPair, error) {
	req, err := e.newRequest(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: read body: %v", ErrEndpointUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return TokenPair{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return TokenPair{}, fmt.Errorf("%w: status %d", ErrEndpointUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	pair := TokenPair{
		AccessToken:  firstNonEmpty(tr.AccessToken, tr.AccessTokenCamel),
		RefreshToken: firstNonEmpty(tr.RefreshToken, tr.RefreshTokenCamel),
	}
	if pair.AccessToken == "" {
		return TokenPair{}, ErrInvalidResponse
	}
	if tr.User != nil {
		pair.User = &session.User{
			ID:    tr.User.ID,
			Email: tr.User.Email,
			Name:  tr.User.Name,
			Roles: tr.User.Roles,
		}
	}
	return pair, nil
}

func (e *HTTPEndpoint) newRequest(ctx context.Context, refreshToken string) (*http.Request, error) {
	var (
		body        []byte
		contentType string
	)

	switch e.format {
	case FormatForm:
		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refreshToken)
		if e.clientID != "" {
			form.Set("client_id", e.clientID)
		}
		body = []byte(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		var err error
		body, err = json.Marshal(map[string]string{"refresh_token": refreshToken})
		if err != nil {
			return nil, err
		}
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range e.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Timeout returns the client timeout used for exchanges.
func (e *HTTPEndpoint) Timeout() time.Duration {
	return e.client.Timeout
}
