package session

import "time"

// Credentials is an access/refresh token pair. ExpiresAt is advisory, derived from the
// access token payload when it can be decoded, and zero otherwise.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Complete reports whether both tokens are present.
func (c *Credentials) Complete() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}

// User is the profile of the signed-in principal as returned by the auth server.
type User struct {
	ID    string
	Email string
	Name  string
	Roles []string
}

// State is the full content of a credential store. Both fields are nil when signed out.
type State struct {
	Credentials *Credentials
	User        *User
}

// SignedIn reports whether the state holds a usable credential pair.
func (s State) SignedIn() bool {
	return s.Credentials.Complete()
}

// AccessToken returns the current access token or "".
func (s State) AccessToken() string {
	if s.Credentials == nil {
		return ""
	}
	return s.Credentials.AccessToken
}

// RefreshToken returns the current refresh token or "".
func (s State) RefreshToken() string {
	if s.Credentials == nil {
		return ""
	}
	return s.Credentials.RefreshToken
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	if len(u.Roles) > 0 {
		out.Roles = append([]string(nil), u.Roles...)
	}
	return &out
}

func cloneState(s State) State {
	var out State
	if s.Credentials != nil {
		c := *s.Credentials
		out.Credentials = &c
	}
	out.User = cloneUser(s.User)
	return out
}
