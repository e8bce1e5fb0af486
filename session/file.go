package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists state as a JSON document at a fixed path. Writes go to a temp file
// in the same directory and are renamed into place, so readers never observe a torn file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileUser struct {
	ID    string   `json:"id,omitempty"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type fileState struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    int64     `json:"expires_at,omitempty"`
	User         *fileUser `json:"user,omitempty"`
}

// NewFileStore returns a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the file. A missing file means signed out.
func (f *FileStore) Load(context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

// Save rewrites the file with creds and, when non-nil, user.
func (f *FileStore) Save(_ context.Context, creds Credentials, user *User) error {
	if err := validateCredentials(creds); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if user == nil {
		prev, err := f.readLocked()
		if err == nil {
			user = prev.User
		}
	}

	doc := fileState{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	if !creds.ExpiresAt.IsZero() {
		doc.ExpiresAt = creds.ExpiresAt.Unix()
	}
	if user != nil {
		doc.User = &fileUser{ID: user.ID, Email: user.Email, Name: user.Name, Roles: user.Roles}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return f.writeLocked(data)
}

// Clear removes the file.
func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (f *FileStore) readLocked() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var doc fileState
	if err := json.Unmarshal(data, &doc); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	creds := &Credentials{AccessToken: doc.AccessToken, RefreshToken: doc.RefreshToken}
	if !creds.Complete() {
		return State{}, fmt.Errorf("%w: %v", ErrStoreCorrupt, ErrPartialCredentials)
	}
	if doc.ExpiresAt != 0 {
		creds.ExpiresAt = time.Unix(doc.ExpiresAt, 0)
	}

	s := State{Credentials: creds}
	if doc.User != nil {
		s.User = &User{ID: doc.User.ID, Email: doc.User.Email, Name: doc.User.Name, Roles: doc.User.Roles}
	}
	return s, nil
}

func (f *FileStore) writeLocked(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".authpipe-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
