// Package tokenfile persists the access token as a JSON document on disk.
// It is the credential store used when no encryption key is configured.
package tokenfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// document mirrors the fields the video service returns on authorization.
type document struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresIn   int64  `json:"expires_in"`
	CreatedAt   int64  `json:"created_at"`
}

// Store is a file-backed CredentialStore. Writes go through a temp file and
// rename so a crash never leaves a half-written token behind.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store that keeps the credential at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the token file.
func (s *Store) Path() string {
	return s.path
}

// Get reads the credential. A missing file yields (nil, nil).
func (s *Store) Get(_ context.Context) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", s.path, err)
	}
	if doc.AccessToken == "" {
		return nil, nil
	}

	return &model.Credential{
		AccessToken: doc.AccessToken,
		UserID:      doc.UserID,
		ExpiresIn:   doc.ExpiresIn,
		CreatedAt:   time.Unix(doc.CreatedAt, 0).UTC(),
	}, nil
}

// Replace atomically overwrites the token file.
func (s *Store) Replace(_ context.Context, cred model.Credential) error {
	data, err := json.MarshalIndent(document{
		AccessToken: cred.AccessToken,
		UserID:      cred.UserID,
		ExpiresIn:   cred.ExpiresIn,
		CreatedAt:   cred.CreatedAt.Unix(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	// atomic.WriteFile keeps the mode of an existing file; force owner-only.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("chmod token file: %w", err)
	}
	return nil
}

// Clear removes the token file and syncs its directory so the removal is
// durable before returning.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}

	dir, err := os.Open(filepath.Dir(s.path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open token dir: %w", err)
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("sync token dir: %w", err)
	}
	return nil
}
