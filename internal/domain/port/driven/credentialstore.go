package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// VIDRELAY_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set VIDRELAY_SECRET_KEY")

// CredentialStore defines the driven port for access token persistence. It
// holds at most one credential. Implementations serialize writes and must be
// safe for concurrent use by upload workers.
type CredentialStore interface {
	// Get returns the stored credential, or (nil, nil) if none exists.
	Get(ctx context.Context) (*model.Credential, error)

	// Replace atomically overwrites the stored credential and persists it.
	Replace(ctx context.Context, cred model.Credential) error

	// Clear removes the stored credential. It returns only after the deletion
	// is durable; on error the credential may still be present and the caller
	// should retry.
	Clear(ctx context.Context) error
}
