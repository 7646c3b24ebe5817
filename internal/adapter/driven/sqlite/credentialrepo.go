package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// credentialService is the row key of the single video service credential.
const credentialService = "vk"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// The credential is JSON-encoded and encrypted with AES-256-GCM before write and
// decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
	mu  sync.Mutex
}

// storedCredential is the JSON document kept in the value column.
type storedCredential struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresIn   int64  `json:"expires_in"`
	CreatedAt   string `json:"created_at"`
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Get retrieves and decrypts the stored credential. Returns (nil, nil) if none exists.
func (r *CredentialRepo) Get(ctx context.Context) (*model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT value FROM credentials WHERE service = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, credentialService).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	plaintext, err := r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	var stored storedCredential
	if err := json.Unmarshal([]byte(plaintext), &stored); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}

	createdAt, err := parseTime(stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse credential created_at: %w", err)
	}

	return &model.Credential{
		AccessToken: stored.AccessToken,
		UserID:      stored.UserID,
		CreatedAt:   createdAt,
		ExpiresIn:   stored.ExpiresIn,
	}, nil
}

// Replace encrypts and stores cred, overwriting any previous credential.
func (r *CredentialRepo) Replace(ctx context.Context, cred model.Credential) error {
	data, err := json.Marshal(storedCredential{
		AccessToken: cred.AccessToken,
		UserID:      cred.UserID,
		ExpiresIn:   cred.ExpiresIn,
		CreatedAt:   cred.CreatedAt.UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	encrypted, err := r.encrypt(string(data))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	const query = `INSERT OR REPLACE INTO credentials (service, value, updated_at) VALUES (?, ?, ?)`
	_, err = r.db.Writer.ExecContext(ctx, query, credentialService, encrypted, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("replace credential: %w", err)
	}
	return nil
}

// Clear deletes the stored credential. The writer runs with synchronous=FULL,
// so a nil return means the delete reached disk.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	const query = `DELETE FROM credentials WHERE service = ?`
	_, err := r.db.Writer.ExecContext(ctx, query, credentialService)
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
