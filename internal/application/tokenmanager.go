package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/vidrelay/internal/domain/model"
	"github.com/ericfisherdev/vidrelay/internal/domain/port/driven"
)

// maxRefreshWindow is the longest lead time before expiry at which a
// credential is proactively refreshed.
const maxRefreshWindow = 24 * time.Hour

// validateMethod is the cheap call used to confirm a token still works.
const validateMethod = "users.get"

// TokenManager keeps the stored access token usable. All refreshes are
// serialized so concurrent uploads that hit an auth error prompt the user once.
type TokenManager struct {
	store driven.CredentialStore
	api   driven.VideoAPI
	auth  driven.Authorizer
	mu    sync.Mutex
}

// NewTokenManager creates a TokenManager. api is used only for validation
// calls and to build the authorization URL.
func NewTokenManager(store driven.CredentialStore, api driven.VideoAPI, auth driven.Authorizer) *TokenManager {
	return &TokenManager{store: store, api: api, auth: auth}
}

// EnsureValid reports whether a usable credential is available after the call,
// prompting for authorization when the stored one is missing, close to expiry
// or rejected by the remote service.
func (m *TokenManager) EnsureValid(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Get(ctx)
	if err != nil {
		slog.Error("read credential", "error", err)
		return false
	}

	if cred == nil {
		slog.Info("no credential stored, authorization required")
		return m.refreshLogged(ctx)
	}

	now := time.Now()
	if cred.HasExpiry() && cred.Remaining(now) < refreshWindow(*cred) {
		slog.Info("credential close to expiry, refreshing",
			"expires_at", cred.ExpiresAt(), "remaining", cred.Remaining(now).Round(time.Second))
		return m.refreshLogged(ctx)
	}

	if err := m.validate(ctx, cred.AccessToken); err != nil {
		slog.Warn("credential failed live validation", "error", err)
		if err := m.store.Clear(ctx); err != nil {
			slog.Error("clear rejected credential", "error", err)
			return false
		}
		return m.refreshLogged(ctx)
	}

	return true
}

// RecoverAuth replaces a token the remote service rejected. If staleToken has
// already been replaced by a concurrent caller, it returns immediately.
// It returns an error wrapping model.ErrAuthDeclined if the user cancels.
func (m *TokenManager) RecoverAuth(ctx context.Context, staleToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("read credential: %w", err)
	}
	if cred != nil && cred.AccessToken != staleToken {
		return nil
	}

	if cred != nil {
		slog.Warn("access token rejected, reauthorizing")
		if err := m.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear rejected credential: %w", err)
		}
	}

	return m.refresh(ctx)
}

// AccessToken returns the stored token or model.ErrNoCredential.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	cred, err := m.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	if cred == nil || cred.AccessToken == "" {
		return "", model.ErrNoCredential
	}
	return cred.AccessToken, nil
}

// Credential returns the stored credential, or nil.
func (m *TokenManager) Credential(ctx context.Context) (*model.Credential, error) {
	return m.store.Get(ctx)
}

// Logout forgets the stored credential.
func (m *TokenManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	slog.Info("credential cleared")
	return nil
}

// CompleteAuthorization stores the credential carried by a redirect URL or
// its fragment, as pasted by the user after approving access.
func (m *TokenManager) CompleteAuthorization(ctx context.Context, redirect string) error {
	fragment := redirect
	if i := strings.IndexByte(redirect, '#'); i >= 0 {
		fragment = redirect[i+1:]
	}
	params, err := url.ParseQuery(fragment)
	if err != nil {
		return fmt.Errorf("parse authorization fragment: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveParams(ctx, params)
}

func (m *TokenManager) refreshLogged(ctx context.Context) bool {
	if err := m.refresh(ctx); err != nil {
		if errors.Is(err, model.ErrAuthDeclined) {
			slog.Warn("authorization declined")
		} else {
			slog.Error("authorization failed", "error", err)
		}
		return false
	}
	return true
}

// refresh runs interactive authorization. Callers hold m.mu.
func (m *TokenManager) refresh(ctx context.Context) error {
	params, err := m.auth.Authorize(ctx, m.api.AuthorizeURL())
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	return m.saveParams(ctx, params)
}

// saveParams converts fragment parameters into a credential and persists it.
func (m *TokenManager) saveParams(ctx context.Context, params url.Values) error {
	cred, err := credentialFromParams(params, time.Now())
	if err != nil {
		return err
	}
	if err := m.store.Replace(ctx, cred); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}

	slog.Info("credential stored", "user_id", cred.UserID, "expires_in", cred.ExpiresIn)
	return nil
}

func (m *TokenManager) validate(ctx context.Context, token string) error {
	_, err := m.api.Call(ctx, token, validateMethod, nil)
	return err
}

// refreshWindow is how long before expiry a credential is refreshed: one day,
// or half its lifetime for credentials shorter than two days.
func refreshWindow(cred model.Credential) time.Duration {
	return min(maxRefreshWindow, cred.Validity()/2)
}

func credentialFromParams(params url.Values, now time.Time) (model.Credential, error) {
	token := params.Get("access_token")
	if token == "" {
		return model.Credential{}, errors.New("authorization response has no access_token")
	}

	var expiresIn int64
	if raw := params.Get("expires_in"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return model.Credential{}, fmt.Errorf("invalid expires_in %q", raw)
		}
		expiresIn = v
	}

	return model.Credential{
		AccessToken: token,
		UserID:      params.Get("user_id"),
		CreatedAt:   now,
		ExpiresIn:   expiresIn,
	}, nil
}
