package model

import "time"

// Credential is the access token issued by the video service together with
// its validity window. ExpiresIn is in seconds; zero means the token does not
// expire (the "offline" scope). Expiry is advisory: the remote service is the
// authority on whether a token still works.
type Credential struct {
	AccessToken string
	UserID      string
	CreatedAt   time.Time
	ExpiresIn   int64
}

// HasExpiry reports whether the credential has a finite validity window.
func (c Credential) HasExpiry() bool {
	return c.ExpiresIn > 0
}

// Validity returns the full lifetime of the credential, or zero when it does
// not expire.
func (c Credential) Validity() time.Duration {
	return time.Duration(c.ExpiresIn) * time.Second
}

// ExpiresAt returns the moment the credential stops being valid. The zero time
// is returned for non-expiring credentials.
func (c Credential) ExpiresAt() time.Time {
	if !c.HasExpiry() {
		return time.Time{}
	}
	return c.CreatedAt.Add(c.Validity())
}

// Remaining returns the lifetime left at now. Negative once expired.
func (c Credential) Remaining(now time.Time) time.Duration {
	if !c.HasExpiry() {
		return 0
	}
	return c.ExpiresAt().Sub(now)
}

// Expired reports whether a finite credential has passed created_at + expires_in.
func (c Credential) Expired(now time.Time) bool {
	return c.HasExpiry() && !now.Before(c.ExpiresAt())
}
