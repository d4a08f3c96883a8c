// Package credentials talks to the external access-control system that
// issues time-bounded door codes.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"prayerroom/pkg/config"
	"time"
)

var ErrUnmappedResource = errors.New("resource has no lock mapping")

// Credential is what the access-control system returned for a grant.
type Credential struct {
	ID         string
	AccessCode string
}

type Gateway interface {
	CreateCredential(ctx context.Context, resourceID string, start, end time.Time, holderName, holderEmail string) (*Credential, error)
	// RevokeCredential treats an unknown or already revoked credential as success.
	RevokeCredential(ctx context.Context, credentialID string) error
	UpdateCredential(ctx context.Context, credentialID string, start, end time.Time) error
}

// UpstreamError is any failed call: a non-2xx answer, a transport failure or
// a timeout. Status is 0 when no response was received.
type UpstreamError struct {
	Operation string
	Status    int
	Message   string
	Err       error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("access control %s failed: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("access control %s failed with status %d: %s", e.Operation, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL string
	APIKey  string
	// LockMap maps an internal resource id to the upstream lock id.
	LockMap map[string]string
	Timeout time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BaseURL: cfg.AccessAPIBaseURL,
		APIKey:  cfg.AccessAPIKey,
		LockMap: cfg.AccessLockMap,
		Timeout: cfg.GatewayTimeout,
	}
}

func (c Config) LockID(resourceID string) (string, error) {
	lockID, ok := c.LockMap[resourceID]
	if !ok || lockID == "" {
		return "", fmt.Errorf("%w: %s", ErrUnmappedResource, resourceID)
	}
	return lockID, nil
}
