// Package storage is the persisted key/value state the SDK keeps between
// runs: session tokens, the auth snapshot, and the fingerprint consent map.
// The session orchestrator and the consent store are the only writers; the
// backends here do not interpret the values they hold.
package storage

import (
	"context"
	"errors"
)

// Keys of the persisted client state. The layout mirrors what the account
// area keeps in browser storage so server-side tooling can reason about both.
const (
	KeyAccessToken        = "accessToken"
	KeyRefreshToken       = "refreshToken"
	KeyAuthState          = "auth-store"
	KeyFingerprintConsent = "fingerprint-permissions"
)

// ErrNotFound is returned by Get when the key has never been written or has
// been deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is a small namespaced key/value store. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
