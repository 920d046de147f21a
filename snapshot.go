package authkit

import (
	"encoding/json"
	"fmt"
)

// snapshotVersion is the current auth-store snapshot layout. Version 1
// predates the explicit version field and stored the user inline with no
// refresh token; decodeSnapshot migrates it forward.
const snapshotVersion = 2

// authSnapshot is the restricted subset of session state that survives
// reloads. Everything not listed here is transient by contract.
type authSnapshot struct {
	Version         int         `json:"version"`
	IsAuthenticated bool        `json:"isAuthenticated"`
	Token           string      `json:"token"`
	RefreshToken    string      `json:"refreshToken,omitempty"`
	User            *UserRecord `json:"user,omitempty"`
}

// jsonString encodes a bare string value for the token keys, matching the
// JSON-per-key layout of the persisted store.
func jsonString(v string) ([]byte, error) {
	return json.Marshal(v)
}

func parseJSONString(raw []byte) string {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

func encodeSnapshot(s authSnapshot) ([]byte, error) {
	s.Version = snapshotVersion
	return json.Marshal(s)
}

func decodeSnapshot(raw []byte) (authSnapshot, error) {
	var s authSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return authSnapshot{}, fmt.Errorf("authkit: corrupt auth snapshot: %w", err)
	}

	switch s.Version {
	case 0, 1:
		// v1 had no version field and no refresh token. The fields it did
		// carry are a strict subset of v2, so migration is a relabel.
		s.Version = snapshotVersion
		return s, nil
	case snapshotVersion:
		return s, nil
	default:
		// A snapshot from a newer build. Treat as unusable rather than
		// guessing at its layout.
		return authSnapshot{}, fmt.Errorf("authkit: auth snapshot version %d not supported", s.Version)
	}
}
