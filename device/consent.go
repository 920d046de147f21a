package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finovia/authkit/storage"
)

// Consent records which optional signal categories the user has allowed the
// descriptor builder to collect. The zero value means every optional probe is
// skipped.
type Consent struct {
	Canvas   bool `json:"canvas"`
	Graphics bool `json:"graphics"`
	Audio    bool `json:"audio"`
	Fonts    bool `json:"fonts"`
	Plugins  bool `json:"plugins"`
	Hardware bool `json:"hardware"`
}

// ConsentStore persists the consent decision. An absent record means the user
// was never asked; an explicit all-false record means they were asked and
// declined. The distinction controls whether the consent prompt is shown
// again, so Save always writes the record even when nothing is allowed.
type ConsentStore struct {
	store storage.Store
}

// NewConsentStore wraps a storage backend.
func NewConsentStore(store storage.Store) *ConsentStore {
	return &ConsentStore{store: store}
}

// Load returns the persisted decision. decided is false when the user was
// never asked.
func (s *ConsentStore) Load(ctx context.Context) (consent Consent, decided bool, err error) {
	if s == nil || s.store == nil {
		return Consent{}, false, errors.New("device: consent store not configured")
	}

	raw, err := s.store.Get(ctx, storage.KeyFingerprintConsent)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Consent{}, false, nil
		}
		return Consent{}, false, err
	}
	if err := json.Unmarshal(raw, &consent); err != nil {
		return Consent{}, false, fmt.Errorf("device: corrupt consent record: %w", err)
	}
	return consent, true, nil
}

// Save persists the decision, including an all-false one.
func (s *ConsentStore) Save(ctx context.Context, consent Consent) error {
	if s == nil || s.store == nil {
		return errors.New("device: consent store not configured")
	}

	raw, err := json.Marshal(consent)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, storage.KeyFingerprintConsent, raw)
}
