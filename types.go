package authkit

import (
	"context"

	"github.com/finovia/authkit/api"
)

// AuthMethod identifies one login affordance the account area can render.
type AuthMethod string

const (
	// MethodPassword is the email/password form. Always available.
	MethodPassword AuthMethod = "password"
	// MethodMagicLink is the passwordless email-link login. Available for any
	// syntactically valid email.
	MethodMagicLink AuthMethod = "magic-link"
	// MethodBiometric is the platform-authenticator login. Offered only when
	// a local authenticator exists and the account has registered keys.
	MethodBiometric AuthMethod = "biometric"
	// MethodMessenger is the messaging-token login. Offered only when the
	// account has a linked messenger identity.
	MethodMessenger AuthMethod = "messenger"
)

// UserRecord is the account profile held by the session. It mirrors the
// backend profile payload, not the storage snapshot.
type UserRecord struct {
	ID                 string `json:"id"`
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	Email              string `json:"email"`
	AvatarURL          string `json:"avatarUrl"`
	Role               string `json:"role"`
	Status             string `json:"status"`
	FingerprintConsent bool   `json:"fingerprintConsent"`
}

// UserPatch carries a partial profile update for [Client.UpdateUser]. Nil
// fields are left untouched.
type UserPatch struct {
	FirstName          *string
	LastName           *string
	AvatarURL          *string
	FingerprintConsent *bool
}

// RegistrationInput is the payload for [Client.Register]. CaptchaPassed and
// TermsAccepted are validated client-side before any request is made.
type RegistrationInput struct {
	Email         string
	Password      string
	FirstName     string
	LastName      string
	ReferralCode  string
	CaptchaPassed bool
	TermsAccepted bool
}

// Availability describes which login methods are usable for one email, after
// combining the backend account state with the local authenticator check.
type Availability struct {
	// Biometric is true only when a local platform authenticator exists AND
	// the account has registered keys. Either signal alone is insufficient.
	Biometric bool
	// Messenger is true when the account has a linked messenger identity.
	Messenger bool
	// Preferred is the backend-declared default method, empty when the
	// account has not declared one.
	Preferred AuthMethod
}

// AuthenticatorDetector reports whether the current device has a platform
// authenticator usable for biometric login. Implementations must be cheap;
// the resolver calls it on every availability check.
type AuthenticatorDetector interface {
	PlatformAuthenticatorAvailable(ctx context.Context) bool
}

// AvailabilityChecker is the backend query the method resolver depends on.
// *api.Client satisfies it.
type AvailabilityChecker interface {
	MethodAvailability(ctx context.Context, email string) (*api.MethodAvailability, error)
}

func userFromAPI(u *api.User) *UserRecord {
	if u == nil {
		return nil
	}
	return &UserRecord{
		ID:                 u.ID,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Email:              u.Email,
		AvatarURL:          u.AvatarURL,
		Role:               u.Role,
		Status:             u.Status,
		FingerprintConsent: u.FingerprintConsent,
	}
}
