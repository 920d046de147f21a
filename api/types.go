package api

import "github.com/finovia/authkit/device"

// User is the backend profile payload.
type User struct {
	ID                 string `json:"id"`
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	Email              string `json:"email"`
	AvatarURL          string `json:"avatarUrl"`
	Role               string `json:"role"`
	Status             string `json:"status"`
	FingerprintConsent bool   `json:"fingerprintConsent"`
}

// AuthResponse is returned by every endpoint that can establish or rotate a
// session. Older backend revisions populate Token instead of AccessToken;
// callers must accept either.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// SessionToken returns the access token of the response regardless of which
// wire field the backend used, or "" when the response carries none.
func (r *AuthResponse) SessionToken() string {
	if r == nil {
		return ""
	}
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// LoginRequest is the password-login payload.
type LoginRequest struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Device   *device.Descriptor `json:"device,omitempty"`
}

// RegisterRequest is the account-creation payload.
type RegisterRequest struct {
	Email        string             `json:"email"`
	Password     string             `json:"password"`
	FirstName    string             `json:"firstName,omitempty"`
	LastName     string             `json:"lastName,omitempty"`
	ReferralCode string             `json:"referralCode,omitempty"`
	Device       *device.Descriptor `json:"device,omitempty"`
}

// MethodAvailability is the backend's answer to the per-email
// method-availability query. Password login is always usable and therefore
// not reported.
type MethodAvailability struct {
	BiometricKeys   int    `json:"biometricKeys"`
	MessengerLinked bool   `json:"messengerLinked"`
	Preferred       string `json:"preferred"`
}

// BiometricChallenge is issued before a platform-authenticator login.
type BiometricChallenge struct {
	ID        string `json:"id"`
	Challenge []byte `json:"challenge"`
}

// BiometricAssertion is the authenticator's answer to a challenge. The SDK
// never inspects it.
type BiometricAssertion struct {
	ChallengeID string `json:"challengeId"`
	Signature   []byte `json:"signature"`
	KeyID       string `json:"keyId"`
}

// ConfirmRequest redeems an out-of-band token with an explicit action. The
// token is opaque to the client.
type ConfirmRequest struct {
	Token  string             `json:"token"`
	Action string             `json:"action"`
	Device *device.Descriptor `json:"device,omitempty"`
}
