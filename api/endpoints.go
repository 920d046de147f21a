package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/finovia/authkit/device"
)

const (
	pathCSRF               = "/auth/csrf"
	pathLogin              = "/auth/login"
	pathRegister           = "/auth/register"
	pathLogout             = "/auth/logout"
	pathCheck              = "/auth/check"
	pathProfile            = "/account/profile"
	pathMethods            = "/auth/methods"
	pathBiometricChallenge = "/auth/biometric/challenge"
	pathBiometricVerify    = "/auth/biometric/verify"
	pathMessengerToken     = "/auth/messenger/token"
	pathMessengerRedeem    = "/auth/messenger/redeem"
	pathMagicLink          = "/auth/magic-link"
)

// Confirmation endpoint paths, one family per out-of-band flow. All of them
// accept the same {token, action} payload.
const (
	ConfirmNewDevicePath       = "/auth/device/confirm"
	ConfirmBiometricRevokePath = "/auth/biometric/revoke/confirm"
	ConfirmContactRevokePath   = "/auth/contact/revoke/confirm"
	ConfirmMessengerRevokePath = "/auth/messenger/revoke/confirm"
	ConfirmMagicLinkPath       = "/auth/magic-link/confirm"
)

// Login exchanges credentials and a device descriptor for a session.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(ctx, pathLogin, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and, like Login, returns a session.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.post(ctx, pathRegister, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout notifies the backend that the current session is ending.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, pathLogout, struct{}{}, nil)
}

// Check validates the current bearer token and rotates it. A 401 maps to
// ErrUnauthorized; everything else that is not a 2xx leaves the caller's
// session verdict open. Check is bearer-authenticated and deliberately skips
// the CSRF handshake so that a probe costs exactly one round-trip.
func (c *Client) Check(ctx context.Context) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, pathCheck, nil, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile fetches the full account record for the current session.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, pathProfile, nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// MethodAvailability reports which login methods the given email can use and
// which one the account prefers.
func (c *Client) MethodAvailability(ctx context.Context, email string) (*MethodAvailability, error) {
	var resp MethodAvailability
	query := url.Values{"email": {email}}
	if err := c.do(ctx, http.MethodGet, pathMethods, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BiometricChallenge starts a platform-authenticator login for email.
func (c *Client) BiometricChallenge(ctx context.Context, email string) (*BiometricChallenge, error) {
	var resp BiometricChallenge
	req := struct {
		Email string `json:"email"`
	}{Email: email}
	if err := c.post(ctx, pathBiometricChallenge, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BiometricVerify completes a platform-authenticator login.
func (c *Client) BiometricVerify(ctx context.Context, assertion BiometricAssertion, dev *device.Descriptor) (*AuthResponse, error) {
	var resp AuthResponse
	req := struct {
		BiometricAssertion
		Device *device.Descriptor `json:"device,omitempty"`
	}{BiometricAssertion: assertion, Device: dev}
	if err := c.post(ctx, pathBiometricVerify, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestMessengerToken asks the backend to push a single-use login token to
// the account's linked messenger identity.
func (c *Client) RequestMessengerToken(ctx context.Context, email string) error {
	req := struct {
		Email string `json:"email"`
	}{Email: email}
	return c.post(ctx, pathMessengerToken, req, nil)
}

// RedeemMessengerToken exchanges a messenger-delivered token for a session.
func (c *Client) RedeemMessengerToken(ctx context.Context, email, token string, dev *device.Descriptor) (*AuthResponse, error) {
	var resp AuthResponse
	req := struct {
		Email  string             `json:"email"`
		Token  string             `json:"token"`
		Device *device.Descriptor `json:"device,omitempty"`
	}{Email: email, Token: token, Device: dev}
	if err := c.post(ctx, pathMessengerRedeem, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestMagicLink asks the backend to mail a passwordless login link.
func (c *Client) RequestMagicLink(ctx context.Context, email string) error {
	req := struct {
		Email string `json:"email"`
	}{Email: email}
	return c.post(ctx, pathMagicLink, req, nil)
}

// Confirm redeems an out-of-band token with an explicit action against one of
// the Confirm*Path endpoint families. Grant actions return a session in the
// response; block/cancel actions return an empty one.
func (c *Client) Confirm(ctx context.Context, path, token, action string, dev *device.Descriptor) (*AuthResponse, error) {
	var resp AuthResponse
	req := ConfirmRequest{Token: token, Action: action, Device: dev}
	if err := c.post(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
