package authkit

import "errors"

var (
	// ErrClientNotReady is returned when an operation is invoked on a Client
	// that was not constructed through [Builder.Build].
	ErrClientNotReady = errors.New("client not ready")
	// ErrInvalidCredentials is returned when the backend rejects the supplied
	// email/password pair, or when a login response carries no usable token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNewDeviceApproval is returned when the backend withholds the session
	// until the sign-in is approved from a previously trusted channel.
	ErrNewDeviceApproval = errors.New("new device approval required")
	// ErrNotAuthenticated is returned by operations that require a stored
	// access token when none is present.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenExpired is returned when the locally decoded access token
	// payload is past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrNetwork is returned when a request failed at the transport level
	// before a backend verdict was reached. It never clears an existing
	// session.
	ErrNetwork = errors.New("network error")
	// ErrConsentRequired is returned by Register when client-side pre-submit
	// validation fails (captcha unsolved or terms not accepted). It never
	// reaches the network.
	ErrConsentRequired = errors.New("captcha or consent required")
	// ErrConfirmationTokenMissing is returned when an inbound confirmation
	// link carries no token. No redemption call is made.
	ErrConfirmationTokenMissing = errors.New("confirmation token missing")
	// ErrConfirmationActionUnknown is returned when an inbound confirmation
	// link carries an action the flow does not define. No redemption call is
	// made.
	ErrConfirmationActionUnknown = errors.New("confirmation action unknown")
	// ErrConfirmationInvalid is returned when the backend rejects an
	// out-of-band token as missing, expired, or already used.
	ErrConfirmationInvalid = errors.New("confirmation token invalid")
	// ErrInvalidEmail is returned by the method resolver when the email text
	// does not parse as an address.
	ErrInvalidEmail = errors.New("invalid email address")
)
