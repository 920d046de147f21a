package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is returned when a request failed at the transport level
	// before any backend verdict was reached.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrUnauthorized is returned for a backend 401 outside the special-cased
	// codes below.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when the backend rejects the supplied
	// credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDeviceApproval is returned when the backend withholds the session
	// until the new device is approved out of band.
	ErrDeviceApproval = errors.New("device approval required")
	// ErrConfirmationInvalid is returned when an out-of-band token is
	// rejected as missing, expired, or already used.
	ErrConfirmationInvalid = errors.New("confirmation token rejected")
)

// Stable machine-readable error codes agreed with the backend. The device
// approval code replaces the older convention of a 500 whose free-text
// message mentioned the new device; the substring match below is kept only as
// a fallback for backends that predate the code contract.
const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeDeviceApproval      = "device_approval_required"
	CodeConfirmationInvalid = "confirmation_invalid"
)

const legacyDeviceApprovalMarker = "new device"

// Error carries an unmapped backend verdict: the HTTP status plus the code
// and message from the response body, when present.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("backend error %d", e.Status)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// mapError is the single mapping point from backend verdicts to the typed
// taxonomy. The device-approval code is matched before any generic status
// mapping because some backend revisions report it with a non-401 status.
func mapError(status int, body []byte) error {
	var eb errorBody
	if len(body) > 0 {
		_ = json.Unmarshal(body, &eb)
	}

	switch eb.Code {
	case CodeDeviceApproval:
		return ErrDeviceApproval
	case CodeInvalidCredentials:
		return ErrInvalidCredentials
	case CodeConfirmationInvalid:
		return ErrConfirmationInvalid
	}

	if status >= 500 && strings.Contains(strings.ToLower(eb.Message), legacyDeviceApprovalMarker) {
		return ErrDeviceApproval
	}

	if status == 401 {
		return ErrUnauthorized
	}

	return &Error{Status: status, Code: eb.Code, Message: eb.Message}
}
