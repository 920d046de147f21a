package authkit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/finovia/authkit/api"
	"github.com/finovia/authkit/device"
)

// ConfirmationFlow names one out-of-band confirmation family. All five share
// the same shape: a single-use token delivered through a side channel,
// redeemed by a follow-up navigation carrying the token and an explicit
// action.
type ConfirmationFlow string

const (
	// FlowNewDevice approves or blocks a sign-in from an unrecognized device.
	FlowNewDevice ConfirmationFlow = "new-device"
	// FlowBiometricRevoke confirms or cancels revocation of a registered
	// biometric key.
	FlowBiometricRevoke ConfirmationFlow = "biometric-revoke"
	// FlowContactRevoke confirms or cancels removal of a secondary contact.
	FlowContactRevoke ConfirmationFlow = "contact-revoke"
	// FlowMessengerRevoke confirms or cancels unlinking of the messenger
	// identity.
	FlowMessengerRevoke ConfirmationFlow = "messenger-revoke"
	// FlowMagicLink completes a passwordless email login.
	FlowMagicLink ConfirmationFlow = "magic-link"
)

// ConfirmationAction is the explicit verdict carried by the inbound link.
type ConfirmationAction string

const (
	// ActionApprove grants the new-device request.
	ActionApprove ConfirmationAction = "approve"
	// ActionBlock denies the new-device request.
	ActionBlock ConfirmationAction = "block"
	// ActionConfirm completes a revoke or magic-link flow.
	ActionConfirm ConfirmationAction = "confirm"
	// ActionCancel abandons a revoke or magic-link flow.
	ActionCancel ConfirmationAction = "cancel"
)

// ConfirmationState is the terminal state of a redemption.
type ConfirmationState int

const (
	// ConfirmationPending means Redeem has not been called yet.
	ConfirmationPending ConfirmationState = iota
	// ConfirmationSucceeded means the backend accepted the token and action.
	ConfirmationSucceeded
	// ConfirmationFailed means the redemption was rejected locally or by the
	// backend.
	ConfirmationFailed
)

// Redirect is where the account area sends the user after a confirmation
// flow finishes. It is chosen by current session state at redirect time,
// never by the outcome of the confirmation itself.
type Redirect string

const (
	// RedirectAccount is the authenticated landing area.
	RedirectAccount Redirect = "/account"
	// RedirectLogin is the login screen.
	RedirectLogin Redirect = "/login"
)

// ConfirmationResult is the terminal verdict of one redemption.
type ConfirmationResult struct {
	State    ConfirmationState
	Err      error
	Redirect Redirect
}

// Confirmation drives one out-of-band redemption. It enters validation
// exactly once: a duplicate Redeem (the account area double-mounts its
// confirmation screens under strict rendering) waits for and returns the
// first result instead of issuing a second redemption call.
type Confirmation struct {
	client *Client
	flow   ConfirmationFlow

	mu     sync.Mutex
	done   chan struct{}
	result *ConfirmationResult
}

// NewConfirmation prepares a redemption for one flow.
func (c *Client) NewConfirmation(flow ConfirmationFlow) *Confirmation {
	return &Confirmation{client: c, flow: flow}
}

// Redeem parses the inbound link and redeems its token and action. See
// [Confirmation.RedeemValues].
func (cf *Confirmation) Redeem(ctx context.Context, link string) ConfirmationResult {
	parsed, err := url.Parse(link)
	if err != nil {
		return cf.RedeemValues(ctx, "", "")
	}
	query := parsed.Query()
	return cf.RedeemValues(ctx, query.Get("token"), ConfirmationAction(query.Get("action")))
}

// RedeemValues validates the token and action, then performs the flow's
// action against the backend. A missing token or an action the flow does not
// define fails immediately with zero network calls. Grant actions establish
// a session for this device; block and cancel never do.
func (cf *Confirmation) RedeemValues(ctx context.Context, token string, action ConfirmationAction) ConfirmationResult {
	cf.mu.Lock()
	if cf.done != nil {
		done := cf.done
		cf.mu.Unlock()
		<-done
		cf.mu.Lock()
		out := *cf.result
		cf.mu.Unlock()
		return out
	}
	done := make(chan struct{})
	cf.done = done
	cf.mu.Unlock()

	result := cf.redeem(ctx, token, action)
	result.Redirect = cf.redirectTarget()

	if cf.client != nil && cf.client.events != nil {
		event := SessionEvent{
			Kind:    EventConfirmation,
			Flow:    cf.flow,
			Success: result.State == ConfirmationSucceeded,
		}
		if result.Err != nil {
			event.Error = result.Err.Error()
		}
		cf.client.events.emit(event)
	}

	cf.mu.Lock()
	cf.result = &result
	cf.mu.Unlock()
	close(done)
	return result
}

// Result returns the terminal result, or a pending one while no redemption
// has completed.
func (cf *Confirmation) Result() ConfirmationResult {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	if cf.result == nil {
		return ConfirmationResult{State: ConfirmationPending}
	}
	return *cf.result
}

func (cf *Confirmation) redeem(ctx context.Context, token string, action ConfirmationAction) ConfirmationResult {
	if cf.client == nil || cf.client.api == nil {
		return ConfirmationResult{State: ConfirmationFailed, Err: ErrClientNotReady}
	}
	if token == "" {
		return ConfirmationResult{State: ConfirmationFailed, Err: ErrConfirmationTokenMissing}
	}
	if !cf.flow.allows(action) {
		return ConfirmationResult{
			State: ConfirmationFailed,
			Err:   fmt.Errorf("%w: %q", ErrConfirmationActionUnknown, string(action)),
		}
	}

	var desc *device.Descriptor
	if cf.flow.grants(action) {
		// Security grants bind the approved device: the descriptor is built
		// through the same path as every login entry point.
		built, err := cf.client.BuildDescriptor(ctx)
		if err != nil {
			return ConfirmationResult{State: ConfirmationFailed, Err: err}
		}
		desc = &built
	}

	resp, err := cf.client.api.Confirm(ctx, cf.flow.path(), token, string(action), desc)
	if err != nil {
		return ConfirmationResult{State: ConfirmationFailed, Err: cf.client.mapAPIError(err)}
	}

	if cf.flow.grants(action) && resp.SessionToken() != "" {
		if err := cf.client.establishSession(ctx, resp); err != nil {
			return ConfirmationResult{State: ConfirmationFailed, Err: err}
		}
	}
	return ConfirmationResult{State: ConfirmationSucceeded}
}

func (cf *Confirmation) redirectTarget() Redirect {
	if cf.client.IsAuthenticated() {
		return RedirectAccount
	}
	return RedirectLogin
}

// allows reports whether the action belongs to this flow's vocabulary.
func (f ConfirmationFlow) allows(action ConfirmationAction) bool {
	switch f {
	case FlowNewDevice:
		return action == ActionApprove || action == ActionBlock
	case FlowBiometricRevoke, FlowContactRevoke, FlowMessengerRevoke, FlowMagicLink:
		return action == ActionConfirm || action == ActionCancel
	default:
		return false
	}
}

// grants reports whether the action is a security grant that logs the
// approved device in without a second form.
func (f ConfirmationFlow) grants(action ConfirmationAction) bool {
	switch {
	case f == FlowNewDevice && action == ActionApprove:
		return true
	case f == FlowMagicLink && action == ActionConfirm:
		return true
	default:
		return false
	}
}

func (f ConfirmationFlow) path() string {
	switch f {
	case FlowNewDevice:
		return api.ConfirmNewDevicePath
	case FlowBiometricRevoke:
		return api.ConfirmBiometricRevokePath
	case FlowContactRevoke:
		return api.ConfirmContactRevokePath
	case FlowMessengerRevoke:
		return api.ConfirmMessengerRevokePath
	case FlowMagicLink:
		return api.ConfirmMagicLinkPath
	default:
		return ""
	}
}
