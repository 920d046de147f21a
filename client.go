package authkit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/finovia/authkit/api"
	"github.com/finovia/authkit/device"
	"github.com/finovia/authkit/storage"
)

// Client is the owned session state container. It is the only writer of the
// persisted auth state and of the shared API client's bearer header; all
// mutation goes through the enumerated operations below.
//
// Login, Register, and Logout carry no single-flight guarantee; callers are
// expected to serialize them (in practice the UI disables the triggering
// control while one is in flight). CheckAuth is the exception and may be
// probed from anywhere.
type Client struct {
	config   Config
	api      *api.Client
	store    storage.Store
	devices  *device.Builder
	consent  *device.ConsentStore
	detector AuthenticatorDetector
	events   *eventDispatcher

	mu    sync.Mutex
	state sessionState

	checkGroup singleflight.Group
}

// sessionState is the transient in-memory session. Only the fields mirrored
// by authSnapshot survive a restart.
type sessionState struct {
	authenticated bool
	user          *UserRecord
	accessToken   string
	refreshToken  string
	hydrated      bool
}

// IsAuthenticated reports whether a session is currently established.
func (c *Client) IsAuthenticated() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.authenticated
}

// CurrentUser returns a copy of the session's user record, nil when
// anonymous.
func (c *Client) CurrentUser() *UserRecord {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.user == nil {
		return nil
	}
	u := *c.state.user
	return &u
}

// Hydrated reports whether persisted state has been restored. It is true for
// every Client built through [Builder.Build].
func (c *Client) Hydrated() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.hydrated
}

// Close stops the event dispatcher after draining accepted events. A Client
// without a sink needs no Close.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.events.close()
}

// emitAuthEvent publishes the outcome of an authentication attempt. Delivery
// is asynchronous and lossy under pressure; it never blocks the flow.
func (c *Client) emitAuthEvent(kind SessionEventKind, method AuthMethod, err error) {
	if c == nil || c.events == nil {
		return
	}
	event := SessionEvent{Kind: kind, Method: method, Success: err == nil}
	if err != nil {
		event.Error = err.Error()
	} else if u := c.CurrentUser(); u != nil {
		event.UserID = u.ID
	}
	c.events.emit(event)
}

func (c *Client) accessTokenSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.accessToken
}

// Login performs a password login. On success the tokens and user are
// stored, the bearer header is applied atomically with the state mutation,
// and the full profile is fetched. The returned error is one of
// [ErrInvalidCredentials], [ErrNewDeviceApproval], or a wrapped [ErrNetwork].
func (c *Client) Login(ctx context.Context, email, password string, desc device.Descriptor) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}

	resp, err := c.api.Login(ctx, api.LoginRequest{
		Email:    email,
		Password: password,
		Device:   &desc,
	})
	if err != nil {
		err = c.mapAPIError(err)
		c.emitAuthEvent(EventLogin, MethodPassword, err)
		return err
	}

	err = c.establishSession(ctx, resp)
	c.emitAuthEvent(EventLogin, MethodPassword, err)
	return err
}

// Register creates an account. Captcha and terms consent are validated
// before any request is made; post-conditions match [Client.Login].
func (c *Client) Register(ctx context.Context, input RegistrationInput) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	if !input.CaptchaPassed || !input.TermsAccepted {
		return ErrConsentRequired
	}
	if input.Email == "" || input.Password == "" {
		return ErrInvalidCredentials
	}

	desc, err := c.BuildDescriptor(ctx)
	if err != nil {
		return err
	}
	resp, err := c.api.Register(ctx, api.RegisterRequest{
		Email:        input.Email,
		Password:     input.Password,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		ReferralCode: input.ReferralCode,
		Device:       &desc,
	})
	if err != nil {
		err = c.mapAPIError(err)
		c.emitAuthEvent(EventRegister, MethodPassword, err)
		return err
	}

	err = c.establishSession(ctx, resp)
	c.emitAuthEvent(EventRegister, MethodPassword, err)
	return err
}

// BeginBiometricLogin requests a platform-authenticator challenge for email.
func (c *Client) BeginBiometricLogin(ctx context.Context, email string) (*api.BiometricChallenge, error) {
	if c == nil || c.api == nil {
		return nil, ErrClientNotReady
	}
	ch, err := c.api.BiometricChallenge(ctx, email)
	if err != nil {
		return nil, c.mapAPIError(err)
	}
	return ch, nil
}

// CompleteBiometricLogin submits the authenticator's assertion and, on
// success, establishes the session with the same descriptor build every
// other entry point uses.
func (c *Client) CompleteBiometricLogin(ctx context.Context, assertion api.BiometricAssertion) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	desc, err := c.BuildDescriptor(ctx)
	if err != nil {
		return err
	}
	resp, err := c.api.BiometricVerify(ctx, assertion, &desc)
	if err != nil {
		err = c.mapAPIError(err)
		c.emitAuthEvent(EventLogin, MethodBiometric, err)
		return err
	}
	err = c.establishSession(ctx, resp)
	c.emitAuthEvent(EventLogin, MethodBiometric, err)
	return err
}

// RequestMessengerToken asks the backend to push a single-use login token to
// the account's linked messenger identity.
func (c *Client) RequestMessengerToken(ctx context.Context, email string) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	if err := c.api.RequestMessengerToken(ctx, email); err != nil {
		return c.mapAPIError(err)
	}
	return nil
}

// LoginWithMessengerToken redeems a messenger-delivered token for a session.
func (c *Client) LoginWithMessengerToken(ctx context.Context, email, token string) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	if token == "" {
		return ErrInvalidCredentials
	}
	desc, err := c.BuildDescriptor(ctx)
	if err != nil {
		return err
	}
	resp, err := c.api.RedeemMessengerToken(ctx, email, token, &desc)
	if err != nil {
		err = c.mapAPIError(err)
		c.emitAuthEvent(EventLogin, MethodMessenger, err)
		return err
	}
	err = c.establishSession(ctx, resp)
	c.emitAuthEvent(EventLogin, MethodMessenger, err)
	return err
}

// RequestMagicLink asks the backend to mail a passwordless login link. The
// link is redeemed later through the magic-link confirmation flow.
func (c *Client) RequestMagicLink(ctx context.Context, email string) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	if err := c.api.RequestMagicLink(ctx, email); err != nil {
		return c.mapAPIError(err)
	}
	return nil
}

// Logout notifies the backend best-effort, then unconditionally clears local
// session state, the bearer header, and the persisted keys.
func (c *Client) Logout(ctx context.Context) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	if err := c.api.Logout(ctx); err != nil {
		log.Print("authkit: logout notification failed")
	}
	c.clearSession(ctx)
	c.emitAuthEvent(EventLogout, "", nil)
	return nil
}

// FetchProfile replaces the session user with the full backend record. It
// requires a stored access token; a token already past its decoded expiry is
// cleared without a round-trip and reported as [ErrTokenExpired].
func (c *Client) FetchProfile(ctx context.Context) error {
	if c == nil || c.api == nil {
		return ErrClientNotReady
	}
	token := c.accessTokenSnapshot()
	if token == "" {
		return ErrNotAuthenticated
	}
	if tokenExpiredLocally(token, c.config.Session.ExpiryLeeway, time.Now()) {
		c.clearSession(ctx)
		return ErrTokenExpired
	}

	profile, err := c.api.Profile(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return ErrNotAuthenticated
		}
		return c.mapAPIError(err)
	}

	c.mu.Lock()
	c.state.user = userFromAPI(profile)
	c.persistLocked(ctx)
	c.mu.Unlock()
	return nil
}

// UpdateUser merges a partial update into the session user.
func (c *Client) UpdateUser(ctx context.Context, patch UserPatch) error {
	if c == nil {
		return ErrClientNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.user == nil {
		return ErrNotAuthenticated
	}
	if patch.FirstName != nil {
		c.state.user.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		c.state.user.LastName = *patch.LastName
	}
	if patch.AvatarURL != nil {
		c.state.user.AvatarURL = *patch.AvatarURL
	}
	if patch.FingerprintConsent != nil {
		c.state.user.FingerprintConsent = *patch.FingerprintConsent
	}
	c.persistLocked(ctx)
	return nil
}

// BuildDescriptor builds the device descriptor under the persisted consent
// decision. Every entry point that sends a descriptor goes through this one
// method so the derived device ID never diverges between flows.
func (c *Client) BuildDescriptor(ctx context.Context) (device.Descriptor, error) {
	if c == nil || c.devices == nil {
		return device.Descriptor{}, ErrClientNotReady
	}
	consent, _, err := c.consent.Load(ctx)
	if err != nil {
		log.Print("authkit: consent load failed, building descriptor without optional signals")
		consent = device.Consent{}
	}
	return c.devices.Build(consent), nil
}

// ConsentStore exposes the fingerprint consent decision store.
func (c *Client) ConsentStore() *device.ConsentStore {
	if c == nil {
		return nil
	}
	return c.consent
}

// NewMethodResolver returns a resolver bound to this client's availability
// checker and authenticator detector.
func (c *Client) NewMethodResolver() *MethodResolver {
	return &MethodResolver{
		checker:  c.api,
		detector: c.detector,
	}
}

// establishSession applies a session-bearing response: reject responses with
// no usable token, then store tokens and user, apply the bearer header, and
// persist, all in one critical section. The follow-up profile fetch is
// best-effort; the response user already covers the session.
func (c *Client) establishSession(ctx context.Context, resp *api.AuthResponse) error {
	token := resp.SessionToken()
	if token == "" {
		return ErrInvalidCredentials
	}

	c.mu.Lock()
	c.state.authenticated = true
	c.state.accessToken = token
	c.state.refreshToken = resp.RefreshToken
	if resp.User != nil {
		c.state.user = userFromAPI(resp.User)
	}
	c.api.SetBearer(token)
	c.persistLocked(ctx)
	c.mu.Unlock()

	if err := c.FetchProfile(ctx); err != nil {
		log.Print("authkit: profile fetch after session establish failed")
	}
	return nil
}

// clearSession resets the container to anonymous and removes every persisted
// key, keeping the bearer header in step within the same critical section.
func (c *Client) clearSession(ctx context.Context) {
	c.mu.Lock()
	c.state.authenticated = false
	c.state.user = nil
	c.state.accessToken = ""
	c.state.refreshToken = ""
	c.api.ClearBearer()
	if c.store != nil {
		for _, key := range []string{storage.KeyAuthState, storage.KeyAccessToken, storage.KeyRefreshToken} {
			if err := c.store.Delete(ctx, key); err != nil {
				log.Print("authkit: persisted state delete failed")
			}
		}
	}
	c.mu.Unlock()
}

// persistLocked writes the restricted snapshot and the token keys. Callers
// hold c.mu. Persistence failures are logged and do not fail the operation;
// the in-memory session stays authoritative.
func (c *Client) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}

	snapshot, err := encodeSnapshot(authSnapshot{
		IsAuthenticated: c.state.authenticated,
		Token:           c.state.accessToken,
		RefreshToken:    c.state.refreshToken,
		User:            c.state.user,
	})
	if err != nil {
		log.Print("authkit: auth snapshot encode failed")
		return
	}
	if err := c.store.Set(ctx, storage.KeyAuthState, snapshot); err != nil {
		log.Print("authkit: auth snapshot persist failed")
	}
	for key, value := range map[string]string{
		storage.KeyAccessToken:  c.state.accessToken,
		storage.KeyRefreshToken: c.state.refreshToken,
	} {
		encoded, err := jsonString(value)
		if err != nil {
			continue
		}
		if err := c.store.Set(ctx, key, encoded); err != nil {
			log.Print("authkit: token persist failed")
		}
	}
}

// hydrate restores the persisted subset and re-applies the bearer header
// before the Client handles its first request. Missing or unusable state
// yields an anonymous, hydrated session.
func (c *Client) hydrate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.state.hydrated = true }()

	if c.store == nil {
		return
	}

	raw, err := c.store.Get(ctx, storage.KeyAuthState)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Print("authkit: auth snapshot read failed")
		}
		return
	}
	snapshot, err := decodeSnapshot(raw)
	if err != nil {
		log.Print("authkit: auth snapshot discarded")
		return
	}

	// v1 snapshots kept tokens only under the dedicated keys.
	if snapshot.Token == "" {
		if raw, err := c.store.Get(ctx, storage.KeyAccessToken); err == nil {
			snapshot.Token = parseJSONString(raw)
		}
	}
	if snapshot.RefreshToken == "" {
		if raw, err := c.store.Get(ctx, storage.KeyRefreshToken); err == nil {
			snapshot.RefreshToken = parseJSONString(raw)
		}
	}

	// An authenticated snapshot without a token violates the session
	// invariant; treat it as anonymous.
	if snapshot.IsAuthenticated && snapshot.Token == "" {
		return
	}

	c.state.authenticated = snapshot.IsAuthenticated
	c.state.user = snapshot.User
	c.state.accessToken = snapshot.Token
	c.state.refreshToken = snapshot.RefreshToken
	if snapshot.Token != "" {
		c.api.SetBearer(snapshot.Token)
	}
}

// mapAPIError translates boundary verdicts into the package taxonomy.
func (c *Client) mapAPIError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, api.ErrDeviceApproval):
		return ErrNewDeviceApproval
	case errors.Is(err, api.ErrInvalidCredentials), errors.Is(err, api.ErrUnauthorized):
		return ErrInvalidCredentials
	case errors.Is(err, api.ErrConfirmationInvalid):
		return ErrConfirmationInvalid
	case errors.Is(err, api.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	default:
		return err
	}
}
