// Package authkit is the client-side authentication and session orchestration
// SDK for the Finovia account API. It maintains the authenticated session and
// its tokens, resolves which login method a given account should use, derives
// a stable per-device descriptor, and drives the family of out-of-band
// confirmation flows (new-device approval, biometric-key revocation,
// secondary-contact revocation, messenger linking, passwordless email login).
//
// The package is designed for concurrent callers: Client methods are safe to
// call from multiple goroutines after initialization through [Builder.Build].
// CheckAuth is additionally single-flighted so that simultaneous probes
// coalesce into at most one network round-trip.
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Client], [Builder], [Config],
// [MethodResolver], [Confirmation], and value types (UserRecord,
// Availability, ConfirmationResult). Backend wire types and error mapping
// live in the api sub-package; persisted key/value state in storage; device
// signal collection in device. None of the sub-packages import authkit.
//
// # What this package must NOT do
//
//   - Interpret out-of-band confirmation tokens. They are opaque and are only
//     forwarded to the backend together with the chosen action.
//   - Write persisted storage from anywhere but the Client and the consent
//     store. UI layers read session state through accessors only.
//   - Send any request with a stale bearer token. The shared API client's
//     bearer header is written in the same critical section as the session
//     mutation it reflects.
//
// # Session contract
//
// An authenticated session always carries a non-empty access token. Only the
// tokens, the authenticated flag, and the user record survive restarts; every
// other field resets to its zero value when the snapshot is rehydrated.
// CheckAuth never returns an error: transport failures leave an existing
// session untouched, and only a local expiry decode or a backend 401 clears
// it.
package authkit
