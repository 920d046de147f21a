// Package api is the wire client for the Finovia account backend. It owns
// the HTTP round-trip, the CSRF handshake, and the single error-mapping
// function that turns backend verdicts into typed errors at the network
// boundary, so that callers match on variants and never on status codes or
// message strings.
//
// The bearer token header is the one piece of shared mutable state here. It
// is guarded by a mutex and written through [Client.SetBearer] /
// [Client.ClearBearer] only, so the session orchestrator can update it in the
// same critical section as its own state.
package api
