package authkit

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/finovia/authkit/api"
	"github.com/finovia/authkit/storage"
)

func TestConfirmRedeemMissingTokenNoNetwork(t *testing.T) {
	backend := newStubBackend()
	client := newTestClient(t, backend, nil)

	result := client.NewConfirmation(FlowNewDevice).RedeemValues(context.Background(), "", ActionApprove)
	if result.State != ConfirmationFailed || !errors.Is(result.Err, ErrConfirmationTokenMissing) {
		t.Fatalf("expected missing-token failure, got %+v", result)
	}
	if n := backend.count(api.ConfirmNewDevicePath); n != 0 {
		t.Fatalf("missing token must not reach the network, got %d calls", n)
	}
}

func TestConfirmRedeemUnknownActionNoNetwork(t *testing.T) {
	backend := newStubBackend()
	client := newTestClient(t, backend, nil)

	// "approve" belongs to the new-device flow, not to revokes.
	result := client.NewConfirmation(FlowBiometricRevoke).RedeemValues(context.Background(), "tkt-1", ActionApprove)
	if result.State != ConfirmationFailed || !errors.Is(result.Err, ErrConfirmationActionUnknown) {
		t.Fatalf("expected unknown-action failure, got %+v", result)
	}
	if n := backend.count(api.ConfirmBiometricRevokePath); n != 0 {
		t.Fatalf("unknown action must not reach the network, got %d calls", n)
	}
}

func TestConfirmRedeemIsIdempotent(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle(api.ConfirmNewDevicePath, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		jsonHandler(200, authOKBody(token))(w, r)
	})
	backend.handle("/account/profile", jsonHandler(200, testUserBody))
	client := newTestClient(t, backend, nil)

	cf := client.NewConfirmation(FlowNewDevice)

	// The account area mounts its confirmation screen twice under strict
	// rendering; both mounts redeem concurrently.
	var wg sync.WaitGroup
	results := make([]ConfirmationResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cf.RedeemValues(context.Background(), "tkt-1", ActionApprove)
		}(i)
	}
	wg.Wait()

	if n := backend.count(api.ConfirmNewDevicePath); n != 1 {
		t.Fatalf("single-use token must be redeemed exactly once, got %d calls", n)
	}
	for i, r := range results {
		if r.State != ConfirmationSucceeded {
			t.Fatalf("mount %d: %+v", i, r)
		}
		if r.Redirect != results[0].Redirect {
			t.Fatalf("mount %d observes a different result: %+v vs %+v", i, r, results[0])
		}
	}
}

func TestConfirmApproveNewDeviceEstablishesSession(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle(api.ConfirmNewDevicePath, jsonHandler(200, authOKBody(token)))
	backend.handle("/account/profile", jsonHandler(200, testUserBody))
	client := newTestClient(t, backend, nil)

	result := client.NewConfirmation(FlowNewDevice).
		Redeem(context.Background(), "https://app.example.com/confirm?token=tkt-1&action=approve")
	if result.State != ConfirmationSucceeded {
		t.Fatalf("redeem: %+v", result)
	}
	if !client.IsAuthenticated() {
		t.Fatal("approval must sign the approved device in without another prompt")
	}
	if result.Redirect != RedirectAccount {
		t.Fatalf("redirect = %q, want account", result.Redirect)
	}
}

func TestConfirmBlockNeverEstablishesSession(t *testing.T) {
	// Even a misbehaving backend that returns a token on block must not
	// produce a session.
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle(api.ConfirmNewDevicePath, jsonHandler(200, authOKBody(token)))
	client := newTestClient(t, backend, nil)

	result := client.NewConfirmation(FlowNewDevice).RedeemValues(context.Background(), "tkt-1", ActionBlock)
	if result.State != ConfirmationSucceeded {
		t.Fatalf("block redemption: %+v", result)
	}
	if client.IsAuthenticated() {
		t.Fatal("block must never establish a session")
	}
	if result.Redirect != RedirectLogin {
		t.Fatalf("redirect = %q, want login", result.Redirect)
	}
}

func TestConfirmMagicLinkSignsIn(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle(api.ConfirmMagicLinkPath, jsonHandler(200, authOKBody(token)))
	backend.handle("/account/profile", jsonHandler(200, testUserBody))
	client := newTestClient(t, backend, nil)

	result := client.NewConfirmation(FlowMagicLink).RedeemValues(context.Background(), "tkt-1", ActionConfirm)
	if result.State != ConfirmationSucceeded {
		t.Fatalf("redeem: %+v", result)
	}
	if !client.IsAuthenticated() {
		t.Fatal("magic-link confirm must establish a session")
	}
}

func TestConfirmRevokeCancelDoesNotTouchSession(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	store := storage.NewMemory()
	seedSession(t, store, token)

	backend := newStubBackend()
	backend.handle(api.ConfirmMessengerRevokePath, jsonHandler(200, `{}`))
	client := newTestClient(t, backend, store)

	result := client.NewConfirmation(FlowMessengerRevoke).RedeemValues(context.Background(), "tkt-1", ActionCancel)
	if result.State != ConfirmationSucceeded {
		t.Fatalf("cancel: %+v", result)
	}
	if !client.IsAuthenticated() {
		t.Fatal("cancel must leave the existing session alone")
	}
	if result.Redirect != RedirectAccount {
		t.Fatalf("authenticated user redirects to account, got %q", result.Redirect)
	}
}

func TestConfirmRedirectFollowsSessionNotOutcome(t *testing.T) {
	// A failed redemption while already signed in still redirects to the
	// account area. The redirect reflects where the user can go, not how the
	// confirmation went.
	token := testJWT(t, time.Now().Add(time.Hour))
	store := storage.NewMemory()
	seedSession(t, store, token)

	backend := newStubBackend()
	backend.handle(api.ConfirmContactRevokePath, jsonHandler(410, `{"code":"confirmation_invalid"}`))
	client := newTestClient(t, backend, store)

	result := client.NewConfirmation(FlowContactRevoke).RedeemValues(context.Background(), "tkt-used", ActionConfirm)
	if result.State != ConfirmationFailed || !errors.Is(result.Err, ErrConfirmationInvalid) {
		t.Fatalf("expected invalid-token failure, got %+v", result)
	}
	if result.Redirect != RedirectAccount {
		t.Fatalf("redirect = %q, want account", result.Redirect)
	}
}

func TestConfirmRedeemUnparseableLink(t *testing.T) {
	client := newTestClient(t, newStubBackend(), nil)

	result := client.NewConfirmation(FlowNewDevice).Redeem(context.Background(), "https://app.example.com/confirm")
	if result.State != ConfirmationFailed || !errors.Is(result.Err, ErrConfirmationTokenMissing) {
		t.Fatalf("link without token must fail locally, got %+v", result)
	}
}

func TestConfirmResultPendingBeforeRedeem(t *testing.T) {
	client := newTestClient(t, newStubBackend(), nil)

	cf := client.NewConfirmation(FlowNewDevice)
	if got := cf.Result(); got.State != ConfirmationPending {
		t.Fatalf("expected pending before redeem, got %+v", got)
	}
}
