package authkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/finovia/authkit/device"
	"github.com/finovia/authkit/storage"
)

// stubBackend is a scriptable account backend. Unscripted paths 404; the
// CSRF endpoint is always available so mutating calls can pass the
// handshake.
type stubBackend struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]http.HandlerFunc
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		calls:    map[string]int{},
		handlers: map[string]http.HandlerFunc{},
	}
}

func (b *stubBackend) handle(path string, fn http.HandlerFunc) {
	b.mu.Lock()
	b.handlers[path] = fn
	b.mu.Unlock()
}

func (b *stubBackend) count(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *stubBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	fn := b.handlers[r.URL.Path]
	b.mu.Unlock()

	if fn != nil {
		fn(w, r)
		return
	}
	if r.URL.Path == "/auth/csrf" {
		fmt.Fprint(w, `{"token":"csrf-test"}`)
		return
	}
	http.NotFound(w, r)
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

const testUserBody = `{"id":"u1","firstName":"Ada","lastName":"Byron","email":"ada@example.com","role":"investor","status":"active"}`

func authOKBody(token string) string {
	return fmt.Sprintf(`{"accessToken":%q,"refreshToken":"refresh-1","user":%s}`, token, testUserBody)
}

// stubEnv is a deterministic device environment for tests.
type stubEnv struct{}

func (stubEnv) UserAgent() string                  { return "authkit/test (linux; amd64)" }
func (stubEnv) ScreenResolution() string           { return "1920x1080" }
func (stubEnv) Timezone() string                   { return "UTC" }
func (stubEnv) Language() string                   { return "en" }
func (stubEnv) Platform() string                   { return "linux" }
func (stubEnv) CanvasHash() (string, error)        { return "canvas-hash", nil }
func (stubEnv) Graphics() (device.GraphicsInfo, error) {
	return device.GraphicsInfo{Vendor: "stub", Renderer: "stub-gl", Hash: "gl-hash"}, nil
}
func (stubEnv) AudioHash() (string, error)         { return "audio-hash", nil }
func (stubEnv) Fonts() ([]string, error)           { return []string{"Inter"}, nil }
func (stubEnv) Plugins() ([]string, error)         { return []string{"pdf"}, nil }
func (stubEnv) HardwareConcurrency() (int, error)  { return 8, nil }
func (stubEnv) DeviceMemoryGB() (float64, error)   { return 16, nil }

type stubDetector struct{ available bool }

func (d stubDetector) PlatformAuthenticatorAvailable(context.Context) bool { return d.available }

func newTestClient(t *testing.T, backend *stubBackend, store storage.Store) *Client {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	if store == nil {
		store = storage.NewMemory()
	}
	client, err := New().
		WithBaseURL(srv.URL).
		WithStorage(store).
		WithEnvironment(stubEnv{}).
		WithAuthenticatorDetector(stubDetector{available: true}).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return client
}

func testJWT(t *testing.T, exp time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return signed
}

func seedSession(t *testing.T, store storage.Store, token string) {
	t.Helper()

	snapshot, err := encodeSnapshot(authSnapshot{
		IsAuthenticated: true,
		Token:           token,
		RefreshToken:    "refresh-1",
		User:            &UserRecord{ID: "u1", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("encode snapshot: %v", err)
	}
	if err := store.Set(context.Background(), storage.KeyAuthState, snapshot); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func TestLoginEstablishesSession(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(200, authOKBody(token)))
	backend.handle("/account/profile", jsonHandler(200, testUserBody))

	store := storage.NewMemory()
	client := newTestClient(t, backend, store)

	desc, err := client.BuildDescriptor(context.Background())
	if err != nil {
		t.Fatalf("build descriptor: %v", err)
	}
	if err := client.Login(context.Background(), "ada@example.com", "secret", desc); err != nil {
		t.Fatalf("login: %v", err)
	}

	if !client.IsAuthenticated() {
		t.Fatal("expected authenticated session")
	}
	user := client.CurrentUser()
	if user == nil || user.FirstName != "Ada" {
		t.Fatalf("expected profile-backed user, got %+v", user)
	}
	if got := client.api.Bearer(); got != token {
		t.Fatalf("bearer not applied: %q", got)
	}
	if _, err := store.Get(context.Background(), storage.KeyAuthState); err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}
	if backend.count("/account/profile") != 1 {
		t.Fatalf("expected one profile fetch, got %d", backend.count("/account/profile"))
	}
}

func TestLoginResponseWithoutTokenFailsClean(t *testing.T) {
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(200, `{"user":`+testUserBody+`}`))

	store := storage.NewMemory()
	client := newTestClient(t, backend, store)

	err := client.Login(context.Background(), "ada@example.com", "secret", device.Descriptor{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if client.IsAuthenticated() {
		t.Fatal("session must stay anonymous")
	}
	if _, err := store.Get(context.Background(), storage.KeyAuthState); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("no snapshot should be written, got %v", err)
	}
}

func TestLoginSurfacesDeviceApproval(t *testing.T) {
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(403, `{"code":"device_approval_required"}`))

	client := newTestClient(t, backend, nil)
	err := client.Login(context.Background(), "ada@example.com", "secret", device.Descriptor{})
	if !errors.Is(err, ErrNewDeviceApproval) {
		t.Fatalf("expected ErrNewDeviceApproval, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(401, `{"code":"invalid_credentials"}`))

	client := newTestClient(t, backend, nil)
	err := client.Login(context.Background(), "ada@example.com", "nope", device.Descriptor{})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginThenLogoutLeavesStorageAsBefore(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(200, authOKBody(token)))
	backend.handle("/account/profile", jsonHandler(200, testUserBody))
	backend.handle("/auth/logout", jsonHandler(204, ""))

	store := storage.NewMemory()
	before := store.Snapshot()
	client := newTestClient(t, backend, store)

	if err := client.Login(context.Background(), "ada@example.com", "secret", device.Descriptor{}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}

	after := store.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("storage not restored: before=%v after=%v", before, after)
	}
	if client.IsAuthenticated() || client.CurrentUser() != nil {
		t.Fatal("session must be cleared")
	}
}

func TestLogoutClearsLocallyWhenServerFails(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(200, authOKBody(token)))
	backend.handle("/account/profile", jsonHandler(200, testUserBody))
	backend.handle("/auth/logout", jsonHandler(500, `{"message":"boom"}`))

	client := newTestClient(t, backend, nil)
	if err := client.Login(context.Background(), "ada@example.com", "secret", device.Descriptor{}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("logout must not propagate server errors: %v", err)
	}
	if client.IsAuthenticated() {
		t.Fatal("session must be cleared regardless of server verdict")
	}
	if client.api.Bearer() != "" {
		t.Fatal("bearer header must be removed")
	}
}

func TestRegisterValidatesConsentBeforeNetwork(t *testing.T) {
	backend := newStubBackend()
	client := newTestClient(t, backend, nil)

	err := client.Register(context.Background(), RegistrationInput{
		Email:         "ada@example.com",
		Password:      "secret",
		CaptchaPassed: false,
		TermsAccepted: true,
	})
	if !errors.Is(err, ErrConsentRequired) {
		t.Fatalf("expected ErrConsentRequired, got %v", err)
	}
	if backend.count("/auth/register") != 0 {
		t.Fatal("consent validation must not reach the network")
	}
}

func TestFetchProfileRequiresToken(t *testing.T) {
	client := newTestClient(t, newStubBackend(), nil)
	if err := client.FetchProfile(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFetchProfileExpiredTokenClearsWithoutNetwork(t *testing.T) {
	store := storage.NewMemory()
	seedSession(t, store, testJWT(t, time.Now().Add(-time.Hour)))

	backend := newStubBackend()
	client := newTestClient(t, backend, store)

	if err := client.FetchProfile(context.Background()); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if n := backend.count("/account/profile"); n != 0 {
		t.Fatalf("expired token must not reach the network, got %d calls", n)
	}
	if client.IsAuthenticated() {
		t.Fatal("expired session must be cleared")
	}
}

func TestUpdateUserMergesPartial(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	backend := newStubBackend()
	backend.handle("/auth/login", jsonHandler(200, authOKBody(token)))
	backend.handle("/account/profile", jsonHandler(200, testUserBody))

	client := newTestClient(t, backend, nil)
	if err := client.Login(context.Background(), "ada@example.com", "secret", device.Descriptor{}); err != nil {
		t.Fatalf("login: %v", err)
	}

	avatar := "https://cdn.example.com/a.png"
	if err := client.UpdateUser(context.Background(), UserPatch{AvatarURL: &avatar}); err != nil {
		t.Fatalf("update user: %v", err)
	}

	user := client.CurrentUser()
	if user.AvatarURL != avatar {
		t.Fatalf("avatar not merged: %+v", user)
	}
	if user.FirstName != "Ada" {
		t.Fatalf("unrelated fields must survive the merge: %+v", user)
	}
}

func TestHydrationRestoresPersistedSession(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))
	store := storage.NewMemory()
	seedSession(t, store, token)

	client := newTestClient(t, newStubBackend(), store)
	if !client.Hydrated() {
		t.Fatal("client must report hydrated after Build")
	}
	if !client.IsAuthenticated() {
		t.Fatal("persisted session must be restored")
	}
	if client.api.Bearer() != token {
		t.Fatal("bearer must be re-applied on hydration")
	}
}

func TestHydrationRejectsTokenlessAuthenticatedSnapshot(t *testing.T) {
	store := storage.NewMemory()
	snapshot, _ := json.Marshal(map[string]any{
		"version":         2,
		"isAuthenticated": true,
		"token":           "",
	})
	if err := store.Set(context.Background(), storage.KeyAuthState, snapshot); err != nil {
		t.Fatalf("seed: %v", err)
	}

	client := newTestClient(t, newStubBackend(), store)
	if client.IsAuthenticated() {
		t.Fatal("authenticated snapshot without token violates the invariant and must hydrate as anonymous")
	}
}

// Every entry point that sends a descriptor must send the same field set, or
// the backend stops recognizing the device across flows.
func TestDescriptorFieldSetConsistentAcrossEntryPoints(t *testing.T) {
	token := testJWT(t, time.Now().Add(time.Hour))

	var (
		mu      sync.Mutex
		devices []map[string]json.RawMessage
	)
	recordDevice := func(r *http.Request) {
		var payload struct {
			Device map[string]json.RawMessage `json:"device"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &payload)
		mu.Lock()
		devices = append(devices, payload.Device)
		mu.Unlock()
	}

	backend := newStubBackend()
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		recordDevice(r)
		jsonHandler(200, authOKBody(token))(w, r)
	})
	backend.handle("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		recordDevice(r)
		jsonHandler(200, authOKBody(token))(w, r)
	})
	backend.handle("/auth/device/confirm", func(w http.ResponseWriter, r *http.Request) {
		recordDevice(r)
		jsonHandler(200, authOKBody(token))(w, r)
	})
	backend.handle("/account/profile", jsonHandler(200, testUserBody))
	backend.handle("/auth/logout", jsonHandler(204, ""))

	client := newTestClient(t, backend, nil)
	ctx := context.Background()

	desc, err := client.BuildDescriptor(ctx)
	if err != nil {
		t.Fatalf("build descriptor: %v", err)
	}
	if err := client.Login(ctx, "ada@example.com", "secret", desc); err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = client.Logout(ctx)

	if err := client.Register(ctx, RegistrationInput{
		Email: "ada@example.com", Password: "secret",
		CaptchaPassed: true, TermsAccepted: true,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = client.Logout(ctx)

	result := client.NewConfirmation(FlowNewDevice).RedeemValues(ctx, "tkt-1", ActionApprove)
	if result.State != ConfirmationSucceeded {
		t.Fatalf("confirm: %+v", result)
	}

	if len(devices) != 3 {
		t.Fatalf("expected 3 recorded descriptors, got %d", len(devices))
	}
	want := fieldSet(devices[0])
	for i, d := range devices[1:] {
		if got := fieldSet(d); !reflect.DeepEqual(want, got) {
			t.Fatalf("entry point %d diverges: want %v got %v", i+1, want, got)
		}
	}
	var first, second struct {
		DeviceID string `json:"deviceId"`
	}
	_ = json.Unmarshal(mustField(t, devices[0], "deviceId"), &first.DeviceID)
	_ = json.Unmarshal(mustField(t, devices[2], "deviceId"), &second.DeviceID)
	if first.DeviceID != second.DeviceID {
		t.Fatalf("device id diverges across entry points: %q vs %q", first.DeviceID, second.DeviceID)
	}
}

func fieldSet(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustField(t *testing.T, m map[string]json.RawMessage, key string) json.RawMessage {
	t.Helper()
	v, ok := m[key]
	if !ok {
		t.Fatalf("missing field %q", key)
	}
	return v
}
