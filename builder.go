package authkit

import (
	"context"
	"net/http"

	"github.com/finovia/authkit/api"
	"github.com/finovia/authkit/device"
	"github.com/finovia/authkit/storage"
)

// Builder assembles a [Client]. A Builder is single-use: configure it, then
// call Build once.
type Builder struct {
	config   Config
	store    storage.Store
	http     *http.Client
	env      device.Environment
	detector AuthenticatorDetector
	sink     EventSink
}

// New returns a Builder with default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets the account API base URL without touching the rest of the
// configuration.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.API.BaseURL = baseURL
	return b
}

// WithStorage selects the persisted state backend. Defaults to an in-memory
// store, which makes the session process-local.
func (b *Builder) WithStorage(store storage.Store) *Builder {
	b.store = store
	return b
}

// WithHTTPClient supplies a custom HTTP client (proxies, test transports).
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.http = client
	return b
}

// WithEnvironment supplies the device signal source. Defaults to
// [device.HostEnvironment].
func (b *Builder) WithEnvironment(env device.Environment) *Builder {
	b.env = env
	return b
}

// WithAuthenticatorDetector supplies the local platform-authenticator check
// used by the method resolver. Without one, biometric login is never
// offered.
func (b *Builder) WithAuthenticatorDetector(d AuthenticatorDetector) *Builder {
	b.detector = d
	return b
}

// WithEventSink subscribes a sink to session events. Without one, no events
// are produced.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// Build validates the configuration, wires the components, and hydrates the
// persisted session so the bearer header is in place before the first
// request.
func (b *Builder) Build(ctx context.Context) (*Client, error) {
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	httpClient := b.http
	if httpClient == nil {
		httpClient = &http.Client{Timeout: b.config.API.Timeout}
	}

	env := b.env
	if env == nil {
		env = device.HostEnvironment{AppVersion: b.config.Device.AppVersion}
	}

	userAgent := b.config.API.UserAgent
	if userAgent == "" {
		userAgent = env.UserAgent()
	}

	apiClient, err := api.New(b.config.API.BaseURL, httpClient, userAgent)
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		store = storage.NewMemory()
	}

	c := &Client{
		config:   b.config,
		api:      apiClient,
		store:    store,
		devices:  device.NewBuilder(env),
		consent:  device.NewConsentStore(store),
		detector: b.detector,
		events:   newEventDispatcher(b.sink, b.config.Events.Buffer),
	}
	c.hydrate(ctx)
	return c, nil
}
