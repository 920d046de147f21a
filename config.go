package authkit

import (
	"errors"
	"time"
)

// Config defines the tunable behavior of a [Client]. The zero value is not
// usable; start from [Builder] defaults and override selectively.
type Config struct {
	API     APIConfig
	Session SessionConfig
	Device  DeviceConfig
	Events  EventsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the account backend.
type APIConfig struct {
	// BaseURL of the account API, e.g. "https://account.finovia.com/api".
	BaseURL string
	// Timeout applied to the default HTTP client. Ignored when a custom
	// client is supplied through the builder.
	Timeout time.Duration
	// UserAgent sent with every request. Defaults to the device package's
	// synthetic user agent when empty, keeping the header and the descriptor
	// consistent.
	UserAgent string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig governs local token handling.
type SessionConfig struct {
	// ExpiryLeeway widens the local expiry check: a token within leeway of
	// its exp claim is already treated as expired, so a request is never sent
	// with a token about to lapse mid-flight.
	ExpiryLeeway time.Duration
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig governs descriptor construction.
type DeviceConfig struct {
	// AppVersion is embedded in the synthetic user agent of the host
	// environment. It must stay fixed for the lifetime of an installation or
	// the derived device ID changes with every release channel switch.
	AppVersion string
}

/*
====================================
EVENTS CONFIG
====================================
*/

// EventsConfig governs session event delivery. Events flow only when the
// builder was given a sink.
type EventsConfig struct {
	// Buffer is the dispatcher queue size. When the queue is full events are
	// dropped rather than blocking session flows.
	Buffer int
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			ExpiryLeeway: 30 * time.Second,
		},
		Device: DeviceConfig{
			AppVersion: "dev",
		},
		Events: EventsConfig{
			Buffer: 64,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.API.BaseURL == "" {
		return errors.New("authkit: API base URL required")
	}
	if cfg.API.Timeout < 0 {
		return errors.New("authkit: negative API timeout")
	}
	if cfg.Session.ExpiryLeeway < 0 {
		return errors.New("authkit: negative expiry leeway")
	}
	if cfg.Events.Buffer < 0 {
		return errors.New("authkit: negative event buffer")
	}
	return nil
}
