// Package device derives the per-device descriptor that binds sessions to
// hardware. Every login, registration, and confirmation entry point must
// build its descriptor through the same [Builder] so that one physical
// device always maps to one device ID; divergent field sets between entry
// points silently break device recognition on the backend.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
)

// ipPlaceholder stands in for the caller's IP inside the device ID digest.
// The backend derives the real address from the connection; the client-side
// digest uses a fixed placeholder so the ID stays stable across networks.
const ipPlaceholder = "0.0.0.0"

// Descriptor is the signal set describing the current device. Required
// fields are always populated; optional fields are present only when the
// matching consent category is allowed and the probe succeeded.
type Descriptor struct {
	UserAgent        string `json:"userAgent"`
	ScreenResolution string `json:"screenResolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
	Platform         string `json:"platform"`

	CanvasHash       string   `json:"canvasHash,omitempty"`
	GraphicsVendor   string   `json:"graphicsVendor,omitempty"`
	GraphicsRenderer string   `json:"graphicsRenderer,omitempty"`
	GraphicsHash     string   `json:"graphicsHash,omitempty"`
	AudioHash        string   `json:"audioHash,omitempty"`
	Fonts            []string `json:"fonts,omitempty"`
	Plugins          []string `json:"plugins,omitempty"`
	CPUCount         int      `json:"hardwareConcurrency,omitempty"`
	DeviceMemoryGB   float64  `json:"deviceMemory,omitempty"`

	DeviceID string `json:"deviceId"`
}

// Builder collects signals from one Environment. A Builder is immutable and
// safe for concurrent use.
type Builder struct {
	env Environment
}

// NewBuilder wraps an Environment. A nil env selects [HostEnvironment].
func NewBuilder(env Environment) *Builder {
	if env == nil {
		env = HostEnvironment{}
	}
	return &Builder{env: env}
}

// Build collects the required signals unconditionally and each optional
// signal only when its consent category allows it. Probes run inside their
// own failure boundary: one that errors or panics yields an absent field,
// never an aborted descriptor.
func (b *Builder) Build(consent Consent) Descriptor {
	d := Descriptor{
		UserAgent:        b.env.UserAgent(),
		ScreenResolution: b.env.ScreenResolution(),
		Timezone:         b.env.Timezone(),
		Language:         b.env.Language(),
		Platform:         b.env.Platform(),
	}

	if consent.Canvas {
		d.CanvasHash = probeString(b.env.CanvasHash)
	}
	if consent.Graphics {
		if info, ok := probeGraphics(b.env.Graphics); ok {
			d.GraphicsVendor = info.Vendor
			d.GraphicsRenderer = info.Renderer
			d.GraphicsHash = info.Hash
		}
	}
	if consent.Audio {
		d.AudioHash = probeString(b.env.AudioHash)
	}
	if consent.Fonts {
		d.Fonts = probeStrings(b.env.Fonts)
	}
	if consent.Plugins {
		d.Plugins = probeStrings(b.env.Plugins)
	}
	if consent.Hardware {
		if n, ok := probeInt(b.env.HardwareConcurrency); ok {
			d.CPUCount = n
		}
		if gb, ok := probeFloat(b.env.DeviceMemoryGB); ok {
			d.DeviceMemoryGB = gb
		}
	}

	d.DeviceID = deviceID(d.UserAgent, d.ScreenResolution)
	return d
}

// deviceID digests (userAgent, ip placeholder, screenResolution). The field
// list is fixed: consent-gated signals never feed the ID, so granting or
// revoking consent does not change which device the backend sees.
func deviceID(userAgent, screenResolution string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ipPlaceholder + "|" + screenResolution))
	return hex.EncodeToString(sum[:])
}

func probeString(fn func() (string, error)) (out string) {
	defer recoverProbe()
	v, err := fn()
	if err != nil {
		return ""
	}
	return v
}

func probeStrings(fn func() ([]string, error)) (out []string) {
	defer recoverProbe()
	v, err := fn()
	if err != nil {
		return nil
	}
	return v
}

func probeGraphics(fn func() (GraphicsInfo, error)) (out GraphicsInfo, ok bool) {
	defer recoverProbe()
	v, err := fn()
	if err != nil {
		return GraphicsInfo{}, false
	}
	return v, true
}

func probeInt(fn func() (int, error)) (out int, ok bool) {
	defer recoverProbe()
	v, err := fn()
	if err != nil {
		return 0, false
	}
	return v, true
}

func probeFloat(fn func() (float64, error)) (out float64, ok bool) {
	defer recoverProbe()
	v, err := fn()
	if err != nil {
		return 0, false
	}
	return v, true
}

func recoverProbe() {
	if r := recover(); r != nil {
		log.Print("authkit: device probe panicked")
	}
}
