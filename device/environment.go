package device

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// GraphicsInfo is the graphics-driver probe result.
type GraphicsInfo struct {
	Vendor   string
	Renderer string
	Hash     string
}

// Environment supplies the raw signals the descriptor is built from. The
// required signals must always return a value; optional probes may return an
// error (or panic) when the signal is unsupported, and the builder records
// them as absent.
type Environment interface {
	UserAgent() string
	ScreenResolution() string
	Timezone() string
	Language() string
	Platform() string

	CanvasHash() (string, error)
	Graphics() (GraphicsInfo, error)
	AudioHash() (string, error)
	Fonts() ([]string, error)
	Plugins() ([]string, error)
	HardwareConcurrency() (int, error)
	DeviceMemoryGB() (float64, error)
}

var errProbeUnsupported = errors.New("device: probe unsupported on this host")

// HostEnvironment implements Environment from what a headless Go process can
// observe. Rendering-surface and audio probes have no host equivalent and
// report unsupported; the builder treats them as absent, which keeps the
// derived device ID identical to a browser that declined those categories.
type HostEnvironment struct {
	// AppVersion is embedded in the synthetic user agent. Defaults to "dev".
	AppVersion string
}

// UserAgent returns a synthetic, stable user agent for this build and host.
func (e HostEnvironment) UserAgent() string {
	version := e.AppVersion
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("authkit/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
}

// ScreenResolution reports the fixed headless placeholder. A process without
// a display still has to contribute the field so the device ID digest has the
// same shape on every platform.
func (e HostEnvironment) ScreenResolution() string {
	return "headless"
}

// Timezone returns the IANA zone name when available, otherwise the fixed
// zone offset name.
func (e HostEnvironment) Timezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	name, _ := time.Now().Zone()
	return name
}

// Language returns the host locale from the environment, "en" as fallback.
func (e HostEnvironment) Language() string {
	for _, key := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(key); v != "" {
			if i := strings.IndexAny(v, "._"); i > 0 {
				return v[:i]
			}
			return v
		}
	}
	return "en"
}

// Platform returns the operating system identifier.
func (e HostEnvironment) Platform() string {
	return runtime.GOOS
}

// CanvasHash is unsupported on a headless host.
func (e HostEnvironment) CanvasHash() (string, error) {
	return "", errProbeUnsupported
}

// Graphics is unsupported on a headless host.
func (e HostEnvironment) Graphics() (GraphicsInfo, error) {
	return GraphicsInfo{}, errProbeUnsupported
}

// AudioHash is unsupported on a headless host.
func (e HostEnvironment) AudioHash() (string, error) {
	return "", errProbeUnsupported
}

// Fonts is unsupported on a headless host.
func (e HostEnvironment) Fonts() ([]string, error) {
	return nil, errProbeUnsupported
}

// Plugins is unsupported on a headless host.
func (e HostEnvironment) Plugins() ([]string, error) {
	return nil, errProbeUnsupported
}

// HardwareConcurrency reports the logical CPU count.
func (e HostEnvironment) HardwareConcurrency() (int, error) {
	return runtime.NumCPU(), nil
}

// DeviceMemoryGB is unsupported on a headless host.
func (e HostEnvironment) DeviceMemoryGB() (float64, error) {
	return 0, errProbeUnsupported
}
