package authkit

import (
	"context"
	"net/mail"
	"strings"
	"sync"
)

// Affordance is the resolver's verdict: which single login affordance to
// render, whether the backend-preferred banner accompanies it, and which
// other methods the "more sign-in methods" disclosure lists.
type Affordance struct {
	Primary         AuthMethod
	PreferredBanner bool
	More            []AuthMethod
}

// MethodResolver decides which login affordance to show for the current
// email text. The caller debounces keystrokes and feeds each settled value
// to SetEmail; Override records an explicit user choice that background
// re-checks must never undo.
//
// Obtain one through [Client.NewMethodResolver]. A resolver is safe for
// concurrent use, though in practice one login screen owns it.
type MethodResolver struct {
	checker  AvailabilityChecker
	detector AuthenticatorDetector

	mu           sync.Mutex
	email        string
	gen          uint64
	overridden   bool
	selected     AuthMethod
	checked      bool
	availability Availability
	affordance   Affordance
}

// ValidateEmail reports whether the text parses as a plain email address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email, ".") {
		return ErrInvalidEmail
	}
	return nil
}

// SetEmail resolves the affordance for a settled email value. Invalid or
// empty text resets to the password default; valid text triggers an
// availability check, starting from the password default whenever the
// address differs from the last one. A response that arrives after the email
// has changed again is discarded.
func (r *MethodResolver) SetEmail(ctx context.Context, email string) (Affordance, error) {
	r.mu.Lock()
	changed := email != r.email
	r.email = email
	r.gen++
	gen := r.gen

	if email == "" {
		// Clearing the field is the one event that forgets an explicit
		// override.
		r.overridden = false
		r.selected = ""
		r.checked = false
		r.availability = Availability{}
		r.affordance = passwordAffordance()
		out := r.affordance
		r.mu.Unlock()
		return out, nil
	}

	if ValidateEmail(email) != nil {
		// A typo must not punish an explicit password choice, but any other
		// selected method belongs to the previous, now-unverified address.
		if !(r.overridden && r.selected == MethodPassword) {
			r.overridden = false
			r.selected = ""
		}
		r.checked = false
		r.availability = Availability{}
		r.affordance = r.composeLocked()
		out := r.affordance
		r.mu.Unlock()
		return out, nil
	}

	if changed {
		// The previous address's availability and any non-password choice
		// belong to that address, not the new one. Drop them before the
		// check so a failed check falls back to the password default.
		if !(r.overridden && r.selected == MethodPassword) {
			r.overridden = false
			r.selected = ""
		}
		r.checked = false
		r.availability = Availability{}
		r.affordance = r.composeLocked()
	}
	r.mu.Unlock()

	resp, err := r.checker.MethodAvailability(ctx, email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		// Superseded by further typing; the later resolution owns the state.
		return r.affordance, nil
	}
	if err != nil {
		// Background check failure keeps whatever was last rendered.
		r.affordance = r.composeLocked()
		return r.affordance, err
	}

	r.checked = true
	r.availability = Availability{
		Biometric: resp.BiometricKeys > 0 && r.authenticatorPresent(ctx),
		Messenger: resp.MessengerLinked,
		Preferred: parseMethod(resp.Preferred),
	}
	r.affordance = r.composeLocked()
	return r.affordance, nil
}

// Override records a method picked from the disclosure. It is authoritative:
// subsequent background checks must not revert it while the email stands.
func (r *MethodResolver) Override(method AuthMethod) Affordance {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overridden = true
	r.selected = method
	r.affordance = r.composeLocked()
	return r.affordance
}

// Affordance returns the last resolved verdict.
func (r *MethodResolver) Affordance() Affordance {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.affordance.Primary == "" {
		return passwordAffordance()
	}
	return r.affordance
}

func (r *MethodResolver) authenticatorPresent(ctx context.Context) bool {
	return r.detector != nil && r.detector.PlatformAuthenticatorAvailable(ctx)
}

// composeLocked derives the affordance from the current selection state and
// availability. Callers hold r.mu.
func (r *MethodResolver) composeLocked() Affordance {
	if r.overridden && r.selected == MethodPassword {
		return Affordance{
			Primary: MethodPassword,
			More:    r.secondaryLocked(MethodPassword),
		}
	}

	primary := MethodPassword
	banner := false
	switch {
	case r.overridden && r.selected != "":
		primary = r.selected
	case r.checked && r.availability.Preferred != "" && r.availability.Preferred != MethodPassword &&
		r.usableLocked(r.availability.Preferred):
		primary = r.availability.Preferred
		banner = true
	}

	return Affordance{
		Primary:         primary,
		PreferredBanner: banner,
		More:            r.secondaryLocked(primary),
	}
}

// usableLocked reports whether a method can actually start on this device
// and account. A backend preference for a method the device cannot serve is
// ignored rather than rendered as a dead button.
func (r *MethodResolver) usableLocked(m AuthMethod) bool {
	switch m {
	case MethodBiometric:
		return r.availability.Biometric
	case MethodMessenger:
		return r.availability.Messenger
	default:
		return true
	}
}

// secondaryLocked lists every available method except the primary. Password
// and the email link are always available once the email is syntactically
// valid and checked state exists; biometric and messenger only when eligible.
func (r *MethodResolver) secondaryLocked(primary AuthMethod) []AuthMethod {
	if r.email == "" || ValidateEmail(r.email) != nil {
		return nil
	}

	candidates := []AuthMethod{MethodPassword, MethodMagicLink}
	if r.checked && r.availability.Biometric {
		candidates = append(candidates, MethodBiometric)
	}
	if r.checked && r.availability.Messenger {
		candidates = append(candidates, MethodMessenger)
	}

	more := make([]AuthMethod, 0, len(candidates))
	for _, m := range candidates {
		if m != primary {
			more = append(more, m)
		}
	}
	return more
}

func passwordAffordance() Affordance {
	return Affordance{Primary: MethodPassword}
}

func parseMethod(s string) AuthMethod {
	switch AuthMethod(s) {
	case MethodPassword, MethodMagicLink, MethodBiometric, MethodMessenger:
		return AuthMethod(s)
	default:
		return ""
	}
}
