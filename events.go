package authkit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// SessionEvent records one observable session transition. Host applications
// subscribe to drive UI state (signed-in indicator, re-login prompts) or to
// forward into their own telemetry.
type SessionEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	Kind      SessionEventKind `json:"kind"`
	UserID    string           `json:"userId,omitempty"`
	Method    AuthMethod       `json:"method,omitempty"`
	Flow      ConfirmationFlow `json:"flow,omitempty"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
}

// SessionEventKind names the transition a SessionEvent describes.
type SessionEventKind string

const (
	// EventLogin is emitted after a login attempt through any method.
	EventLogin SessionEventKind = "login"
	// EventRegister is emitted after a registration attempt.
	EventRegister SessionEventKind = "register"
	// EventLogout is emitted after local session state is cleared.
	EventLogout SessionEventKind = "logout"
	// EventCheck is emitted after a session revalidation resolves.
	EventCheck SessionEventKind = "check"
	// EventConfirmation is emitted after an out-of-band redemption resolves.
	EventConfirmation SessionEventKind = "confirmation"
)

// EventSink receives session events. Implementations must be safe for
// concurrent use; Emit is called from the dispatcher goroutine only, but a
// sink may be shared across clients.
type EventSink interface {
	Emit(ctx context.Context, event SessionEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements EventSink.
func (NoOpSink) Emit(context.Context, SessionEvent) {}

// ChannelSink forwards events into a buffered channel for the host to range
// over.
type ChannelSink struct {
	events chan SessionEvent
}

// NewChannelSink returns a sink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan SessionEvent, buffer)}
}

// Emit implements EventSink.
func (s *ChannelSink) Emit(ctx context.Context, event SessionEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan SessionEvent {
	return s.events
}

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink wraps a writer.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements EventSink.
func (s *JSONWriterSink) Emit(_ context.Context, event SessionEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
