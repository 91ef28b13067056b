package voicelane

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeChannel is an in-memory EventChannel for tests.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []any
	events  chan []byte
	termErr error
	closed  int
	sendErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan []byte, 16)}
}

func (f *fakeChannel) Send(_ context.Context, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeChannel) Events() <-chan []byte { return f.events }

func (f *fakeChannel) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.termErr
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) sentPayloads() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeChannel) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeTransport struct {
	mu     sync.Mutex
	closed int
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "idle"},
		{StateRequestingCredential, "requesting_credential"},
		{StateAcquiringMicrophone, "acquiring_microphone"},
		{StateNegotiating, "negotiating"},
		{StateConnected, "connected"},
		{StateListening, "listening"},
		{StateThinking, "thinking"},
		{StateSpeaking, "speaking"},
		{StateAwaitingToolResult, "awaiting_tool_result"},
		{StateDisconnected, "disconnected"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestState_Classification(t *testing.T) {
	for _, s := range []State{StateConnected, StateListening, StateThinking, StateSpeaking, StateAwaitingToolResult} {
		if !s.Connected() {
			t.Errorf("expected %s to be connected", s)
		}
	}
	for _, s := range []State{StateIdle, StateNegotiating, StateDisconnected, StateFailed} {
		if s.Connected() {
			t.Errorf("expected %s to not be connected", s)
		}
	}
	if !StateDisconnected.Terminal() || !StateFailed.Terminal() {
		t.Error("expected Disconnected and Failed to be terminal")
	}
	if StateListening.Terminal() {
		t.Error("Listening must not be terminal")
	}
}

func TestSession_ToolWebhookMap(t *testing.T) {
	s := newSession([]ToolDefinition{
		{Name: "book_job", WebhookURL: "https://x/jobs"},
	})

	url, ok := s.ToolWebhookURL("book_job")
	if !ok || url != "https://x/jobs" {
		t.Errorf("expected bound URL, got %q ok=%v", url, ok)
	}
	if _, ok := s.ToolWebhookURL("missing"); ok {
		t.Error("expected lookup miss for unbound tool")
	}
}

func TestSession_SetState_RefusesLeavingTerminal(t *testing.T) {
	s := newSession(nil)
	if !s.setState(StateFailed) {
		t.Fatal("expected transition into Failed to succeed")
	}
	if s.setState(StateListening) {
		t.Error("expected transition out of a terminal state to be refused")
	}
	if s.State() != StateFailed {
		t.Errorf("expected state to remain Failed, got %s", s.State())
	}
}

func TestSession_Cleanup_Idempotent(t *testing.T) {
	ch := newFakeChannel()
	transport := &fakeTransport{}
	mediaStops := 0

	s := newSession([]ToolDefinition{{Name: "book_job", WebhookURL: "https://x/y"}})
	s.setHandles(&SessionHandles{
		Channel:   ch,
		Transport: transport,
		StopMedia: func() { mediaStops++ },
	})
	s.setState(StateListening)

	s.Cleanup()
	s.Cleanup()

	if got := ch.closeCount(); got != 1 {
		t.Errorf("expected channel closed once, got %d", got)
	}
	if transport.closed != 1 {
		t.Errorf("expected transport closed once, got %d", transport.closed)
	}
	if mediaStops != 1 {
		t.Errorf("expected media stopped once, got %d", mediaStops)
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected Disconnected after cleanup, got %s", s.State())
	}
	if _, ok := s.ToolWebhookURL("book_job"); ok {
		t.Error("expected tool map reset by cleanup")
	}
}

func TestSession_Cleanup_PreservesFailedState(t *testing.T) {
	s := newSession(nil)
	s.setHandles(&SessionHandles{Channel: newFakeChannel()})
	s.setState(StateFailed)

	s.Cleanup()
	if s.State() != StateFailed {
		t.Errorf("expected Failed preserved across cleanup, got %s", s.State())
	}
}

func TestSession_Send_AfterCleanup(t *testing.T) {
	s := newSession(nil)
	s.setHandles(&SessionHandles{Channel: newFakeChannel()})
	s.Cleanup()

	err := s.send(context.Background(), newResponseCreate())
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}
