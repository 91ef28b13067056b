package voicelane

import (
	"context"
	"io"
	"sync"
	"time"
)

// State is the session state machine position. Listening, Thinking, Speaking
// and AwaitingToolResult are sub-states of Connected: they reflect
// turn-taking for status display and never gate event processing.
type State int

const (
	StateIdle State = iota
	StateRequestingCredential
	StateAcquiringMicrophone
	StateNegotiating
	StateConnected
	StateListening
	StateThinking
	StateSpeaking
	StateAwaitingToolResult
	StateDisconnected
	StateFailed
)

// String returns the lowercase state name shown in status displays.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingCredential:
		return "requesting_credential"
	case StateAcquiringMicrophone:
		return "acquiring_microphone"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateAwaitingToolResult:
		return "awaiting_tool_result"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connected reports whether s is the Connected super-state or one of its
// turn-taking sub-states.
func (s State) Connected() bool {
	return s >= StateConnected && s <= StateAwaitingToolResult
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// EventChannel is the bidirectional event stream opened by a transport
// connector. Events are delivered strictly in arrival order; the channel
// returned by Events is closed when the transport goes away.
type EventChannel interface {
	// Send transmits one JSON-encodable payload. Returns ErrSessionClosed
	// after the channel is torn down.
	Send(ctx context.Context, payload any) error

	// Events yields raw inbound wire messages in arrival order.
	Events() <-chan []byte

	// Err reports why the channel terminated: nil for an orderly close,
	// non-nil when the transport failed. Valid once Events is closed.
	Err() error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// SessionHandles are the opaque resources a connector hands to the event
// processor. No session configuration is sent after connect; the credential
// already encodes voice, instructions and tools.
type SessionHandles struct {
	// Channel is the bidirectional event stream.
	Channel EventChannel

	// Transport is the underlying connection (peer connection or nil when
	// the channel owns the transport itself).
	Transport io.Closer

	// StopMedia stops local media capture. May be nil.
	StopMedia func()
}

// TransportConnector negotiates the audio transport and opens the event
// channel. Implementations report intermediate establishment states through
// progress (AcquiringMicrophone, Negotiating) so the orchestrator can keep
// status display honest.
type TransportConnector interface {
	Connect(ctx context.Context, cred Credential, progress func(State)) (*SessionHandles, error)
}

// Session is the mutable runtime state of one audio conversation. Exactly
// one Session is active per orchestrator instance. The tool-to-webhook map is
// written once at session start and only read thereafter, so no locking
// guards reads on the hot path.
type Session struct {
	mu             sync.Mutex
	state          State
	handles        *SessionHandles
	toolWebhookMap map[string]string
	startedAt      time.Time
	cleaned        bool
}

func newSession(tools []ToolDefinition) *Session {
	return &Session{
		state:          StateIdle,
		toolWebhookMap: ToolWebhookMap(tools),
		startedAt:      time.Now(),
	}
}

// State returns the current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// setState moves the machine, refusing to leave a terminal state.
func (s *Session) setState(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = next
	return true
}

func (s *Session) setHandles(h *SessionHandles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = h
}

// ToolWebhookURL resolves a tool name to its bound webhook URL.
func (s *Session) ToolWebhookURL(tool string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.toolWebhookMap[tool]
	return url, ok
}

// send writes one payload to the event channel, if it is still up.
func (s *Session) send(ctx context.Context, payload any) error {
	s.mu.Lock()
	h := s.handles
	s.mu.Unlock()
	if h == nil || h.Channel == nil {
		return ErrSessionClosed
	}
	return h.Channel.Send(ctx, payload)
}

// Cleanup releases every session resource: the event channel, the transport,
// local media, and the tool map. Each release step is individually guarded,
// so Cleanup is safe to invoke multiple times and from any state; a second
// call is a no-op.
func (s *Session) Cleanup() {
	s.mu.Lock()
	h := s.handles
	s.handles = nil
	s.toolWebhookMap = nil
	already := s.cleaned
	s.cleaned = true
	if !s.state.Terminal() {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if already || h == nil {
		return
	}
	if h.Channel != nil {
		_ = h.Channel.Close()
	}
	if h.Transport != nil {
		_ = h.Transport.Close()
	}
	if h.StopMedia != nil {
		h.StopMedia()
	}
}
