package voicelane

import (
	"context"
	"errors"
	"sync"
	"time"
)

// OrchestratorConfig wires the orchestrator's collaborators. Broker and
// Connector are required; everything else has working defaults.
type OrchestratorConfig struct {
	// Broker exchanges the session configuration for a credential.
	Broker *Broker

	// Connector negotiates the transport and opens the event channel.
	Connector TransportConnector

	// Dispatcher performs webhook invocations for tool calls. Defaults to
	// NewDispatcher.
	Dispatcher *Dispatcher

	// OnState is invoked on every state machine transition. Optional.
	OnState func(State)

	// OnTranscript receives finished transcript entries. Optional.
	OnTranscript func(TranscriptEntry)

	// OnAudio receives assistant audio output deltas (base64 PCM16).
	// Optional; playback is the transport's job in the browser variant.
	OnAudio func(AudioDelta)

	// Logger receives lifecycle and protocol events. Optional.
	Logger *Logger
}

// Orchestrator drives one realtime session end to end: credential exchange,
// transport negotiation, event processing, and tool-call bridging. It is
// single-active-session: Start fails while a session is running.
type Orchestrator struct {
	cfg    OrchestratorConfig
	bridge *ToolCallBridge

	mu        sync.Mutex
	session   *Session
	assembler *transcriptAssembler
	done      chan struct{}
}

// NewOrchestrator creates an orchestrator. Broker and Connector must be set
// before Start is called.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher(cfg.Logger)
	}
	o := &Orchestrator{cfg: cfg}
	o.bridge = &ToolCallBridge{
		dispatcher:   cfg.Dispatcher,
		logger:       cfg.Logger,
		onTranscript: o.appendTranscript,
		onState:      o.setState,
	}
	return o
}

// State reports the current session state, or Idle when none is active.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	if s == nil {
		return StateIdle
	}
	return s.State()
}

// Done returns a channel closed when the active session's event loop exits.
// Returns nil when no session was started.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// Start establishes a session from cfg, which is read fresh at connection
// time so configuration edits made before connecting take effect. On any
// establishment failure the session is cleaned up before the error is
// returned, so the caller never observes a stale in-progress state.
func (o *Orchestrator) Start(ctx context.Context, cfg SessionConfig) error {
	if o.cfg.Broker == nil || o.cfg.Connector == nil {
		return NewConfigurationError("Orchestrator", "", "Broker and Connector are required")
	}
	if err := ValidateSessionConfig(cfg); err != nil {
		return err
	}

	o.mu.Lock()
	if o.session != nil && !o.session.State().Terminal() {
		o.mu.Unlock()
		return ErrSessionActive
	}
	session := newSession(cfg.Tools)
	done := make(chan struct{})
	o.session = session
	o.assembler = newTranscriptAssembler()
	o.done = done
	o.mu.Unlock()

	o.setState(StateRequestingCredential)
	cred, err := o.cfg.Broker.Mint(ctx, cfg)
	if err != nil {
		o.failSession(session, done, err)
		return err
	}

	handles, err := o.cfg.Connector.Connect(ctx, cred, o.setState)
	if err != nil {
		o.failSession(session, done, err)
		return err
	}
	session.setHandles(handles)

	o.setState(StateConnected)
	o.setState(StateListening)
	o.cfg.Logger.Info("session_started", map[string]any{
		"session_id": cred.SessionID,
		"tools":      len(cfg.Tools),
	})

	go o.run(session, handles.Channel, done)
	return nil
}

// failSession records a fatal establishment failure: error transcript entry,
// Failed state, cleanup. MicrophoneDenied keeps its user-facing message.
func (o *Orchestrator) failSession(s *Session, done chan struct{}, err error) {
	msg := err.Error()
	if errors.Is(err, ErrMicrophoneDenied) {
		msg = "microphone unavailable or access denied"
	}
	o.appendTranscript(TranscriptEntry{Role: RoleSystem, Text: msg, Error: true, At: time.Now()})
	s.setState(StateFailed)
	o.notifyState(StateFailed)
	s.Cleanup()
	close(done)
	o.cfg.Logger.Error("session_failed", map[string]any{"err": err})
}

// isCurrent reports whether s is still the active session. A replaced
// session's loop may keep draining its channel for a moment after a restart;
// its signals must never reach the new session's observers.
func (o *Orchestrator) isCurrent(s *Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session == s
}

// run is the event loop: it drains the channel strictly in arrival order
// until the transport goes away, then tears the session down exactly once.
// done belongs to this session only and is closed exactly once, on exit.
func (o *Orchestrator) run(s *Session, ch EventChannel, done chan struct{}) {
	defer close(done)

	for raw := range ch.Events() {
		o.handleRaw(s, raw)
	}

	current := o.isCurrent(s)
	if err := ch.Err(); err != nil {
		s.setState(StateFailed)
		if current {
			o.appendTranscript(TranscriptEntry{Role: RoleSystem, Text: "connection lost: " + err.Error(), Error: true, At: time.Now()})
			o.notifyState(StateFailed)
			o.cfg.Logger.Error("session_transport_failed", map[string]any{"err": err})
		}
	} else {
		s.setState(StateDisconnected)
		if current {
			o.notifyState(StateDisconnected)
			o.cfg.Logger.Info("session_disconnected", nil)
		}
	}
	s.Cleanup()
}

func (o *Orchestrator) handleRaw(s *Session, raw []byte) {
	if !o.isCurrent(s) {
		return
	}
	ev, err := DecodeEvent(raw)
	if err != nil {
		o.cfg.Logger.Error("bad_event_json", map[string]any{"err": err, "raw": string(raw)})
		return
	}

	switch e := ev.(type) {
	case ErrorEvent:
		o.handleError(e)
	case SessionReady:
		o.handleSessionReady(e)
	case SpeechStarted:
		o.handleSpeechStarted(e)
	case SpeechStopped:
		o.handleSpeechStopped(e)
	case InputTranscriptionCompleted:
		o.handleInputTranscription(e)
	case TranscriptDelta:
		o.handleTranscriptDelta(e)
	case TranscriptDone:
		o.handleTranscriptDone(e)
	case AudioDelta:
		o.handleAudioDelta(e)
	case AudioDone:
		o.handleAudioDone(e)
	case FunctionCallDone:
		o.bridge.HandleFunctionCall(context.Background(), s, e)
	case ResponseDone:
		o.handleResponseDone(e)
	case UnknownEvent:
		o.cfg.Logger.Debug("unknown_event", map[string]any{"type": e.EventType})
	}
}

// handleError surfaces a model-reported error inline. These are recoverable:
// the session keeps running.
func (o *Orchestrator) handleError(e ErrorEvent) {
	o.appendTranscript(TranscriptEntry{Role: RoleSystem, Text: e.Message, Error: true, At: time.Now()})
	o.cfg.Logger.Warn("model_error", map[string]any{"code": e.Code, "message": e.Message})
}

func (o *Orchestrator) handleSessionReady(e SessionReady) {
	o.cfg.Logger.Info("session_ready", map[string]any{"session_id": e.SessionID, "model": e.Model, "voice": e.Voice})
}

func (o *Orchestrator) handleSpeechStarted(SpeechStarted) {
	o.setState(StateListening)
}

func (o *Orchestrator) handleSpeechStopped(SpeechStopped) {
	o.setState(StateThinking)
}

// handleInputTranscription appends one completed user turn.
func (o *Orchestrator) handleInputTranscription(e InputTranscriptionCompleted) {
	if e.Transcript == "" {
		return
	}
	o.appendTranscript(TranscriptEntry{Role: RoleUser, Text: e.Transcript, At: time.Now()})
}

func (o *Orchestrator) handleTranscriptDelta(e TranscriptDelta) {
	o.mu.Lock()
	if o.assembler != nil {
		o.assembler.OnDelta(e.ResponseID, e.Delta)
	}
	o.mu.Unlock()
}

// handleTranscriptDone flushes one complete assistant utterance as a single
// transcript entry.
func (o *Orchestrator) handleTranscriptDone(e TranscriptDone) {
	o.mu.Lock()
	var text string
	if o.assembler != nil {
		text = o.assembler.OnDone(e.ResponseID, e.Transcript)
	}
	o.mu.Unlock()
	if text == "" {
		return
	}
	o.appendTranscript(TranscriptEntry{Role: RoleAssistant, Text: text, At: time.Now()})
}

func (o *Orchestrator) handleAudioDelta(e AudioDelta) {
	o.setState(StateSpeaking)
	if o.cfg.OnAudio != nil {
		o.cfg.OnAudio(e)
	}
}

func (o *Orchestrator) handleAudioDone(AudioDone) {}

// handleResponseDone returns the machine to Listening. A failed response is
// recoverable: its message lands in the transcript and the session survives.
func (o *Orchestrator) handleResponseDone(e ResponseDone) {
	if e.Status == "failed" {
		msg := e.ErrorMessage
		if msg == "" {
			msg = "response failed"
		}
		o.appendTranscript(TranscriptEntry{Role: RoleSystem, Text: msg, Error: true, At: time.Now()})
		o.cfg.Logger.Warn("response_failed", map[string]any{"response_id": e.ResponseID, "message": msg})
	}
	o.setState(StateListening)
}

// Cleanup tears down the active session. It is the single cancellation
// primitive and is safe to call more than once and from any state.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	if s == nil {
		return
	}
	s.Cleanup()
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	s := o.session
	o.mu.Unlock()
	if s == nil || !s.setState(next) {
		return
	}
	o.notifyState(next)
}

func (o *Orchestrator) notifyState(s State) {
	if o.cfg.OnState != nil {
		o.cfg.OnState(s)
	}
}

func (o *Orchestrator) appendTranscript(e TranscriptEntry) {
	if o.cfg.OnTranscript != nil {
		o.cfg.OnTranscript(e)
	}
}

