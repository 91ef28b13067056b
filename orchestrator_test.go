package voicelane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeConnector hands back a pre-built channel without any real transport.
type fakeConnector struct {
	channel *fakeChannel
	err     error
	states  []State
}

func (f *fakeConnector) Connect(_ context.Context, _ Credential, progress func(State)) (*SessionHandles, error) {
	for _, s := range f.states {
		if progress != nil {
			progress(s)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &SessionHandles{Channel: f.channel}, nil
}

type orchHarness struct {
	orch       *Orchestrator
	channel    *fakeChannel
	server     *httptest.Server
	mu         sync.Mutex
	states     []State
	transcript []TranscriptEntry
}

func newOrchHarness(t *testing.T, connector TransportConnector) *orchHarness {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondWith(w, http.StatusOK, map[string]any{"id": "sess_t", "client_secret": "ek_t"})
	}))
	t.Cleanup(server.Close)

	h := &orchHarness{server: server}
	h.orch = NewOrchestrator(OrchestratorConfig{
		Broker:    &Broker{Endpoint: server.URL, Secret: "sk-test"},
		Connector: connector,
		OnState: func(s State) {
			h.mu.Lock()
			h.states = append(h.states, s)
			h.mu.Unlock()
		},
		OnTranscript: func(e TranscriptEntry) {
			h.mu.Lock()
			h.transcript = append(h.transcript, e)
			h.mu.Unlock()
		},
	})
	return h
}

func (h *orchHarness) waitDone(t *testing.T) {
	t.Helper()
	done := h.orch.Done()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event loop exit")
	}
}

func (h *orchHarness) sawState(s State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.states {
		if st == s {
			return true
		}
	}
	return false
}

func (h *orchHarness) entries() []TranscriptEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]TranscriptEntry, len(h.transcript))
	copy(out, h.transcript)
	return out
}

func TestOrchestrator_Start_HappyPath(t *testing.T) {
	ch := newFakeChannel()
	conn := &fakeConnector{channel: ch, states: []State{StateNegotiating}}
	h := newOrchHarness(t, conn)

	if err := h.orch.Start(context.Background(), SessionConfig{Instructions: "hi"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for _, s := range []State{StateRequestingCredential, StateNegotiating, StateConnected, StateListening} {
		if !h.sawState(s) {
			t.Errorf("expected to observe state %s", s)
		}
	}

	close(ch.events)
	h.waitDone(t)

	if h.orch.State() != StateDisconnected {
		t.Errorf("expected Disconnected after orderly close, got %s", h.orch.State())
	}
}

func TestOrchestrator_Start_SecondSessionRejected(t *testing.T) {
	ch := newFakeChannel()
	h := newOrchHarness(t, &fakeConnector{channel: ch})

	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := h.orch.Start(context.Background(), SessionConfig{})
	if !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}

	close(ch.events)
	h.waitDone(t)
}

func TestOrchestrator_Start_ConnectFailure(t *testing.T) {
	conn := &fakeConnector{err: NewTransportError("exchange", 403, "forbidden", nil)}
	h := newOrchHarness(t, conn)

	err := h.orch.Start(context.Background(), SessionConfig{})
	if err == nil {
		t.Fatal("expected Start to fail on connect error")
	}
	if h.orch.State() != StateFailed {
		t.Errorf("expected Failed, got %s", h.orch.State())
	}

	foundError := false
	for _, e := range h.entries() {
		if e.Error {
			foundError = true
		}
	}
	if !foundError {
		t.Error("expected an error transcript entry")
	}
}

func TestOrchestrator_Start_MicrophoneDenied(t *testing.T) {
	conn := &fakeConnector{err: ErrMicrophoneDenied}
	h := newOrchHarness(t, conn)

	err := h.orch.Start(context.Background(), SessionConfig{})
	if !errors.Is(err, ErrMicrophoneDenied) {
		t.Fatalf("expected ErrMicrophoneDenied, got %v", err)
	}

	found := false
	for _, e := range h.entries() {
		if strings.Contains(e.Text, "microphone") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a user-facing microphone message, got %v", h.entries())
	}
}

func TestOrchestrator_TranscriptDeltaAccumulation(t *testing.T) {
	ch := newFakeChannel()
	h := newOrchHarness(t, &fakeConnector{channel: ch})

	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.events <- []byte(`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"Hello, "}`)
	ch.events <- []byte(`{"type":"response.audio_transcript.delta","response_id":"r1","delta":"world."}`)
	ch.events <- []byte(`{"type":"response.audio_transcript.done","response_id":"r1","transcript":"Hello, world."}`)
	close(ch.events)
	h.waitDone(t)

	var assistant []string
	for _, e := range h.entries() {
		if e.Role == RoleAssistant {
			assistant = append(assistant, e.Text)
		}
	}
	if len(assistant) != 1 {
		t.Fatalf("expected exactly one assistant entry, got %v", assistant)
	}
	if assistant[0] != "Hello, world." {
		t.Errorf("expected the complete utterance, got %q", assistant[0])
	}
}

func TestOrchestrator_SpeechTogglesStates(t *testing.T) {
	ch := newFakeChannel()
	h := newOrchHarness(t, &fakeConnector{channel: ch})

	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.events <- []byte(`{"type":"input_audio_buffer.speech_started","item_id":"i1"}`)
	ch.events <- []byte(`{"type":"input_audio_buffer.speech_stopped","item_id":"i1"}`)
	ch.events <- []byte(`{"type":"response.audio.delta","response_id":"r1","delta":"AAAA"}`)
	ch.events <- []byte(`{"type":"response.done","response":{"id":"r1","status":"completed"}}`)
	close(ch.events)
	h.waitDone(t)

	for _, s := range []State{StateListening, StateThinking, StateSpeaking} {
		if !h.sawState(s) {
			t.Errorf("expected to observe state %s", s)
		}
	}
}

func TestOrchestrator_FailedResponseIsRecoverable(t *testing.T) {
	ch := newFakeChannel()
	h := newOrchHarness(t, &fakeConnector{channel: ch})

	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.events <- []byte(`{"type":"response.done","response":{"id":"r1","status":"failed","status_details":{"error":{"message":"overloaded"}}}}`)

	deadline := time.After(2 * time.Second)
	for {
		entries := h.entries()
		if len(entries) > 0 {
			if !entries[0].Error || !strings.Contains(entries[0].Text, "overloaded") {
				t.Errorf("expected inline error entry, got %+v", entries[0])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for error transcript entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if h.orch.State().Terminal() {
		t.Errorf("failed response must not end the session, state is %s", h.orch.State())
	}

	close(ch.events)
	h.waitDone(t)
}

func TestOrchestrator_TransportFailureEndsInFailed(t *testing.T) {
	ch := newFakeChannel()
	h := newOrchHarness(t, &fakeConnector{channel: ch})

	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.mu.Lock()
	ch.termErr = errors.New("peer connection failed")
	ch.mu.Unlock()
	close(ch.events)
	h.waitDone(t)

	if h.orch.State() != StateFailed {
		t.Errorf("expected Failed after abnormal close, got %s", h.orch.State())
	}
	found := false
	for _, e := range h.entries() {
		if e.Error && strings.Contains(e.Text, "connection lost") {
			found = true
		}
	}
	if !found {
		t.Error("expected a connection-lost transcript entry")
	}
	if got := ch.closeCount(); got != 1 {
		t.Errorf("expected cleanup to close the channel exactly once, got %d", got)
	}
}

func TestOrchestrator_RestartIsolatesPriorLoop(t *testing.T) {
	ch1 := newFakeChannel()
	conn := &fakeConnector{channel: ch1}
	h := newOrchHarness(t, conn)

	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	done1 := h.orch.Done()
	h.orch.Cleanup()

	// The first loop is still draining ch1. A new session must not be
	// touched by anything that loop does from here on.
	ch2 := newFakeChannel()
	conn.channel = ch2
	if err := h.orch.Start(context.Background(), SessionConfig{}); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	done2 := h.orch.Done()
	if done1 == done2 {
		t.Fatal("restart must hand out a fresh done channel")
	}

	h.mu.Lock()
	h.states = nil
	h.mu.Unlock()

	close(ch1.events)
	select {
	case <-done1:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first loop to exit")
	}

	select {
	case <-done2:
		t.Fatal("prior session's loop closed the new session's done channel")
	default:
	}
	if h.orch.State().Terminal() {
		t.Errorf("new session must stay live, state is %s", h.orch.State())
	}
	if h.sawState(StateDisconnected) {
		t.Error("prior session's close must not be reported against the new session")
	}

	close(ch2.events)
	h.waitDone(t)
	if h.orch.State() != StateDisconnected {
		t.Errorf("expected Disconnected once the new session closes, got %s", h.orch.State())
	}
}

func TestOrchestrator_ToolCallFlow(t *testing.T) {
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	ch := newFakeChannel()
	h := newOrchHarness(t, &fakeConnector{channel: ch})

	cfg := NewSessionConfig("", "alloy", []WebhookConfig{
		{Name: "Book Job", Trigger: TriggerOnToolCall, URL: webhook.URL, PayloadFields: []string{"summary"}},
	})
	if err := h.orch.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.events <- []byte(`{"type":"response.function_call_arguments.done","call_id":"c1","name":"book_job","arguments":"{\"summary\":\"fix\"}"}`)

	deadline := time.After(2 * time.Second)
	for {
		if len(ch.sentPayloads()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for tool result, sent: %v", ch.sentPayloads())
		case <-time.After(10 * time.Millisecond):
		}
	}

	sent := ch.sentPayloads()
	if _, ok := sent[0].(functionCallOutput); !ok {
		t.Errorf("expected function result first, got %T", sent[0])
	}
	if _, ok := sent[1].(responseCreate); !ok {
		t.Errorf("expected continuation second, got %T", sent[1])
	}

	close(ch.events)
	h.waitDone(t)
}
