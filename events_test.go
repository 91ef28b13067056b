package voicelane

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name     string
		jsonData string
		expected ProtocolEvent
	}{
		{
			name:     "error event",
			jsonData: `{"type":"error","error":{"code":"rate_limited","message":"slow down"}}`,
			expected: ErrorEvent{Code: "rate_limited", Message: "slow down"},
		},
		{
			name:     "session created",
			jsonData: `{"type":"session.created","session":{"id":"sess_1","model":"gpt-4o-realtime-preview","voice":"alloy","expires_at":1700000000}}`,
			expected: SessionReady{SessionID: "sess_1", Model: "gpt-4o-realtime-preview", Voice: "alloy", ExpiresAt: 1700000000},
		},
		{
			name:     "speech started",
			jsonData: `{"type":"input_audio_buffer.speech_started","item_id":"item_1","audio_start_ms":420}`,
			expected: SpeechStarted{ItemID: "item_1", AudioStartMS: 420},
		},
		{
			name:     "speech stopped",
			jsonData: `{"type":"input_audio_buffer.speech_stopped","item_id":"item_1","audio_end_ms":1800}`,
			expected: SpeechStopped{ItemID: "item_1", AudioEndMS: 1800},
		},
		{
			name:     "input transcription completed",
			jsonData: `{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_2","transcript":"hello there"}`,
			expected: InputTranscriptionCompleted{ItemID: "item_2", Transcript: "hello there"},
		},
		{
			name:     "transcript delta",
			jsonData: `{"type":"response.audio_transcript.delta","response_id":"resp_1","item_id":"item_3","delta":"Hi, "}`,
			expected: TranscriptDelta{ResponseID: "resp_1", ItemID: "item_3", Delta: "Hi, "},
		},
		{
			name:     "transcript done",
			jsonData: `{"type":"response.audio_transcript.done","response_id":"resp_1","item_id":"item_3","transcript":"Hi, how can I help?"}`,
			expected: TranscriptDone{ResponseID: "resp_1", ItemID: "item_3", Transcript: "Hi, how can I help?"},
		},
		{
			name:     "audio delta",
			jsonData: `{"type":"response.audio.delta","response_id":"resp_1","item_id":"item_3","delta":"UklGRg=="}`,
			expected: AudioDelta{ResponseID: "resp_1", ItemID: "item_3", DeltaBase64: "UklGRg=="},
		},
		{
			name:     "audio done",
			jsonData: `{"type":"response.audio.done","response_id":"resp_1"}`,
			expected: AudioDone{ResponseID: "resp_1"},
		},
		{
			name:     "function call arguments done",
			jsonData: `{"type":"response.function_call_arguments.done","call_id":"call_1","name":"book_job","arguments":"{\"summary\":\"leaky tap\"}"}`,
			expected: FunctionCallDone{CallID: "call_1", Name: "book_job", Arguments: `{"summary":"leaky tap"}`},
		},
		{
			name:     "response done completed",
			jsonData: `{"type":"response.done","response":{"id":"resp_2","status":"completed"}}`,
			expected: ResponseDone{ResponseID: "resp_2", Status: "completed"},
		},
		{
			name:     "response done failed",
			jsonData: `{"type":"response.done","response":{"id":"resp_3","status":"failed","status_details":{"error":{"message":"server overloaded"}}}}`,
			expected: ResponseDone{ResponseID: "resp_3", Status: "failed", ErrorMessage: "server overloaded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.jsonData))
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if !reflect.DeepEqual(ev, tt.expected) {
				t.Errorf("expected %+v, got %+v", tt.expected, ev)
			}
		})
	}
}

func TestDecodeEvent_Unknown(t *testing.T) {
	raw := []byte(`{"type":"rate_limits.updated","rate_limits":[]}`)
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	unknown, ok := ev.(UnknownEvent)
	if !ok {
		t.Fatalf("expected UnknownEvent, got %T", ev)
	}
	if unknown.EventType != "rate_limits.updated" {
		t.Errorf("expected event type rate_limits.updated, got %q", unknown.EventType)
	}
	if string(unknown.Raw) != string(raw) {
		t.Errorf("expected raw payload to be preserved")
	}
}

func TestDecodeEvent_MalformedJSON(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestNewFunctionCallOutput(t *testing.T) {
	msg := newFunctionCallOutput("call_9", map[string]any{"success": true, "message": "done"})

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded struct {
		Type string `json:"type"`
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != "conversation.item.create" {
		t.Errorf("expected type conversation.item.create, got %q", decoded.Type)
	}
	if decoded.Item.Type != "function_call_output" {
		t.Errorf("expected item type function_call_output, got %q", decoded.Item.Type)
	}
	if decoded.Item.CallID != "call_9" {
		t.Errorf("expected call id call_9, got %q", decoded.Item.CallID)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(decoded.Item.Output), &payload); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if payload["success"] != true {
		t.Errorf("expected success=true in output, got %v", payload["success"])
	}
}

func TestNewResponseCreate(t *testing.T) {
	b, err := json.Marshal(newResponseCreate())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(b) != `{"type":"response.create"}` {
		t.Errorf("unexpected payload: %s", b)
	}
}
