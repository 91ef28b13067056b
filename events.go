package voicelane

import "encoding/json"

// envelope is used for initial JSON parsing to determine the event type
// before unmarshaling into the specific event struct.
type envelope struct {
	Type string `json:"type"`
}

// ProtocolEvent is one inbound event from the session's event channel.
// Decoding produces exactly one concrete kind per wire message, so the
// processor can switch over the union with one handler per kind.
type ProtocolEvent interface {
	protocolEvent()
}

// ErrorEvent is a model-reported error. These are recoverable: the session
// continues and the message is surfaced in the transcript.
type ErrorEvent struct {
	Code    string
	Message string
}

// SessionReady is sent by the provider once the session is established.
type SessionReady struct {
	SessionID string
	Model     string
	Voice     string
	ExpiresAt int64
}

// SpeechStarted indicates the caller has started speaking.
type SpeechStarted struct {
	ItemID       string
	AudioStartMS int
}

// SpeechStopped indicates the caller has stopped speaking.
type SpeechStopped struct {
	ItemID     string
	AudioEndMS int
}

// InputTranscriptionCompleted carries the final transcript of one user turn.
type InputTranscriptionCompleted struct {
	ItemID     string
	Transcript string
}

// TranscriptDelta is an incremental fragment of the assistant's spoken reply.
// Fragments accumulate until the matching TranscriptDone arrives; partial
// fragments are never shown as separate transcript lines.
type TranscriptDelta struct {
	ResponseID string
	ItemID     string
	Delta      string
}

// TranscriptDone flushes one complete assistant utterance.
type TranscriptDone struct {
	ResponseID string
	ItemID     string
	Transcript string
}

// AudioDelta is a chunk of base64-encoded assistant audio output.
type AudioDelta struct {
	ResponseID  string
	ItemID      string
	DeltaBase64 string
}

// AudioDone marks the end of the assistant's audio output for a response.
type AudioDone struct {
	ResponseID string
}

// FunctionCallDone carries the complete arguments of a model-initiated tool
// call, ready for the bridge to resolve.
type FunctionCallDone struct {
	CallID    string
	Name      string
	Arguments string
}

// ResponseDone marks the end of a model response turn. A failed status is
// recoverable and reported inline without tearing down the session.
type ResponseDone struct {
	ResponseID   string
	Status       string
	ErrorMessage string
}

// UnknownEvent wraps a wire message whose type is not modeled. It is logged
// and otherwise ignored.
type UnknownEvent struct {
	EventType string
	Raw       []byte
}

func (ErrorEvent) protocolEvent()                  {}
func (SessionReady) protocolEvent()                {}
func (SpeechStarted) protocolEvent()               {}
func (SpeechStopped) protocolEvent()               {}
func (InputTranscriptionCompleted) protocolEvent() {}
func (TranscriptDelta) protocolEvent()             {}
func (TranscriptDone) protocolEvent()              {}
func (AudioDelta) protocolEvent()                  {}
func (AudioDone) protocolEvent()                   {}
func (FunctionCallDone) protocolEvent()            {}
func (ResponseDone) protocolEvent()                {}
func (UnknownEvent) protocolEvent()                {}

// Wire event type strings.
const (
	typeError                = "error"
	typeSessionCreated       = "session.created"
	typeSpeechStarted        = "input_audio_buffer.speech_started"
	typeSpeechStopped        = "input_audio_buffer.speech_stopped"
	typeInputTranscription   = "conversation.item.input_audio_transcription.completed"
	typeTranscriptDelta      = "response.audio_transcript.delta"
	typeTranscriptDone       = "response.audio_transcript.done"
	typeAudioDelta           = "response.audio.delta"
	typeAudioDone            = "response.audio.done"
	typeFunctionCallArgsDone = "response.function_call_arguments.done"
	typeResponseDone         = "response.done"
)

// DecodeEvent parses one raw wire message into its ProtocolEvent kind.
// Messages with an unmodeled type decode to UnknownEvent; only malformed
// JSON produces an error.
func DecodeEvent(raw []byte) (ProtocolEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case typeError:
		var e struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return ErrorEvent{Code: e.Error.Code, Message: e.Error.Message}, nil

	case typeSessionCreated:
		var e struct {
			Session struct {
				ID        string `json:"id"`
				Model     string `json:"model"`
				Voice     string `json:"voice"`
				ExpiresAt int64  `json:"expires_at"`
			} `json:"session"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return SessionReady{
			SessionID: e.Session.ID,
			Model:     e.Session.Model,
			Voice:     e.Session.Voice,
			ExpiresAt: e.Session.ExpiresAt,
		}, nil

	case typeSpeechStarted:
		var e struct {
			ItemID       string `json:"item_id"`
			AudioStartMS int    `json:"audio_start_ms"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return SpeechStarted{ItemID: e.ItemID, AudioStartMS: e.AudioStartMS}, nil

	case typeSpeechStopped:
		var e struct {
			ItemID     string `json:"item_id"`
			AudioEndMS int    `json:"audio_end_ms"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return SpeechStopped{ItemID: e.ItemID, AudioEndMS: e.AudioEndMS}, nil

	case typeInputTranscription:
		var e struct {
			ItemID     string `json:"item_id"`
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return InputTranscriptionCompleted{ItemID: e.ItemID, Transcript: e.Transcript}, nil

	case typeTranscriptDelta:
		var e struct {
			ResponseID string `json:"response_id"`
			ItemID     string `json:"item_id"`
			Delta      string `json:"delta"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return TranscriptDelta{ResponseID: e.ResponseID, ItemID: e.ItemID, Delta: e.Delta}, nil

	case typeTranscriptDone:
		var e struct {
			ResponseID string `json:"response_id"`
			ItemID     string `json:"item_id"`
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return TranscriptDone{ResponseID: e.ResponseID, ItemID: e.ItemID, Transcript: e.Transcript}, nil

	case typeAudioDelta:
		var e struct {
			ResponseID string `json:"response_id"`
			ItemID     string `json:"item_id"`
			Delta      string `json:"delta"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return AudioDelta{ResponseID: e.ResponseID, ItemID: e.ItemID, DeltaBase64: e.Delta}, nil

	case typeAudioDone:
		var e struct {
			ResponseID string `json:"response_id"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return AudioDone{ResponseID: e.ResponseID}, nil

	case typeFunctionCallArgsDone:
		var e struct {
			CallID    string `json:"call_id"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return FunctionCallDone{CallID: e.CallID, Name: e.Name, Arguments: e.Arguments}, nil

	case typeResponseDone:
		var e struct {
			Response struct {
				ID            string `json:"id"`
				Status        string `json:"status"`
				StatusDetails struct {
					Error struct {
						Message string `json:"message"`
					} `json:"error"`
				} `json:"status_details"`
			} `json:"response"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return ResponseDone{
			ResponseID:   e.Response.ID,
			Status:       e.Response.Status,
			ErrorMessage: e.Response.StatusDetails.Error.Message,
		}, nil

	default:
		return UnknownEvent{EventType: env.Type, Raw: raw}, nil
	}
}

// Outbound wire payloads.

// functionCallOutput feeds a tool-call result back into the conversation.
type functionCallOutput struct {
	Type string                 `json:"type"`
	Item functionCallOutputItem `json:"item"`
}

type functionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

func newFunctionCallOutput(callID string, result map[string]any) functionCallOutput {
	out, _ := json.Marshal(result)
	return functionCallOutput{
		Type: "conversation.item.create",
		Item: functionCallOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(out),
		},
	}
}

// responseCreate asks the model to proceed after a tool result is delivered.
type responseCreate struct {
	Type string `json:"type"`
}

func newResponseCreate() responseCreate {
	return responseCreate{Type: "response.create"}
}
