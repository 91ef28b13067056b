package voicelane

import "time"

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// TranscriptEntry is one finished line of the session transcript. Assistant
// entries are only emitted once an utterance is complete; streaming fragments
// never surface as separate entries.
type TranscriptEntry struct {
	Role  Role      `json:"role"`
	Text  string    `json:"text"`
	Error bool      `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

// transcriptAssembler accumulates assistant transcript deltas keyed by
// response id until the matching done event flushes them as one utterance.
type transcriptAssembler struct {
	data map[string][]byte
}

func newTranscriptAssembler() *transcriptAssembler {
	return &transcriptAssembler{data: make(map[string][]byte)}
}

// OnDelta appends a streaming fragment for the given response.
func (t *transcriptAssembler) OnDelta(responseID, delta string) {
	t.data[responseID] = append(t.data[responseID], delta...)
}

// OnDone returns the complete utterance for a response and clears its state.
// When the done event carries the full transcript, that wins over the
// accumulated fragments.
func (t *transcriptAssembler) OnDone(responseID, full string) string {
	buf := t.data[responseID]
	delete(t.data, responseID)
	if full != "" {
		return full
	}
	return string(buf)
}
