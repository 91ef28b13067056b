package voicelane

import (
	"fmt"
	"time"
)

// WebhookTrigger enumerates when an operator-configured webhook fires.
// Only TriggerOnToolCall webhooks are exposed to the model as tools.
type WebhookTrigger string

const (
	// TriggerOnToolCall fires when the model invokes the derived tool.
	TriggerOnToolCall WebhookTrigger = "on_tool_call"
	// TriggerEndOfCall fires once when a session ends.
	TriggerEndOfCall WebhookTrigger = "end_of_call"
	// TriggerOnKeyword fires when a configured keyword is heard.
	TriggerOnKeyword WebhookTrigger = "on_keyword"
	// TriggerManual fires only when tested explicitly from the dashboard.
	TriggerManual WebhookTrigger = "manual"
)

// WebhookConfig is an operator-configured HTTP endpoint owned by the agent
// record. It is read-only input to the orchestrator.
type WebhookConfig struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Trigger       WebhookTrigger `json:"trigger"`
	URL           string         `json:"url"`
	PayloadFields []string       `json:"payloadFields"`
}

// SessionConfig is the immutable input to a session. It is built fresh at
// connection time from the current agent record, so edits made before
// connecting take effect.
type SessionConfig struct {
	// Instructions provide system-level guidance to the model.
	Instructions string

	// Voice selects the model's speaking voice. Empty uses the provider
	// default.
	Voice string

	// Tools are the callable tool definitions derived from the agent's
	// webhook set, in configuration order.
	Tools []ToolDefinition
}

// NewSessionConfig derives a SessionConfig from the current agent record.
// Tool definitions are built once here; the per-session tool-to-webhook map
// is derived from the same list and never mutated afterwards.
func NewSessionConfig(instructions, voice string, webhooks []WebhookConfig) SessionConfig {
	return SessionConfig{
		Instructions: instructions,
		Voice:        voice,
		Tools:        BuildTools(webhooks),
	}
}

// validVoices are the speaking voices accepted by the realtime provider.
var validVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"}

// maxInstructionsLen bounds the system prompt accepted by the provider.
const maxInstructionsLen = 10000

// ValidateSessionConfig performs validation on a session configuration.
func ValidateSessionConfig(cfg SessionConfig) error {
	if cfg.Voice != "" {
		valid := false
		for _, v := range validVoices {
			if cfg.Voice == v {
				valid = true
				break
			}
		}
		if !valid {
			return NewConfigurationError("Voice", cfg.Voice, fmt.Sprintf("must be one of: %v", validVoices))
		}
	}

	if len(cfg.Instructions) > maxInstructionsLen {
		return NewConfigurationError("Instructions", "",
			fmt.Sprintf("too long (%d characters), maximum is %d", len(cfg.Instructions), maxInstructionsLen))
	}

	for _, t := range cfg.Tools {
		if t.Name == "" {
			return NewConfigurationError("Tools", "", "tool with empty name")
		}
		if t.WebhookURL == "" {
			return NewConfigurationError("Tools", t.Name, "tool with no bound webhook URL")
		}
	}

	return nil
}

// Credential is a short-lived token authorizing exactly one transport
// negotiation. It encodes the session configuration server-side, so no
// configuration is re-sent after the transport connects.
type Credential struct {
	Value     string    // Opaque credential value presented as a Bearer token
	SessionID string    // Provider-assigned session identifier, if any
	ExpiresAt time.Time // Zero when the provider returned no expiry
}
