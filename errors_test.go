package voicelane

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigurationError_IsInvalidConfig(t *testing.T) {
	err := NewConfigurationError("Voice", "robot", "must be one of the known voices")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("expected ConfigurationError to match ErrInvalidConfig")
	}
	if !strings.Contains(err.Error(), "Voice") || !strings.Contains(err.Error(), "robot") {
		t.Errorf("expected field and value in message, got %q", err.Error())
	}
}

func TestCredentialError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewCredentialError(0, "credential endpoint unreachable", cause)
	if !errors.Is(err, cause) {
		t.Error("expected CredentialError to unwrap to its cause")
	}

	wrapped := fmt.Errorf("starting session: %w", err)
	var ce *CredentialError
	if !errors.As(wrapped, &ce) {
		t.Error("expected errors.As to find CredentialError through wrapping")
	}
}

func TestCredentialError_Message(t *testing.T) {
	withStatus := NewCredentialError(401, "invalid api key", nil)
	if !strings.Contains(withStatus.Error(), "401") {
		t.Errorf("expected status in message, got %q", withStatus.Error())
	}
	withoutStatus := NewCredentialError(0, "unreachable", nil)
	if strings.Contains(withoutStatus.Error(), "status") {
		t.Errorf("expected no status clause for status 0, got %q", withoutStatus.Error())
	}
}

func TestTransportError_TruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 1000)
	err := NewTransportError("exchange", 500, body, nil)
	if len(err.Body) != maxTransportErrorBody {
		t.Errorf("expected body capped at %d characters, got %d", maxTransportErrorBody, len(err.Body))
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := errors.New("tls handshake failed")
	err := NewTransportError("exchange", 0, "", cause)
	if !errors.Is(err, cause) {
		t.Error("expected TransportError to unwrap to its cause")
	}
}

func TestToolResolutionError_Message(t *testing.T) {
	err := &ToolResolutionError{Tool: "ghost_tool"}
	if !strings.Contains(err.Error(), "ghost_tool") {
		t.Errorf("expected tool name in message, got %q", err.Error())
	}
}

func TestWebhookDispatchError_Message(t *testing.T) {
	withStatus := &WebhookDispatchError{URL: "https://x/y", Status: 503}
	if !strings.Contains(withStatus.Error(), "503") {
		t.Errorf("expected status in message, got %q", withStatus.Error())
	}
	network := &WebhookDispatchError{URL: "https://x/y", Reason: "connection refused"}
	if !strings.Contains(network.Error(), "connection refused") {
		t.Errorf("expected reason in message, got %q", network.Error())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{name: "shorter than limit", input: "abc", n: 10, expected: "abc"},
		{name: "exactly at limit", input: "abc", n: 3, expected: "abc"},
		{name: "over limit", input: "abcdef", n: 3, expected: "abc"},
		{name: "empty", input: "", n: 3, expected: ""},
		{name: "counts runes not bytes", input: "héllo wörld", n: 5, expected: "héllo"},
		{name: "no split inside a rune", input: "日本語テスト", n: 2, expected: "日本"},
		{name: "multi-byte within limit", input: "日本語", n: 3, expected: "日本語"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.input, tt.n); got != tt.expected {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.expected)
			}
		})
	}
}
