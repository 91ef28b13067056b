package voicelane

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSessionConfig_Voices(t *testing.T) {
	for _, voice := range []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"} {
		if err := ValidateSessionConfig(SessionConfig{Voice: voice}); err != nil {
			t.Errorf("expected voice %q to validate, got %v", voice, err)
		}
	}
	if err := ValidateSessionConfig(SessionConfig{Voice: ""}); err != nil {
		t.Errorf("expected empty voice to validate (provider default), got %v", err)
	}

	err := ValidateSessionConfig(SessionConfig{Voice: "robot"})
	if err == nil {
		t.Fatal("expected error for unknown voice")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateSessionConfig_InstructionsLength(t *testing.T) {
	ok := SessionConfig{Instructions: strings.Repeat("a", maxInstructionsLen)}
	if err := ValidateSessionConfig(ok); err != nil {
		t.Errorf("expected instructions at the limit to validate, got %v", err)
	}

	tooLong := SessionConfig{Instructions: strings.Repeat("a", maxInstructionsLen+1)}
	err := ValidateSessionConfig(tooLong)
	if err == nil {
		t.Fatal("expected error for over-long instructions")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewSessionConfig_BuildsTools(t *testing.T) {
	cfg := NewSessionConfig("be helpful", "coral", []WebhookConfig{
		{Name: "Book Job", Trigger: TriggerOnToolCall, URL: "https://x/y"},
		{Name: "End Call Report", Trigger: TriggerEndOfCall, URL: "https://x/report"},
	})
	if cfg.Instructions != "be helpful" || cfg.Voice != "coral" {
		t.Errorf("expected instructions and voice carried, got %+v", cfg)
	}
	if len(cfg.Tools) != 1 {
		t.Fatalf("expected 1 derived tool, got %d", len(cfg.Tools))
	}
	if cfg.Tools[0].Name != "book_job" {
		t.Errorf("expected book_job, got %q", cfg.Tools[0].Name)
	}
}
