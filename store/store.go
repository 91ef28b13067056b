// Package store persists voice agent configurations. An agent bundles the
// instructions, voice and webhook setup a session is started from.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/voicelane/voicelane"
)

// ErrNotFound is returned when no agent matches the requested id.
var ErrNotFound = errors.New("agent not found in store")

// Agent is a stored voice agent configuration.
type Agent struct {
	ID           uuid.UUID                 `json:"id"`
	Name         string                    `json:"name"`
	Description  string                    `json:"description"`
	SystemPrompt string                    `json:"system_prompt"`
	Voice        string                    `json:"voice"`
	VADThreshold float64                   `json:"vad_threshold"`
	StopSecs     float64                   `json:"stop_secs"`
	PhoneNumber  string                    `json:"phone_number"`
	Webhooks     []voicelane.WebhookConfig `json:"webhooks"`
	Active       bool                      `json:"active"`
	CreatedAt    time.Time                 `json:"created_at"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// AgentStore is the persistence interface for agents.
type AgentStore interface {
	List(ctx context.Context) ([]Agent, error)
	Get(ctx context.Context, id uuid.UUID) (Agent, error)
	Create(ctx context.Context, a Agent) (Agent, error)
	Update(ctx context.Context, a Agent) (Agent, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Agent, error)
	Close() error
}
