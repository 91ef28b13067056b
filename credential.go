package voicelane

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// Broker exchanges a session configuration for a short-lived credential via
// the provider's credential-issuance endpoint. It holds the long-lived
// provider secret and therefore runs server-side only; the secret is never
// exposed to the client that will use the credential.
type Broker struct {
	// Endpoint is the provider's session-creation URL.
	Endpoint string

	// Secret is the long-lived provider secret. Its absence is a fatal
	// configuration error, never silently defaulted.
	Secret string

	// Model is the realtime model identifier embedded in every request.
	Model string

	// HTTPClient defaults to a client with a 15 second timeout.
	HTTPClient *http.Client

	// Logger receives one event per exchange. Optional.
	Logger *Logger
}

// sessionRequest is the session-creation payload. Tool entries are sanitized:
// local bookkeeping fields never leave the process.
type sessionRequest struct {
	Model        string     `json:"model"`
	Voice        string     `json:"voice,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Tools        []WireTool `json:"tools,omitempty"`
}

// sessionResponse covers both response shapes seen from the provider: a flat
// client_secret string and a nested object carrying value and expiry.
type sessionResponse struct {
	ID           string          `json:"id"`
	ExpiresAt    int64           `json:"expires_at"`
	ClientSecret json.RawMessage `json:"client_secret"`
}

type remoteError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Mint exchanges cfg for a short-lived credential. The returned credential
// encodes voice, instructions, and tools, so the transport connection that
// follows needs no further configuration handshake.
func (b *Broker) Mint(ctx context.Context, cfg SessionConfig) (Credential, error) {
	if b.Secret == "" {
		return Credential{}, NewConfigurationError("Secret", "", "provider secret is not configured")
	}
	if b.Endpoint == "" {
		return Credential{}, NewConfigurationError("Endpoint", "", "credential issuance endpoint is not configured")
	}

	payload := sessionRequest{
		Model:        b.Model,
		Voice:        cfg.Voice,
		Instructions: cfg.Instructions,
		Tools:        WireTools(cfg.Tools),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Credential{}, NewCredentialError(0, "encode session request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Credential{}, NewCredentialError(0, "build session request", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.Secret)
	req.Header.Set("Content-Type", "application/json")

	client := b.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Credential{}, NewCredentialError(0, "credential endpoint unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, NewCredentialError(resp.StatusCode, "read response", err)
	}

	if resp.StatusCode/100 != 2 {
		msg := remoteErrorMessage(raw)
		b.Logger.Warn("credential_mint_failed", map[string]any{"status": resp.StatusCode, "message": msg})
		return Credential{}, NewCredentialError(resp.StatusCode, msg, nil)
	}

	var sr sessionResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return Credential{}, NewCredentialError(resp.StatusCode, "decode response", err)
	}

	value, expiresAt, ok := extractSecret(sr.ClientSecret)
	if !ok {
		return Credential{}, NewCredentialError(resp.StatusCode, "response contained no usable credential", nil)
	}
	if expiresAt == 0 {
		expiresAt = sr.ExpiresAt
	}

	cred := Credential{Value: value, SessionID: sr.ID}
	if expiresAt > 0 {
		cred.ExpiresAt = time.Unix(expiresAt, 0)
	}

	b.Logger.Info("credential_minted", map[string]any{
		"session_id": sr.ID,
		"tools":      len(cfg.Tools),
		"expires_at": expiresAt,
	})
	return cred, nil
}

// extractSecret reads the credential value from either the flat string shape
// or the nested {value, expires_at} shape.
func extractSecret(raw json.RawMessage) (value string, expiresAt int64, ok bool) {
	if len(raw) == 0 {
		return "", 0, false
	}

	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil && flat != "" {
		return flat, 0, true
	}

	var nested struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Value != "" {
		return nested.Value, nested.ExpiresAt, true
	}
	return "", 0, false
}

func remoteErrorMessage(raw []byte) string {
	var re remoteError
	if err := json.Unmarshal(raw, &re); err == nil && re.Error.Message != "" {
		return re.Error.Message
	}
	if len(raw) > 0 {
		return truncate(string(raw), maxTransportErrorBody)
	}
	return "empty error response"
}
