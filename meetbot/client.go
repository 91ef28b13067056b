// Package meetbot manages remote meeting bots: launching a bot into a video
// meeting on the bot platform, polling its lifecycle, and stopping it.
package meetbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicelane/voicelane"
)

const defaultRequestTimeout = 15 * time.Second

// LaunchRequest describes the session the remote bot should run.
type LaunchRequest struct {
	MeetingURL   string               `json:"meeting_url"`
	SystemPrompt string               `json:"system_prompt"`
	Voice        string               `json:"voice"`
	Tools        []voicelane.WireTool `json:"tools,omitempty"`
}

// LaunchResponse is the platform's reply to a launch request.
type LaunchResponse struct {
	Success   bool   `json:"success"`
	BotID     string `json:"botId"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
}

// StatusResponse is the platform's reply to a status poll.
type StatusResponse struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// LaunchError reports a launch the platform rejected.
type LaunchError struct {
	Status  int
	Message string
}

func (e *LaunchError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bot launch failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("bot launch failed (status %d)", e.Status)
}

// Client talks to the bot platform's HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *voicelane.Logger
}

// NewClient creates a Client with a default HTTP timeout.
func NewClient(baseURL string, logger *voicelane.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultRequestTimeout},
		Logger:     logger,
	}
}

// Launch asks the platform to join a meeting with the given session setup.
func (c *Client) Launch(ctx context.Context, lr LaunchRequest) (LaunchResponse, error) {
	var out LaunchResponse
	if lr.MeetingURL == "" {
		return out, voicelane.NewConfigurationError("MeetingURL", "", "meeting URL is required")
	}
	body, err := json.Marshal(lr)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/bots", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	if resp.StatusCode/100 != 2 {
		return out, &LaunchError{Status: resp.StatusCode, Message: string(b)}
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	if !out.Success {
		return out, &LaunchError{Status: resp.StatusCode, Message: out.Error}
	}
	c.logEvent("bot_launched", map[string]interface{}{"bot_id": out.BotID, "session_id": out.SessionID})
	return out, nil
}

// Status polls the platform for the bot's current lifecycle status.
func (c *Client) Status(ctx context.Context, botID string) (StatusResponse, error) {
	var out StatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/bots/"+botID, nil)
	if err != nil {
		return out, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return out, fmt.Errorf("bot status: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// Stop asks the platform to make the bot leave its meeting. The request is
// best effort; callers treat failures as advisory.
func (c *Client) Stop(ctx context.Context, botID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/bots/"+botID+"/stop", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("bot stop: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) logEvent(event string, fields map[string]interface{}) {
	if c.Logger != nil {
		c.Logger.Info(event, fields)
	}
}
