package meetbot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voicelane/voicelane"
)

// Phase is the local view of a remote bot's lifecycle.
type Phase int

const (
	PhaseCreating Phase = iota
	PhaseJoining
	PhaseWaitingRoom
	PhaseInCall
	PhaseEnded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreating:
		return "creating"
	case PhaseJoining:
		return "joining"
	case PhaseWaitingRoom:
		return "waiting_room"
	case PhaseInCall:
		return "in_call"
	case PhaseEnded:
		return "ended"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase stops the polling loop.
func (p Phase) Terminal() bool { return p == PhaseEnded || p == PhaseFailed }

// UIState is the coarse display state derived from the phase.
func (p Phase) UIState() string {
	switch p {
	case PhaseCreating, PhaseJoining, PhaseWaitingRoom:
		return "joining"
	case PhaseInCall:
		return "in_call"
	case PhaseEnded:
		return "done"
	case PhaseFailed:
		return "error"
	default:
		return "joining"
	}
}

// statusRule maps one remote status code pattern to a local phase. Rules are
// evaluated in order; the first match wins, so failure patterns come before
// the broader lifecycle ones.
type statusRule struct {
	substr string
	exact  string
	phase  Phase
}

var statusRules = []statusRule{
	{substr: "fatal", phase: PhaseFailed},
	{substr: "error", phase: PhaseFailed},
	{substr: "done", phase: PhaseEnded},
	{substr: "ended", phase: PhaseEnded},
	{substr: "in_call", phase: PhaseInCall},
	{exact: "active", phase: PhaseInCall},
	{substr: "waiting_room", phase: PhaseWaitingRoom},
	{substr: "joining", phase: PhaseJoining},
	{exact: "scheduling", phase: PhaseJoining},
}

// mapStatus translates a remote status code to a local phase. The second
// return value is false when no rule matches.
func mapStatus(status string) (Phase, bool) {
	s := strings.ToLower(strings.TrimSpace(status))
	for _, r := range statusRules {
		if r.exact != "" {
			if s == r.exact {
				return r.phase, true
			}
			continue
		}
		if strings.Contains(s, r.substr) {
			return r.phase, true
		}
	}
	return PhaseCreating, false
}

// Snapshot is a point-in-time copy of a monitored bot's state.
type Snapshot struct {
	BotID     string `json:"botId"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Message   string `json:"statusMessage,omitempty"`
	Phase     string `json:"phase"`
	UIState   string `json:"uiState"`
}

// Monitor launches a remote bot and tracks its lifecycle through a polling
// loop. One Monitor owns at most one bot and at most one polling timer.
type Monitor struct {
	client   *Client
	interval time.Duration
	logger   *voicelane.Logger
	onPhase  func(Phase)
	observe  func(result string)

	mu        sync.Mutex
	botID     string
	sessionID string
	status    string
	message   string
	phase     Phase
	cancel    context.CancelFunc
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	// Interval between status polls. Defaults to 3 seconds.
	Interval time.Duration
	// OnPhase, when set, observes each phase change.
	OnPhase func(Phase)
	// Observe, when set, receives a result label per poll ("ok",
	// "unmatched", "error") for metrics.
	Observe func(result string)
	Logger  *voicelane.Logger
}

// NewMonitor creates a Monitor around the given platform client.
func NewMonitor(client *Client, opts MonitorOptions) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Monitor{
		client:   client,
		interval: interval,
		logger:   opts.Logger,
		onPhase:  opts.OnPhase,
		observe:  opts.Observe,
		phase:    PhaseCreating,
	}
}

// Launch requests bot creation and starts the polling loop. A prior polling
// loop for this Monitor is stopped first.
func (m *Monitor) Launch(ctx context.Context, lr LaunchRequest) (Snapshot, error) {
	m.stopPolling()
	m.mu.Lock()
	m.phase = PhaseCreating
	m.status = ""
	m.message = ""
	m.mu.Unlock()

	resp, err := m.client.Launch(ctx, lr)
	if err != nil {
		m.setPhase(PhaseFailed, "", err.Error())
		return m.SnapshotState(), err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.botID = resp.BotID
	m.sessionID = resp.SessionID
	m.cancel = cancel
	m.mu.Unlock()
	m.setPhase(PhaseJoining, "", "")

	go m.poll(pollCtx, resp.BotID)
	return m.SnapshotState(), nil
}

func (m *Monitor) poll(ctx context.Context, botID string) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		st, err := m.client.Status(ctx, botID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logEvent("bot_status_poll_failed", map[string]interface{}{"bot_id": botID, "error": err.Error()})
			m.count("error")
			continue
		}
		phase, ok := mapStatus(st.Status)
		if !ok {
			m.logEvent("bot_status_unmatched", map[string]interface{}{"bot_id": botID, "status": st.Status})
			m.count("unmatched")
			continue
		}
		m.count("ok")
		m.setPhase(phase, st.Status, st.StatusMessage)
		if phase.Terminal() {
			m.stopPolling()
			return
		}
	}
}

// Stop sends a leave instruction to the platform, marks the bot Ended and
// stops polling. The leave call is fire and forget.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	botID := m.botID
	m.mu.Unlock()

	m.stopPolling()
	if botID != "" {
		if err := m.client.Stop(ctx, botID); err != nil {
			m.logEvent("bot_stop_failed", map[string]interface{}{"bot_id": botID, "error": err.Error()})
		}
	}
	m.setPhase(PhaseEnded, "", "stopped by operator")
}

func (m *Monitor) stopPolling() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Monitor) setPhase(p Phase, status, message string) {
	m.mu.Lock()
	if m.phase.Terminal() {
		m.mu.Unlock()
		return
	}
	changed := m.phase != p
	m.phase = p
	if status != "" {
		m.status = status
	}
	m.message = message
	m.mu.Unlock()

	if changed && m.onPhase != nil {
		m.onPhase(p)
	}
}

// Terminal reports whether the monitored bot has reached a final phase.
func (m *Monitor) Terminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase.Terminal()
}

// SnapshotState returns a point-in-time copy of the monitored bot's state.
func (m *Monitor) SnapshotState() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		BotID:     m.botID,
		SessionID: m.sessionID,
		Status:    m.status,
		Message:   m.message,
		Phase:     m.phase.String(),
		UIState:   m.phase.UIState(),
	}
}

func (m *Monitor) logEvent(event string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Warn(event, fields)
	}
}

func (m *Monitor) count(result string) {
	if m.observe != nil {
		m.observe(result)
	}
}
