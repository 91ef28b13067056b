package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voicelane/voicelane"
	"github.com/voicelane/voicelane/meetbot"
	"github.com/voicelane/voicelane/metrics"
	"github.com/voicelane/voicelane/store"
)

// Server wires the orchestrator's HTTP surface together.
type Server struct {
	cfg        Config
	agents     store.AgentStore
	broker     *voicelane.Broker
	dispatcher *voicelane.Dispatcher
	botClient  *meetbot.Client
	metrics    *metrics.Metrics
	logger     *voicelane.Logger

	botMu sync.Mutex
	bots  map[string]*meetbot.Monitor
}

// New creates a Server. The bot client is optional; bot endpoints return 501
// when no platform URL is configured.
func New(cfg Config, agents store.AgentStore, broker *voicelane.Broker, dispatcher *voicelane.Dispatcher, botClient *meetbot.Client, m *metrics.Metrics, logger *voicelane.Logger) *Server {
	return &Server{
		cfg:        cfg,
		agents:     agents,
		broker:     broker,
		dispatcher: dispatcher,
		botClient:  botClient,
		metrics:    m,
		logger:     logger,
		bots:       make(map[string]*meetbot.Monitor),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/api/realtime/credential", s.handleMintCredential)
	r.Post("/api/webhooks/test", s.handleWebhookTest)

	r.Get("/api/agents", s.handleListAgents)
	r.Post("/api/agents", s.handleCreateAgent)
	r.Get("/api/agents/{id}", s.handleGetAgent)
	r.Put("/api/agents/{id}", s.handleUpdateAgent)
	r.Delete("/api/agents/{id}", s.handleDeleteAgent)
	r.Post("/api/agents/{id}/toggle", s.handleToggleAgent)

	r.Post("/api/bots", s.handleLaunchBot)
	r.Get("/api/bots/{id}", s.handleBotStatus)
	r.Post("/api/bots/{id}/stop", s.handleStopBot)

	return r
}

// corsMiddleware allows the dashboard origin to call the API directly. The
// webhook test proxy exists for the same reason: operator-configured webhook
// targets do not serve CORS headers, so the browser cannot call them.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type credentialRequest struct {
	AgentID      string                    `json:"agent_id,omitempty"`
	Instructions string                    `json:"instructions,omitempty"`
	Voice        string                    `json:"voice,omitempty"`
	Webhooks     []voicelane.WebhookConfig `json:"webhooks,omitempty"`
}

type credentialResponse struct {
	Credential string    `json:"credential"`
	SessionID  string    `json:"session_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Voice      string    `json:"voice"`
	ToolCount  int       `json:"tool_count"`
}

// handleMintCredential issues a short-lived session credential. The session
// configuration comes either from a stored agent (agent_id) or inline from
// the request body; it is read fresh here, never cached from render time.
func (s *Server) handleMintCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cfg, err := s.resolveSessionConfig(r, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "agent_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := voicelane.ValidateSessionConfig(cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}

	started := time.Now()
	cred, err := s.broker.Mint(r.Context(), cfg)
	if err != nil {
		var ce *voicelane.CredentialError
		if errors.As(err, &ce) {
			respondError(w, http.StatusBadGateway, "credential_rejected", ce.Error())
			return
		}
		if errors.Is(err, voicelane.ErrInvalidConfig) {
			respondError(w, http.StatusInternalServerError, "misconfigured", err.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "credential_failed", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveCredentialLatency(time.Since(started))
		s.metrics.SessionEvents.WithLabelValues("credential_minted").Inc()
	}

	respondJSON(w, http.StatusOK, credentialResponse{
		Credential: cred.Value,
		SessionID:  cred.SessionID,
		ExpiresAt:  cred.ExpiresAt,
		Voice:      cfg.Voice,
		ToolCount:  len(cfg.Tools),
	})
}

func (s *Server) resolveSessionConfig(r *http.Request, req credentialRequest) (voicelane.SessionConfig, error) {
	if req.AgentID == "" {
		voice := req.Voice
		if voice == "" {
			voice = s.cfg.DefaultVoice
		}
		return voicelane.NewSessionConfig(req.Instructions, voice, req.Webhooks), nil
	}
	id, err := uuid.Parse(req.AgentID)
	if err != nil {
		return voicelane.SessionConfig{}, errors.New("agent_id is not a valid uuid")
	}
	agent, err := s.agents.Get(r.Context(), id)
	if err != nil {
		return voicelane.SessionConfig{}, err
	}
	voice := agent.Voice
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}
	return voicelane.NewSessionConfig(agent.SystemPrompt, voice, agent.Webhooks), nil
}

type webhookTestRequest struct {
	URL     string         `json:"url"`
	Payload map[string]any `json:"payload"`
}

// handleWebhookTest proxies one webhook dispatch on behalf of the dashboard.
func (s *Server) handleWebhookTest(w http.ResponseWriter, r *http.Request) {
	var req webhookTestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	result := s.dispatcher.Invoke(r.Context(), req.URL, req.Payload)
	if s.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		s.metrics.WebhookDispatches.WithLabelValues(outcome).Inc()
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, agents)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var a store.Agent
	if err := decodeJSON(r, &a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(a.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}
	if a.Voice == "" {
		a.Voice = s.cfg.DefaultVoice
	}
	created, err := s.agents.Create(r.Context(), a)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	agent, err := s.agents.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	var a store.Agent
	if err := decodeJSON(r, &a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a.ID = id
	updated, err := s.agents.Update(r.Context(), a)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	if err := s.agents.Delete(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleToggleAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	agent, err := s.agents.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	toggled, err := s.agents.SetActive(r.Context(), id, !agent.Active)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toggled)
}

type launchBotRequest struct {
	MeetingURL string `json:"meeting_url"`
	AgentID    string `json:"agent_id"`
}

// handleLaunchBot sends a bot into a meeting using a stored agent's session
// setup and begins lifecycle polling.
func (s *Server) handleLaunchBot(w http.ResponseWriter, r *http.Request) {
	if s.botClient == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "bot platform not configured")
		return
	}
	var req launchBotRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.MeetingURL) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "meeting_url is required")
		return
	}

	cfg, err := s.resolveSessionConfig(r, credentialRequest{AgentID: req.AgentID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "agent_not_found", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var endOnce sync.Once
	sessionEnded := func() {
		if s.metrics != nil {
			endOnce.Do(s.metrics.ActiveSessions.Dec)
		}
	}
	mon := meetbot.NewMonitor(s.botClient, meetbot.MonitorOptions{
		Interval: s.cfg.BotPollInterval,
		Logger:   s.logger,
		OnPhase: func(p meetbot.Phase) {
			if p.Terminal() {
				sessionEnded()
			}
		},
		Observe: func(result string) {
			if s.metrics != nil {
				s.metrics.BotPolls.WithLabelValues(result).Inc()
			}
		},
	})
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	snap, err := mon.Launch(r.Context(), meetbot.LaunchRequest{
		MeetingURL:   req.MeetingURL,
		SystemPrompt: cfg.Instructions,
		Voice:        cfg.Voice,
		Tools:        voicelane.WireTools(cfg.Tools),
	})
	if err != nil {
		var le *meetbot.LaunchError
		if errors.As(err, &le) {
			respondError(w, http.StatusBadGateway, "launch_failed", le.Error())
			return
		}
		respondError(w, http.StatusBadGateway, "launch_failed", err.Error())
		return
	}

	s.botMu.Lock()
	// Finished bots stay registered so the dashboard can read their final
	// state, but the registry must not grow without bound. Each launch
	// evicts entries whose monitors have already reached a terminal phase.
	for id, m := range s.bots {
		if m.Terminal() {
			delete(s.bots, id)
		}
	}
	if prev, ok := s.bots[snap.BotID]; ok {
		prev.Stop(r.Context())
	}
	s.bots[snap.BotID] = mon
	s.botMu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("bot_launched").Inc()
	}
	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	mon, ok := s.lookupBot(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, mon.SnapshotState())
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request) {
	mon, ok := s.lookupBot(w, r)
	if !ok {
		return
	}
	mon.Stop(r.Context())
	snap := mon.SnapshotState()

	s.botMu.Lock()
	delete(s.bots, chi.URLParam(r, "id"))
	s.botMu.Unlock()

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("bot_stopped").Inc()
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) lookupBot(w http.ResponseWriter, r *http.Request) (*meetbot.Monitor, bool) {
	id := chi.URLParam(r, "id")
	s.botMu.Lock()
	mon, ok := s.bots[id]
	s.botMu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "bot_not_found", "no bot with that id")
		return nil, false
	}
	return mon, true
}

func agentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_agent_id", "agent id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "agent_not_found", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "store_error", err.Error())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
