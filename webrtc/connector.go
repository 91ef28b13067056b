// Package webrtc provides the browser-grade session transport: it trades an
// SDP offer for an answer over HTTP using an ephemeral credential and exposes
// the provider's "realtime-channel" data channel as a voicelane.EventChannel.
package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v3"

	"github.com/voicelane/voicelane"
)

const (
	dataChannelName = "realtime-channel"
	exchangeTimeout = 20 * time.Second
)

// AudioSource supplies the local audio track published into the session.
// Implementations own the underlying capture pipeline; Stop releases it.
type AudioSource interface {
	Track() (pion.TrackLocal, error)
	Stop()
}

// SilentAudioSource publishes an opus track that never carries samples. It
// stands in for live capture in headless and test environments.
type SilentAudioSource struct{}

func (SilentAudioSource) Track() (pion.TrackLocal, error) {
	return pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus},
		"audio", "voicelane",
	)
}

func (SilentAudioSource) Stop() {}

// Connector negotiates a WebRTC session against the provider's SDP exchange
// endpoint. It implements voicelane.TransportConnector.
type Connector struct {
	// ExchangeURL is the SDP offer/answer endpoint.
	ExchangeURL string
	// Model is appended to the exchange URL as a query parameter.
	Model string
	// Source provides the published audio track. Required.
	Source AudioSource
	// IceServers optionally overrides the default ICE configuration.
	IceServers []pion.ICEServer
	// OnRemoteTrack, when set, receives each inbound remote track.
	OnRemoteTrack func(track *pion.TrackRemote)

	HTTPClient *http.Client
	Logger     *voicelane.Logger
}

// Connect acquires the audio source, negotiates the peer connection and
// returns the session handles. The progress callback observes the
// intermediate connection states.
func (c *Connector) Connect(ctx context.Context, cred voicelane.Credential, progress func(voicelane.State)) (*voicelane.SessionHandles, error) {
	if c.ExchangeURL == "" {
		return nil, voicelane.NewConfigurationError("ExchangeURL", "", "exchange URL is required")
	}
	if c.Source == nil {
		return nil, fmt.Errorf("acquire audio source: %w", voicelane.ErrMicrophoneDenied)
	}

	if progress != nil {
		progress(voicelane.StateAcquiringMicrophone)
	}
	track, err := c.Source.Track()
	if err != nil {
		return nil, fmt.Errorf("acquire audio source: %w: %v", voicelane.ErrMicrophoneDenied, err)
	}

	if progress != nil {
		progress(voicelane.StateNegotiating)
	}

	cfg := pion.Configuration{}
	if len(c.IceServers) > 0 {
		cfg.ICEServers = c.IceServers
	}
	pc, err := pion.NewPeerConnection(cfg)
	if err != nil {
		c.Source.Stop()
		return nil, voicelane.NewTransportError("peer", 0, "", err)
	}

	fail := func(stage string, status int, body string, cause error) (*voicelane.SessionHandles, error) {
		pc.Close()
		c.Source.Stop()
		return nil, voicelane.NewTransportError(stage, status, body, cause)
	}

	dc, err := pc.CreateDataChannel(dataChannelName, nil)
	if err != nil {
		return fail("datachannel", 0, "", err)
	}
	ch := newDCChannel(dc, c.Logger)

	pc.OnConnectionStateChange(func(st pion.PeerConnectionState) {
		c.logEvent("webrtc_connection_state", map[string]interface{}{"state": st.String()})
		switch st {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateDisconnected:
			ch.fail(fmt.Errorf("peer connection %s", st))
		case pion.PeerConnectionStateClosed:
			ch.closeEvents(nil)
		}
	})
	if c.OnRemoteTrack != nil {
		pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
			c.OnRemoteTrack(track)
		})
	}

	if _, err := pc.AddTrack(track); err != nil {
		return fail("track", 0, "", err)
	}
	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fail("track", 0, "", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail("offer", 0, "", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail("offer", 0, "", err)
	}

	answer, status, body, err := c.exchange(ctx, cred, offer.SDP)
	if err != nil {
		return fail("exchange", status, body, err)
	}
	if err := pc.SetRemoteDescription(pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return fail("answer", 0, "", err)
	}

	return &voicelane.SessionHandles{
		Channel:   ch,
		Transport: pc,
		StopMedia: c.Source.Stop,
	}, nil
}

func (c *Connector) exchange(ctx context.Context, cred voicelane.Credential, sdp string) (answer string, status int, body string, err error) {
	url := c.ExchangeURL
	if c.Model != "" {
		url = fmt.Sprintf("%s?model=%s", url, c.Model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(sdp))
	if err != nil {
		return "", 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.Value)
	req.Header.Set("Content-Type", "application/sdp")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: exchangeTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", resp.StatusCode, string(b), fmt.Errorf("SDP exchange rejected")
	}
	return string(b), resp.StatusCode, "", nil
}

func (c *Connector) logEvent(event string, fields map[string]interface{}) {
	if c.Logger != nil {
		c.Logger.Debug(event, fields)
	}
}

// dcChannel adapts a pion data channel to the voicelane.EventChannel contract.
type dcChannel struct {
	dc     *pion.DataChannel
	events chan []byte
	logger *voicelane.Logger

	mu      sync.Mutex
	once    sync.Once
	termErr error
	closed  bool
}

func newDCChannel(dc *pion.DataChannel, logger *voicelane.Logger) *dcChannel {
	ch := &dcChannel{
		dc:     dc,
		events: make(chan []byte, 512),
		logger: logger,
	}
	dc.OnMessage(func(m pion.DataChannelMessage) {
		ch.deliver(m.Data)
	})
	dc.OnClose(func() {
		ch.closeEvents(nil)
	})
	return ch
}

// deliver queues a data channel message for the consumer. Dropping or
// reordering events would corrupt transcript assembly downstream, so a full
// buffer ends the session instead of losing the message.
func (c *dcChannel) deliver(data []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.events <- data:
		c.mu.Unlock()
		return
	default:
	}
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Error("datachannel_event_overflow", map[string]interface{}{"bytes": len(data)})
	}
	c.fail(errors.New("event buffer overflow, consumer stalled"))
}

func (c *dcChannel) fail(err error) {
	c.closeEvents(err)
}

func (c *dcChannel) closeEvents(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.termErr = err
	close(c.events)
}

// Send marshals payload as JSON and writes it to the data channel.
func (c *dcChannel) Send(_ context.Context, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return voicelane.ErrSessionClosed
	}
	return c.dc.Send(b)
}

func (c *dcChannel) Events() <-chan []byte { return c.events }

func (c *dcChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.termErr
}

func (c *dcChannel) Close() error {
	var err error
	c.once.Do(func() {
		err = c.dc.Close()
		c.closeEvents(nil)
	})
	return err
}
