// voicelane-session runs one headless realtime session from the terminal:
// it mints a credential, connects over WebSocket, prints the transcript and
// optionally records assistant audio to a WAV file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voicelane/voicelane"
)

type options struct {
	endpoint     string
	wsURL        string
	model        string
	voice        string
	instructions string
	webhooksPath string
	outPath      string
	timeout      time.Duration
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicelane-session: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voicelane-session: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	flag.StringVar(&cfg.endpoint, "endpoint", os.Getenv("VOICELANE_CREDENTIAL_ENDPOINT"), "credential issuance endpoint")
	flag.StringVar(&cfg.wsURL, "ws-url", os.Getenv("VOICELANE_WS_URL"), "realtime WebSocket endpoint")
	flag.StringVar(&cfg.model, "model", envOrDefault("VOICELANE_MODEL", "gpt-4o-realtime-preview"), "realtime model identifier")
	flag.StringVar(&cfg.voice, "voice", envOrDefault("VOICELANE_DEFAULT_VOICE", "alloy"), "assistant voice")
	flag.StringVar(&cfg.instructions, "instructions", "You are a helpful voice assistant.", "system instructions")
	flag.StringVar(&cfg.webhooksPath, "webhooks", "", "path to a JSON file with webhook configurations")
	flag.StringVar(&cfg.outPath, "out", "", "write assistant audio to this WAV file")
	flag.DurationVar(&cfg.timeout, "timeout", 0, "end the session after this duration (0 = run until interrupted)")
	flag.Parse()

	if strings.TrimSpace(cfg.endpoint) == "" {
		return options{}, fmt.Errorf("-endpoint or VOICELANE_CREDENTIAL_ENDPOINT is required")
	}
	if strings.TrimSpace(cfg.wsURL) == "" {
		return options{}, fmt.Errorf("-ws-url or VOICELANE_WS_URL is required")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func loadWebhooks(path string) ([]voicelane.WebhookConfig, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read webhooks file: %w", err)
	}
	var webhooks []voicelane.WebhookConfig
	if err := json.Unmarshal(b, &webhooks); err != nil {
		return nil, fmt.Errorf("parse webhooks file: %w", err)
	}
	return webhooks, nil
}

func run(cfg options) error {
	secret := strings.TrimSpace(os.Getenv("VOICELANE_PROVIDER_SECRET"))
	if secret == "" {
		return fmt.Errorf("VOICELANE_PROVIDER_SECRET is required")
	}
	webhooks, err := loadWebhooks(cfg.webhooksPath)
	if err != nil {
		return err
	}

	logger := voicelane.NewLoggerFromEnv()
	assembler := voicelane.NewAudioAssembler()
	var pcm []byte

	orch := voicelane.NewOrchestrator(voicelane.OrchestratorConfig{
		Broker: &voicelane.Broker{
			Endpoint: cfg.endpoint,
			Secret:   secret,
			Model:    cfg.model,
			Logger:   logger,
		},
		Connector: &voicelane.WSConnector{URL: cfg.wsURL, Logger: logger},
		OnState: func(st voicelane.State) {
			fmt.Printf("-- %s\n", st)
		},
		OnTranscript: func(e voicelane.TranscriptEntry) {
			marker := ""
			if e.Error {
				marker = " [error]"
			}
			fmt.Printf("[%s]%s %s\n", e.Role, marker, e.Text)
		},
		OnAudio: func(d voicelane.AudioDelta) {
			if cfg.outPath == "" {
				return
			}
			if err := assembler.OnDelta(d); err != nil {
				logger.Warn("audio_decode_failed", map[string]any{"error": err.Error()})
				return
			}
			// Drain finished buffers eagerly so memory stays bounded.
			pcm = append(pcm, assembler.OnDone(d.ResponseID)...)
		},
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	sessionCfg := voicelane.NewSessionConfig(cfg.instructions, cfg.voice, webhooks)
	if err := orch.Start(ctx, sessionCfg); err != nil {
		return err
	}
	fmt.Printf("session started (%d tools)\n", len(sessionCfg.Tools))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("interrupt received, closing session")
		orch.Cleanup()
		<-orch.Done()
	case <-ctx.Done():
		orch.Cleanup()
		<-orch.Done()
	case <-orch.Done():
	}

	if cfg.outPath != "" && len(pcm) > 0 {
		wav := voicelane.WAVFromPCM16Mono(pcm, voicelane.DefaultSampleRate)
		if err := os.WriteFile(cfg.outPath, wav, 0o644); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		fmt.Printf("wrote %d bytes of audio to %s\n", len(wav), cfg.outPath)
	}
	return nil
}
