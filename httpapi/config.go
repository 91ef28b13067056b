// Package httpapi exposes the orchestrator's server-side HTTP surface: agent
// CRUD, credential issuance, the webhook test proxy and meeting bot control.
package httpapi

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the orchestrator server.
type Config struct {
	BindAddr         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration
	AllowedOrigins   []string

	// ProviderSecret authorizes credential issuance against the realtime
	// provider. Required; its absence is a fatal configuration error.
	ProviderSecret     string
	CredentialEndpoint string
	Model              string
	DefaultVoice       string

	BotPlatformURL  string
	BotPollInterval time.Duration
	DatabaseURL     string
}

// LoadConfig reads environment variables and applies safe defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		BindAddr:           envOrDefault("VOICELANE_BIND_ADDR", ":8080"),
		MetricsNamespace:   envOrDefault("VOICELANE_METRICS_NAMESPACE", "voicelane"),
		ShutdownTimeout:    15 * time.Second,
		ProviderSecret:     trimmedEnv("VOICELANE_PROVIDER_SECRET"),
		CredentialEndpoint: trimmedEnv("VOICELANE_CREDENTIAL_ENDPOINT"),
		Model:              envOrDefault("VOICELANE_MODEL", "gpt-4o-realtime-preview"),
		DefaultVoice:       envOrDefault("VOICELANE_DEFAULT_VOICE", "alloy"),
		BotPlatformURL:     trimmedEnv("VOICELANE_BOT_PLATFORM_URL"),
		DatabaseURL:        trimmedEnv("DATABASE_URL"),
	}

	if origins := trimmedEnv("VOICELANE_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("VOICELANE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BotPollInterval, err = durationFromEnv("VOICELANE_BOT_POLL_INTERVAL", 3*time.Second)
	if err != nil {
		return Config{}, err
	}

	if cfg.ProviderSecret == "" {
		return Config{}, fmt.Errorf("VOICELANE_PROVIDER_SECRET is required")
	}
	if cfg.CredentialEndpoint == "" {
		return Config{}, fmt.Errorf("VOICELANE_CREDENTIAL_ENDPOINT is required")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}
