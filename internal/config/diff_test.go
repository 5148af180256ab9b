package config_test

import (
	"testing"
	"time"

	"github.com/anvret/vocifer/internal/config"
)

func boolPtr(b bool) *bool { return &b }

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Stream: config.StreamConfig{
			URL:           "wss://host/ws",
			Model:         "models/live",
			FlushInterval: 400 * time.Millisecond,
		},
		VAD: config.VADConfig{Enabled: boolPtr(true), Threshold: 0.01},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.VADChanged || d.RestartRequired {
		t.Errorf("identical configs reported changes: %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	changed := baseConfig()
	changed.Server.LogLevel = config.LogDebug

	d := config.Diff(old, changed)
	if !d.LogLevelChanged {
		t.Fatal("expected LogLevelChanged")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change must not require restart")
	}
}

func TestDiff_VADChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	changed := baseConfig()
	changed.VAD.Enabled = boolPtr(false)
	changed.VAD.Threshold = 0.05
	changed.VAD.EmitEmptyResults = true

	d := config.Diff(old, changed)
	if !d.VADChanged {
		t.Fatal("expected VADChanged")
	}
	if d.NewVADEnabled {
		t.Error("NewVADEnabled = true, want false")
	}
	if d.NewVADThreshold != 0.05 {
		t.Errorf("NewVADThreshold = %v, want 0.05", d.NewVADThreshold)
	}
	if !d.NewEmitEmptyResults {
		t.Error("NewEmitEmptyResults = false, want true")
	}
	if d.RestartRequired {
		t.Error("vad change must not require restart")
	}
}

func TestDiff_VADDefaultEnabledEqualsExplicitTrue(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	old.VAD.Enabled = nil // defaults to enabled
	changed := baseConfig()
	changed.VAD.Enabled = boolPtr(true)

	if d := config.Diff(old, changed); d.VADChanged {
		t.Error("nil Enabled and explicit true must compare equal")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"stream url", func(c *config.Config) { c.Stream.URL = "wss://other/ws" }},
		{"flush interval", func(c *config.Config) { c.Stream.FlushInterval = time.Second }},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"sample rate", func(c *config.Config) { c.Audio.SampleRate = 48000 }},
		{"reconnect attempts", func(c *config.Config) { c.Reconnect.MaxAttempts = 3 }},
		{"breaker threshold", func(c *config.Config) { c.Breaker.FailureThreshold = 2 }},
		{"batch endpoint", func(c *config.Config) { c.Batch.Endpoint = "https://stt.example/v1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := baseConfig()
			changed := baseConfig()
			tt.mutate(changed)
			if d := config.Diff(old, changed); !d.RestartRequired {
				t.Error("expected RestartRequired")
			}
		})
	}
}
