package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
stream:
  url: wss://example.com/live
  api_key: secret
  model: models/live-1
audio:
  sample_rate: 16000
batch:
  endpoint: http://localhost:9090/transcribe
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Stream.URL != "wss://example.com/live" {
		t.Errorf("stream.url = %q", cfg.Stream.URL)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.FrameSize != DefaultFrameSize {
		t.Errorf("frame_size = %d, want %d", cfg.Audio.FrameSize, DefaultFrameSize)
	}
	if cfg.Stream.FlushInterval != DefaultFlushInterval {
		t.Errorf("flush_interval = %v, want %v", cfg.Stream.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Stream.ResponseTimeout != 30*time.Second {
		t.Errorf("response_timeout = %v, want 30s", cfg.Stream.ResponseTimeout)
	}
	if !cfg.VAD.VADEnabled() {
		t.Error("vad should default to enabled")
	}
	if cfg.VAD.Threshold != DefaultVADThreshold {
		t.Errorf("vad.threshold = %f, want %f", cfg.VAD.Threshold, DefaultVADThreshold)
	}
	// Half of 400ms is under the floor, so the floor wins.
	if cfg.Batch.Interval != 500*time.Millisecond {
		t.Errorf("batch.interval = %v, want 500ms", cfg.Batch.Interval)
	}
}

func TestLoadFromReader_BatchIntervalDerivedFromFlush(t *testing.T) {
	yaml := strings.Replace(validYAML, "stream:", "stream:\n  flush_interval: 2s", 1)
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Batch.Interval != time.Second {
		t.Errorf("batch.interval = %v, want 1s (half of flush_interval)", cfg.Batch.Interval)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := validYAML + "\nbogus_section:\n  x: 1\n"
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Audio.SampleRate = 12345
	cfg.VAD.Threshold = 3.0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "stream.url is required", "stream.model is required", "sample_rate", "vad.threshold"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error missing %q: %s", want, msg)
		}
	}
}

func TestValidate_StreamURLScheme(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(strings.Replace(validYAML,
		"wss://example.com/live", "https://example.com/live", 1)))
	if err == nil {
		t.Fatalf("expected scheme error, got config %+v", cfg)
	}
	if !strings.Contains(err.Error(), "must be ws or wss") {
		t.Errorf("err = %v", err)
	}
}

func TestValidate_EarlyFlushAgeOrdering(t *testing.T) {
	yaml := strings.Replace(validYAML, "stream:",
		"stream:\n  flush_interval: 2s\n  early_flush_age: 1s", 1)
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "early_flush_age") {
		t.Fatalf("err = %v, want early_flush_age ordering error", err)
	}
}
