// Package config provides the configuration schema, loader, and file watcher
// for the vocifer transcription service.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Stream    StreamConfig    `yaml:"stream"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Batch     BatchConfig     `yaml:"batch"`
}

// ServerConfig holds settings for the local HTTP endpoint serving health
// checks and Prometheus metrics.
type ServerConfig struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080"). Empty
	// disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// StreamConfig configures the live streaming transcription connection.
type StreamConfig struct {
	// URL is the WebSocket endpoint of the live API.
	URL string `yaml:"url"`

	// APIKey authenticates the connection. Appended as a query parameter.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier sent in the setup message
	// (e.g., "models/gemini-2.0-flash-live-001").
	Model string `yaml:"model"`

	// FlushInterval is how often buffered audio is flushed to the
	// connection. Default: 400ms.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// EarlyFlushAge forces a flush when the oldest buffered audio exceeds
	// this age even if the buffer is small. Default: 1.5s.
	EarlyFlushAge time.Duration `yaml:"early_flush_age"`

	// EarlyFlushMinSamples is the minimum number of buffered samples before
	// an age-triggered flush fires. Default: 1600 (100ms at 16kHz).
	EarlyFlushMinSamples int `yaml:"early_flush_min_samples"`

	// ResponseTimeout bounds how long a tracked request waits for its
	// correlated reply. Default: 30s.
	ResponseTimeout time.Duration `yaml:"response_timeout"`

	// PingInterval is the keepalive ping cadence. Default: 15s.
	PingInterval time.Duration `yaml:"ping_interval"`

	// QuotaCooldown is how long the session stays degraded after a quota
	// error before retrying the live connection. Default: 60s.
	QuotaCooldown time.Duration `yaml:"quota_cooldown"`
}

// AudioConfig describes the capture format and buffering.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels in the input. Multichannel input is downmixed to mono.
	// Default: 1.
	Channels int `yaml:"channels"`

	// FrameSize is the number of samples per capture frame. Default: 1600
	// (100ms at 16kHz).
	FrameSize int `yaml:"frame_size"`

	// BufferSeconds sizes the capture ring buffer. Default: 10.
	BufferSeconds int `yaml:"buffer_seconds"`

	// Realtime paces file input at capture speed instead of decoding as
	// fast as possible. Useful for replaying recordings through the live
	// pipeline.
	Realtime bool `yaml:"realtime"`
}

// VADConfig tunes the voice activity gate.
type VADConfig struct {
	// Enabled toggles silence suppression. When false every frame is
	// forwarded. Default: true (note: zero value is false; the loader
	// defaults this explicitly).
	Enabled *bool `yaml:"enabled"`

	// Threshold is the static RMS energy floor. Default: 0.01.
	Threshold float64 `yaml:"threshold"`

	// EmitEmptyResults forwards silent intervals as empty transcription
	// results instead of dropping them.
	EmitEmptyResults bool `yaml:"emit_empty_results"`
}

// ReconnectConfig tunes the reconnection schedule after connection loss.
type ReconnectConfig struct {
	// MaxAttempts before the session degrades to batch mode. Default: 10.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the initial backoff. Doubles per attempt. Default: 1s.
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps the backoff. Default: 30s.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// BreakerConfig tunes the circuit breaker guarding the batch endpoint.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before the breaker opens.
	// Default: 5.
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration `yaml:"cooldown"`

	// HalfOpenProbes is the probe budget in the half-open state. Default: 3.
	HalfOpenProbes int `yaml:"half_open_probes"`
}

// BatchConfig configures the HTTP fallback transcription endpoint.
type BatchConfig struct {
	// Endpoint is the POST URL accepting WAV uploads. Empty disables the
	// degraded mode entirely; quota errors then stop the session.
	Endpoint string `yaml:"endpoint"`

	// APIKey is sent as a bearer token.
	APIKey string `yaml:"api_key"`

	// Interval is the submit cadence while degraded. Default: half the
	// stream flush interval, floored at 500ms.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds each batch round trip. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// VADEnabled resolves the Enabled pointer with its default of true.
func (v VADConfig) VADEnabled() bool {
	if v.Enabled == nil {
		return true
	}
	return *v.Enabled
}
