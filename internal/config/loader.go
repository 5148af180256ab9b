package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] when the corresponding field is unset.
const (
	DefaultSampleRate           = 16000
	DefaultChannels             = 1
	DefaultFrameSize            = 1600
	DefaultBufferSeconds        = 10
	DefaultFlushInterval        = 400 * time.Millisecond
	DefaultEarlyFlushAge        = 1500 * time.Millisecond
	DefaultEarlyFlushMinSamples = 1600
	DefaultResponseTimeout      = 30 * time.Second
	DefaultPingInterval         = 15 * time.Second
	DefaultQuotaCooldown        = 60 * time.Second
	DefaultReconnectAttempts    = 10
	DefaultReconnectBase        = 1 * time.Second
	DefaultReconnectMax         = 30 * time.Second
	DefaultBatchTimeout         = 30 * time.Second
	DefaultVADThreshold         = 0.01
	minBatchInterval            = 500 * time.Millisecond
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = DefaultChannels
	}
	if cfg.Audio.FrameSize <= 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Audio.BufferSeconds <= 0 {
		cfg.Audio.BufferSeconds = DefaultBufferSeconds
	}
	if cfg.Stream.FlushInterval <= 0 {
		cfg.Stream.FlushInterval = DefaultFlushInterval
	}
	if cfg.Stream.EarlyFlushAge <= 0 {
		cfg.Stream.EarlyFlushAge = DefaultEarlyFlushAge
		// An explicit flush interval longer than the default age would make
		// the defaults self-contradictory.
		if cfg.Stream.EarlyFlushAge < cfg.Stream.FlushInterval {
			cfg.Stream.EarlyFlushAge = cfg.Stream.FlushInterval
		}
	}
	if cfg.Stream.EarlyFlushMinSamples <= 0 {
		cfg.Stream.EarlyFlushMinSamples = DefaultEarlyFlushMinSamples
	}
	if cfg.Stream.ResponseTimeout <= 0 {
		cfg.Stream.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.Stream.PingInterval <= 0 {
		cfg.Stream.PingInterval = DefaultPingInterval
	}
	if cfg.Stream.QuotaCooldown <= 0 {
		cfg.Stream.QuotaCooldown = DefaultQuotaCooldown
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		cfg.Reconnect.MaxAttempts = DefaultReconnectAttempts
	}
	if cfg.Reconnect.BaseDelay <= 0 {
		cfg.Reconnect.BaseDelay = DefaultReconnectBase
	}
	if cfg.Reconnect.MaxDelay <= 0 {
		cfg.Reconnect.MaxDelay = DefaultReconnectMax
	}
	if cfg.VAD.Threshold <= 0 {
		cfg.VAD.Threshold = DefaultVADThreshold
	}
	if cfg.Batch.Interval <= 0 {
		// Degraded submissions run at half the stream flush cadence so the
		// latency hit of batch mode stays small, but never below 500ms.
		cfg.Batch.Interval = cfg.Stream.FlushInterval / 2
		if cfg.Batch.Interval < minBatchInterval {
			cfg.Batch.Interval = minBatchInterval
		}
	}
	if cfg.Batch.Timeout <= 0 {
		cfg.Batch.Timeout = DefaultBatchTimeout
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Stream.URL == "" {
		errs = append(errs, errors.New("stream.url is required"))
	} else if u, err := url.Parse(cfg.Stream.URL); err != nil {
		errs = append(errs, fmt.Errorf("stream.url is not a valid URL: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("stream.url scheme %q is invalid; must be ws or wss", u.Scheme))
	}
	if cfg.Stream.Model == "" {
		errs = append(errs, errors.New("stream.model is required"))
	}
	if cfg.Stream.EarlyFlushAge < cfg.Stream.FlushInterval {
		errs = append(errs, fmt.Errorf("stream.early_flush_age %v must not be shorter than stream.flush_interval %v", cfg.Stream.EarlyFlushAge, cfg.Stream.FlushInterval))
	}

	switch cfg.Audio.SampleRate {
	case 8000, 16000, 24000, 44100, 48000:
	default:
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is not a supported rate", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize > cfg.Audio.SampleRate*cfg.Audio.BufferSeconds {
		errs = append(errs, fmt.Errorf("audio.frame_size %d exceeds the ring buffer capacity", cfg.Audio.FrameSize))
	}

	if cfg.VAD.Threshold < 0 || cfg.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold %.3f is out of range [0, 1]", cfg.VAD.Threshold))
	}

	if cfg.Batch.Endpoint == "" {
		slog.Warn("batch.endpoint is empty; quota errors will stop the session instead of degrading to batch mode")
	} else if _, err := url.Parse(cfg.Batch.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("batch.endpoint is not a valid URL: %w", err))
	}

	return errors.Join(errs...)
}
