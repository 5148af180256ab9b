package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anvret/vocifer/internal/audio"
	"github.com/anvret/vocifer/internal/config"
	"github.com/anvret/vocifer/internal/transport"
)

// appSocket acknowledges setup and answers the first audio flush with one
// final transcript.
type appSocket struct {
	incoming chan []byte
	closed   chan struct{}

	closeOnce   sync.Once
	respondOnce sync.Once
}

func newAppSocket() *appSocket {
	return &appSocket{
		incoming: make(chan []byte, 8),
		closed:   make(chan struct{}),
	}
}

func (s *appSocket) Send(_ context.Context, data []byte) error {
	if bytes.Contains(data, []byte(`"setup"`)) {
		s.incoming <- []byte(`{"setupComplete":{}}`)
	}
	if bytes.Contains(data, []byte(`"realtimeInput"`)) {
		s.respondOnce.Do(func() {
			s.incoming <- []byte(`{"serverContent":{"inputTranscription":{"text":"hello from the wire","is_final":true,"confidence":0.95}}}`)
		})
	}
	return nil
}

func (s *appSocket) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.incoming:
		return data, nil
	case <-s.closed:
		return nil, transport.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *appSocket) Ping(context.Context) error { return nil }

func (s *appSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type appDialer struct{}

func (appDialer) Dial(context.Context) (transport.Socket, error) {
	return newAppSocket(), nil
}

// pacedSource emits loud frames on a fixed cadence, then closes.
type pacedSource struct {
	frames   chan audio.Frame
	count    int
	interval time.Duration
}

func newPacedSource(count int, interval time.Duration) *pacedSource {
	return &pacedSource{
		frames:   make(chan audio.Frame, 4),
		count:    count,
		interval: interval,
	}
}

func (s *pacedSource) Frames() <-chan audio.Frame { return s.frames }

func (s *pacedSource) Run(ctx context.Context) error {
	defer close(s.frames)
	samples := make([]float32, 1600)
	for i := range samples {
		samples[i] = 0.5
	}
	for i := 0; i < s.count; i++ {
		frame := audio.Frame{
			Samples:    samples,
			SampleRate: 16000,
			Channels:   1,
			CapturedAt: time.Now(),
		}.Clone()
		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func testAppConfig() *config.Config {
	return &config.Config{
		Stream: config.StreamConfig{
			URL:             "wss://unused.invalid/ws",
			Model:           "models/live-test",
			FlushInterval:   20 * time.Millisecond,
			ResponseTimeout: time.Second,
			PingInterval:    time.Hour,
		},
		Audio: config.AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			FrameSize:     1600,
			BufferSeconds: 10,
		},
	}
}

func TestApp_RunWritesFinalTranscript(t *testing.T) {
	var out bytes.Buffer
	a, err := New(testAppConfig(),
		WithDialer(appDialer{}),
		WithSource(newPacedSource(10, 10*time.Millisecond)),
		WithOutput(&out),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := out.String(); !strings.Contains(got, "hello from the wire") {
		t.Errorf("output = %q, want transcript line", got)
	}
	if got := a.Transcript().FullText(); got != "hello from the wire" {
		t.Errorf("FullText = %q", got)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_RequiresModel(t *testing.T) {
	cfg := testAppConfig()
	cfg.Stream.Model = ""
	if _, err := New(cfg, WithDialer(appDialer{})); err == nil {
		t.Error("New accepted empty model")
	}
}

func TestDialURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StreamConfig
		want string
	}{
		{
			"no key",
			config.StreamConfig{URL: "wss://host/ws"},
			"wss://host/ws",
		},
		{
			"key appended",
			config.StreamConfig{URL: "wss://host/ws", APIKey: "secret"},
			"wss://host/ws?key=secret",
		},
		{
			"key joins existing query",
			config.StreamConfig{URL: "wss://host/ws?alt=json", APIKey: "a b"},
			"wss://host/ws?alt=json&key=a+b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dialURL(tt.cfg); got != tt.want {
				t.Errorf("dialURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{config.LogLevel(""), slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := SlogLevel(tt.level); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
