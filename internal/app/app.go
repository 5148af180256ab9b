// Package app wires the vocifer subsystems into a running service: config,
// transport, the session orchestrator, the transcript recorder, the config
// watcher, and the local HTTP endpoint for health checks and metrics.
//
// New creates and connects everything, Run executes the pipeline until the
// audio source is exhausted or the context is cancelled, and Shutdown tears
// the remaining pieces down. Test doubles are injected via functional options
// (WithDialer, WithBatchTranscriber, WithSource); when an option is absent,
// New builds the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anvret/vocifer/internal/audio"
	"github.com/anvret/vocifer/internal/config"
	"github.com/anvret/vocifer/internal/health"
	"github.com/anvret/vocifer/internal/observe"
	"github.com/anvret/vocifer/internal/resilience"
	"github.com/anvret/vocifer/internal/session"
	"github.com/anvret/vocifer/internal/transcription"
	"github.com/anvret/vocifer/internal/transport"
)

// App owns the subsystem lifetimes of one vocifer process.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	level   *slog.LevelVar
	metrics *observe.Metrics

	dialer transport.Dialer
	batch  session.BatchTranscriber
	source audio.Source
	out    io.Writer

	orch     *session.Orchestrator
	recorder *Recorder
	watcher  *config.Watcher
	httpSrv  *http.Server

	configPath string

	// closers run in order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*App)

// WithDialer injects a transport dialer instead of building a WebSocket
// dialer from the stream config.
func WithDialer(d transport.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithBatchTranscriber injects a batch fallback instead of building an HTTP
// client from the batch config.
func WithBatchTranscriber(bt session.BatchTranscriber) Option {
	return func(a *App) { a.batch = bt }
}

// WithSource injects the audio source feeding the session.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithOutput redirects finalized transcript segments. Default: stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config reloads can retune verbosity.
func WithLogLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithConfigWatch enables hot reload by watching the config file at path.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithMetrics replaces the default metrics instance. Mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires the application from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		log: slog.Default(),
		out: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.dialer == nil {
		a.dialer = &transport.WebSocketDialer{URL: dialURL(cfg.Stream)}
	}

	if a.batch == nil && cfg.Batch.Endpoint != "" {
		var copts []transcription.Option
		if cfg.Batch.APIKey != "" {
			copts = append(copts, transcription.WithAPIKey(cfg.Batch.APIKey))
		}
		if cfg.Batch.Timeout > 0 {
			copts = append(copts, transcription.WithTimeout(cfg.Batch.Timeout))
		}
		client, err := transcription.NewClient(cfg.Batch.Endpoint, copts...)
		if err != nil {
			return nil, fmt.Errorf("app: batch client: %w", err)
		}
		a.batch = client
	}

	var sessOpts []session.Option
	if a.batch != nil {
		sessOpts = append(sessOpts, session.WithBatchTranscriber(a.batch))
	}
	sessOpts = append(sessOpts,
		session.WithMetrics(a.metrics),
		session.WithLogger(a.log),
	)
	orch, err := session.New(sessionConfig(cfg), a.dialer, sessOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: session: %w", err)
	}
	a.orch = orch

	a.recorder = NewRecorder(a.out, a.metrics, a.log)

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyReload)
		if err != nil {
			return nil, fmt.Errorf("app: config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func(context.Context) error {
			w.Stop()
			return nil
		})
	}

	if cfg.Server.ListenAddr != "" {
		a.httpSrv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.buildHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

// buildHandler assembles the health and metrics routes behind the
// observability middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	h := health.New(
		health.Checker{
			Name: "session",
			Check: func(context.Context) error {
				st := a.orch.Status()
				if !st.Recording {
					return errors.New("session not recording")
				}
				return nil
			},
		},
		health.Checker{
			Name: "batch-breaker",
			Check: func(context.Context) error {
				if st := a.orch.Status().Breaker; st.State == resilience.StateOpen {
					return fmt.Errorf("circuit open since %s", st.OpenedAt.Format(time.RFC3339))
				}
				return nil
			},
		},
	)
	h.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Run executes the pipeline: the HTTP endpoint, the session supervision loop,
// the transcript recorder, and the audio source pump. It blocks until the
// source is exhausted (which stops the session after a final flush), Stop is
// called, or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	httpErr := make(chan error, 1)
	if a.httpSrv != nil {
		go func() {
			err := a.httpSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			if err != nil {
				// The pipeline cannot serve its readiness contract; stop it.
				a.log.Error("http endpoint failed", "err", err)
				a.orch.Stop()
			}
			httpErr <- err
		}()
		a.log.Info("http endpoint listening", "addr", a.httpSrv.Addr)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.orch.Run(ctx)
	})

	recorderDone := make(chan struct{})
	g.Go(func() error {
		defer close(recorderDone)
		a.recorder.Consume(a.orch.Events())
		return nil
	})

	g.Go(func() error {
		defer a.orch.Stop()
		return a.pumpSource(gctx, recorderDone)
	})

	err := g.Wait()

	if a.httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.httpSrv.Shutdown(sctx); serr != nil {
			a.log.Warn("http shutdown", "err", serr)
		}
		if herr := <-httpErr; err == nil {
			err = herr
		}
	}

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// pumpSource forwards captured frames into the session. Without a source the
// app is driven externally (frames pushed straight into the orchestrator);
// the pump then just waits for shutdown.
func (a *App) pumpSource(ctx context.Context, done <-chan struct{}) error {
	if a.source == nil {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		}
	}

	srcErr := make(chan error, 1)
	go func() { srcErr <- a.source.Run(ctx) }()

	for frame := range a.source.Frames() {
		a.orch.WriteFrame(frame)
	}

	if err := <-srcErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: audio source: %w", err)
	}
	a.log.Info("audio source exhausted, stopping session")
	return nil
}

// Stop requests an orderly stop of the running pipeline.
func (a *App) Stop() { a.orch.Stop() }

// Session exposes the orchestrator for status queries.
func (a *App) Session() *session.Orchestrator { return a.orch }

// Transcript exposes the recorder for transcript queries.
func (a *App) Transcript() *Recorder { return a.recorder }

// applyReload handles a validated config file change. Only the log level and
// the voice gate apply live; everything else needs a restart.
func (a *App) applyReload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level reloaded", "level", string(d.NewLogLevel))
	}
	if d.VADChanged {
		a.orch.UpdateVAD(d.NewVADEnabled, d.NewVADThreshold, d.NewEmitEmptyResults)
		a.log.Info("voice gate reloaded",
			"enabled", d.NewVADEnabled,
			"threshold", d.NewVADThreshold,
			"emit_empty", d.NewEmitEmptyResults)
	}
	if d.RestartRequired {
		a.log.Warn("config change requires restart to take effect")
	}
}

// Shutdown tears down remaining subsystems in order. It respects the context
// deadline: if ctx expires, remaining closers are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.orch.Stop()
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
	})
	return shutdownErr
}

// sessionConfig maps the file schema onto the session tuning knobs.
func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Model:                cfg.Stream.Model,
		SampleRate:           cfg.Audio.SampleRate,
		BufferSeconds:        cfg.Audio.BufferSeconds,
		FlushInterval:        cfg.Stream.FlushInterval,
		EarlyFlushAge:        cfg.Stream.EarlyFlushAge,
		EarlyFlushMinSamples: cfg.Stream.EarlyFlushMinSamples,
		ResponseTimeout:      cfg.Stream.ResponseTimeout,
		PingInterval:         cfg.Stream.PingInterval,
		QuotaCooldown:        cfg.Stream.QuotaCooldown,
		ReconnectMaxAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   cfg.Reconnect.BaseDelay,
		ReconnectMaxDelay:    cfg.Reconnect.MaxDelay,
		BatchInterval:        cfg.Batch.Interval,
		VADEnabled:           cfg.VAD.VADEnabled(),
		VADThreshold:         cfg.VAD.Threshold,
		EmitEmptyResults:     cfg.VAD.EmitEmptyResults,
		Breaker: resilience.BreakerConfig{
			Name:             "batch-transcription",
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown,
			HalfOpenProbes:   cfg.Breaker.HalfOpenProbes,
		},
	}
}

// dialURL appends the API key query parameter to the stream endpoint.
func dialURL(s config.StreamConfig) string {
	if s.APIKey == "" {
		return s.URL
	}
	sep := "?"
	if strings.Contains(s.URL, "?") {
		sep = "&"
	}
	return s.URL + sep + "key=" + url.QueryEscape(s.APIKey)
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
