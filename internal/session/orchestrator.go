// Package session implements the connection state machine that turns
// captured audio frames into transcript events. The orchestrator owns the
// socket, the protocol handler, the capture ring buffer, and the voice
// activity gate for the lifetime of one recording: it streams while the live
// connection holds, reconnects with exponential backoff when it drops, and
// degrades to interval-based batch transcription when quota runs out or
// reconnects are exhausted. Recording never stops on a transient fault.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anvret/vocifer/internal/audio"
	"github.com/anvret/vocifer/internal/observe"
	"github.com/anvret/vocifer/internal/protocol"
	"github.com/anvret/vocifer/internal/resilience"
	"github.com/anvret/vocifer/internal/transcription"
	"github.com/anvret/vocifer/internal/transport"
	"github.com/anvret/vocifer/internal/vad"
)

// errStopped signals an orderly stop through the supervision loop.
var errStopped = errors.New("session: stopped")

// ErrNoFallback is surfaced when the live path is gone for good and no batch
// endpoint is configured to degrade into.
var ErrNoFallback = errors.New("session: live connection lost and no batch fallback configured")

// quotaError wraps a fault classified as quota enforcement.
type quotaError struct{ err error }

func (e *quotaError) Error() string { return "session: quota exhausted: " + e.err.Error() }
func (e *quotaError) Unwrap() error { return e.err }

// BatchTranscriber is the degraded-mode transcription path.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (transcription.Result, error)
}

// Config holds the tuning knobs of one recording session. Zero values are
// replaced with the documented defaults by [New].
type Config struct {
	// Model is sent in the setup handshake.
	Model string

	// SampleRate of captured audio in Hz. Default: 16000.
	SampleRate int

	// BufferSeconds sizes the capture ring buffer. Default: 10.
	BufferSeconds int

	// FlushInterval is the flush poller tick. Default: 400ms.
	FlushInterval time.Duration

	// EarlyFlushAge triggers a flush once the oldest buffered sample is
	// this old, even when the buffer is below the nominal batch size.
	// Default: 1.5s.
	EarlyFlushAge time.Duration

	// EarlyFlushMinSamples is the minimum buffered sample count for an
	// age-triggered flush. Default: 1600.
	EarlyFlushMinSamples int

	// ResponseTimeout bounds the setup handshake and tracked requests.
	// Default: 30s.
	ResponseTimeout time.Duration

	// PingInterval is the keepalive cadence while connected. Default: 15s.
	PingInterval time.Duration

	// QuotaCooldown is how long the session stays degraded after a quota
	// signal before probing the live endpoint again. Default: 60s.
	QuotaCooldown time.Duration

	// ReconnectMaxAttempts before degrading (or stopping when no batch
	// fallback exists). Default: 10.
	ReconnectMaxAttempts int

	// ReconnectBaseDelay is the initial backoff, doubling per attempt up to
	// ReconnectMaxDelay. Defaults: 1s and 30s.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// BatchInterval is the submit cadence while degraded. Default: 500ms.
	BatchInterval time.Duration

	// VADEnabled gates frames on RMS energy before buffering. Default
	// handling is up to the caller; the zero value disables the gate.
	VADEnabled bool

	// VADThreshold is the static energy floor. Default: 0.01.
	VADThreshold float64

	// EmitEmptyResults delivers suppressed silent frames as empty
	// transcript events instead of dropping them.
	EmitEmptyResults bool

	// Breaker tunes the circuit breaker guarding the batch endpoint.
	Breaker resilience.BreakerConfig
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.BufferSeconds <= 0 {
		c.BufferSeconds = 10
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 400 * time.Millisecond
	}
	if c.EarlyFlushAge <= 0 {
		c.EarlyFlushAge = 1500 * time.Millisecond
	}
	if c.EarlyFlushMinSamples <= 0 {
		c.EarlyFlushMinSamples = 1600
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.QuotaCooldown <= 0 {
		c.QuotaCooldown = time.Minute
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = 10
	}
	if c.BatchInterval <= 0 {
		c.BatchInterval = 500 * time.Millisecond
	}
	if c.VADThreshold <= 0 {
		c.VADThreshold = 0.01
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = "transcription-handler"
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchTranscriber wires the degraded-mode fallback path.
func WithBatchTranscriber(bt BatchTranscriber) Option {
	return func(o *Orchestrator) { o.batch = bt }
}

// WithMetrics replaces the default metrics instance. Mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Status is a point-in-time snapshot of a session for dashboards and the
// readiness endpoint.
type Status struct {
	State             State
	Mode              string // "streaming" or "batch"
	Recording         bool
	ReconnectAttempt  int
	LastActivity      time.Time
	QuotaBlockedUntil time.Time
	DroppedSamples    int64
	Breaker           resilience.BreakerStatus
	Protocol          protocol.Stats
}

// Orchestrator runs one recording session. Create with [New], feed frames
// through [Orchestrator.WriteFrame], consume [Orchestrator.Events], and run
// the supervision loop with [Orchestrator.Run].
type Orchestrator struct {
	cfg     Config
	dialer  transport.Dialer
	batch   BatchTranscriber
	breaker *resilience.CircuitBreaker
	backoff *resilience.Backoff
	metrics *observe.Metrics
	log     *slog.Logger

	// bufMu guards the capture ring, the voice gate, and flush bookkeeping.
	// WriteFrame holds it only for the copy into the ring so the capture
	// path never stalls on network activity.
	bufMu    sync.Mutex
	ring     *audio.Ring
	gate     *vad.Gate
	oldestAt time.Time
	dropped  int64

	// mu guards the state machine fields.
	mu                sync.Mutex
	state             State
	lastActivity      time.Time
	quotaBlockedUntil time.Time
	handler           *protocol.Handler // non-nil only while streaming

	// vadMu guards the hot-reloadable gate settings.
	vadMu            sync.Mutex
	vadEnabled       bool
	vadThreshold     float64
	emitEmptyResults bool

	// evMu protects events against sends after close; WriteFrame may still
	// be called by the capture path while Run is shutting down.
	evMu     sync.Mutex
	evClosed bool
	events   chan Event

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an orchestrator for one recording session.
func New(cfg Config, dialer transport.Dialer, opts ...Option) (*Orchestrator, error) {
	if dialer == nil {
		return nil, errors.New("session: dialer must not be nil")
	}
	cfg.applyDefaults()
	if cfg.Model == "" {
		return nil, errors.New("session: model must not be empty")
	}

	o := &Orchestrator{
		cfg:              cfg,
		dialer:           dialer,
		breaker:          resilience.NewCircuitBreaker(cfg.Breaker),
		backoff:          resilience.NewBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay),
		log:              slog.Default(),
		ring:             audio.NewRing(cfg.SampleRate * cfg.BufferSeconds),
		gate:             vad.NewGate(),
		state:            StateDisconnected,
		vadEnabled:       cfg.VADEnabled,
		vadThreshold:     cfg.VADThreshold,
		emitEmptyResults: cfg.EmitEmptyResults,
		events:           make(chan Event, 64),
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Events returns the session's outbound event stream. The channel is closed
// after the terminal [EventStopped] event.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Stop requests an orderly shutdown: final flush, then the stopped event.
// Safe to call from any state and more than once; only the first call has
// effect.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// UpdateVAD applies hot-reloaded voice gate settings to the running session.
func (o *Orchestrator) UpdateVAD(enabled bool, threshold float64, emitEmpty bool) {
	o.vadMu.Lock()
	defer o.vadMu.Unlock()
	o.vadEnabled = enabled
	if threshold > 0 {
		o.vadThreshold = threshold
	}
	o.emitEmptyResults = emitEmpty
}

// WriteFrame accepts one captured audio frame. It never blocks on network
// activity: silent frames are suppressed by the voice gate, everything else
// is copied into the ring buffer. Samples that do not fit are dropped and
// counted, never overwrite buffered data.
func (o *Orchestrator) WriteFrame(frame audio.Frame) {
	o.vadMu.Lock()
	gateOn := o.vadEnabled
	threshold := o.vadThreshold
	emitEmpty := o.emitEmptyResults
	o.vadMu.Unlock()

	o.bufMu.Lock()
	if gateOn && !o.gate.Detect(frame, threshold) {
		o.bufMu.Unlock()
		o.metrics.SilentFramesDropped.Add(context.Background(), 1)
		if emitEmpty {
			o.emit(Event{Kind: EventTranscript, Text: "", IsFinal: false, Source: "vad"})
		}
		return
	}
	if o.ring.AvailableData() == 0 {
		o.oldestAt = time.Now()
	}
	written := o.ring.Write(frame.Samples)
	if lost := len(frame.Samples) - written; lost > 0 {
		o.dropped += int64(lost)
		o.metrics.DroppedSamples.Add(context.Background(), int64(lost))
	}
	o.bufMu.Unlock()

	o.touchActivity()
}

// Status returns a snapshot of the session.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		State:             o.state,
		Mode:              "streaming",
		Recording:         o.state != StateDisconnected,
		LastActivity:      o.lastActivity,
		QuotaBlockedUntil: o.quotaBlockedUntil,
	}
	if o.state == StateDegraded {
		st.Mode = "batch"
	}
	handler := o.handler
	o.mu.Unlock()

	o.bufMu.Lock()
	st.DroppedSamples = o.dropped
	o.bufMu.Unlock()

	st.ReconnectAttempt = o.backoff.Attempt()
	st.Breaker = o.breaker.Status()
	if handler != nil {
		st.Protocol = handler.Stats()
	}
	return st
}

// Run drives the session until Stop is called, the context is cancelled, or
// an unrecoverable fault occurs. It owns all session goroutines; when it
// returns, everything is quiesced and the events channel is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.shutdown()

	for {
		if err := o.checkDone(ctx); err != nil {
			if errors.Is(err, errStopped) {
				o.drainToBatch(ctx)
			}
			return ignoreStopped(err)
		}

		err := o.runStreaming(ctx)
		switch {
		case errors.Is(err, errStopped):
			o.drainToBatch(ctx)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		var qe *quotaError
		if errors.As(err, &qe) || isQuotaClose(err) {
			o.log.Warn("quota exhausted, degrading to batch mode", "err", err)
			o.emit(Event{Kind: EventError, Err: err})
			if derr := o.runDegraded(ctx); derr != nil {
				return ignoreStopped(derr)
			}
			o.backoff.Reset()
			continue
		}

		// Connection fault: back off and retry, degrade once exhausted.
		o.emit(Event{Kind: EventError, Err: err})
		if o.backoff.Attempt() >= o.cfg.ReconnectMaxAttempts {
			o.log.Warn("reconnect attempts exhausted",
				"attempts", o.backoff.Attempt())
			if o.batch == nil {
				return fmt.Errorf("%w: %w", ErrNoFallback, err)
			}
			if derr := o.runDegraded(ctx); derr != nil {
				return ignoreStopped(derr)
			}
			o.backoff.Reset()
			continue
		}

		o.setState(StateReconnecting)
		delay := o.backoff.Next()
		o.metrics.Reconnects.Add(ctx, 1)
		o.log.Info("reconnecting",
			"attempt", o.backoff.Attempt(),
			"delay", delay,
			"err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.stopCh:
			o.drainToBatch(ctx)
			return nil
		case <-time.After(delay):
		}
	}
}

// drainToBatch submits whatever the ring still holds to the batch fallback.
// Covers stops that arrive while no live connection exists (reconnect
// backoff, dial failures), so buffered audio is transcribed instead of
// discarded. A no-op without a fallback or with an empty ring.
func (o *Orchestrator) drainToBatch(ctx context.Context) {
	if o.batch == nil {
		return
	}
	o.flushBatch(ctx)
}

// checkDone reports a pending stop or context cancellation.
func (o *Orchestrator) checkDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.stopCh:
		return errStopped
	default:
		return nil
	}
}

func ignoreStopped(err error) error {
	if errors.Is(err, errStopped) {
		return nil
	}
	return err
}

// runStreaming dials the live endpoint, performs the setup handshake, and
// streams buffered audio until the connection fails, quota trips, or the
// session stops. The returned error classifies the exit reason.
func (o *Orchestrator) runStreaming(ctx context.Context) error {
	o.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, o.cfg.ResponseTimeout)
	socket, err := o.dialer.Dial(dialCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("session: connect: %w", err)
	}
	defer socket.Close()

	sctx, stopAll := context.WithCancel(ctx)
	defer stopAll()

	setupDone := make(chan struct{})
	var setupOnce sync.Once
	quotaCh := make(chan error, 1)

	handler := protocol.NewHandler(protocol.HandlerConfig{
		ResponseTimeout: o.cfg.ResponseTimeout,
		SampleRate:      o.cfg.SampleRate,
		Metrics:         o.metrics,
		OnInbound: func(in protocol.Incoming) {
			if in.Type == protocol.TypeSetupComplete {
				setupOnce.Do(func() { close(setupDone) })
				return
			}
			o.handleInbound(in, quotaCh)
		},
		OnDecodeError: func(err error) {
			o.emit(Event{Kind: EventError, Err: err})
		},
	})
	defer handler.Close()

	o.mu.Lock()
	o.handler = handler
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.handler = nil
		o.mu.Unlock()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	defer stopAll()

	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.Run(sctx, socket)
	}()

	readErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			data, err := socket.Receive(sctx)
			if err != nil {
				readErr <- err
				return
			}
			handler.HandleInbound(data)
		}
	}()

	// Setup handshake at high priority; audio stays queued behind it.
	setup := protocol.NewMessage(protocol.TypeSetup, protocol.PriorityHigh, protocol.SetupPayload{
		Model:               o.cfg.Model,
		EnableTranscription: true,
	})
	if err := handler.Enqueue(setup); err != nil {
		return fmt.Errorf("session: enqueue setup: %w", err)
	}
	select {
	case <-setupDone:
	case err := <-readErr:
		return fmt.Errorf("session: handshake: %w", err)
	case <-time.After(o.cfg.ResponseTimeout):
		return errors.New("session: setup acknowledgement timed out")
	case <-sctx.Done():
		return sctx.Err()
	case <-o.stopCh:
		return errStopped
	}

	o.backoff.Reset()
	o.setState(StateConnected)
	o.log.Info("live connection established", "model", o.cfg.Model)

	flushTicker := time.NewTicker(o.cfg.FlushInterval)
	defer flushTicker.Stop()
	pingTicker := time.NewTicker(o.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-sctx.Done():
			return sctx.Err()

		case <-o.stopCh:
			o.flushStreaming(handler, true)
			o.awaitDrain(handler)
			return errStopped

		case err := <-readErr:
			return fmt.Errorf("session: receive: %w", err)

		case err := <-quotaCh:
			return &quotaError{err: err}

		case <-flushTicker.C:
			o.flushStreaming(handler, false)

		case <-pingTicker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				pctx, cancel := context.WithTimeout(sctx, o.cfg.ResponseTimeout)
				defer cancel()
				ping := protocol.NewMessage(protocol.TypePing, protocol.PriorityUrgent, nil)
				if _, err := handler.EnqueueWait(pctx, ping); err != nil && sctx.Err() == nil {
					o.log.Warn("keepalive ping unanswered", "err", err)
				}
			}()
		}
	}
}

// handleInbound runs on the protocol handler's single consumer, preserving
// transcript ordering.
func (o *Orchestrator) handleInbound(in protocol.Incoming, quotaCh chan<- error) {
	o.touchActivity()

	switch in.Type {
	case protocol.TypeServerContent:
		if in.Text == "" && !in.TurnComplete {
			return
		}
		o.emit(Event{
			Kind:       EventTranscript,
			Text:       in.Text,
			IsFinal:    in.TurnComplete,
			Confidence: in.Confidence,
			Source:     "live",
		})

	case protocol.TypeTurnComplete:
		o.emit(Event{Kind: EventTranscript, Text: "", IsFinal: true, Source: "live"})

	case protocol.TypeError:
		if in.Err == nil {
			return
		}
		err := fmt.Errorf("session: server error %d: %s", in.Err.Code, in.Err.Message)
		if isQuotaMessage(in.Err.Code, in.Err.Message) {
			select {
			case quotaCh <- err:
			default:
			}
			return
		}
		o.emit(Event{Kind: EventError, Err: err})

	case protocol.TypePong, protocol.TypeAudioData, protocol.TypeSetupComplete:
		// Keepalive replies and synthesized audio carry no transcript.
	}
}

// flushStreaming drains buffered audio into a realtime-input message. Without
// force, it sends only when a nominal interval of audio has accumulated, or
// when the oldest sample has waited past the early-flush age with at least
// the minimum batch on hand.
func (o *Orchestrator) flushStreaming(handler *protocol.Handler, force bool) {
	nominal := int(float64(o.cfg.SampleRate) * o.cfg.FlushInterval.Seconds())

	o.bufMu.Lock()
	available := o.ring.AvailableData()
	if available == 0 {
		o.bufMu.Unlock()
		return
	}
	early := time.Since(o.oldestAt) >= o.cfg.EarlyFlushAge &&
		available >= o.cfg.EarlyFlushMinSamples
	if !force && available < nominal && !early {
		o.bufMu.Unlock()
		return
	}
	samples := o.ring.Read(available)
	o.bufMu.Unlock()

	start := time.Now()
	msg := protocol.NewMessage(protocol.TypeRealtimeInput, protocol.PriorityNormal,
		audio.Float32ToPCM16(samples))
	if err := handler.Enqueue(msg); err != nil {
		o.log.Warn("flush enqueue failed", "err", err)
		return
	}
	o.metrics.RecordFlush(context.Background(), time.Since(start))
	o.metrics.QueueDepth.Record(context.Background(), int64(handler.Stats().Queued))
}

// awaitDrain gives the dispatch loop a bounded window to send what the final
// flush enqueued.
func (o *Orchestrator) awaitDrain(handler *protocol.Handler) {
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if handler.Stats().Queued == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// runDegraded submits buffered audio to the batch endpoint at a fixed
// interval until the quota cooldown elapses. Frames keep arriving through
// WriteFrame the whole time; the recording is never interrupted.
func (o *Orchestrator) runDegraded(ctx context.Context) error {
	if o.batch == nil {
		return ErrNoFallback
	}

	o.setState(StateDegraded)
	blockedUntil := time.Now().Add(o.cfg.QuotaCooldown)
	o.mu.Lock()
	o.quotaBlockedUntil = blockedUntil
	o.mu.Unlock()

	ticker := time.NewTicker(o.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-o.stopCh:
			o.flushBatch(ctx)
			return errStopped

		case <-ticker.C:
			o.flushBatch(ctx)
			if time.Now().After(blockedUntil) {
				o.log.Info("quota cooldown elapsed, retrying live connection")
				return nil
			}
		}
	}
}

// flushBatch drains the ring and submits it as one batch request, guarded by
// the circuit breaker. A rejected call leaves the audio in place for the
// next interval by writing it back.
func (o *Orchestrator) flushBatch(ctx context.Context) {
	o.bufMu.Lock()
	samples := o.ring.Read(o.ring.AvailableData())
	o.bufMu.Unlock()
	if len(samples) == 0 {
		return
	}

	err := o.breaker.Execute(func() error {
		start := time.Now()
		res, err := o.batch.Transcribe(ctx, samples, o.cfg.SampleRate)
		if err != nil {
			o.metrics.RecordBatch(ctx, time.Since(start), "error")
			return err
		}
		o.metrics.RecordBatch(ctx, res.Elapsed, "ok")
		o.touchActivity()
		if res.Text != "" {
			o.emit(Event{
				Kind:       EventTranscript,
				Text:       res.Text,
				IsFinal:    true,
				Confidence: res.Confidence,
				Source:     "batch",
			})
		}
		return nil
	})

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		// Rejected locally without a network call. Re-buffer so the audio
		// gets another chance once the breaker half-opens.
		o.requeue(samples)
	case err != nil:
		o.emit(Event{Kind: EventError, Err: fmt.Errorf("session: batch transcription: %w", err)})
		o.requeue(samples)
	}
}

// requeue writes unsent samples back to the ring, ahead of whatever arrived
// while the batch call was in flight. When the combined audio exceeds the
// ring capacity the oldest samples are dropped and counted.
func (o *Orchestrator) requeue(samples []float32) {
	o.bufMu.Lock()
	defer o.bufMu.Unlock()

	pending := o.ring.Read(o.ring.AvailableData())
	combined := make([]float32, 0, len(samples)+len(pending))
	combined = append(combined, samples...)
	combined = append(combined, pending...)
	if excess := len(combined) - o.ring.Capacity(); excess > 0 {
		combined = combined[excess:]
		o.dropped += int64(excess)
	}
	o.ring.Write(combined)
	o.oldestAt = time.Now().Add(-o.cfg.EarlyFlushAge)
}

// shutdown quiesces the session and emits the terminal event exactly once.
// Run's defer is the only caller, so no once-guard is needed beyond stopCh.
func (o *Orchestrator) shutdown() {
	o.Stop() // make sure stopCh is closed even on error exits

	o.bufMu.Lock()
	o.ring.Clear()
	o.gate.Reset()
	o.bufMu.Unlock()

	o.setState(StateDisconnected)
	o.emit(Event{Kind: EventStopped})

	o.evMu.Lock()
	o.evClosed = true
	close(o.events)
	o.evMu.Unlock()

	o.log.Info("session stopped")
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	prev := o.state
	if prev == s {
		o.mu.Unlock()
		return
	}
	o.state = s
	o.mu.Unlock()

	o.metrics.RecordStateTransition(context.Background(), prev.String(), s.String())
	o.log.Info("session state changed", "from", prev.String(), "to", s.String())
	o.emit(Event{Kind: EventStateChange, State: s})
}

func (o *Orchestrator) touchActivity() {
	o.mu.Lock()
	o.lastActivity = time.Now()
	o.mu.Unlock()
}

// emit delivers an event without ever blocking the caller. The channel is
// buffered; a full buffer means the consumer is gone or stuck, and dropping
// beats stalling the receive path.
func (o *Orchestrator) emit(ev Event) {
	ev.Timestamp = time.Now()

	o.evMu.Lock()
	defer o.evMu.Unlock()
	if o.evClosed {
		return
	}
	select {
	case o.events <- ev:
	default:
		o.log.Warn("event dropped, consumer not keeping up", "kind", ev.Kind.String())
	}
}
