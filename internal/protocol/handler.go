package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/anvret/vocifer/internal/observe"
)

// ErrResponseTimeout is returned by [Handler.EnqueueWait] when no correlated
// reply arrives within the configured timeout.
var ErrResponseTimeout = errors.New("protocol: response timeout")

// ErrHandlerClosed is returned for operations on a closed handler.
var ErrHandlerClosed = errors.New("protocol: handler closed")

// Default handler tuning.
const (
	defaultDispatchTick    = 10 * time.Millisecond
	defaultResponseTimeout = 30 * time.Second
	defaultHistorySize     = 1000
)

// Sender delivers an encoded frame to the transport. The dispatch loop is the
// sole caller, so implementations never see concurrent sends from the handler.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// HandlerConfig holds tuning knobs for a [Handler]. Zero-value fields are
// replaced with defaults.
type HandlerConfig struct {
	// DispatchTick is the interval of the send loop. At most one message is
	// sent per tick, which bounds the peak outgoing rate. Default: 10ms.
	DispatchTick time.Duration

	// ResponseTimeout bounds how long a pending response slot may stay
	// unresolved before it is rejected. Default: 30s.
	ResponseTimeout time.Duration

	// HistorySize bounds the diagnostics ring of processed inbound messages.
	// Default: 1000.
	HistorySize int

	// SampleRate describes the PCM carried by realtime input messages.
	SampleRate int

	// OnInbound is invoked for every successfully processed inbound message,
	// after correlation. May be nil.
	OnInbound func(Incoming)

	// OnDecodeError is invoked when an inbound frame cannot be decoded. The
	// raw bytes are retained inside the error. May be nil.
	OnDecodeError func(error)

	// Metrics receives per-message instrumentation (sent/received/failed
	// counters, processing histogram, pending-response gauge). May be nil.
	Metrics *observe.Metrics
}

// Stats is a snapshot of handler counters for observability.
type Stats struct {
	Sent              int64
	Received          int64
	Failed            int64
	Queued            int
	AvgProcessingTime time.Duration
}

// pendingEntry is a single-use response slot. The channel has capacity 1 and
// receives exactly one result; whichever of reply/timeout/close resolves it
// first removes it from the pending map under the handler mutex, so a slot
// can never be resolved twice.
type pendingEntry struct {
	ch    chan pendingResult
	timer *time.Timer
}

type pendingResult struct {
	msg Incoming
	err error
}

// Handler owns the four priority queues, the pending-response table, and the
// bounded history of processed inbound messages. Enqueue operations may be
// called from any goroutine; the dispatch loop started by [Handler.Run] is
// the sole writer to the transport.
type Handler struct {
	cfg HandlerConfig

	mu      sync.Mutex
	queues  [numPriorities][]Message
	pending map[string]*pendingEntry
	history []Incoming
	histIdx int
	closed  bool

	sent        int64
	received    int64
	failed      int64
	procTotal   time.Duration
	procSamples int64
}

// NewHandler creates a handler with the given configuration.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.DispatchTick <= 0 {
		cfg.DispatchTick = defaultDispatchTick
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Handler{
		cfg:     cfg,
		pending: make(map[string]*pendingEntry),
		history: make([]Incoming, 0, cfg.HistorySize),
	}
}

// Enqueue places msg in its priority queue for the dispatch loop.
func (h *Handler) Enqueue(msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandlerClosed
	}
	h.queues[msg.Priority] = append(h.queues[msg.Priority], msg)
	return nil
}

// EnqueueWait enqueues msg and blocks until a reply correlated by the message
// ID arrives, the response timeout elapses, or ctx is cancelled. The pending
// slot is resolved exactly once and removed in all cases.
func (h *Handler) EnqueueWait(ctx context.Context, msg Message) (Incoming, error) {
	entry := &pendingEntry{ch: make(chan pendingResult, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return Incoming{}, ErrHandlerClosed
	}
	// The timer is armed before the entry is published so that resolve,
	// which may run as soon as the mutex is released, always observes it.
	entry.timer = time.AfterFunc(h.cfg.ResponseTimeout, func() {
		h.resolve(msg.ID, pendingResult{err: fmt.Errorf("%w: message %s after %s",
			ErrResponseTimeout, msg.ID, h.cfg.ResponseTimeout)})
	})
	h.pending[msg.ID] = entry
	h.queues[msg.Priority] = append(h.queues[msg.Priority], msg)
	pending := len(h.pending)
	h.mu.Unlock()

	if h.cfg.Metrics != nil {
		h.cfg.Metrics.PendingResponses.Record(ctx, int64(pending))
	}

	select {
	case res := <-entry.ch:
		return res.msg, res.err
	case <-ctx.Done():
		h.resolve(msg.ID, pendingResult{err: ctx.Err()})
		// The slot may have been resolved with a reply between ctx.Done and
		// resolve; prefer whatever actually won.
		res := <-entry.ch
		return res.msg, res.err
	}
}

// resolve delivers res to the pending slot for id, if it is still pending.
// Removal from the map under the mutex guarantees single resolution.
func (h *Handler) resolve(id string, res pendingResult) {
	h.mu.Lock()
	entry, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	pending := len(h.pending)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.PendingResponses.Record(context.Background(), int64(pending))
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.ch <- res
}

// Run drives the dispatch loop until ctx is cancelled. Each tick sends at
// most one message, always from the highest non-empty priority queue, so
// urgent control traffic is never starved behind bulk audio.
func (h *Handler) Run(ctx context.Context, sender Sender) error {
	ticker := time.NewTicker(h.cfg.DispatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			msg, ok := h.pop()
			if !ok {
				continue
			}
			data, err := Encode(msg, h.cfg.SampleRate)
			if err != nil {
				h.recordFailure(ctx, "encode")
				slog.Warn("dropping unencodable message", "type", msg.Type, "err", err)
				h.resolve(msg.ID, pendingResult{err: err})
				continue
			}
			if err := sender.Send(ctx, data); err != nil {
				h.recordFailure(ctx, "send")
				h.resolve(msg.ID, pendingResult{err: err})
				continue
			}
			h.mu.Lock()
			h.sent++
			h.mu.Unlock()
			if h.cfg.Metrics != nil {
				h.cfg.Metrics.RecordSent(ctx, string(msg.Type), msg.Priority.String())
			}
		}
	}
}

// pop removes the head of the highest non-empty priority queue.
func (h *Handler) pop() (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := numPriorities - 1; p >= 0; p-- {
		q := h.queues[p]
		if len(q) == 0 {
			continue
		}
		msg := q[0]
		// Shift rather than re-slice so the backing array does not pin
		// already-sent messages.
		copy(q, q[1:])
		h.queues[p] = q[:len(q)-1]
		return msg, true
	}
	return Message{}, false
}

// HandleInbound decodes and processes one raw frame from the socket. A frame
// that fails to decode is converted to an error-typed processed message and
// counted as a failure; it never aborts the session. Replies correlated to a
// pending message resolve that message's slot; uncorrelated messages are only
// broadcast via OnInbound, never buffered.
func (h *Handler) HandleInbound(data []byte) {
	start := time.Now()

	in, err := Decode(data)
	if err != nil {
		h.recordFailure(context.Background(), "decode")
		h.appendHistory(Incoming{Type: TypeError, Raw: data})
		if h.cfg.OnDecodeError != nil {
			h.cfg.OnDecodeError(err)
		}
		return
	}

	if in.ResponseID != "" {
		h.resolve(in.ResponseID, pendingResult{msg: in})
	}

	elapsed := time.Since(start)
	h.mu.Lock()
	h.received++
	h.procTotal += elapsed
	h.procSamples++
	h.mu.Unlock()
	if h.cfg.Metrics != nil {
		ctx := context.Background()
		h.cfg.Metrics.MessagesReceived.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("type", string(in.Type))))
		h.cfg.Metrics.MessageProcessing.Record(ctx, elapsed.Seconds())
	}
	h.appendHistory(in)

	if h.cfg.OnInbound != nil {
		h.cfg.OnInbound(in)
	}
}

// Close rejects all pending slots and refuses further enqueues. Idempotent.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	pending := h.pending
	h.pending = make(map[string]*pendingEntry)
	h.mu.Unlock()

	for _, entry := range pending {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.ch <- pendingResult{err: ErrHandlerClosed}
	}
}

// Stats returns a snapshot of the handler's counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	queued := 0
	for _, q := range h.queues {
		queued += len(q)
	}
	var avg time.Duration
	if h.procSamples > 0 {
		avg = h.procTotal / time.Duration(h.procSamples)
	}
	return Stats{
		Sent:              h.sent,
		Received:          h.received,
		Failed:            h.failed,
		Queued:            queued,
		AvgProcessingTime: avg,
	}
}

// PendingCount reports the number of unresolved response slots.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// History returns a copy of the processed-message ring, oldest first.
func (h *Handler) History() []Incoming {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Incoming, 0, len(h.history))
	// history is a ring once full; histIdx points at the oldest entry.
	if len(h.history) == h.cfg.HistorySize {
		out = append(out, h.history[h.histIdx:]...)
		out = append(out, h.history[:h.histIdx]...)
	} else {
		out = append(out, h.history...)
	}
	return out
}

func (h *Handler) appendHistory(in Incoming) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.history) < h.cfg.HistorySize {
		h.history = append(h.history, in)
		return
	}
	h.history[h.histIdx] = in
	h.histIdx = (h.histIdx + 1) % h.cfg.HistorySize
}

func (h *Handler) recordFailure(ctx context.Context, reason string) {
	h.mu.Lock()
	h.failed++
	h.mu.Unlock()
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.RecordFailure(ctx, reason)
	}
}
