package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/anvret/vocifer/internal/observe"
	"github.com/anvret/vocifer/internal/session"
	"github.com/anvret/vocifer/internal/transcript"
)

// Recorder drains a session's event stream into the transcript accumulator
// and writes finalized segments to an output writer as they close. It is the
// single consumer of the event channel; [Recorder.Consume] returns when the
// session emits its terminal stopped event and closes the channel.
type Recorder struct {
	acc     *transcript.Accumulator
	metrics *observe.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	out     io.Writer
	lastErr error
}

// NewRecorder creates a recorder writing finalized transcript segments to out,
// one per line.
func NewRecorder(out io.Writer, metrics *observe.Metrics, log *slog.Logger) *Recorder {
	r := &Recorder{
		metrics: metrics,
		log:     log,
		out:     out,
	}
	r.acc = transcript.New(transcript.WithFinalizeFunc(r.onFinal))
	return r
}

// Consume processes session events until the channel closes.
func (r *Recorder) Consume(events <-chan session.Event) {
	for ev := range events {
		switch ev.Kind {
		case session.EventTranscript:
			r.acc.AddChunk(ev.Text, ev.IsFinal, ev.Source, ev.Confidence)

		case session.EventStateChange:
			r.log.Info("session state", "state", ev.State.String())

		case session.EventError:
			r.mu.Lock()
			r.lastErr = ev.Err
			r.mu.Unlock()
			r.log.Warn("session error", "err", ev.Err)

		case session.EventStopped:
			r.acc.MarkComplete()
		}
	}
}

// onFinal runs from the accumulator whenever a segment closes.
func (r *Recorder) onFinal(seg transcript.Segment) {
	if r.metrics != nil {
		r.metrics.TranscriptSegments.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("source", seg.Source)))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out != nil && seg.Text != "" {
		fmt.Fprintln(r.out, seg.Text)
	}
}

// FullText returns the transcript accumulated so far.
func (r *Recorder) FullText() string { return r.acc.FullText() }

// Segments returns the finalized segments accumulated so far.
func (r *Recorder) Segments() []transcript.Segment { return r.acc.Segments() }

// LastError returns the most recent non-fatal session error, or nil.
func (r *Recorder) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
