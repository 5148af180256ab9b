package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/anvret/vocifer/internal/observe"
)

// captureSender records sent frames in order.
type captureSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *captureSender) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestHandler_PriorityOrdering(t *testing.T) {
	h := NewHandler(HandlerConfig{SampleRate: 16000})

	// Interleave enqueues across all four levels; the dispatch loop must
	// drain urgent > high > normal > low regardless of arrival order.
	enqueue := func(p Priority, text string) Message {
		msg := NewMessage(Type("custom"), p, map[string]any{"t": text})
		if err := h.Enqueue(msg); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		return msg
	}
	enqueue(PriorityLow, "l1")
	enqueue(PriorityNormal, "n1")
	enqueue(PriorityUrgent, "u1")
	enqueue(PriorityHigh, "h1")
	enqueue(PriorityUrgent, "u2")

	var order []Message
	for i := 0; i < 5; i++ {
		msg, ok := h.pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		order = append(order, msg)
	}

	want := []Priority{PriorityUrgent, PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}
	for i, msg := range order {
		if msg.Priority != want[i] {
			t.Errorf("pop %d: priority = %v, want %v", i, msg.Priority, want[i])
		}
	}
}

func TestHandler_EqualPriorityIsFIFO(t *testing.T) {
	h := NewHandler(HandlerConfig{})
	first := NewMessage(Type("custom"), PriorityNormal, 1)
	second := NewMessage(Type("custom"), PriorityNormal, 2)
	h.Enqueue(first)
	h.Enqueue(second)

	msg, _ := h.pop()
	if msg.ID != first.ID {
		t.Error("equal-priority messages not delivered FIFO")
	}
}

func TestHandler_RunSendsOnePerTick(t *testing.T) {
	h := NewHandler(HandlerConfig{DispatchTick: 5 * time.Millisecond})
	sender := &captureSender{}

	for i := 0; i < 3; i++ {
		h.Enqueue(NewMessage(Type("custom"), PriorityNormal, i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx, sender)
	}()

	// After roughly two ticks at most two messages may be out.
	time.Sleep(12 * time.Millisecond)
	if n := sender.count(); n > 2 {
		t.Errorf("sent %d messages in ~2 ticks, want <= 2", n)
	}

	// Eventually all three drain.
	deadline := time.After(time.Second)
	for sender.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("messages never drained")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if got := h.Stats().Sent; got != 3 {
		t.Errorf("Stats().Sent = %d, want 3", got)
	}
}

func TestHandler_ResponseCorrelation(t *testing.T) {
	h := NewHandler(HandlerConfig{ResponseTimeout: time.Second})

	msg := NewMessage(TypePing, PriorityUrgent, nil)
	got := make(chan Incoming, 1)
	errCh := make(chan error, 1)
	go func() {
		in, err := h.EnqueueWait(context.Background(), msg)
		got <- in
		errCh <- err
	}()

	// Wait for the pending slot to register, then deliver the reply.
	deadline := time.After(time.Second)
	for h.PendingCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("pending slot never registered")
		case <-time.After(time.Millisecond):
		}
	}
	h.HandleInbound([]byte(`{"pong":{},"response_id":"` + msg.ID + `"}`))

	in := <-got
	if err := <-errCh; err != nil {
		t.Fatalf("EnqueueWait: %v", err)
	}
	if in.Type != TypePong {
		t.Errorf("reply type = %q, want pong", in.Type)
	}
	if h.PendingCount() != 0 {
		t.Errorf("pending count after resolution = %d, want 0", h.PendingCount())
	}
}

func TestHandler_ResponseTimeoutRejectsOnceAndReleasesSlot(t *testing.T) {
	h := NewHandler(HandlerConfig{ResponseTimeout: 10 * time.Millisecond})

	msg := NewMessage(TypePing, PriorityUrgent, nil)
	_, err := h.EnqueueWait(context.Background(), msg)
	if !errors.Is(err, ErrResponseTimeout) {
		t.Fatalf("err = %v, want ErrResponseTimeout", err)
	}
	if h.PendingCount() != 0 {
		t.Fatalf("pending slot leaked after timeout")
	}

	// A late reply for the timed-out ID must be a no-op, not a double resolve.
	h.HandleInbound([]byte(`{"pong":{},"response_id":"` + msg.ID + `"}`))
}

func TestHandler_ReplyRacingTimeoutResolvesOnce(t *testing.T) {
	h := NewHandler(HandlerConfig{ResponseTimeout: time.Millisecond})

	// Replies arriving the instant a slot registers must race cleanly with
	// the timeout timer: exactly one outcome per call, no leaked slots.
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		msg := NewMessage(TypePing, PriorityUrgent, nil)
		wg.Add(2)
		go func() {
			defer wg.Done()
			in, err := h.EnqueueWait(context.Background(), msg)
			if err == nil && in.Type != TypePong {
				t.Errorf("resolved with type %q, want pong", in.Type)
			}
			if err != nil && !errors.Is(err, ErrResponseTimeout) {
				t.Errorf("err = %v, want nil or ErrResponseTimeout", err)
			}
		}()
		go func() {
			defer wg.Done()
			h.HandleInbound([]byte(`{"pong":{},"response_id":"` + msg.ID + `"}`))
		}()
	}
	wg.Wait()

	if n := h.PendingCount(); n != 0 {
		t.Fatalf("pending count after races = %d, want 0", n)
	}
}

func TestHandler_NoPendingGrowthAcrossManyTimeouts(t *testing.T) {
	h := NewHandler(HandlerConfig{ResponseTimeout: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.EnqueueWait(context.Background(), NewMessage(TypePing, PriorityLow, nil))
		}()
	}
	wg.Wait()

	if n := h.PendingCount(); n != 0 {
		t.Fatalf("pending count after mass timeouts = %d, want 0", n)
	}
}

func TestHandler_MalformedInboundCountedNotFatal(t *testing.T) {
	var decodeErr error
	h := NewHandler(HandlerConfig{
		OnDecodeError: func(err error) { decodeErr = err },
	})

	h.HandleInbound([]byte(`{nonsense`))

	if decodeErr == nil {
		t.Fatal("decode error callback not invoked")
	}
	if got := h.Stats().Failed; got != 1 {
		t.Errorf("Stats().Failed = %d, want 1", got)
	}

	// The handler keeps working after the bad frame.
	h.HandleInbound([]byte(`{"pong":{}}`))
	if got := h.Stats().Received; got != 1 {
		t.Errorf("Stats().Received = %d, want 1", got)
	}
}

func TestHandler_HistoryIsBounded(t *testing.T) {
	h := NewHandler(HandlerConfig{HistorySize: 10})

	for i := 0; i < 25; i++ {
		h.HandleInbound([]byte(`{"pong":{}}`))
	}

	hist := h.History()
	if len(hist) != 10 {
		t.Fatalf("history length = %d, want 10", len(hist))
	}
}

// counterValue sums the data points of an int64 counter, or returns 0 when
// the instrument recorded nothing.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestHandler_RecordsMessageMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := NewHandler(HandlerConfig{DispatchTick: time.Millisecond, SampleRate: 16000, Metrics: m})
	sender := &captureSender{}
	if err := h.Enqueue(NewMessage(TypeRealtimeInput, PriorityNormal, []byte{1, 2})); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx, sender)
	}()
	deadline := time.After(time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("message never dispatched")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	h.HandleInbound([]byte(`{"pong":{}}`))
	h.HandleInbound([]byte(`{broken`))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if got := counterValue(t, rm, "vocifer.messages.sent"); got != 1 {
		t.Errorf("messages.sent = %d, want 1", got)
	}
	if got := counterValue(t, rm, "vocifer.messages.received"); got != 1 {
		t.Errorf("messages.received = %d, want 1", got)
	}
	if got := counterValue(t, rm, "vocifer.messages.failed"); got != 1 {
		t.Errorf("messages.failed = %d, want 1", got)
	}
}

func TestHandler_CloseRejectsPendingAndFurtherEnqueues(t *testing.T) {
	h := NewHandler(HandlerConfig{ResponseTimeout: time.Hour})

	msg := NewMessage(TypePing, PriorityUrgent, nil)
	errCh := make(chan error, 1)
	go func() {
		_, err := h.EnqueueWait(context.Background(), msg)
		errCh <- err
	}()

	deadline := time.After(time.Second)
	for h.PendingCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("pending slot never registered")
		case <-time.After(time.Millisecond):
		}
	}

	h.Close()
	if err := <-errCh; !errors.Is(err, ErrHandlerClosed) {
		t.Fatalf("pending err = %v, want ErrHandlerClosed", err)
	}
	if err := h.Enqueue(NewMessage(TypePing, PriorityLow, nil)); !errors.Is(err, ErrHandlerClosed) {
		t.Fatalf("Enqueue after close = %v, want ErrHandlerClosed", err)
	}

	h.Close() // idempotent
}
