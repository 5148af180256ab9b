// Package transcript turns the stream of partial and final text fragments
// emitted by the session into a single stable transcript. Partial fragments
// revise the still-open segment in place; a final fragment freezes it.
// Finalized text is never deleted or rewritten, so the accumulated transcript
// is monotonically non-shrinking.
package transcript

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Segment is one fragment of the transcript.
type Segment struct {
	// Text is the normalised fragment text.
	Text string

	// IsFinal marks the segment immutable. A segment is either open
	// (partial) or final, never both.
	IsFinal bool

	// Source names the producer ("live" for the streaming path, "batch" for
	// the degraded path).
	Source string

	// Confidence is the recognition confidence when reported, else 0.
	Confidence float64

	// StartTime is when the segment was opened; EndTime when it was
	// finalized (zero while open).
	StartTime time.Time
	EndTime   time.Time
}

// Accumulator merges fragments into a transcript. Safe for concurrent use,
// though the session feeds it from a single consumer goroutine to preserve
// arrival order.
type Accumulator struct {
	mu        sync.Mutex
	finalized []Segment
	open      *Segment
	onFinal   func(Segment)
	now       func() time.Time
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithFinalizeFunc registers a callback invoked each time a segment is
// finalized. The callback runs synchronously under AddChunk's caller, so
// segment-finalized events preserve fragment order.
func WithFinalizeFunc(fn func(Segment)) Option {
	return func(a *Accumulator) { a.onFinal = fn }
}

// New creates an empty accumulator.
func New(opts ...Option) *Accumulator {
	a := &Accumulator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AddChunk merges one fragment into the transcript.
//
// A partial chunk opens a segment or revises the open one in place (the
// streaming model resends the full hypothesis for the current utterance, so
// revision replaces rather than appends). A final chunk closes the open
// segment, taking the chunk's text when non-empty and the open segment's
// accumulated text otherwise. A chunk that normalises to the empty string is
// a no-op unless it finalizes an already-open segment; zero-length segments
// are never created.
func (a *Accumulator) AddChunk(text string, isFinal bool, source string, confidence float64) {
	normalized := normalize(text)

	a.mu.Lock()
	defer a.mu.Unlock()

	// A new source closes whatever the previous source still had open.
	if a.open != nil && a.open.Source != source {
		a.finalizeOpenLocked()
	}

	if !isFinal {
		if normalized == "" {
			return
		}
		if a.open == nil {
			a.open = &Segment{
				Text:       normalized,
				Source:     source,
				Confidence: confidence,
				StartTime:  a.now(),
			}
			return
		}
		// Revise the open segment in place.
		a.open.Text = normalized
		if confidence > 0 {
			a.open.Confidence = confidence
		}
		return
	}

	// Final chunk.
	if normalized == "" && a.open == nil {
		return
	}
	if a.open == nil {
		a.open = &Segment{Source: source, StartTime: a.now()}
	}
	if normalized != "" {
		a.open.Text = normalized
	}
	if confidence > 0 {
		a.open.Confidence = confidence
	}
	a.finalizeOpenLocked()
}

// MarkComplete force-closes any open segment. Called at session end so the
// last partial hypothesis is not lost.
func (a *Accumulator) MarkComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalizeOpenLocked()
}

// FullText returns the finalized segments plus the open segment joined into
// one transcript string.
func (a *Accumulator) FullText() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, seg := range a.finalized {
		appendWithSpacing(&b, seg.Text)
	}
	if a.open != nil {
		appendWithSpacing(&b, a.open.Text)
	}
	return b.String()
}

// Segments returns a copy of the finalized segments in order.
func (a *Accumulator) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Segment, len(a.finalized))
	copy(out, a.finalized)
	return out
}

// OpenText returns the text of the still-open segment, or "" when none.
func (a *Accumulator) OpenText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open == nil {
		return ""
	}
	return a.open.Text
}

// Reset discards all state for a fresh session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = nil
	a.open = nil
}

// finalizeOpenLocked closes the open segment. Must be called with a.mu held.
// Segments that accumulated no text are dropped, never stored.
func (a *Accumulator) finalizeOpenLocked() {
	if a.open == nil {
		return
	}
	seg := *a.open
	a.open = nil
	if seg.Text == "" {
		return
	}
	seg.IsFinal = true
	seg.EndTime = a.now()
	a.finalized = append(a.finalized, seg)
	if a.onFinal != nil {
		a.onFinal(seg)
	}
}

// normalize collapses runs of whitespace to single spaces and trims the ends.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// appendWithSpacing writes text to b, inserting a separating space unless the
// builder is empty or the fragment starts with punctuation that binds to the
// previous word.
func appendWithSpacing(b *strings.Builder, text string) {
	if text == "" {
		return
	}
	if b.Len() > 0 && !startsWithBindingPunct(text) {
		b.WriteByte(' ')
	}
	b.WriteString(text)
}

func startsWithBindingPunct(text string) bool {
	// The leading character may be multi-byte (curly quotes), so decode a
	// full rune rather than inspecting text[0].
	r, _ := utf8.DecodeRuneInString(text)
	switch r {
	case '.', ',', '!', '?', ';', ':', ')', ']', '}', '\'', '”', '’':
		return true
	}
	return false
}
