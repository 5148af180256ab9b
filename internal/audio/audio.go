// Package audio provides the capture-side audio primitives for the vocifer
// pipeline: the frame type handed over by the platform capture source, a
// fixed-capacity ring buffer that absorbs microphone samples between flushes,
// PCM conversion helpers, and WAV encode/decode for the batch transcription
// path.
package audio

import "time"

// Frame is a single block of captured audio flowing into the pipeline.
// Frames are the atomic unit of capture: the platform source produces them at
// a fixed cadence and the session's flush loop consumes them.
//
// A Frame must own its Samples slice. Capture callbacks typically reuse their
// platform buffer, so producers copy samples into a fresh slice before
// constructing a Frame (see [Frame.Clone]).
type Frame struct {
	// Samples holds normalised mono PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for streaming speech input).
	SampleRate int

	// Channels is the channel count. The pipeline operates on mono audio;
	// multi-channel frames are downmixed at the source.
	Channels int

	// CapturedAt marks when the frame was captured.
	CapturedAt time.Time
}

// Clone returns a deep copy of the frame with its own backing array. Used at
// the capture boundary so the platform's reusable buffer is never aliased.
func (f Frame) Clone() Frame {
	samples := make([]float32, len(f.Samples))
	copy(samples, f.Samples)
	f.Samples = samples
	return f
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
