package audio

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Source delivers fixed-size mono frames at a declared sample rate. It is the
// pipeline's stand-in for a platform capture device: the CLI feeds it from a
// WAV file, tests feed it from slices, a desktop integration would feed it
// from the microphone callback.
type Source interface {
	// Frames returns the channel on which captured frames arrive. The channel
	// is closed when the source is exhausted or the context is cancelled.
	Frames() <-chan Frame

	// Run produces frames until the source is exhausted or ctx is cancelled.
	Run(ctx context.Context) error
}

// FileSource reads a WAV stream and emits fixed-size frames, pacing them at
// capture cadence so the downstream pipeline sees realistic timing. With
// Realtime disabled it emits as fast as the consumer drains, which is what
// tests want.
type FileSource struct {
	FrameSize int  // samples per frame
	Realtime  bool // pace frames at playback speed

	samples    []float32
	sampleRate int
	frames     chan Frame
}

// NewFileSource decodes the WAV stream from r into memory and prepares a
// source that emits frameSize-sample mono frames.
func NewFileSource(r io.Reader, frameSize int, realtime bool) (*FileSource, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("audio: file source: frame size must be positive, got %d", frameSize)
	}
	samples, rate, err := DecodeWAV(r)
	if err != nil {
		return nil, err
	}
	return &FileSource{
		FrameSize:  frameSize,
		Realtime:   realtime,
		samples:    samples,
		sampleRate: rate,
		frames:     make(chan Frame, 8),
	}, nil
}

// SampleRate returns the sample rate declared by the decoded stream.
func (s *FileSource) SampleRate() int { return s.sampleRate }

// Frames returns the frame delivery channel.
func (s *FileSource) Frames() <-chan Frame { return s.frames }

// Run emits the decoded samples as frames. It closes the frame channel on
// return. The final frame may be shorter than FrameSize.
func (s *FileSource) Run(ctx context.Context) error {
	defer close(s.frames)

	frameDur := time.Duration(s.FrameSize) * time.Second / time.Duration(s.sampleRate)
	var ticker *time.Ticker
	if s.Realtime {
		ticker = time.NewTicker(frameDur)
		defer ticker.Stop()
	}

	for off := 0; off < len(s.samples); off += s.FrameSize {
		end := off + s.FrameSize
		if end > len(s.samples) {
			end = len(s.samples)
		}
		frame := Frame{
			Samples:    s.samples[off:end],
			SampleRate: s.sampleRate,
			Channels:   1,
			CapturedAt: time.Now(),
		}.Clone()

		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}

		if ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
