// Package vad implements the voice-activity gate that decides whether a
// captured frame carries speech. The gate is energy based: it tracks a
// rolling history of per-frame RMS values and adapts its decision threshold
// to ambient noise, while never relaxing below the configured static floor.
package vad

import "github.com/anvret/vocifer/internal/audio"

// defaultHistorySize is the number of recent frame energies retained for the
// adaptive threshold.
const defaultHistorySize = 10

// Gate classifies frames as speech or silence. One Gate serves exactly one
// active stream; state never carries across sessions ([Gate.Reset] is called
// on session restart).
//
// Gate is not safe for concurrent use; the flush loop is its only caller.
type Gate struct {
	history []float64
	next    int
	filled  int
}

// NewGate creates a gate with the default rolling-history size.
func NewGate() *Gate {
	return &Gate{history: make([]float64, defaultHistorySize)}
}

// Detect reports whether the frame carries speech. The decision threshold is
// max(staticThreshold, 0.5 * rolling average of recent frame energies), so a
// noisy room raises the bar but a quiet one never lowers it below the floor.
// The frame's energy is recorded regardless of the outcome.
func (g *Gate) Detect(frame audio.Frame, staticThreshold float64) bool {
	energy := audio.RMS(frame.Samples)

	threshold := staticThreshold
	if g.filled > 0 {
		if adaptive := 0.5 * g.rollingAverage(); adaptive > threshold {
			threshold = adaptive
		}
	}

	g.history[g.next] = energy
	g.next = (g.next + 1) % len(g.history)
	if g.filled < len(g.history) {
		g.filled++
	}

	return energy > threshold
}

// Reset clears the rolling history. Called when a session restarts so the
// new stream starts from the static floor.
func (g *Gate) Reset() {
	for i := range g.history {
		g.history[i] = 0
	}
	g.next = 0
	g.filled = 0
}

func (g *Gate) rollingAverage() float64 {
	var sum float64
	for i := 0; i < g.filled; i++ {
		sum += g.history[i]
	}
	return sum / float64(g.filled)
}
