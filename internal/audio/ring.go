package audio

// Ring is a fixed-capacity FIFO ring buffer of float32 samples.
//
// A write that would exceed the remaining space is truncated: the samples
// that fit are stored and the caller learns how many were dropped from the
// return value. Unread data is never overwritten.
//
// Ring is not safe for concurrent use. The capture path and the flush loop
// serialize access externally (a single mutex owned by the session).
type Ring struct {
	storage  []float32
	writeIdx int
	readIdx  int
	stored   int
}

// NewRing creates a ring buffer holding at most capacity samples.
// Panics if capacity is not positive, since a zero-capacity buffer would
// silently drop every sample.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("audio: ring capacity must be positive")
	}
	return &Ring{storage: make([]float32, capacity)}
}

// Write copies as many samples as fit into the buffer and returns the number
// actually written. The remainder (len(samples) - written) was dropped.
func (r *Ring) Write(samples []float32) int {
	n := len(samples)
	if space := r.AvailableSpace(); n > space {
		n = space
	}
	for i := 0; i < n; i++ {
		r.storage[r.writeIdx] = samples[i]
		r.writeIdx++
		if r.writeIdx == len(r.storage) {
			r.writeIdx = 0
		}
	}
	r.stored += n
	return n
}

// Read removes and returns up to n samples in FIFO order. Fewer samples are
// returned when the buffer holds fewer than n; an empty buffer yields a nil
// slice. The returned slice is freshly allocated and owned by the caller.
func (r *Ring) Read(n int) []float32 {
	if n > r.stored {
		n = r.stored
	}
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = r.storage[r.readIdx]
		r.readIdx++
		if r.readIdx == len(r.storage) {
			r.readIdx = 0
		}
	}
	r.stored -= n
	return out
}

// AvailableData returns the number of samples currently stored.
func (r *Ring) AvailableData() int { return r.stored }

// AvailableSpace returns the number of samples that can be written without
// truncation.
func (r *Ring) AvailableSpace() int { return len(r.storage) - r.stored }

// Capacity returns the fixed capacity of the buffer.
func (r *Ring) Capacity() int { return len(r.storage) }

// Clear discards all stored samples and zeroes the backing storage so stale
// audio cannot leak into a later session.
func (r *Ring) Clear() {
	for i := range r.storage {
		r.storage[i] = 0
	}
	r.writeIdx = 0
	r.readIdx = 0
	r.stored = 0
}
