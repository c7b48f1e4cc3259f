package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBufferFull is returned by [RingBuffer.Write] when the buffer is at
// capacity. Callers that want drop-oldest behaviour use Overwrite instead.
var ErrBufferFull = errors.New("audio: ring buffer full")

// ErrBufferEmpty is returned by [RingBuffer.Read] when there is nothing to read.
var ErrBufferEmpty = errors.New("audio: ring buffer empty")

// RingBuffer is a fixed-capacity FIFO of samples that keeps the most recent
// audio. Once full, Overwrite evicts the oldest sample for every new one.
//
// Every method takes the buffer's mutex for the duration of that one call and
// never blocks on anything else, so the capture callback can share it with the
// poll loop. Slices returned by [RingBuffer.AsSlices] alias internal storage;
// use [RingBuffer.View] or the copying helpers when other goroutines may be
// writing.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []Sample
	head    int // index of the oldest sample
	n       int
	evicted uint64
}

// NewRingBuffer returns an empty buffer holding at most capacity samples.
// It panics if capacity is not positive.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("audio: ring buffer capacity must be positive, got %d", capacity))
	}
	return &RingBuffer{buf: make([]Sample, capacity)}
}

// NewRingBufferFor sizes a buffer to hold seconds of audio at rate.
func NewRingBufferFor(rate int, seconds float64) *RingBuffer {
	return NewRingBuffer(int(float64(rate) * seconds))
}

// Cap returns the fixed capacity in samples.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Len returns the number of samples currently held.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Evicted returns how many samples Overwrite has dropped since construction.
func (r *RingBuffer) Evicted() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evicted
}

// Write appends s, failing with [ErrBufferFull] if the buffer is at capacity.
func (r *RingBuffer) Write(s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == len(r.buf) {
		return ErrBufferFull
	}
	r.push(s)
	return nil
}

// Overwrite appends s, evicting the oldest sample when the buffer is full.
func (r *RingBuffer) Overwrite(s Sample) {
	r.mu.Lock()
	r.push(s)
	r.mu.Unlock()
}

// OverwriteSlice appends every sample in ss under a single lock acquisition,
// evicting the oldest samples as needed. This is the capture hot path.
func (r *RingBuffer) OverwriteSlice(ss []Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only the last Cap() samples of an oversized batch can survive.
	if extra := len(ss) - len(r.buf); extra > 0 {
		r.evicted += uint64(r.n + extra)
		r.head, r.n = 0, 0
		ss = ss[extra:]
	}
	for _, s := range ss {
		r.push(s)
	}
}

// push appends s. r.mu must be held.
func (r *RingBuffer) push(s Sample) {
	c := len(r.buf)
	if r.n == c {
		r.buf[r.head] = s
		r.head = (r.head + 1) % c
		r.evicted++
		return
	}
	r.buf[(r.head+r.n)%c] = s
	r.n++
}

// Read removes and returns the oldest sample, or [ErrBufferEmpty].
func (r *RingBuffer) Read() (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return 0, ErrBufferEmpty
	}
	s := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return s, nil
}

// AsSlices returns the contents as at most two slices, oldest first, such that
// a followed by b is the exact write order. b is empty when the contents do not
// wrap. Both alias internal storage and are only stable until the next
// mutation.
func (r *RingBuffer) AsSlices() (a, b []Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slices()
}

func (r *RingBuffer) slices() (a, b []Sample) {
	c := len(r.buf)
	end := r.head + r.n
	if end <= c {
		return r.buf[r.head:end], r.buf[:0]
	}
	return r.buf[r.head:], r.buf[:end-c]
}

// View calls fn with the two-slice view of the contents while holding the
// lock. fn must not retain the slices or call back into r.
func (r *RingBuffer) View(fn func(a, b []Sample)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.slices())
}

// MakeContiguous rearranges storage so that the whole contents is one slice
// (the second slice of AsSlices becomes empty). Order is preserved.
func (r *RingBuffer) MakeContiguous() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.makeContiguous()
}

func (r *RingBuffer) makeContiguous() {
	if r.head == 0 {
		return
	}
	// Rotate left by head in place: three reversals, no allocation.
	reverse(r.buf[:r.head])
	reverse(r.buf[r.head:])
	reverse(r.buf)
	r.head = 0
}

func reverse(s []Sample) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Clear empties the buffer. Capacity is retained.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.n = 0, 0
}

// Snapshot returns a copy of the contents, oldest first.
func (r *RingBuffer) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, b := r.slices()
	out := make([]Sample, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Tail fills dst with the len(dst) most recent samples, zero-padding at the
// front when fewer are available. It returns how many real samples were
// copied.
func (r *RingBuffer) Tail(dst []Sample) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, b := r.slices()
	return ExtractTail(a, b, dst)
}

// CutTail copies out the n most recent samples and empties the buffer in one
// critical section. held is the number of samples the buffer contained; when
// it is below n every held sample is returned.
func (r *RingBuffer) CutTail(n int) (samples []Sample, held int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	held = r.n
	n = max(min(n, held), 0)
	r.makeContiguous()
	samples = make([]Sample, n)
	copy(samples, r.buf[held-n:held])
	r.head, r.n = 0, 0
	return samples, held
}
