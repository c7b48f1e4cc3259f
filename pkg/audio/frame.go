package audio

// ExtractTail copies the len(dst) most recent samples of the sequence a ++ b
// into dst, oldest first. When the sequence is shorter than dst the front of
// dst is zero-filled so the real audio always ends at the last index. It
// returns the number of real samples copied.
func ExtractTail(a, b, dst []Sample) int {
	want := len(dst)
	total := len(a) + len(b)
	k := min(want, total)

	pad := want - k
	clear(dst[:pad])
	out := dst[pad:]

	skip := total - k
	if skip < len(a) {
		n := copy(out, a[skip:])
		copy(out[n:], b)
	} else {
		copy(out, b[skip-len(a):])
	}
	return k
}

// Extractor produces fixed-length classifier frames from a [RingBuffer]
// without allocating on every tick. The returned frame is overwritten by the
// next call, so callers must finish with it first.
type Extractor struct {
	frame []Sample
}

// NewExtractor returns an Extractor for frames of length samples.
func NewExtractor(length int) *Extractor {
	return &Extractor{frame: make([]Sample, length)}
}

// Len returns the frame length.
func (e *Extractor) Len() int { return len(e.frame) }

// From extracts the most recent frame from rb.
func (e *Extractor) From(rb *RingBuffer) []Sample {
	rb.Tail(e.frame)
	return e.frame
}

// FromSlices extracts the most recent frame from an already-locked view.
func (e *Extractor) FromSlices(a, b []Sample) []Sample {
	ExtractTail(a, b, e.frame)
	return e.frame
}
