package audio_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/grenouille/pkg/audio"
)

func TestExtractTail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     []audio.Sample
		length   int
		want     []audio.Sample
		wantReal int
	}{
		{
			name:     "left padded",
			a:        seq(1, 3),
			length:   5,
			want:     []audio.Sample{0, 0, 1, 2, 3},
			wantReal: 3,
		},
		{
			name:     "padded across split",
			a:        seq(1, 2),
			b:        seq(3, 3),
			length:   5,
			want:     []audio.Sample{0, 0, 1, 2, 3},
			wantReal: 3,
		},
		{
			name:     "tail inside second slice",
			a:        seq(1, 3),
			b:        seq(4, 8),
			length:   4,
			want:     seq(5, 8),
			wantReal: 4,
		},
		{
			name:     "tail spans split",
			a:        seq(1, 3),
			b:        seq(4, 5),
			length:   4,
			want:     seq(2, 5),
			wantReal: 4,
		},
		{
			name:     "exact length",
			a:        seq(1, 2),
			b:        seq(3, 4),
			length:   4,
			want:     seq(1, 4),
			wantReal: 4,
		},
		{
			name:   "empty source",
			length: 3,
			want:   []audio.Sample{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dst := make([]audio.Sample, tt.length)
			for i := range dst {
				dst[i] = -1 // stale data must be overwritten
			}
			n := audio.ExtractTail(tt.a, tt.b, dst)
			if n != tt.wantReal {
				t.Errorf("real samples = %d, want %d", n, tt.wantReal)
			}
			if !slices.Equal(dst, tt.want) {
				t.Errorf("frame = %v, want %v", dst, tt.want)
			}
		})
	}
}

func TestExtractor_FromWrappedBuffer(t *testing.T) {
	t.Parallel()

	rb := audio.NewRingBuffer(6)
	rb.OverwriteSlice(seq(1, 4))
	rb.OverwriteSlice(seq(5, 9)) // storage wraps; contents 4..9

	ex := audio.NewExtractor(4)
	if got := ex.From(rb); !slices.Equal(got, seq(6, 9)) {
		t.Errorf("From = %v, want %v", got, seq(6, 9))
	}
	if rb.Len() != 6 {
		t.Errorf("extraction must not consume samples: Len = %d", rb.Len())
	}

	rb.Clear()
	rb.Overwrite(1)
	if got := ex.From(rb); !slices.Equal(got, []audio.Sample{0, 0, 0, 1}) {
		t.Errorf("From after clear = %v, want [0 0 0 1]", got)
	}
}
