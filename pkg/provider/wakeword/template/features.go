package template

import "math"

const (
	numBands = 16
	minFreq  = 150.0
	maxFreq  = 4000.0
	logFloor = 1e-10
)

// featurizer turns a frame of samples into a mean-normalized vector of log
// band energies. Band centres are mel-spaced; each is measured with a
// Goertzel filter over a Hann-windowed frame.
type featurizer struct {
	coeffs []float64
	window []float64
	tmp    []float64
}

func newFeaturizer(frameLen, rate int) *featurizer {
	top := min(maxFreq, float64(rate)/2-100)
	lo, hi := hzToMel(minFreq), hzToMel(top)

	coeffs := make([]float64, numBands)
	for i := range coeffs {
		mel := lo + (hi-lo)*float64(i)/float64(numBands-1)
		coeffs[i] = 2 * math.Cos(2*math.Pi*melToHz(mel)/float64(rate))
	}

	window := make([]float64, frameLen)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(frameLen-1))
	}
	return &featurizer{coeffs: coeffs, window: window, tmp: make([]float64, frameLen)}
}

// vector returns the feature vector and the RMS level of frame.
func (f *featurizer) vector(frame []float32) ([]float64, float64) {
	var sum float64
	for i, s := range frame {
		v := float64(s)
		sum += v * v
		f.tmp[i] = v * f.window[i]
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	out := make([]float64, numBands)
	var mean float64
	for b, c := range f.coeffs {
		out[b] = math.Log(goertzel(f.tmp, c) + logFloor)
		mean += out[b]
	}
	mean /= numBands
	for b := range out {
		out[b] -= mean
	}
	return out, rms
}

// sequence featurizes samples with frames of frameLen advancing by hop.
func (f *featurizer) sequence(samples []float32, frameLen, hop int) (vecs [][]float64, levels []float64) {
	for start := 0; start+frameLen <= len(samples); start += hop {
		v, rms := f.vector(samples[start : start+frameLen])
		vecs = append(vecs, v)
		levels = append(levels, rms)
	}
	return vecs, levels
}

// trimSilence drops leading and trailing frames quieter than 20 dB below the
// loudest frame.
func trimSilence(vecs [][]float64, levels []float64) [][]float64 {
	var peak float64
	for _, l := range levels {
		peak = max(peak, l)
	}
	if peak == 0 {
		return nil
	}
	gate := peak * 0.1
	first, last := -1, -1
	for i, l := range levels {
		if l >= gate {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	return vecs[first : last+1]
}

func goertzel(x []float64, coeff float64) float64 {
	var s1, s2 float64
	for _, v := range x {
		s := v + coeff*s1 - s2
		s2, s1 = s1, s
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

func hzToMel(f float64) float64 { return 2595 * math.Log10(1+f/700) }
func melToHz(m float64) float64 { return 700 * (math.Pow(10, m/2595) - 1) }

// cosine returns the cosine similarity of a and b, or 0 if either is zero.
func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}

// dtwScore aligns a and b with symmetric dynamic time warping and returns the
// mean cosine similarity along the best path, clamped to [0, 1].
func dtwScore(a, b [][]float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return 0
	}
	inf := math.Inf(1)
	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = inf
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		cur[0] = inf
		for j := 1; j <= m; j++ {
			d := 1 - cosine(a[i-1], b[j-1])
			cur[j] = min(prev[j]+d, cur[j-1]+d, prev[j-1]+2*d)
		}
		prev, cur = cur, prev
	}
	cost := prev[m] / float64(n+m)
	return max(0, min(1, 1-cost))
}
