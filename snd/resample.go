// Package snd holds the signal-path leaves: rate conversion, loudness
// normalization, PCM encoding, and the voice gate.
package snd

import (
	"math"
)

// Resampler converts mono float32 audio from a fixed source rate to a
// fixed target rate. The default path is polyphase FIR interpolation over
// the reduced up/down fraction, with a windowed-sinc anti-aliasing filter.
// The linear path is a quality fallback: it aliases on downsampling and
// should only be chosen when filter cost matters more than fidelity.
type Resampler struct {
	inRate  int
	outRate int
	up      int
	down    int
	taps    []float64
	half    int
	linear  bool
}

// NewResampler builds a polyphase resampler for the given rate pair.
func NewResampler(inRate, outRate int) *Resampler {
	r := &Resampler{inRate: inRate, outRate: outRate}
	if inRate == outRate {
		return r
	}
	g := gcd(inRate, outRate)
	r.up = outRate / g
	r.down = inRate / g
	r.taps, r.half = designLowpass(r.up, r.down)
	return r
}

// NewLinearResampler builds the linear-interpolation fallback.
func NewLinearResampler(inRate, outRate int) *Resampler {
	return &Resampler{inRate: inRate, outRate: outRate, linear: true}
}

// designLowpass returns a windowed-sinc FIR prototype at the upsampled
// rate, cut off at the narrower of the two Nyquist frequencies, with unity
// passband gain after polyphase decomposition.
func designLowpass(up, down int) ([]float64, int) {
	const zeroCrossings = 10
	m := up
	if down > m {
		m = down
	}
	half := zeroCrossings * m
	n := 2*half + 1
	fc := 1.0 / (2.0 * float64(m))

	taps := make([]float64, n)
	for i := 0; i < n; i++ {
		x := float64(i - half)
		s := 2 * fc * sinc(2*fc*x)
		// Hamming window
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		taps[i] = s * w * float64(up)
	}
	return taps, half
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Process resamples one frame. Frames are treated independently, matching
// the upstream one-message-at-a-time ingestion; the filter tails at frame
// edges are zero-padded. Zero-length input yields zero-length output.
func (r *Resampler) Process(x []float32) []float32 {
	if len(x) == 0 {
		return nil
	}
	if r.inRate == r.outRate {
		out := make([]float32, len(x))
		copy(out, x)
		return out
	}
	if r.linear {
		return r.processLinear(x)
	}

	outLen := (len(x)*r.up + r.down - 1) / r.down
	out := make([]float32, outLen)
	for j := 0; j < outLen; j++ {
		// Center the filter on the output's position in the upsampled
		// domain so the result carries no group delay.
		m := j*r.down + r.half
		i0 := m / r.up
		phase := m % r.up
		var acc float64
		for t, k := 0, phase; k < len(r.taps); t, k = t+1, k+r.up {
			xi := i0 - t
			if xi < 0 {
				break
			}
			if xi >= len(x) {
				continue
			}
			acc += r.taps[k] * float64(x[xi])
		}
		out[j] = float32(acc)
	}
	return out
}

func (r *Resampler) processLinear(x []float32) []float32 {
	outLen := int(math.Round(float64(len(x)) * float64(r.outRate) / float64(r.inRate)))
	out := make([]float32, outLen)
	step := float64(r.inRate) / float64(r.outRate)
	for j := 0; j < outLen; j++ {
		pos := float64(j) * step
		i := int(pos)
		if i >= len(x)-1 {
			out[j] = x[len(x)-1]
			continue
		}
		frac := float32(pos - float64(i))
		out[j] = x[i] + (x[i+1]-x[i])*frac
	}
	return out
}
