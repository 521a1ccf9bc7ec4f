package snd

import (
	"math"
	"testing"
)

func sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

// goertzel returns the signal power near one frequency.
func goertzel(x []float32, freq float64, rate int) float64 {
	w := 2 * math.Pi * freq / float64(rate)
	coeff := 2 * math.Cos(w)
	var s1, s2 float64
	for _, v := range x {
		s0 := float64(v) + coeff*s1 - s2
		s2, s1 = s1, s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

func TestResampleKeepsDominantFrequency(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := sine(1000, 48000, 48000/2) // half a second
	out := r.Process(in)

	wantLen := len(in) / 3
	if len(out) < wantLen-1 || len(out) > wantLen+1 {
		t.Fatalf("output length = %d, want about %d", len(out), wantLen)
	}

	// Scan for the strongest bin in the middle of the output to skip the
	// filter edge transients.
	mid := out[len(out)/4 : 3*len(out)/4]
	bestFreq, bestPower := 0.0, 0.0
	for f := 100.0; f < 7900; f += 50 {
		p := goertzel(mid, f, 16000)
		if p > bestPower {
			bestPower = p
			bestFreq = f
		}
	}
	if math.Abs(bestFreq-1000) > 50 {
		t.Errorf("dominant frequency = %.0f Hz, want 1000 Hz", bestFreq)
	}
}

func TestResampleSuppressesAliasing(t *testing.T) {
	// 10 kHz is above the 8 kHz Nyquist of the target rate; a proper
	// anti-aliased downsampler must attenuate it to near silence instead
	// of folding it back into the band.
	r := NewResampler(48000, 16000)
	in := sine(10000, 48000, 48000/2)
	out := r.Process(in)

	inRMS := RMS(in)
	outRMS := RMS(out[len(out)/4 : 3*len(out)/4])
	if outRMS > 0.05*inRMS {
		t.Errorf("aliased energy survived downsampling: in RMS %.4f, out RMS %.4f", inRMS, outRMS)
	}
}

func TestResampleAmplitudePreserved(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := sine(1000, 48000, 48000)
	out := r.Process(in)

	inRMS := RMS(in)
	outRMS := RMS(out[len(out)/4 : 3*len(out)/4])
	if math.Abs(outRMS-inRMS) > 0.05*inRMS {
		t.Errorf("RMS changed: in %.4f, out %.4f", inRMS, outRMS)
	}
}

func TestResampleZeroLength(t *testing.T) {
	r := NewResampler(48000, 16000)
	if out := r.Process(nil); len(out) != 0 {
		t.Errorf("zero-length input produced %d samples", len(out))
	}
	if out := r.Process([]float32{}); len(out) != 0 {
		t.Errorf("empty input produced %d samples", len(out))
	}
}

func TestResampleSameRatePassthrough(t *testing.T) {
	r := NewResampler(16000, 16000)
	in := sine(440, 16000, 160)
	out := r.Process(in)
	if len(out) != len(in) {
		t.Fatalf("passthrough length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("passthrough altered sample %d", i)
		}
	}
}

func TestLinearResampleLength(t *testing.T) {
	r := NewLinearResampler(48000, 16000)
	out := r.Process(sine(1000, 48000, 4800))
	if len(out) != 1600 {
		t.Errorf("linear output length = %d, want 1600", len(out))
	}
}

func TestResampleUpsamples(t *testing.T) {
	r := NewResampler(8000, 16000)
	in := sine(1000, 8000, 8000)
	out := r.Process(in)
	if len(out) != 2*len(in) {
		t.Fatalf("output length = %d, want %d", len(out), 2*len(in))
	}
	mid := out[len(out)/4 : 3*len(out)/4]
	if p1k, p3k := goertzel(mid, 1000, 16000), goertzel(mid, 3000, 16000); p3k > p1k/100 {
		t.Errorf("upsampling produced imaging energy at 3 kHz: %.2g vs %.2g", p3k, p1k)
	}
}
