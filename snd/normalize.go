package snd

import "math"

const (
	// TargetRMS and MaxGain bound the loudness normalization applied
	// before every decode submission.
	TargetRMS = 0.06
	MaxGain   = 12.0
)

// Normalize scales audio toward the target RMS loudness with a clamped
// maximum gain, then clips to [-1, 1]. Near-silent input is returned
// untouched rather than amplified into noise.
func Normalize(x []float32, targetRMS, maxGain float64) []float32 {
	if len(x) == 0 {
		return x
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(x)))
	if rms < 1e-7 {
		return x
	}
	gain := targetRMS / rms
	if gain > maxGain {
		gain = maxGain
	}
	out := make([]float32, len(x))
	for i, v := range x {
		y := float64(v) * gain
		if y > 1 {
			y = 1
		} else if y < -1 {
			y = -1
		}
		out[i] = float32(y)
	}
	return out
}

// ToInt16 converts float32 samples in [-1, 1] to 16-bit PCM, clipping
// out-of-range values.
func ToInt16(x []float32) []int16 {
	out := make([]int16, len(x))
	for i, v := range x {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = int16(v * 32767)
	}
	return out
}

// RMS returns the root-mean-square level of the samples.
func RMS(x []float32) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(x)))
}
