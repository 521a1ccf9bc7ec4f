package snd

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestNormalizeReachesTarget(t *testing.T) {
	in := sine(1000, 16000, 16000)
	for i := range in {
		in[i] *= 0.05 // quiet, but within max gain reach
	}
	out := Normalize(in, TargetRMS, MaxGain)
	if r := RMS(out); math.Abs(r-TargetRMS) > 0.005 {
		t.Errorf("normalized RMS = %.4f, want about %.2f", r, TargetRMS)
	}
}

func TestNormalizeGainClamped(t *testing.T) {
	in := sine(1000, 16000, 16000)
	for i := range in {
		in[i] *= 0.001 // too quiet for the target within max gain
	}
	inRMS := RMS(in)
	out := Normalize(in, TargetRMS, MaxGain)
	if r := RMS(out); r > inRMS*MaxGain*1.01 {
		t.Errorf("gain exceeded clamp: in %.5f, out %.5f", inRMS, r)
	}
}

func TestNormalizeSilencePassthrough(t *testing.T) {
	in := make([]float32, 1000)
	out := Normalize(in, TargetRMS, MaxGain)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("silence amplified at %d: %f", i, v)
		}
	}
	if out := Normalize(nil, TargetRMS, MaxGain); len(out) != 0 {
		t.Errorf("empty input grew")
	}
}

func TestEncodeWAV(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Fatalf("WAV length = %d, want %d", len(data), 44+len(samples)*2)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Errorf("bad RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if got := int16(binary.LittleEndian.Uint16(data[46:48])); got != 1000 {
		t.Errorf("second sample = %d, want 1000", got)
	}

	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Errorf("empty audio should error")
	}
}
