package snd

// Detector classifies one fixed-length frame as speech or not.
type Detector interface {
	IsSpeech(frame []float32) bool
}

// EnergyDetector is an energy/spectral voice-activity detector. A frame
// counts as speech when its RMS clears the mode's threshold and its
// zero-crossing rate stays in the speech band, or when the energy is high
// enough that the spectral check is moot.
type EnergyDetector struct {
	threshold float64
	zcrMax    float64
}

// Thresholds per aggressiveness mode 0..3. Higher modes demand more
// energy before a frame counts as voiced.
var energyThresholds = [4]float64{0.005, 0.010, 0.020, 0.040}

func NewEnergyDetector(aggressiveness int) *EnergyDetector {
	if aggressiveness < 0 {
		aggressiveness = 0
	}
	if aggressiveness > 3 {
		aggressiveness = 3
	}
	return &EnergyDetector{
		threshold: energyThresholds[aggressiveness],
		zcrMax:    0.5,
	}
}

func (d *EnergyDetector) IsSpeech(frame []float32) bool {
	if len(frame) == 0 {
		return false
	}
	rms := RMS(frame)
	if rms < d.threshold {
		return false
	}
	if rms >= 4*d.threshold {
		return true
	}
	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / float64(len(frame))
	return zcr <= d.zcrMax
}

// Gate frames a resampled stream and forwards only voiced audio plus a
// bounded hangover tail, so short pauses don't chop words. One Gate per
// connection; it is not safe for concurrent use.
type Gate struct {
	det        Detector
	frameLen   int
	hangFrames int

	rem        []float32
	hang       int
	voicedSeen bool
}

func NewGate(det Detector, sampleRate, frameMillis, hangoverMillis int) *Gate {
	return &Gate{
		det:        det,
		frameLen:   sampleRate * frameMillis / 1000,
		hangFrames: hangoverMillis / frameMillis,
	}
}

// Feed consumes resampled samples and returns the frames that passed the
// gate, in order. A voiced frame resets the hangover; an unvoiced frame
// is forwarded while hangover remains (decrementing it) and dropped
// outright otherwise. Partial frames are carried to the next call.
func (g *Gate) Feed(samples []float32) [][]float32 {
	g.rem = append(g.rem, samples...)

	var forwarded [][]float32
	for len(g.rem) >= g.frameLen {
		frame := g.rem[:g.frameLen]
		g.rem = g.rem[g.frameLen:]

		if g.det.IsSpeech(frame) {
			g.voicedSeen = true
			g.hang = g.hangFrames
			forwarded = append(forwarded, copyFrame(frame))
		} else if g.hang > 0 {
			g.hang--
			forwarded = append(forwarded, copyFrame(frame))
		}
		// otherwise the frame is dropped, not buffered
	}
	return forwarded
}

// VoicedSeen reports whether any voiced frame ever passed this gate.
func (g *Gate) VoicedSeen() bool {
	return g.voicedSeen
}

func copyFrame(frame []float32) []float32 {
	out := make([]float32, len(frame))
	copy(out, frame)
	return out
}
