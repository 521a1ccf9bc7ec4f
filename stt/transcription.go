package stt

import (
	"context"
)

// Result is the one fixed shape a transcription engine hands back. The
// engine's wire contract (JSON object vs. raw text body) is resolved once
// when the client is constructed, never probed per call.
type Result struct {
	Text       string
	Confidence float64
	Duration   float64
}

// Transcriber turns mono float audio at the given rate into text. An
// empty Text with a nil error is a legitimate answer for silence or
// unrecognized audio.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)
}
