// Package session owns the single global transcription session: the
// shared audio buffers, the decode scheduler, and the start/stop state
// machine around them.
package session

import (
	"sync"
)

// Store holds the two audio buffers the scheduler decodes from: a bounded
// ring of the most recent canonical-rate samples and an unbounded
// accumulator of all voiced audio since the session started. One mutex
// guards both, so the ingestion writer and the scheduler reader never see
// a half-written append.
type Store struct {
	mu sync.Mutex

	rate       int
	minSamples int

	ring []float32
	head int
	size int

	session   []float32
	recording bool
}

// NewStore sizes the ring for maxSeconds of audio at the canonical rate.
// Windows shorter than minSeconds are reported as unavailable.
func NewStore(rate int, maxSeconds, minSeconds float64) *Store {
	capacity := int(maxSeconds * float64(rate))
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		rate:       rate,
		minSamples: int(minSeconds * float64(rate)),
		ring:       make([]float32, capacity),
	}
}

// Append adds a voiced frame to the ring, evicting the oldest samples
// once full. While recording, the frame also extends the session
// accumulator.
func (s *Store) Append(frame []float32) {
	if len(frame) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range frame {
		s.ring[s.head] = v
		s.head = (s.head + 1) % len(s.ring)
		if s.size < len(s.ring) {
			s.size++
		}
	}
	if s.recording {
		s.session = append(s.session, frame...)
	}
}

// SetRecording controls whether appends extend the session accumulator.
func (s *Store) SetRecording(on bool) {
	s.mu.Lock()
	s.recording = on
	s.mu.Unlock()
}

// LatestWindow copies out up to seconds worth of the most recent ring
// content. It returns nil while less than the minimum threshold has
// accumulated; callers treat that as "skip this decode cycle".
func (s *Store) LatestWindow(seconds float64) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size < s.minSamples {
		return nil
	}
	n := int(seconds * float64(s.rate))
	if n > s.size {
		n = s.size
	}
	out := make([]float32, n)
	start := (s.head - n + len(s.ring)) % len(s.ring)
	for i := 0; i < n; i++ {
		out[i] = s.ring[(start+i)%len(s.ring)]
	}
	return out
}

// SessionSnapshot copies out the full voiced history, or nil when empty.
func (s *Store) SessionSnapshot() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.session) == 0 {
		return nil
	}
	out := make([]float32, len(s.session))
	copy(out, s.session)
	return out
}

// Reset clears both buffers. Called only when a session starts.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.size = 0
	s.session = nil
}

// RingSize reports the number of samples currently held in the ring.
func (s *Store) RingSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// SessionLen reports the number of samples in the session accumulator.
func (s *Store) SessionLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.session)
}
