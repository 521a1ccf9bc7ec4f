package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"hear.town/config"
	"hear.town/hub"
	"hear.town/metrics"
	"hear.town/snd"
	"hear.town/stt"
)

// transcript is the latest-partial/latest-final pair shared between the
// scheduler, the controller, and the status page.
type transcript struct {
	mu      sync.Mutex
	partial string
	final   string
}

func (t *transcript) setPartial(text string) {
	t.mu.Lock()
	t.partial = text
	t.mu.Unlock()
}

// setFinal applies the configured overwrite policy. Under "always" an
// empty decode blanks the final transcript, matching the historical
// behavior; under "keep_nonempty" the previous text survives a quiet
// re-check window.
func (t *transcript) setFinal(text, policy string) {
	t.mu.Lock()
	if text != "" || policy == config.FinalOverwriteAlways {
		t.final = text
	}
	t.mu.Unlock()
}

func (t *transcript) get() (partial, final string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partial, t.final
}

// Scheduler drives the two decode cadences against the store while a
// session is running: fast low-latency partials over the recent window,
// slower finals over the whole session history. Both run on one loop; a
// slow engine call delays that timer's next tick rather than being
// preempted.
type Scheduler struct {
	store  *Store
	engine stt.Transcriber
	bus    *hub.Hub
	tr     *transcript
	cfg    config.DecodeConfig
	rate   int
	mets   *metrics.Metrics
	logger *log.Logger
}

func (s *Scheduler) Run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	var lastPartial, lastFinal time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now()
		if now.Sub(lastPartial) >= secs(s.cfg.StepSeconds) {
			s.decodePartial(ctx)
			lastPartial = now
		}
		if now.Sub(lastFinal) >= secs(s.cfg.FinalUpdateSeconds) {
			s.decodeFinal(ctx)
			lastFinal = now
		}
	}
}

func (s *Scheduler) decodePartial(ctx context.Context) {
	window := s.store.LatestWindow(s.cfg.WindowSeconds)
	if window == nil {
		return
	}

	text, ok := s.submit(ctx, window, "partial")
	if !ok {
		return
	}
	// An empty partial is discarded; the previous one stands.
	if text == "" {
		return
	}
	s.tr.setPartial(text)
	partial, final := s.tr.get()
	s.publish(hub.PartialEvent(partial, final))
}

func (s *Scheduler) decodeFinal(ctx context.Context) {
	audio := s.store.SessionSnapshot()
	if len(audio) < int(s.cfg.MinFinalSeconds*float64(s.rate)) {
		return
	}

	text, ok := s.submit(ctx, audio, "final")
	if !ok {
		return
	}
	s.tr.setFinal(text, s.cfg.FinalOverwrite)
	partial, final := s.tr.get()
	s.publish(hub.PartialEvent(partial, final))
}

// submit normalizes and hands audio to the engine. An engine failure is a
// skipped cycle, never fatal to the session.
func (s *Scheduler) submit(ctx context.Context, audio []float32, kind string) (string, bool) {
	normalized := snd.Normalize(audio, snd.TargetRMS, snd.MaxGain)

	started := time.Now()
	result, err := s.engine.Transcribe(ctx, normalized, s.rate)
	elapsed := time.Since(started)

	if s.mets != nil {
		s.mets.Decodes.WithLabelValues(kind).Inc()
		s.mets.DecodeDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
	if err != nil {
		if s.mets != nil {
			s.mets.DecodeFailures.WithLabelValues(kind).Inc()
		}
		if ctx.Err() == nil {
			s.logger.Warn("decode failed, skipping cycle",
				"kind", kind, "error", err, "elapsed", elapsed)
		}
		return "", false
	}
	return result.Text, true
}

func (s *Scheduler) publish(ev hub.Event) {
	if s.mets != nil {
		s.mets.EventsPublished.Inc()
	}
	s.bus.Publish(ev)
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
