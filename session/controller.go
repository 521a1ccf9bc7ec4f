package session

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"hear.town/config"
	"hear.town/hub"
	"hear.town/metrics"
	"hear.town/snd"
	"hear.town/stt"
)

type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Controller owns the single global session state machine. There is never
// more than one Running session; Start while Running is a no-op, not a
// queued request.
type Controller struct {
	store  *Store
	engine stt.Transcriber
	bus    *hub.Hub
	cfg    config.DecodeConfig
	rate   int
	mets   *metrics.Metrics
	logger *log.Logger

	tr transcript

	// stateMu guards state, cancel and done. It is separate from the
	// transcript lock so the scheduler never contends with Start/Stop.
	stateMu sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewController(
	store *Store,
	engine stt.Transcriber,
	bus *hub.Hub,
	cfg config.DecodeConfig,
	rate int,
	mets *metrics.Metrics,
	logger *log.Logger,
) *Controller {
	return &Controller{
		store:  store,
		engine: engine,
		bus:    bus,
		cfg:    cfg,
		rate:   rate,
		mets:   mets,
		logger: logger,
	}
}

// Start transitions Idle/Stopped to Running, clearing the audio store and
// launching the decode scheduler. Calling Start on a Running session has
// no side effects.
func (c *Controller) Start() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == Running {
		return "already_running"
	}

	c.store.Reset()
	c.store.SetRecording(true)
	c.tr.setPartial("")

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = Running

	sched := &Scheduler{
		store:  c.store,
		engine: c.engine,
		bus:    c.bus,
		tr:     &c.tr,
		cfg:    c.cfg,
		rate:   c.rate,
		mets:   c.mets,
		logger: c.logger,
	}
	go sched.Run(ctx, c.done)

	c.logger.Info("session started")
	c.publish(hub.StartedEvent())
	return "started"
}

// Stop transitions out of Running, stops the scheduler, and computes one
// last final decode over the full session history. Stopping an already
// stopped session returns the last known final text without touching the
// engine.
func (c *Controller) Stop(ctx context.Context) (status, final string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state != Running {
		_, final = c.tr.get()
		return "already_stopped", final
	}

	c.state = Stopped
	c.store.SetRecording(false)
	c.cancel()
	<-c.done

	if audio := c.store.SessionSnapshot(); len(audio) >= int(c.cfg.MinFinalSeconds*float64(c.rate)) {
		if text, ok := c.decode(ctx, audio, "final"); ok {
			c.tr.setFinal(text, c.cfg.FinalOverwrite)
		}
	}

	_, final = c.tr.get()
	c.logger.Info("session stopped", "final_chars", len(final))
	c.publish(hub.FinalEvent(final))
	c.publish(hub.StatusEvent("stopped"))
	return "stopped", final
}

// FlushConnection runs a best-effort final decode when an ingestion
// connection tears down mid-utterance. It publishes the result but does
// not adopt it as the session final, and it never touches session state.
func (c *Controller) FlushConnection(ctx context.Context, voicedSeen bool) {
	if !voicedSeen {
		return
	}
	audio := c.store.SessionSnapshot()
	if len(audio) < c.store.minSamples {
		return
	}
	if text, ok := c.decode(ctx, audio, "final"); ok {
		c.publish(hub.FinalEvent(text))
	}
}

// StateSnapshot reports the current state and transcripts for the status
// page and the control responses.
func (c *Controller) StateSnapshot() (state State, partial, final string) {
	c.stateMu.Lock()
	state = c.state
	c.stateMu.Unlock()
	partial, final = c.tr.get()
	return state, partial, final
}

func (c *Controller) Running() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == Running
}

func (c *Controller) decode(ctx context.Context, audio []float32, kind string) (string, bool) {
	normalized := snd.Normalize(audio, snd.TargetRMS, snd.MaxGain)
	result, err := c.engine.Transcribe(ctx, normalized, c.rate)
	if c.mets != nil {
		c.mets.Decodes.WithLabelValues(kind).Inc()
	}
	if err != nil {
		if c.mets != nil {
			c.mets.DecodeFailures.WithLabelValues(kind).Inc()
		}
		c.logger.Warn("final decode failed", "error", err)
		return "", false
	}
	return result.Text, true
}

func (c *Controller) publish(ev hub.Event) {
	if c.mets != nil {
		c.mets.EventsPublished.Inc()
	}
	c.bus.Publish(ev)
}
