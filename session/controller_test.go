package session

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"hear.town/config"
	"hear.town/hub"
)

func newTestController(engine *fakeEngine, cfg config.DecodeConfig) (*Controller, *hub.Hub, *Store) {
	logger := log.New(io.Discard)
	bus := hub.New(logger)
	store := NewStore(100, 10.0, cfg.MinWindowSeconds)
	ctrl := NewController(store, engine, bus, cfg, 100, nil, logger)
	return ctrl, bus, store
}

// quietConfig keeps the scheduler from firing during state-machine tests.
func quietConfig() config.DecodeConfig {
	cfg := testDecodeConfig()
	cfg.StepSeconds = 3600
	cfg.FinalUpdateSeconds = 3600
	return cfg
}

func TestStartIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	ctrl, _, store := newTestController(engine, quietConfig())

	if status := ctrl.Start(); status != "started" {
		t.Fatalf("first start = %q", status)
	}
	defer ctrl.Stop(context.Background())

	store.Append(make([]float32, 80))
	if status := ctrl.Start(); status != "already_running" {
		t.Fatalf("second start = %q", status)
	}
	// The second start must not have cleared the buffers.
	if store.RingSize() != 80 {
		t.Errorf("ring cleared by redundant start: size %d", store.RingSize())
	}
}

func TestStartPublishesClearedTranscripts(t *testing.T) {
	engine := &fakeEngine{}
	ctrl, bus, _ := newTestController(engine, quietConfig())
	l := bus.Register()

	ctrl.Start()
	defer ctrl.Stop(context.Background())

	ev := recvEvent(t, l)
	if ev.Status != "started" {
		t.Errorf("status = %q", ev.Status)
	}
	if ev.Partial == nil || *ev.Partial != "" || ev.Final == nil || *ev.Final != "" {
		t.Errorf("start event transcripts = %v / %v, want empty strings", ev.Partial, ev.Final)
	}
}

func TestStartResetsStore(t *testing.T) {
	engine := &fakeEngine{}
	ctrl, _, store := newTestController(engine, quietConfig())

	store.SetRecording(true)
	store.Append(make([]float32, 80))
	ctrl.Start()
	defer ctrl.Stop(context.Background())

	if store.RingSize() != 0 || store.SessionLen() != 0 {
		t.Errorf("start did not clear buffers: ring %d, session %d",
			store.RingSize(), store.SessionLen())
	}
}

func TestStopComputesFinalOnce(t *testing.T) {
	engine := &fakeEngine{texts: []string{"the final words"}}
	ctrl, bus, store := newTestController(engine, quietConfig())

	ctrl.Start()
	store.Append(make([]float32, 150)) // 1.5s, past the 1s final minimum
	l := bus.Register()

	status, final := ctrl.Stop(context.Background())
	if status != "stopped" || final != "the final words" {
		t.Fatalf("stop = %q, %q", status, final)
	}
	if engine.callCount() != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.callCount())
	}

	ev := recvEvent(t, l)
	if ev.Final == nil || *ev.Final != "the final words" {
		t.Errorf("final event = %v", ev.Final)
	}
	if ev = recvEvent(t, l); ev.Status != "stopped" {
		t.Errorf("second event status = %q, want stopped", ev.Status)
	}

	// A second stop returns the same text without another decode.
	status, final = ctrl.Stop(context.Background())
	if status != "already_stopped" || final != "the final words" {
		t.Errorf("redundant stop = %q, %q", status, final)
	}
	if engine.callCount() != 1 {
		t.Errorf("redundant stop invoked the engine")
	}
}

func TestStopBelowMinimumSkipsDecode(t *testing.T) {
	engine := &fakeEngine{texts: []string{"x"}}
	ctrl, _, store := newTestController(engine, quietConfig())

	ctrl.Start()
	store.Append(make([]float32, 50)) // below the 1s minimum

	status, final := ctrl.Stop(context.Background())
	if status != "stopped" || final != "" {
		t.Errorf("stop = %q, %q", status, final)
	}
	if engine.callCount() != 0 {
		t.Errorf("engine called on too-short session")
	}
}

func TestRestartAfterStop(t *testing.T) {
	engine := &fakeEngine{texts: []string{"one"}}
	ctrl, _, store := newTestController(engine, quietConfig())

	ctrl.Start()
	store.Append(make([]float32, 150))
	ctrl.Stop(context.Background())

	if status := ctrl.Start(); status != "started" {
		t.Fatalf("restart = %q", status)
	}
	defer ctrl.Stop(context.Background())

	if store.SessionLen() != 0 {
		t.Errorf("restart kept old session audio")
	}
	if !ctrl.Running() {
		t.Errorf("controller not running after restart")
	}
}

func TestSchedulerProducesPartials(t *testing.T) {
	engine := &fakeEngine{texts: []string{"live words"}}
	cfg := testDecodeConfig()
	cfg.FinalUpdateSeconds = 3600
	ctrl, bus, store := newTestController(engine, cfg)

	ctrl.Start()
	defer ctrl.Stop(context.Background())
	l := bus.Register()
	store.Append(make([]float32, 100))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-l.C:
			var ev hub.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				t.Fatal(err)
			}
			if ev.Partial != nil && *ev.Partial == "live words" {
				return
			}
		case <-deadline:
			t.Fatal("no partial event within deadline")
		}
	}
}

func TestFlushConnection(t *testing.T) {
	engine := &fakeEngine{texts: []string{"trailing speech", ""}}
	ctrl, bus, store := newTestController(engine, quietConfig())

	ctrl.Start()
	store.Append(make([]float32, 150))
	l := bus.Register()

	// No voiced audio on the connection: nothing happens.
	ctrl.FlushConnection(context.Background(), false)
	if engine.callCount() != 0 || len(l.C) != 0 {
		t.Fatalf("flush without voiced audio did work")
	}

	ctrl.FlushConnection(context.Background(), true)
	if engine.callCount() != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.callCount())
	}
	ev := recvEvent(t, l)
	if ev.Final == nil || *ev.Final != "trailing speech" {
		t.Errorf("flush event = %v", ev.Final)
	}

	// The flush publishes but does not adopt the text as session final.
	if _, final := ctrl.Stop(context.Background()); final == "trailing speech" {
		t.Errorf("flush result leaked into session final")
	}
}

func TestStateSnapshot(t *testing.T) {
	engine := &fakeEngine{}
	ctrl, _, _ := newTestController(engine, quietConfig())

	if state, _, _ := ctrl.StateSnapshot(); state != Idle {
		t.Errorf("initial state = %v", state)
	}
	ctrl.Start()
	if state, _, _ := ctrl.StateSnapshot(); state != Running {
		t.Errorf("state after start = %v", state)
	}
	ctrl.Stop(context.Background())
	if state, _, _ := ctrl.StateSnapshot(); state != Stopped {
		t.Errorf("state after stop = %v", state)
	}
	if Idle.String() != "idle" || Running.String() != "running" || Stopped.String() != "stopped" {
		t.Errorf("state strings wrong")
	}
}
