package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/ecoflow/mqtt"
)

// fakeSource implements MQTTSource and captures the registered handlers.
type fakeSource struct {
	mu        sync.Mutex
	onQuota   mqtt.QuotaHandler
	onStatus  mqtt.StatusHandler
	connected bool
	subErr    error
}

func (f *fakeSource) SubscribeDevice(_ string, onQuota mqtt.QuotaHandler, onStatus mqtt.StatusHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.onQuota = onQuota
	f.onStatus = onStatus
	return nil
}

func (f *fakeSource) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// push delivers a quota update through the captured handler.
func (f *fakeSource) push(sn string, params device.State) {
	f.mu.Lock()
	handler := f.onQuota
	f.mu.Unlock()
	handler(sn, params)
}

// startHybrid starts a hybrid coordinator with instant wake and a long
// polling interval.
func startHybrid(t *testing.T, client *fakeClient, source *fakeSource) *Hybrid {
	t.Helper()

	old := wakeDelay
	wakeDelay = time.Millisecond
	t.Cleanup(func() { wakeDelay = old })

	h := NewHybrid(Config{
		SN:       "SN123",
		Client:   client,
		Interval: time.Hour,
	}, source)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(h.Stop)
	return h
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestHybrid_PushOverlaysREST(t *testing.T) {
	client := &fakeClient{quota: device.State{"soc": 50, "watts": 100}}
	source := &fakeSource{connected: true}
	h := startHybrid(t, client, source)

	source.push("SN123", device.State{"soc": 55})

	waitFor(t, func() bool {
		return h.State().Source == device.SourceMerged
	})

	snapshot := h.State()
	if got := snapshot.State["soc"]; got != 55 {
		t.Errorf("State[soc] = %v, want 55 (push wins)", got)
	}
	if got := snapshot.State["watts"]; got != 100 {
		t.Errorf("State[watts] = %v, want 100 (rest preserved)", got)
	}
}

func TestHybrid_PushAccumulates(t *testing.T) {
	client := &fakeClient{quota: device.State{}}
	source := &fakeSource{connected: true}
	h := startHybrid(t, client, source)

	source.push("SN123", device.State{"a": 1})
	source.push("SN123", device.State{"b": 2})

	waitFor(t, func() bool {
		s := h.State().State
		return s["a"] == 1 && s["b"] == 2
	})
}

func TestHybrid_RESTFailureServesPushData(t *testing.T) {
	client := &fakeClient{quota: device.State{"soc": 50}}
	source := &fakeSource{connected: true}
	h := startHybrid(t, client, source)

	source.push("SN123", device.State{"soc": 60})
	waitFor(t, func() bool {
		return h.State().State["soc"] == 60
	})

	client.setQuotaErr(errors.New("cloud down"))

	// The failed poll must not surface as an error while push data exists.
	if err := h.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v, want nil with push fallback", err)
	}
	if got := h.State().State["soc"]; got != 60 {
		t.Errorf("State[soc] = %v, want 60 (push retained)", got)
	}
	if h.LastError() == nil {
		t.Error("LastError() = nil, want the poll failure recorded")
	}
}

func TestHybrid_WakesSilentDevice(t *testing.T) {
	client := &fakeClient{quota: device.State{"soc": 50}}
	source := &fakeSource{connected: true}
	h := startHybrid(t, client, source)

	// No push since start: the forced refresh wakes first, then reads.
	before := client.calls()
	if err := h.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := client.calls() - before; got != 2 {
		t.Errorf("quota calls during silent refresh = %d, want 2 (wake + read)", got)
	}

	// Fresh push traffic suppresses the wake fetch.
	source.push("SN123", device.State{"soc": 51})
	waitFor(t, func() bool { return h.State().State["soc"] == 51 })

	before = client.calls()
	if err := h.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := client.calls() - before; got != 1 {
		t.Errorf("quota calls after push = %d, want 1 (no wake)", got)
	}
}

func TestHybrid_SubscribeFailureIsNotFatal(t *testing.T) {
	client := &fakeClient{quota: device.State{"soc": 50}}
	source := &fakeSource{subErr: errors.New("broker refused")}

	h := NewHybrid(Config{SN: "SN123", Client: client, Interval: time.Hour}, source)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil (polling still works)", err)
	}
	defer h.Stop()

	if got := h.State().State["soc"]; got != 50 {
		t.Errorf("State[soc] = %v, want 50", got)
	}
}

func TestHybrid_PushAfterStopIsNoOp(t *testing.T) {
	client := &fakeClient{quota: device.State{}}
	source := &fakeSource{connected: true}
	h := startHybrid(t, client, source)

	h.Stop()

	// Late paho deliveries after shutdown must not panic or block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			source.push("SN123", device.State{"soc": i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push after Stop blocked")
	}
}

func TestHybrid_PushConnected(t *testing.T) {
	client := &fakeClient{quota: device.State{}}
	source := &fakeSource{connected: true}
	h := startHybrid(t, client, source)

	if !h.PushConnected() {
		t.Error("PushConnected() = false, want true")
	}

	source.mu.Lock()
	source.connected = false
	source.mu.Unlock()
	if h.PushConnected() {
		t.Error("PushConnected() = true, want false")
	}
}
