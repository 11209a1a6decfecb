package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wattbridge/ecoflow-bridge/internal/device"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/logging"
)

// DefaultInterval is the REST polling interval when none is configured.
const DefaultInterval = 15 * time.Second

// MinInterval is the floor for configurable polling intervals; the cloud
// rate-limits aggressive pollers.
const MinInterval = 5 * time.Second

// wakeDelay is how long the device gets to respond after a wake fetch
// before the real quota read. Variable so tests can shorten it.
var wakeDelay = time.Second

// Listener receives a snapshot after every state change.
//
// Listeners are invoked from the coordinator's loop goroutine and must
// not block.
type Listener func(device.Snapshot)

// Config configures a coordinator for one device.
type Config struct {
	// SN is the device serial number.
	SN string

	// Client is the cloud API client.
	Client ControlClient

	// Interval is the REST polling interval. Zero means DefaultInterval.
	// A persisted interval from Settings overrides this at Start.
	Interval time.Duration

	// Settings persists the polling interval across restarts. Optional.
	Settings device.SettingsRepository

	// History records state changes locally. Optional.
	History device.StateHistoryRepository

	// Diagnostics enables the rolling diagnostics buffers.
	Diagnostics bool

	// OnCommand is called after every command attempt with its outcome.
	// Optional; must not block.
	OnCommand func(sn, command string, success bool)

	// Logger for refresh and command events. Defaults to logging.Default().
	Logger *logging.Logger
}

// Coordinator polls the cloud REST API for one device on a fixed
// interval and fans snapshots out to listeners.
//
// The polling timer runs independently of any push traffic: REST is the
// authoritative full-state source and push data only ever overlays it.
// All state mutation happens in the run loop goroutine; accessors take
// a read lock on the published snapshot.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Coordinator struct {
	sn       string
	client   ControlClient
	settings device.SettingsRepository
	history  device.StateHistoryRepository
	logger   *logging.Logger
	diag     *Recorder

	// onCommand is notified of every command outcome. May be nil.
	onCommand func(sn, command string, success bool)

	// mqttSource is non-nil only for hybrid coordinators.
	mqttSource MQTTSource

	mu        sync.RWMutex
	interval  time.Duration
	restState device.State
	pushState device.State
	lastPush  time.Time
	lastErr   error
	snapshot  device.Snapshot

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int

	refreshCh  chan chan error
	intervalCh chan time.Duration
	pushCh     chan device.State
	done       chan struct{}
	stopOnce   sync.Once
	started    bool
	wg         sync.WaitGroup
}

// New creates a REST-only coordinator. Call Start to begin polling.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Coordinator{
		sn:         cfg.SN,
		client:     cfg.Client,
		settings:   cfg.Settings,
		history:    cfg.History,
		logger:     cfg.Logger.WithDevice(cfg.SN),
		diag:       NewRecorder(cfg.Diagnostics, DefaultDiagnosticsDepth),
		onCommand:  cfg.OnCommand,
		interval:   interval,
		listeners:  make(map[int]Listener),
		refreshCh:  make(chan chan error),
		intervalCh: make(chan time.Duration),
		pushCh:     make(chan device.State, 64),
		done:       make(chan struct{}),
	}
}

// Start performs an initial refresh and launches the polling loop.
//
// A persisted interval from the settings repository overrides the
// configured one. The initial refresh failure is returned but the loop
// starts regardless, so a transient cloud outage at boot self-heals.
//
// Parameters:
//   - ctx: Governs the loop lifetime; cancelling it stops polling
//
// Returns:
//   - error: The initial refresh error, if any
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("coordinator: already started")
	}
	c.started = true
	if c.settings != nil {
		c.interval = device.UpdateInterval(ctx, c.settings, c.sn, c.interval)
	}
	c.mu.Unlock()

	if c.mqttSource != nil {
		if err := c.subscribePush(); err != nil {
			// Push is an optimization; polling alone still works.
			c.logger.Warn("push subscription failed, continuing with polling only", "error", err)
		}
	}

	err := c.refresh(ctx)

	c.wg.Add(1)
	go c.run(ctx)

	return err
}

// Stop terminates the polling loop. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

// State returns the most recent published snapshot.
func (c *Coordinator) State() device.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastError returns the error from the most recent refresh, or nil.
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// UpdateInterval returns the active polling interval.
func (c *Coordinator) UpdateInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// SN returns the device serial number this coordinator manages.
func (c *Coordinator) SN() string {
	return c.sn
}

// Diagnostics returns a copy of the rolling diagnostics buffers.
func (c *Coordinator) Diagnostics() Report {
	return c.diag.Snapshot()
}

// AddListener registers a snapshot listener and returns a remove function.
func (c *Coordinator) AddListener(listener Listener) func() {
	c.listenerMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}

// Refresh forces an immediate poll and waits for its result.
func (c *Coordinator) Refresh(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case c.refreshCh <- reply:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetUpdateInterval changes the polling interval, persists it, and
// reschedules the timer.
//
// Parameters:
//   - ctx: Context for the settings write
//   - interval: New polling interval, floored at MinInterval
//
// Returns:
//   - error: Persistence failure or ErrStopped
func (c *Coordinator) SetUpdateInterval(ctx context.Context, interval time.Duration) error {
	if interval < MinInterval {
		return fmt.Errorf("%w: interval below %v", ErrInvalidArgument, MinInterval)
	}

	if c.settings != nil {
		if err := device.StoreUpdateInterval(ctx, c.settings, c.sn, interval); err != nil {
			return fmt.Errorf("persisting interval: %w", err)
		}
	}

	select {
	case c.intervalCh <- interval:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteCommand runs a registry command against the device.
//
// Exactly one refresh follows a successful write so the new state shows
// up without waiting for the next poll. Failed commands trigger no
// refresh and no device traffic beyond the failed write itself.
func (c *Coordinator) ExecuteCommand(ctx context.Context, req CommandRequest) error {
	cmd, ok := commandRegistry[req.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, req.Name)
	}

	err := cmd(ctx, c.client, c.sn, req)
	c.diag.RecordCommand(req.Name, err)
	if c.onCommand != nil {
		c.onCommand(c.sn, req.Name, err == nil)
	}
	if err != nil {
		c.logger.Warn("command failed", "command", req.Name, "error", err)
		return err
	}

	c.logger.Info("command executed", "command", req.Name)

	if err := c.Refresh(ctx); err != nil {
		// The write succeeded; a failed follow-up read is not a command
		// failure. The next poll catches up.
		c.logger.Warn("post-command refresh failed", "command", req.Name, "error", err)
	}
	return nil
}

// run is the polling loop. It owns all state mutation.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	timer := time.NewTimer(c.UpdateInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return

		case <-timer.C:
			if err := c.refresh(ctx); err != nil {
				c.logger.Warn("scheduled refresh failed", "error", err)
			}
			timer.Reset(c.UpdateInterval())

		case interval := <-c.intervalCh:
			c.mu.Lock()
			c.interval = interval
			c.mu.Unlock()
			c.logger.Info("polling interval changed", "interval", interval)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(interval)

		case reply := <-c.refreshCh:
			reply <- c.refresh(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.UpdateInterval())

		case params := <-c.pushCh:
			c.applyPush(ctx, params)
		}
	}
}

// refresh polls the cloud for the full quota state and republishes.
//
// For hybrid coordinators a wake fetch precedes the real read when the
// device has been push-silent for a full polling interval; sleepy
// devices ignore the first poll after an idle period.
func (c *Coordinator) refresh(ctx context.Context) error {
	if c.mqttSource != nil && c.pushSilent() {
		c.wake(ctx)
	}

	state, err := c.client.DeviceQuota(ctx, c.sn)
	if err != nil {
		return c.handleRefreshFailure(ctx, err)
	}

	c.mu.Lock()
	c.restState = state
	c.lastErr = nil
	c.mu.Unlock()

	snapshot := c.publish(ctx)
	c.diag.RecordUpdate(snapshot.Source, nil)
	c.logger.Debug("refresh complete", "source", snapshot.Source, "params", len(snapshot.State))
	return nil
}

// handleRefreshFailure keeps serving push data when the cloud read
// fails. Only a failure with no push fallback surfaces as ErrUpdateFailed.
func (c *Coordinator) handleRefreshFailure(ctx context.Context, cause error) error {
	c.mu.Lock()
	c.lastErr = cause
	hasPush := len(c.pushState) > 0
	c.mu.Unlock()

	c.diag.RecordUpdate(device.SourceREST, cause)

	if hasPush {
		c.logger.Warn("cloud refresh failed, serving push data", "error", cause)
		c.publish(ctx)
		return nil
	}

	if errors.Is(cause, context.Canceled) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrUpdateFailed, cause)
}

// wake nudges a sleeping device with an extra quota read, then waits
// briefly so the device's radio is up for the real read.
func (c *Coordinator) wake(ctx context.Context) {
	c.logger.Debug("waking push-silent device")
	if _, err := c.client.DeviceQuota(ctx, c.sn); err != nil {
		c.logger.Debug("wake fetch failed", "error", err)
	}

	select {
	case <-time.After(wakeDelay):
	case <-ctx.Done():
	}
}

// pushSilent reports whether no push update arrived within the last
// polling interval.
func (c *Coordinator) pushSilent() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastPush) >= c.interval
}

// applyPush folds a push update into the accumulated push state.
// Push state is never cleared: devices push deltas, and dropping
// accumulated keys would blank readings between full polls.
func (c *Coordinator) applyPush(ctx context.Context, params device.State) {
	c.mu.Lock()
	c.pushState = device.MergeStates(c.pushState, params)
	c.lastPush = time.Now()
	c.mu.Unlock()

	c.diag.RecordMessage("quota", map[string]any{"params": len(params)})
	c.publish(ctx)
}

// publish rebuilds the snapshot from REST and push state, records it,
// and notifies listeners. Push values win on conflict because they are
// always newer than the last full poll.
func (c *Coordinator) publish(ctx context.Context) device.Snapshot {
	c.mu.Lock()
	merged := device.MergeStates(c.restState, c.pushState)
	source := device.SourceREST
	if len(c.pushState) > 0 {
		source = device.SourceMerged
	}
	snapshot := device.Snapshot{
		SN:        c.sn,
		State:     merged,
		Source:    source,
		UpdatedAt: time.Now().UTC(),
	}
	c.snapshot = snapshot
	c.mu.Unlock()

	if c.history != nil {
		if err := c.history.RecordStateChange(ctx, c.sn, merged, source); err != nil {
			c.logger.Warn("recording state history failed", "error", err)
		}
	}

	c.notify(snapshot)
	return snapshot
}

// notify delivers the snapshot to all registered listeners.
func (c *Coordinator) notify(snapshot device.Snapshot) {
	c.listenerMu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.listenerMu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}
