// Package worker owns the dashboard's polling lifecycle.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/types"
)

// State is the refresh controller state
type State string

const (
	// StateIdle holds the last snapshot and accepts triggers
	StateIdle State = "idle"
	// StateRefreshing has a fetch in flight; triggers are coalesced
	StateRefreshing State = "refreshing"
)

// Aggregator builds one snapshot per call
type Aggregator interface {
	Aggregate(ctx context.Context) *types.Snapshot
}

// Publisher receives every new snapshot after it becomes current
type Publisher interface {
	Publish(ctx context.Context, snapshot *types.Snapshot) error
}

// RefreshControllerConfig holds configuration for a refresh controller
type RefreshControllerConfig struct {
	Aggregator     Aggregator
	Interval       time.Duration // timer period, default 30s
	DebounceWindow time.Duration // minimum spacing between fetch starts, default 5s
	Publishers     []Publisher
}

// RefreshController triggers the aggregator on a fixed interval and on
// demand. A trigger that arrives while a fetch is in flight, or within the
// debounce window of the last fetch start, is dropped rather than queued.
// The current snapshot is replaced atomically when a fetch completes.
type RefreshController struct {
	aggregator Aggregator
	interval   time.Duration
	debounce   time.Duration
	publishers []Publisher
	now        func() time.Time
	logger     *logging.Logger

	snapshot atomic.Pointer[types.Snapshot]

	mu           sync.RWMutex
	state        State
	running      bool
	stopped      bool
	baseCtx      context.Context
	lastStart    time.Time
	lastFinish   time.Time
	lastDuration time.Duration
	refreshes    int64
	coalesced    int64
	inFlight     sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan *types.Snapshot
	nextSub int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefreshController creates a refresh controller in the Idle state
func NewRefreshController(cfg *RefreshControllerConfig) (*RefreshController, error) {
	if cfg == nil || cfg.Aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	// A negative window disables debouncing
	debounce := cfg.DebounceWindow
	switch {
	case debounce == 0:
		debounce = 5 * time.Second
	case debounce < 0:
		debounce = 0
	}

	return &RefreshController{
		aggregator: cfg.Aggregator,
		interval:   interval,
		debounce:   debounce,
		publishers: cfg.Publishers,
		now:        time.Now,
		logger:     logging.GetGlobalLogger().WithComponent("refresh_controller"),
		state:      StateIdle,
		baseCtx:    context.Background(),
		subs:       make(map[int]chan *types.Snapshot),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start runs an initial refresh and begins the timer loop. A stopped
// controller cannot be started again.
func (c *RefreshController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("refresh controller has been stopped")
	}
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("refresh controller is already running")
	}
	c.running = true
	c.baseCtx = ctx
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"interval": c.interval.String(),
		"debounce": c.debounce.String(),
	}).Info("Starting refresh controller")

	c.TriggerRefresh()
	go c.loop(ctx)
	return nil
}

// Stop ends the timer loop and waits for an in-flight refresh to finish
func (c *RefreshController) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("refresh controller is not running")
	}
	c.running = false
	c.stopped = true
	c.mu.Unlock()

	c.logger.Info("Stopping refresh controller")
	close(c.stopCh)

	done := make(chan struct{})
	go func() {
		<-c.doneCh
		c.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Refresh controller stopped gracefully")
	case <-ctx.Done():
		c.logger.Warn("Refresh controller stop timed out")
		return ctx.Err()
	}

	c.subMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subMu.Unlock()
	return nil
}

func (c *RefreshController) loop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Refresh loop context cancelled")
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if !c.TriggerRefresh() {
				c.logger.Debug("Timer tick coalesced")
			}
		}
	}
}

// TriggerRefresh starts a refresh unless one is in flight or the last one
// started within the debounce window. It reports whether a refresh started.
// After Stop no refresh starts.
func (c *RefreshController) TriggerRefresh() bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	now := c.now()
	if c.state == StateRefreshing || (!c.lastStart.IsZero() && now.Sub(c.lastStart) < c.debounce) {
		c.coalesced++
		c.mu.Unlock()
		return false
	}
	c.state = StateRefreshing
	c.lastStart = now
	ctx := c.baseCtx
	c.inFlight.Add(1)
	c.mu.Unlock()

	go c.refresh(ctx, now)
	return true
}

func (c *RefreshController) refresh(ctx context.Context, started time.Time) {
	defer c.inFlight.Done()

	logger := c.logger.WithField("refreshId", uuid.NewString())
	ctx = logging.WithLogger(ctx, logger)

	snapshot := c.aggregator.Aggregate(ctx)
	if snapshot == nil {
		snapshot = types.EmptySnapshot()
	}
	snapshot.Loading = false
	c.snapshot.Store(snapshot)

	finished := c.now()
	c.mu.Lock()
	c.state = StateIdle
	c.lastFinish = finished
	c.lastDuration = finished.Sub(started)
	c.refreshes++
	c.mu.Unlock()

	logger.WithField("duration", finished.Sub(started).String()).Debug("Refresh complete")

	for _, p := range c.publishers {
		if err := p.Publish(ctx, snapshot); err != nil {
			logger.WithError(err).Warn("Snapshot publish failed")
		}
	}
	c.broadcast(snapshot)
}

// CurrentSnapshot returns the last completed snapshot with the loading flag
// reflecting whether a refresh is in flight. Before the first refresh
// completes it returns an empty loading snapshot.
func (c *RefreshController) CurrentSnapshot() *types.Snapshot {
	snapshot := c.snapshot.Load()
	if snapshot == nil {
		return types.EmptySnapshot()
	}
	return snapshot.WithLoading(c.IsLoading())
}

// IsLoading reports whether a refresh is in flight
func (c *RefreshController) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateRefreshing
}

// Subscribe returns a channel that receives each new snapshot. Slow readers
// only ever see the newest one. Call the returned function to unsubscribe.
// After Stop the channel is returned closed.
func (c *RefreshController) Subscribe() (<-chan *types.Snapshot, func()) {
	ch := make(chan *types.Snapshot, 1)

	c.subMu.Lock()
	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()
	if stopped {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

func (c *RefreshController) broadcast(snapshot *types.Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, ch := range c.subs {
		select {
		case ch <- snapshot:
		default:
			// Replace the unread snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// Status is a point-in-time view of the controller
type Status struct {
	State           State     `json:"state"`
	Running         bool      `json:"running"`
	LastStart       time.Time `json:"lastStart"`
	LastFinish      time.Time `json:"lastFinish"`
	LastDurationMs  int64     `json:"lastDurationMs"`
	Refreshes       int64     `json:"refreshes"`
	Coalesced       int64     `json:"coalesced"`
	IntervalSeconds int       `json:"intervalSeconds"`
	DebounceSeconds int       `json:"debounceSeconds"`
	Subscribers     int       `json:"subscribers"`
}

// GetStatus returns the current controller status
func (c *RefreshController) GetStatus() *Status {
	c.subMu.Lock()
	subscribers := len(c.subs)
	c.subMu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Status{
		State:           c.state,
		Running:         c.running,
		LastStart:       c.lastStart,
		LastFinish:      c.lastFinish,
		LastDurationMs:  c.lastDuration.Milliseconds(),
		Refreshes:       c.refreshes,
		Coalesced:       c.coalesced,
		IntervalSeconds: int(c.interval.Seconds()),
		DebounceSeconds: int(c.debounce.Seconds()),
		Subscribers:     subscribers,
	}
}
