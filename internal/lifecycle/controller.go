// Package lifecycle arbitrates the agent's foreground timer and OS-level
// background task based on app lifecycle events and granted location
// permissions.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trailmark-app/trailmark/internal/clock"
	"github.com/trailmark-app/trailmark/internal/geo"
	"github.com/trailmark-app/trailmark/internal/jobs"
)

// State is the controller's position in its session state machine.
type State string

const (
	StateUninitialized        State = "uninitialized"
	StateInitializing         State = "initializing"
	StateForegroundActive     State = "foreground_active"
	StateBackgroundRegistered State = "background_registered"
	StateBoth                 State = "both"
	StateNeither              State = "neither"
	StateTerminated           State = "terminated"
)

// Trigger names the reason an OS-level background wake fired.
type Trigger string

const (
	TriggerLocationChange Trigger = "location_change"
	TriggerDailyTick      Trigger = "daily_tick"
)

// Permissions answers location permission requests. Denial is an answer,
// not an error; errors are reserved for the permission system itself being
// unreachable.
type Permissions interface {
	RequestForegroundLocation(ctx context.Context) (bool, error)
	RequestBackgroundLocation(ctx context.Context) (bool, error)
}

// BackgroundRegistrar registers the OS-level background task. The OS
// invokes the handler on location changes and on a periodic daily tick,
// possibly in a fresh process that shares no in-memory state with the
// foreground one.
type BackgroundRegistrar interface {
	Register(ctx context.Context, handler func(ctx context.Context, trigger Trigger)) error
	Cancel()
}

// LocationProvider reports the device's current position.
type LocationProvider interface {
	Current(ctx context.Context) (geo.Coordinate, error)
}

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// DefaultForegroundInterval is the default interval between foreground
// proximity scans.
const DefaultForegroundInterval = time.Hour

// DefaultPassTimeout bounds a single detection pass.
const DefaultPassTimeout = 30 * time.Second

// Config configures the lifecycle controller.
type Config struct {
	// ForegroundInterval is the duration between foreground proximity scans.
	ForegroundInterval time.Duration
	// PassTimeout bounds each detection pass.
	PassTimeout time.Duration
	// Logger for controller activity.
	Logger *slog.Logger
	// Clock is injectable for tests.
	Clock clock.Clock
	// JobMetrics for centralized background job tracking.
	JobMetrics JobMetrics
}

func (c Config) withDefaults() Config {
	if c.ForegroundInterval == 0 {
		c.ForegroundInterval = DefaultForegroundInterval
	}
	if c.PassTimeout == 0 {
		c.PassTimeout = DefaultPassTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Controller owns the session state machine, the foreground scan timer,
// and the background task registration.
type Controller struct {
	config      Config
	runner      *Runner
	permissions Permissions
	registrar   BackgroundRegistrar
	location    LocationProvider

	mu         sync.Mutex
	state      State
	ownerID    string
	foreground bool
	background bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewController creates a lifecycle controller around a pass runner.
func NewController(
	config Config,
	runner *Runner,
	permissions Permissions,
	registrar BackgroundRegistrar,
	location LocationProvider,
) *Controller {
	return &Controller{
		config:      config.withDefaults(),
		runner:      runner,
		permissions: permissions,
		registrar:   registrar,
		location:    location,
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return StateUninitialized
	}
	return c.state
}

// StartSession initializes the controller for an owner: warms the home
// zone and attempts to register the OS-level background task. Permission
// denial degrades to foreground-only operation and is never an error.
func (c *Controller) StartSession(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	c.state = StateInitializing
	c.ownerID = ownerID
	c.mu.Unlock()

	c.runner.WarmHome(ctx, ownerID)

	fgGranted, err := c.permissions.RequestForegroundLocation(ctx)
	if err != nil {
		c.config.Logger.Warn("foreground permission request failed, scan timer disabled",
			"error", err)
		fgGranted = false
	}

	granted, err := c.permissions.RequestBackgroundLocation(ctx)
	if err != nil {
		c.config.Logger.Warn("background permission request failed, staying foreground-only",
			"error", err)
		granted = false
	}

	registered := false
	if granted && c.registrar != nil {
		if err := c.registrar.Register(ctx, c.handleBackgroundTrigger); err != nil {
			c.config.Logger.Warn("background task registration failed",
				"error", err)
		} else {
			registered = true
		}
	}

	c.mu.Lock()
	c.foreground = fgGranted
	c.background = registered
	if registered {
		c.state = StateBackgroundRegistered
	} else {
		c.state = StateNeither
	}
	c.mu.Unlock()

	c.config.Logger.Info("session started",
		"owner", ownerID,
		"background_registered", registered)
	return nil
}

// AppForeground starts the foreground scan timer, running one proximity
// pass immediately and then one per interval. Any already-running timer
// is cancelled first so two can never tick concurrently. Without the
// foreground location permission cached at session start, no timer runs.
func (c *Controller) AppForeground(ctx context.Context) {
	c.stopForegroundTimer()

	c.mu.Lock()
	if c.state == StateTerminated || c.state == StateUninitialized {
		c.mu.Unlock()
		return
	}
	if !c.foreground {
		c.mu.Unlock()
		c.config.Logger.Warn("foreground location permission not granted, scan timer disabled")
		return
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	c.stopCh = stopCh
	c.doneCh = doneCh
	if c.background {
		c.state = StateBoth
	} else {
		c.state = StateForegroundActive
	}
	ownerID := c.ownerID
	c.mu.Unlock()

	go c.runForeground(ctx, ownerID, stopCh, doneCh)
}

// AppBackground synchronously stops the foreground timer. The registered
// OS task, if any, keeps running.
func (c *Controller) AppBackground() {
	c.stopForegroundTimer()

	c.mu.Lock()
	if c.state == StateForegroundActive || c.state == StateBoth {
		if c.background {
			c.state = StateBackgroundRegistered
		} else {
			c.state = StateNeither
		}
	}
	c.mu.Unlock()
}

// Terminate ends the session: the foreground timer stops and the
// background registration is cancelled.
func (c *Controller) Terminate() {
	c.stopForegroundTimer()
	if c.registrar != nil {
		c.registrar.Cancel()
	}

	c.mu.Lock()
	c.background = false
	c.state = StateTerminated
	c.mu.Unlock()
}

// HandleLocationChange is the entry point for an OS-delivered location
// update while backgrounded. It runs one proximity pass against the
// given position.
func (c *Controller) HandleLocationChange(ctx context.Context, current geo.Coordinate) {
	c.runPass(ctx, jobs.JobTypeProximityScan, func(ctx context.Context, ownerID string) error {
		return c.runner.ProximityPass(ctx, ownerID, current)
	})
}

// HandleDailyTick is the entry point for the OS-delivered daily wake. It
// runs one recall pass for today.
func (c *Controller) HandleDailyTick(ctx context.Context) {
	c.runPass(ctx, jobs.JobTypeRecallScan, func(ctx context.Context, ownerID string) error {
		return c.runner.RecallPass(ctx, ownerID, c.config.Clock.Now())
	})
}

func (c *Controller) handleBackgroundTrigger(ctx context.Context, trigger Trigger) {
	switch trigger {
	case TriggerDailyTick:
		c.HandleDailyTick(ctx)
	case TriggerLocationChange:
		current, err := c.location.Current(ctx)
		if err != nil {
			c.config.Logger.Warn("location unavailable for background pass",
				"error", err)
			return
		}
		c.HandleLocationChange(ctx, current)
	}
}

func (c *Controller) stopForegroundTimer() {
	c.mu.Lock()
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.stopCh = nil
	c.doneCh = nil
	c.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// runForeground is the foreground timer loop.
func (c *Controller) runForeground(ctx context.Context, ownerID string, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	scan := func() {
		current, err := c.location.Current(ctx)
		if err != nil {
			c.config.Logger.Warn("location unavailable for foreground scan",
				"error", err)
			return
		}
		c.runPass(ctx, jobs.JobTypeProximityScan, func(ctx context.Context, _ string) error {
			return c.runner.ProximityPass(ctx, ownerID, current)
		})
	}

	// One scan right away, then on the interval.
	scan()

	ticker := time.NewTicker(c.config.ForegroundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.config.Logger.Info("foreground timer stopping due to context cancellation")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			scan()
		}
	}
}

// runPass executes one detection pass with timeout and job metrics.
func (c *Controller) runPass(parentCtx context.Context, jobType string, pass func(ctx context.Context, ownerID string) error) {
	c.mu.Lock()
	ownerID := c.ownerID
	c.mu.Unlock()
	if ownerID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.config.PassTimeout)
	defer cancel()

	start := time.Now()
	err := pass(ctx, ownerID)
	duration := time.Since(start).Seconds()

	if c.config.JobMetrics != nil {
		c.config.JobMetrics.ObserveJobDuration(jobType, duration)
		if err != nil {
			c.config.JobMetrics.IncJobsTotal(jobType, "failure")
			c.config.JobMetrics.IncJobErrors(jobType, "pass")
		} else {
			c.config.JobMetrics.IncJobsTotal(jobType, "success")
		}
	}
	if err != nil {
		c.config.Logger.Error("detection pass failed",
			"job", jobType,
			"error", err)
	}
}
