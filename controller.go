package adbvol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config holds the timing and retry policy of the Controller.
type Config struct {
	// ApplyInterval is the cadence at which pending host changes are applied.
	ApplyInterval time.Duration `yaml:"apply_interval"`
	// HeartbeatInterval is the cadence of the device liveness probe.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// HeartbeatFailures is the number of consecutive failed probes that end a session.
	HeartbeatFailures int `yaml:"heartbeat_failures"`
	// RegisterAttempts bounds the host session registration retries.
	RegisterAttempts int           `yaml:"register_attempts"`
	RegisterBackoff  BackoffConfig `yaml:"register_backoff"`
	// ReconnectBackoff applies to connect failures other than an ambiguous device.
	ReconnectBackoff BackoffConfig `yaml:"reconnect_backoff"`
	// AmbiguousRetry is the fixed delay used while several devices are attached.
	AmbiguousRetry time.Duration `yaml:"ambiguous_retry"`
	// CommandRetries is how many consecutive failures of a change are logged as
	// warnings before the operator is told. The change is kept and retried.
	CommandRetries int `yaml:"command_retries"`
	// CommandBackoff spaces out the retries of a failed change.
	CommandBackoff BackoffConfig `yaml:"command_backoff"`
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		ApplyInterval:     100 * time.Millisecond,
		HeartbeatInterval: 2 * time.Second,
		HeartbeatFailures: 2,
		RegisterAttempts:  5,
		RegisterBackoff:   BackoffConfig{Initial: 500 * time.Millisecond, Max: 5 * time.Second, Factor: 2},
		ReconnectBackoff:  BackoffConfig{Initial: time.Second, Max: 30 * time.Second, Factor: 2},
		AmbiguousRetry:    5 * time.Second,
		CommandRetries:    3,
		CommandBackoff:    BackoffConfig{Initial: 250 * time.Millisecond, Max: 5 * time.Second, Factor: 2},
	}
}

// Validate checks that the configuration can drive a Controller.
func (c Config) Validate() error {
	switch {
	case c.ApplyInterval <= 0:
		return fmt.Errorf("apply_interval must be positive, got %s", c.ApplyInterval)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval)
	case c.HeartbeatFailures < 1:
		return fmt.Errorf("heartbeat_failures must be at least 1, got %d", c.HeartbeatFailures)
	case c.RegisterAttempts < 1:
		return fmt.Errorf("register_attempts must be at least 1, got %d", c.RegisterAttempts)
	case c.ReconnectBackoff.Initial <= 0 || c.ReconnectBackoff.Max < c.ReconnectBackoff.Initial:
		return fmt.Errorf("invalid reconnect_backoff %s..%s", c.ReconnectBackoff.Initial, c.ReconnectBackoff.Max)
	case c.AmbiguousRetry <= 0:
		return fmt.Errorf("ambiguous_retry must be positive, got %s", c.AmbiguousRetry)
	case c.CommandRetries < 0:
		return fmt.Errorf("command_retries must not be negative, got %d", c.CommandRetries)
	case c.CommandBackoff.Initial <= 0 || c.CommandBackoff.Max < c.CommandBackoff.Initial:
		return fmt.Errorf("invalid command_backoff %s..%s", c.CommandBackoff.Initial, c.CommandBackoff.Max)
	}

	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStatusFunc registers fn to receive status transitions and operator reports.
func WithStatusFunc(fn StatusFunc) Option {
	return func(c *Controller) {
		c.onStatus = fn
	}
}

// Controller synchronizes a HostMonitor with a DeviceClient.
//
// Host notifications only write into a newest-wins cell. The goroutine running
// Run is the single owner of the SyncSession and the only caller of the
// DeviceClient, so at most one device command is in flight.
type Controller struct {
	cfg      Config
	host     HostMonitor
	client   DeviceClient
	logger   *slog.Logger
	onStatus StatusFunc
	sleep    func(context.Context, time.Duration) bool

	pending *Latest[HostVolumeState]

	mu      sync.Mutex
	status  Status
	session *SyncSession
}

// NewController creates a Controller. Zero fields of cfg take their defaults.
func NewController(host HostMonitor, client DeviceClient, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:     withDefaults(cfg),
		host:    host,
		client:  client,
		logger:  slog.Default(),
		sleep:   sleepContext,
		pending: NewLatest[HostVolumeState](),
		status:  StatusStarting,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()

	if cfg.ApplyInterval <= 0 {
		cfg.ApplyInterval = def.ApplyInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatFailures <= 0 {
		cfg.HeartbeatFailures = def.HeartbeatFailures
	}
	if cfg.RegisterAttempts <= 0 {
		cfg.RegisterAttempts = def.RegisterAttempts
	}
	if cfg.RegisterBackoff.Initial <= 0 {
		cfg.RegisterBackoff = def.RegisterBackoff
	}
	if cfg.ReconnectBackoff.Initial <= 0 {
		cfg.ReconnectBackoff = def.ReconnectBackoff
	}
	if cfg.AmbiguousRetry <= 0 {
		cfg.AmbiguousRetry = def.AmbiguousRetry
	}
	if cfg.CommandRetries < 0 {
		cfg.CommandRetries = 0
	}
	if cfg.CommandBackoff.Initial <= 0 {
		cfg.CommandBackoff = def.CommandBackoff
	}

	return cfg
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Run drives the state machine until ctx is done or a fatal error occurs.
// Cancellation is a clean shutdown and returns nil.
func (c *Controller) Run(ctx context.Context) (err error) {
	unsubscribe := c.host.Subscribe(c.pending.Put)

	defer func() {
		unsubscribe()
		c.teardown()

		if ctx.Err() != nil {
			err = nil
		}

		c.setStatus(StatusStopped, err)
	}()

	if err := c.register(ctx); err != nil {
		return err
	}

	c.setStatus(StatusConnecting, nil)

	reconnecting := false
	for {
		s, err := c.connect(ctx, reconnecting)
		if err != nil {
			return err
		}

		c.setSession(s)
		c.setStatus(StatusSyncing, nil)

		err = c.sync(ctx, s)

		c.client.Release(s.Device)
		c.setSession(nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch Classify(err) {
		case ClassDisconnected, ClassRangeMap:
			reconnecting = true
			c.setStatus(StatusReconnecting, err)
		default:
			return err
		}
	}
}

// register runs the host registration with bounded retries.
func (c *Controller) register(ctx context.Context) error {
	c.setStatus(StatusRegistering, nil)

	bo := c.cfg.RegisterBackoff.exponential()

	var err error
	for attempt := 1; attempt <= c.cfg.RegisterAttempts; attempt++ {
		if err = c.host.Register(ctx); err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("host session registration failed", "attempt", attempt, "attempts", c.cfg.RegisterAttempts, "error", err)

		if attempt < c.cfg.RegisterAttempts {
			if !c.sleep(ctx, bo.NextBackOff()) {
				return ctx.Err()
			}
		}
	}

	if !errors.Is(err, ErrRegistrationFailed) {
		err = fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	return fmt.Errorf("giving up after %d attempts: %w", c.cfg.RegisterAttempts, err)
}

// connect blocks until a device session is established or ctx is done.
// A reconnect waits out the first backoff step before trying.
func (c *Controller) connect(ctx context.Context, reconnecting bool) (*SyncSession, error) {
	bo := c.cfg.ReconnectBackoff.exponential()
	fixed := backoff.NewConstantBackOff(c.cfg.AmbiguousRetry)

	if reconnecting {
		if !c.sleep(ctx, bo.NextBackOff()) {
			return nil, ctx.Err()
		}
	}

	for {
		s, err := c.open(ctx)
		if err == nil {
			return s, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var wait time.Duration
		if errors.Is(err, ErrAmbiguousDevice) {
			wait = fixed.NextBackOff()
			c.logger.Warn("several devices attached, select one by serial", "retry", wait, "error", err)
		} else {
			wait = bo.NextBackOff()
			c.logger.Info("device not available", "retry", wait, "error", err)
		}

		c.report(err)

		if !c.sleep(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

// open connects and queries the device range.
func (c *Controller) open(ctx context.Context) (*SyncSession, error) {
	dev, err := c.client.Connect(ctx)
	if err != nil {
		return nil, err
	}

	deviceMax, err := c.client.QueryMaxVolume(ctx, dev)
	if err == nil && deviceMax <= 0 {
		err = fmt.Errorf("%w: device %s reported max %d", ErrRangeMap, dev.Serial, deviceMax)
	}

	if err != nil {
		c.client.Release(dev)

		return nil, err
	}

	dev.Max = deviceMax

	return newSyncSession(dev, deviceMax, c.cfg.CommandBackoff), nil
}

// sync is the steady state. It returns when the session is lost or ctx is done.
func (c *Controller) sync(ctx context.Context, s *SyncSession) error {
	if err := c.checkHost(ctx); err != nil {
		return err
	}

	c.seed(s)

	// The current host state supersedes whatever was coalesced while disconnected.
	if st, err := c.host.Volume(); err == nil {
		c.pending.Put(st)
	}

	apply := time.NewTicker(c.cfg.ApplyInterval)
	defer apply.Stop()

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-heartbeat.C:
			if err := c.heartbeat(ctx, s); err != nil {
				return err
			}

		case <-apply.C:
			// Connectivity loss wins over a pending change.
			select {
			case <-heartbeat.C:
				if err := c.heartbeat(ctx, s); err != nil {
					return err
				}
			default:
			}

			if err := c.drain(ctx, s); err != nil {
				return err
			}
		}
	}
}

// heartbeat probes the device and the host session.
func (c *Controller) heartbeat(ctx context.Context, s *SyncSession) error {
	if c.client.IsAlive(ctx, s.Device) {
		if s.hbFailures > 0 {
			c.logger.Info("device answering again", "serial", s.Device.Serial)
		}

		s.hbFailures = 0
	} else {
		s.hbFailures++
		c.logger.Warn("device heartbeat failed", "serial", s.Device.Serial, "failures", s.hbFailures)

		if s.hbFailures >= c.cfg.HeartbeatFailures {
			s.Connectivity = Disconnected

			return fmt.Errorf("%w: %d consecutive heartbeats failed", ErrDeviceDisconnected, s.hbFailures)
		}
	}

	return c.checkHost(ctx)
}

// checkHost re-registers the host session if the host dropped it.
func (c *Controller) checkHost(ctx context.Context) error {
	_, err := c.host.Volume()
	if err == nil {
		return nil
	}

	if !errors.Is(err, ErrSessionInvalidated) {
		c.logger.Debug("host volume unavailable", "error", err)

		return nil
	}

	c.logger.Warn("host session invalidated, registering again", "error", err)

	prev := c.Status()
	if err := c.register(ctx); err != nil {
		return err
	}

	c.setStatus(prev, nil)

	if s := c.currentSession(); s != nil {
		c.seed(s)
	}

	if st, err := c.host.Volume(); err == nil {
		c.pending.Put(st)
	}

	return nil
}

// seed starts a freshly created host control from the device volume, so the
// first sync does not push the control's default onto the device.
func (c *Controller) seed(s *SyncSession) {
	seeder, ok := c.host.(HostSeeder)
	if !ok {
		return
	}

	cur, known := s.Device.Current()
	if s.muteKnown && s.applied.Level >= 0 {
		cur, known = s.applied, true
	}

	if !known {
		return
	}

	level, err := ToHost(cur.Level, s.DeviceMax)
	if err != nil {
		c.logger.Debug("device level outside its range", "level", cur.Level, "max", s.DeviceMax, "error", err)

		return
	}

	st := HostVolumeState{Level: level, Muted: cur.Muted}

	seeded, err := seeder.Seed(st)
	if err != nil {
		c.logger.Warn("setting host control from device", "state", st.String(), "error", err)

		return
	}

	if seeded {
		s.applied = cur
		s.muteKnown = true

		c.logger.Info("host control set from device", "serial", s.Device.Serial, "level", cur.Level, "max", s.DeviceMax)
	}
}

// drain applies the pending host state, if any.
// After a failure nothing is sent before the session's retry delay has passed.
func (c *Controller) drain(ctx context.Context, s *SyncSession) error {
	if !s.retryAt.IsZero() && time.Now().Before(s.retryAt) {
		return nil
	}

	st, ok := c.pending.Take()
	if !ok {
		return nil
	}

	if !s.Reachable() {
		c.pending.Restore(st)

		return nil
	}

	err := c.apply(ctx, s, st)

	switch Classify(err) {
	case ClassNone:
		if s.retries > 0 {
			c.logger.Info("volume change applied after retries", "state", st.String(), "attempts", s.retries+1)
		}

		s.retries = 0
		s.retry.Reset()
		s.retryAt = time.Time{}

		return nil

	case ClassDisconnected, ClassRangeMap:
		s.Connectivity = Disconnected
		c.pending.Restore(st)

		return err

	default:
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.retries++
		wait := s.retry.NextBackOff()
		s.retryAt = time.Now().Add(wait)
		c.pending.Restore(st)

		if s.retries == c.cfg.CommandRetries+1 {
			c.logger.Error("volume change keeps failing", "state", st.String(), "attempts", s.retries, "retry", wait, "error", err)
			c.report(err)
		} else {
			c.logger.Warn("volume change failed, will retry", "state", st.String(), "attempt", s.retries, "retry", wait, "error", err)
		}

		return nil
	}
}

// apply maps st onto the device and sends only what changed.
func (c *Controller) apply(ctx context.Context, s *SyncSession, st HostVolumeState) error {
	level, err := ToDevice(st.Level, s.DeviceMax)
	if err != nil {
		return err
	}

	if !s.muteKnown || st.Muted != s.applied.Muted {
		// An initial unmuted state needs no command.
		if st.Muted || s.muteKnown {
			if err := c.client.SetMute(ctx, s.Device, st.Muted); err != nil {
				return err
			}

			// A key press fallback leaves the level unknown, so the next
			// SetVolume is not suppressed.
			s.applied.Level = -1
			if cur, ok := s.Device.Current(); ok && cur.Muted == st.Muted {
				s.applied.Level = cur.Level
			}

			if st.Muted {
				c.logger.Info("device muted", "serial", s.Device.Serial)
			} else {
				c.logger.Info("device unmuted", "serial", s.Device.Serial, "level", s.applied.Level, "max", s.DeviceMax)
			}
		}

		s.applied.Muted = st.Muted
		s.muteKnown = true
	}

	if st.Muted || level == s.applied.Level {
		return nil
	}

	if err := c.client.SetVolume(ctx, s.Device, level); err != nil {
		return err
	}

	s.applied.Level = level
	s.Device.Observe(DeviceVolumeState{Level: level})

	c.logger.Info("volume updated", "serial", s.Device.Serial, "level", level, "max", s.DeviceMax, "percent", Percent(st.Level))

	return nil
}

// teardown releases the device handle and unregisters the host session.
func (c *Controller) teardown() {
	if s := c.currentSession(); s != nil {
		c.client.Release(s.Device)
		c.setSession(nil)
	}

	if err := c.host.Close(); err != nil {
		c.logger.Warn("closing host session", "error", err)
	}
}

func (c *Controller) setSession(s *SyncSession) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Controller) currentSession() *SyncSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.session
}

func (c *Controller) setStatus(status Status, err error) {
	c.mu.Lock()
	prev := c.status
	c.status = status
	s := c.session
	c.mu.Unlock()

	ev := c.event(status, prev, s, err)

	attrs := []any{"status", status.String()}
	if ev.Serial != "" {
		attrs = append(attrs, "serial", ev.Serial, "max", ev.DeviceMax, "session", ev.SessionID)
	}

	switch {
	case status == StatusStopped && err != nil:
		c.logger.Error("stopped", append(attrs, "error", err)...)
	case err != nil:
		c.logger.Warn("status changed", append(attrs, "error", err)...)
	default:
		c.logger.Info("status changed", attrs...)
	}

	if c.onStatus != nil {
		c.onStatus(ev)
	}
}

// report passes a recoverable error to the operator without changing status.
func (c *Controller) report(err error) {
	if c.onStatus == nil {
		return
	}

	c.mu.Lock()
	status := c.status
	s := c.session
	c.mu.Unlock()

	c.onStatus(c.event(status, status, s, err))
}

func (c *Controller) event(status, prev Status, s *SyncSession, err error) StatusEvent {
	ev := StatusEvent{Status: status, Previous: prev, Err: err}

	if s != nil {
		ev.SessionID = s.ID
		ev.DeviceMax = s.DeviceMax

		if s.Device != nil {
			ev.Serial = s.Device.Serial
		}
	}

	return ev
}
