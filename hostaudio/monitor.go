package hostaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/adbvol"
)

var (
	_ adbvol.HostMonitor = (*Monitor)(nil)
	_ adbvol.HostSeeder  = (*Monitor)(nil)
)

// Monitor registers a Host session and reports its volume changes.
// It implements adbvol.HostMonitor.
type Monitor struct {
	host    Host
	tag     string
	silence time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	session Session
	state   adbvol.HostVolumeState
	invalid bool
	// fresh is set until the session changes or is seeded.
	fresh   bool
	stop    context.CancelFunc
	done    chan struct{}
	subs    map[int]func(adbvol.HostVolumeState)
	nextSub int
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger of the monitor.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSilence sets the length of the burst emitted before every registration.
func WithSilence(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.silence = d
	}
}

// NewMonitor returns a monitor for the session named tag on host.
func NewMonitor(host Host, tag string, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		host:   host,
		tag:    tag,
		logger: slog.Default(),
		subs:   make(map[int]func(adbvol.HostVolumeState)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Register emits the silence burst, creates the session and starts watching it.
// A previous session is closed first.
func (m *Monitor) Register(ctx context.Context) error {
	m.unregister()

	if m.silence > 0 {
		if err := m.host.EmitSilence(ctx, m.silence); err != nil {
			m.logger.Warn("Silence burst failed", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := m.host.CreateSession(ctx, m.tag)
	if err != nil {
		return fmt.Errorf("%w: %w", adbvol.ErrRegistrationFailed, err)
	}

	state, err := session.Volume()
	if err != nil {
		_ = session.Close()

		return fmt.Errorf("%w: initial read: %w", adbvol.ErrRegistrationFailed, err)
	}

	watchCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	m.session = session
	m.state = state
	m.invalid = false
	m.fresh = true
	m.stop = stop
	m.done = done
	m.mu.Unlock()

	go m.watch(watchCtx, session, done)

	m.logger.Info("Host session registered", "tag", m.tag, "volume", state.String())

	return nil
}

// Volume reads the current state of the session.
func (m *Monitor) Volume() (adbvol.HostVolumeState, error) {
	m.mu.Lock()
	session, invalid := m.session, m.invalid
	m.mu.Unlock()

	if session == nil {
		return adbvol.HostVolumeState{}, fmt.Errorf("%w: not registered", adbvol.ErrSessionInvalidated)
	}

	if invalid {
		return adbvol.HostVolumeState{}, adbvol.ErrSessionInvalidated
	}

	state, err := session.Volume()
	if err != nil {
		if errors.Is(err, adbvol.ErrSessionInvalidated) {
			m.invalidate(session)
		}

		return adbvol.HostVolumeState{}, err
	}

	return state, nil
}

// Seed writes st to a session that created its controls and has not changed
// since it was registered. Only the first call per session can write.
func (m *Monitor) Seed(st adbvol.HostVolumeState) (bool, error) {
	m.mu.Lock()
	session, fresh := m.session, m.fresh && !m.invalid
	m.fresh = false
	m.mu.Unlock()

	if session == nil || !fresh || !session.Owned() {
		return false, nil
	}

	if err := session.Set(st); err != nil {
		if errors.Is(err, adbvol.ErrSessionInvalidated) {
			m.invalidate(session)
		}

		return false, err
	}

	m.logger.Info("Host session set from device", "tag", m.tag, "volume", st.String())

	return true, nil
}

// Subscribe registers fn for change notifications. Subscriptions survive re-registration.
func (m *Monitor) Subscribe(fn func(adbvol.HostVolumeState)) (cancel func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Close stops watching and unregisters the session.
func (m *Monitor) Close() error {
	return m.unregister()
}

func (m *Monitor) unregister() error {
	m.mu.Lock()
	session, stop, done := m.session, m.stop, m.done
	m.session, m.stop, m.done = nil, nil, nil
	m.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	if session == nil {
		return nil
	}

	if err := session.Close(); err != nil {
		m.logger.Warn("Closing host session failed", "error", err)

		return err
	}

	m.logger.Debug("Host session unregistered", "tag", m.tag)

	return nil
}

func (m *Monitor) watch(ctx context.Context, session Session, done chan struct{}) {
	defer close(done)

	err := session.Watch(ctx, func() { m.refresh(session) })
	if ctx.Err() != nil {
		return
	}

	m.logger.Warn("Host session lost", "tag", m.tag, "error", err)
	m.invalidate(session)
}

// refresh reads the session and notifies subscribers when the state changed.
func (m *Monitor) refresh(session Session) {
	state, err := session.Volume()
	if err != nil {
		m.logger.Debug("Reading host volume failed", "error", err)

		return
	}

	m.mu.Lock()
	if session != m.session || state == m.state {
		m.mu.Unlock()

		return
	}

	m.state = state
	m.fresh = false
	subs := make([]func(adbvol.HostVolumeState), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	m.logger.Debug("Host volume changed", "volume", state.String())

	for _, fn := range subs {
		fn(state)
	}
}

func (m *Monitor) invalidate(session Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session == m.session {
		m.invalid = true
	}
}
