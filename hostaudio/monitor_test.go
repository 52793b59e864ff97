package hostaudio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/adbvol"
	"github.com/gen2brain/adbvol/hostaudio"
)

type fakeSession struct {
	mu      sync.Mutex
	state   adbvol.HostVolumeState
	readErr error
	setErr  error
	owned   bool
	writes  []adbvol.HostVolumeState
	closed  bool

	changes chan struct{}
	drop    chan struct{}
}

func newFakeSession(state adbvol.HostVolumeState) *fakeSession {
	return &fakeSession{
		state:   state,
		changes: make(chan struct{}, 16),
		drop:    make(chan struct{}),
	}
}

func (s *fakeSession) set(state adbvol.HostVolumeState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.changes <- struct{}{}
}

func (s *fakeSession) Volume() (adbvol.HostVolumeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state, s.readErr
}

func (s *fakeSession) Watch(ctx context.Context, notify func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.drop:
			return adbvol.ErrSessionInvalidated
		case <-s.changes:
			notify()
		}
	}
}

func (s *fakeSession) Set(state adbvol.HostVolumeState) error {
	s.mu.Lock()
	if s.setErr != nil {
		s.mu.Unlock()

		return s.setErr
	}

	s.state = state
	s.writes = append(s.writes, state)
	s.mu.Unlock()

	s.changes <- struct{}{}

	return nil
}

func (s *fakeSession) Owned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.owned
}

func (s *fakeSession) writeLog() []adbvol.HostVolumeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]adbvol.HostVolumeState(nil), s.writes...)
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

type fakeHost struct {
	mu         sync.Mutex
	sessions   []*fakeSession
	next       []*fakeSession
	createErr  error
	silenceErr error
	silences   []time.Duration
	tags       []string
}

func (h *fakeHost) CreateSession(_ context.Context, tag string) (hostaudio.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.tags = append(h.tags, tag)
	if h.createErr != nil {
		return nil, h.createErr
	}

	s := newFakeSession(adbvol.HostVolumeState{Level: 1})
	if len(h.next) > 0 {
		s, h.next = h.next[0], h.next[1:]
	}

	h.sessions = append(h.sessions, s)

	return s, nil
}

func (h *fakeHost) EmitSilence(_ context.Context, d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.silences = append(h.silences, d)

	return h.silenceErr
}

func (h *fakeHost) session(i int) *fakeSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.sessions[i]
}

// collect subscribes to m and returns a channel of delivered states.
func collect(t *testing.T, m *hostaudio.Monitor) <-chan adbvol.HostVolumeState {
	t.Helper()

	ch := make(chan adbvol.HostVolumeState, 16)
	cancel := m.Subscribe(func(s adbvol.HostVolumeState) { ch <- s })
	t.Cleanup(cancel)

	return ch
}

func receive(t *testing.T, ch <-chan adbvol.HostVolumeState) adbvol.HostVolumeState {
	t.Helper()

	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	return adbvol.HostVolumeState{}
}

func TestMonitorRegisterAndNotify(t *testing.T) {
	host := &fakeHost{next: []*fakeSession{newFakeSession(adbvol.HostVolumeState{Level: 0.4})}}
	m := hostaudio.NewMonitor(host, "Phone", hostaudio.WithSilence(150*time.Millisecond))
	defer m.Close()

	ch := collect(t, m)

	require.NoError(t, m.Register(context.Background()))
	assert.Equal(t, []time.Duration{150 * time.Millisecond}, host.silences)
	assert.Equal(t, []string{"Phone"}, host.tags)

	state, err := m.Volume()
	require.NoError(t, err)
	assert.Equal(t, adbvol.HostVolumeState{Level: 0.4}, state)

	host.session(0).set(adbvol.HostVolumeState{Level: 0.7})
	assert.Equal(t, adbvol.HostVolumeState{Level: 0.7}, receive(t, ch))

	host.session(0).set(adbvol.HostVolumeState{Level: 0.7, Muted: true})
	assert.Equal(t, adbvol.HostVolumeState{Level: 0.7, Muted: true}, receive(t, ch))
}

func TestMonitorSuppressesUnchangedState(t *testing.T) {
	host := &fakeHost{}
	m := hostaudio.NewMonitor(host, "Phone")
	defer m.Close()

	ch := collect(t, m)
	require.NoError(t, m.Register(context.Background()))
	assert.Empty(t, host.silences, "no burst without a duration")

	s := host.session(0)
	s.set(adbvol.HostVolumeState{Level: 1})
	s.set(adbvol.HostVolumeState{Level: 0.5})

	assert.Equal(t, adbvol.HostVolumeState{Level: 0.5}, receive(t, ch))

	select {
	case extra := <-ch:
		t.Fatalf("unexpected notification %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMonitorSilenceFailureIsNotFatal(t *testing.T) {
	host := &fakeHost{silenceErr: errors.New("device busy")}
	m := hostaudio.NewMonitor(host, "Phone", hostaudio.WithSilence(time.Millisecond))
	defer m.Close()

	require.NoError(t, m.Register(context.Background()))
}

func TestMonitorRegistrationFailure(t *testing.T) {
	host := &fakeHost{createErr: errors.New("no such card")}
	m := hostaudio.NewMonitor(host, "Phone")

	err := m.Register(context.Background())
	assert.ErrorIs(t, err, adbvol.ErrRegistrationFailed)

	_, err = m.Volume()
	assert.ErrorIs(t, err, adbvol.ErrSessionInvalidated)

	broken := newFakeSession(adbvol.HostVolumeState{})
	broken.readErr = errors.New("read failed")
	host = &fakeHost{next: []*fakeSession{broken}}
	m = hostaudio.NewMonitor(host, "Phone")

	err = m.Register(context.Background())
	assert.ErrorIs(t, err, adbvol.ErrRegistrationFailed)
	assert.True(t, broken.isClosed(), "a session that cannot be read is closed")
}

func TestMonitorInvalidationAndReregister(t *testing.T) {
	host := &fakeHost{}
	m := hostaudio.NewMonitor(host, "Phone")
	defer m.Close()

	ch := collect(t, m)
	require.NoError(t, m.Register(context.Background()))

	first := host.session(0)
	close(first.drop)

	assert.Eventually(t, func() bool {
		_, err := m.Volume()

		return errors.Is(err, adbvol.ErrSessionInvalidated)
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Register(context.Background()))
	assert.True(t, first.isClosed(), "the lost session is closed on re-registration")

	second := host.session(1)
	second.set(adbvol.HostVolumeState{Level: 0.2})
	assert.Equal(t, adbvol.HostVolumeState{Level: 0.2}, receive(t, ch), "subscriptions survive re-registration")
}

func TestMonitorClose(t *testing.T) {
	host := &fakeHost{}
	m := hostaudio.NewMonitor(host, "Phone")

	ch := make(chan adbvol.HostVolumeState, 4)
	cancel := m.Subscribe(func(s adbvol.HostVolumeState) { ch <- s })

	require.NoError(t, m.Register(context.Background()))
	cancel()

	host.session(0).set(adbvol.HostVolumeState{Level: 0.3})

	require.NoError(t, m.Close())
	assert.True(t, host.session(0).isClosed())
	assert.NoError(t, m.Close(), "Close is idempotent")
	assert.Empty(t, ch, "cancelled subscription is not notified")

	_, err := m.Volume()
	assert.ErrorIs(t, err, adbvol.ErrSessionInvalidated)
}

func TestMonitorSeedsOwnedSession(t *testing.T) {
	created := newFakeSession(adbvol.HostVolumeState{Level: 1})
	created.owned = true
	host := &fakeHost{next: []*fakeSession{created}}
	m := hostaudio.NewMonitor(host, "Phone")
	defer m.Close()

	ch := collect(t, m)
	require.NoError(t, m.Register(context.Background()))

	ok, err := m.Seed(adbvol.HostVolumeState{Level: 0.4})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []adbvol.HostVolumeState{{Level: 0.4}}, created.writeLog())
	assert.Equal(t, adbvol.HostVolumeState{Level: 0.4}, receive(t, ch))

	state, err := m.Volume()
	require.NoError(t, err)
	assert.Equal(t, adbvol.HostVolumeState{Level: 0.4}, state)

	ok, err = m.Seed(adbvol.HostVolumeState{Level: 0.9})
	require.NoError(t, err)
	assert.False(t, ok, "a session is seeded once")
	assert.Len(t, created.writeLog(), 1)
}

func TestMonitorSeedSkipsChangedOrForeignSession(t *testing.T) {
	created := newFakeSession(adbvol.HostVolumeState{Level: 1})
	created.owned = true
	host := &fakeHost{next: []*fakeSession{created}}
	m := hostaudio.NewMonitor(host, "Phone")
	defer m.Close()

	ch := collect(t, m)
	require.NoError(t, m.Register(context.Background()))

	created.set(adbvol.HostVolumeState{Level: 0.8})
	receive(t, ch)

	ok, err := m.Seed(adbvol.HostVolumeState{Level: 0.4})
	require.NoError(t, err)
	assert.False(t, ok, "a user change wins over the device level")
	assert.Empty(t, created.writeLog())

	host = &fakeHost{}
	m2 := hostaudio.NewMonitor(host, "Phone")
	defer m2.Close()
	require.NoError(t, m2.Register(context.Background()))

	ok, err = m2.Seed(adbvol.HostVolumeState{Level: 0.4})
	require.NoError(t, err)
	assert.False(t, ok, "existing controls are left alone")
	assert.Empty(t, host.session(0).writeLog())

	_, err = hostaudio.NewMonitor(&fakeHost{}, "Phone").Seed(adbvol.HostVolumeState{})
	assert.NoError(t, err, "an unregistered monitor has nothing to seed")
}

func TestMonitorSeedFailureInvalidates(t *testing.T) {
	created := newFakeSession(adbvol.HostVolumeState{Level: 1})
	created.owned = true
	created.setErr = adbvol.ErrSessionInvalidated
	host := &fakeHost{next: []*fakeSession{created}}
	m := hostaudio.NewMonitor(host, "Phone")
	defer m.Close()

	require.NoError(t, m.Register(context.Background()))

	ok, err := m.Seed(adbvol.HostVolumeState{Level: 0.4})
	assert.ErrorIs(t, err, adbvol.ErrSessionInvalidated)
	assert.False(t, ok)

	_, err = m.Volume()
	assert.ErrorIs(t, err, adbvol.ErrSessionInvalidated)
}
