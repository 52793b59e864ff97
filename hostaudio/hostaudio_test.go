package hostaudio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/adbvol"
	"github.com/gen2brain/adbvol/alsa"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Tag = ""
	cfg.Steps = 0
	cfg.Amplitude = 40000
	cfg.PollInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "tag must not be empty")
	assert.ErrorContains(t, err, "steps 0 out of range")
	assert.ErrorContains(t, err, "amplitude 40000")
	assert.ErrorContains(t, err, "poll_interval")

	cfg = DefaultConfig()
	cfg.Tag = "A Tag That Is Far Too Long For ALSA"
	assert.ErrorContains(t, cfg.Validate(), "too long")
}

func TestControlNames(t *testing.T) {
	assert.Equal(t, "Phone Playback Volume", VolumeControlName("Phone"))
	assert.Equal(t, "Phone Playback Switch", SwitchControlName("Phone"))
}

func TestALSAHostCardSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Card = 3

	h := NewALSAHost(cfg, nil)
	card, err := h.Card()
	require.NoError(t, err)
	assert.Equal(t, uint(3), card)

	cfg.Card = -1
	cfg.CardName = "Dummy"
	h = NewALSAHost(cfg, nil)
	h.findCard = func(name string) (alsa.SoundCard, error) {
		assert.Equal(t, "Dummy", name)

		return alsa.SoundCard{ID: 1, Name: "Dummy"}, nil
	}

	card, err = h.Card()
	require.NoError(t, err)
	assert.Equal(t, uint(1), card)

	emitter, err := h.Emitter()
	require.NoError(t, err)
	assert.Equal(t, &PCMEmitter{Card: 1, Device: 0}, emitter)

	h.findCard = func(string) (alsa.SoundCard, error) { return alsa.SoundCard{}, alsa.ErrCardNotFound }
	_, err = h.CreateSession(context.Background(), "Phone")
	assert.ErrorIs(t, err, alsa.ErrCardNotFound)

	cfg.Player = []string{"aplay", "-q"}
	h = NewALSAHost(cfg, nil)
	emitter, err = h.Emitter()
	require.NoError(t, err)
	assert.Equal(t, &CommandEmitter{Args: []string{"aplay", "-q"}}, emitter)
}

func TestInvalidated(t *testing.T) {
	assert.ErrorIs(t, invalidated(alsa.ErrElemNotFound), adbvol.ErrSessionInvalidated)
	assert.ErrorIs(t, invalidated(alsa.ErrDisconnected), adbvol.ErrSessionInvalidated)

	other := errors.New("EINTR")
	assert.Equal(t, other, invalidated(other))
}

// TestALSASession needs the snd-dummy module: sudo modprobe snd-dummy
func TestALSASession(t *testing.T) {
	card, err := alsa.FindCard("Dummy")
	if err != nil {
		t.Skip("ALSA dummy device not found, run: sudo modprobe snd-dummy")
	}

	cfg := DefaultConfig()
	cfg.Card = card.ID
	cfg.Steps = 15
	cfg.PollInterval = 20 * time.Millisecond

	h := NewALSAHost(cfg, nil)

	session, err := h.CreateSession(context.Background(), "AdbvolTest")
	if err != nil {
		t.Skipf("cannot create user controls: %v", err)
	}

	s := session.(*alsaSession)
	defer s.Close()

	state, err := s.Volume()
	require.NoError(t, err)
	assert.Equal(t, adbvol.HostVolumeState{Level: 1}, state, "created controls start at full volume")
	assert.True(t, s.Owned())

	require.NoError(t, s.Set(adbvol.HostVolumeState{Level: 0.4}))
	state, err = s.Volume()
	require.NoError(t, err)
	assert.InDelta(t, 0.4, state.Level, 1e-9, "6 of 15")
	assert.False(t, state.Muted)

	ctx, cancel := context.WithCancel(context.Background())
	notified := make(chan struct{}, 16)
	watchErr := make(chan error, 1)

	go func() {
		watchErr <- s.Watch(ctx, func() { notified <- struct{}{} })
	}()

	// Give the watcher time to subscribe.
	time.Sleep(50 * time.Millisecond)

	other, err := alsa.OpenControl(uint(card.ID))
	require.NoError(t, err)
	defer other.Close()

	vol, err := other.FindElem(alsa.SNDRV_CTL_ELEM_IFACE_MIXER, VolumeControlName("AdbvolTest"), 0)
	require.NoError(t, err)
	require.NoError(t, other.WriteValues(vol, 7, 8))

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	state, err = s.Volume()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, state.Level, 1e-9)

	sw, err := other.FindElem(alsa.SNDRV_CTL_ELEM_IFACE_MIXER, SwitchControlName("AdbvolTest"), 0)
	require.NoError(t, err)
	require.NoError(t, other.WriteValues(sw, 0))

	assert.Eventually(t, func() bool {
		state, err := s.Volume()

		return err == nil && state.Muted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, other.RemoveElem(vol))

	select {
	case err := <-watchErr:
		assert.ErrorIs(t, err, adbvol.ErrSessionInvalidated)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not report the removed control")
	}

	cancel()

	_, err = s.Volume()
	assert.ErrorIs(t, err, adbvol.ErrSessionInvalidated)
}
