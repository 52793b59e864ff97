package hostaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gen2brain/adbvol"
	"github.com/gen2brain/adbvol/alsa"
)

var _ Host = (*ALSAHost)(nil)

// ALSAHost implements Host with mixer controls on an ALSA sound card.
type ALSAHost struct {
	cfg    Config
	logger *slog.Logger

	// findCard resolves the card when Config.Card is negative.
	findCard func(name string) (alsa.SoundCard, error)
}

// NewALSAHost returns a host for cfg. A nil logger uses slog.Default.
func NewALSAHost(cfg Config, logger *slog.Logger) *ALSAHost {
	if logger == nil {
		logger = slog.Default()
	}

	return &ALSAHost{
		cfg:      cfg,
		logger:   logger,
		findCard: alsa.FindCard,
	}
}

// Card returns the number of the configured sound card.
func (h *ALSAHost) Card() (uint, error) {
	if h.cfg.Card >= 0 {
		return uint(h.cfg.Card), nil
	}

	card, err := h.findCard(h.cfg.CardName)
	if err != nil {
		return 0, err
	}

	return uint(card.ID), nil
}

// Emitter returns the emitter used for the silence burst.
func (h *ALSAHost) Emitter() (Emitter, error) {
	if len(h.cfg.Player) > 0 {
		return &CommandEmitter{Args: h.cfg.Player}, nil
	}

	card, err := h.Card()
	if err != nil {
		return nil, err
	}

	return &PCMEmitter{Card: card, Device: uint(h.cfg.PCMDevice)}, nil
}

// EmitSilence plays a near-silent burst of duration d.
func (h *ALSAHost) EmitSilence(ctx context.Context, d time.Duration) error {
	emitter, err := h.Emitter()
	if err != nil {
		return err
	}

	if err := emitter.Emit(ctx, Silence(d, h.cfg.Amplitude)); err != nil {
		return fmt.Errorf("silence burst failed: %w", err)
	}

	return nil
}

// CreateSession opens the card's control device and binds the session to the
// controls named after tag, creating them when allowed.
func (h *ALSAHost) CreateSession(_ context.Context, tag string) (Session, error) {
	card, err := h.Card()
	if err != nil {
		return nil, err
	}

	ctl, err := alsa.OpenControl(card)
	if err != nil {
		return nil, err
	}

	s := &alsaSession{
		ctl:    ctl,
		poll:   h.cfg.PollInterval,
		logger: h.logger.With("card", card, "tag", tag),
	}

	if err := s.bind(tag, h.cfg.Steps, h.cfg.CreateControls); err != nil {
		_ = s.Close()

		return nil, err
	}

	s.logger.Debug("Mixer session ready", "volume", s.volume.String(), "created", len(s.created))

	return s, nil
}

type alsaSession struct {
	ctl     *alsa.Control
	volume  *alsa.Elem
	mute    *alsa.Elem
	created []*alsa.Elem
	poll    time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *alsaSession) bind(tag string, steps int, create bool) error {
	var err error

	s.volume, err = s.ctl.FindElem(alsa.SNDRV_CTL_ELEM_IFACE_MIXER, VolumeControlName(tag), 0)
	switch {
	case errors.Is(err, alsa.ErrElemNotFound) && create:
		s.volume, err = s.ctl.AddInteger(VolumeControlName(tag), Channels, 0, int64(steps), 1)
		if err != nil {
			return err
		}

		s.created = append(s.created, s.volume)

		if err := s.ctl.WriteValues(s.volume, int64(steps)); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if s.volume.Type != alsa.SNDRV_CTL_ELEM_TYPE_INTEGER || !s.volume.Readable() {
		return fmt.Errorf("control %s is not a readable integer", s.volume.Name)
	}

	s.mute, err = s.ctl.FindElem(alsa.SNDRV_CTL_ELEM_IFACE_MIXER, SwitchControlName(tag), 0)
	switch {
	case errors.Is(err, alsa.ErrElemNotFound) && create:
		s.mute, err = s.ctl.AddBoolean(SwitchControlName(tag), Channels)
		if err != nil {
			return err
		}

		s.created = append(s.created, s.mute)

		if err := s.ctl.WriteValues(s.mute, 1); err != nil {
			return err
		}
	case errors.Is(err, alsa.ErrElemNotFound):
		// An existing volume control without a switch cannot be muted.
		s.mute = nil
	case err != nil:
		return err
	}

	return nil
}

// Volume returns the mean of the volume channels normalized by the control range.
// The session is muted when every switch channel is off.
func (s *alsaSession) Volume() (adbvol.HostVolumeState, error) {
	values, err := s.ctl.ReadValues(s.volume)
	if err != nil {
		return adbvol.HostVolumeState{}, invalidated(err)
	}

	var state adbvol.HostVolumeState
	if len(values) > 0 {
		var sum float64
		for _, v := range values {
			sum += s.volume.Normalize(v)
		}

		state.Level = sum / float64(len(values))
	}

	if s.mute == nil {
		return state, nil
	}

	switches, err := s.ctl.ReadValues(s.mute)
	if err != nil {
		return adbvol.HostVolumeState{}, invalidated(err)
	}

	state.Muted = len(switches) > 0
	for _, on := range switches {
		if on != 0 {
			state.Muted = false
		}
	}

	return state, nil
}

// Set writes st to the volume control and, when present, the switch.
func (s *alsaSession) Set(st adbvol.HostVolumeState) error {
	if err := s.ctl.WriteValues(s.volume, s.volume.Denormalize(st.Level)); err != nil {
		return invalidated(err)
	}

	if s.mute == nil {
		return nil
	}

	on := int64(1)
	if st.Muted {
		on = 0
	}

	if err := s.ctl.WriteValues(s.mute, on); err != nil {
		return invalidated(err)
	}

	return nil
}

// Owned reports whether the volume control was created by this session.
func (s *alsaSession) Owned() bool {
	return s.volume != nil && slices.Contains(s.created, s.volume)
}

// Watch reports value changes on the session's controls.
func (s *alsaSession) Watch(ctx context.Context, notify func()) error {
	if err := s.ctl.SubscribeEvents(true); err != nil {
		return invalidated(err)
	}
	defer func() { _ = s.ctl.SubscribeEvents(false) }()

	timeout := int(s.poll / time.Millisecond)
	if timeout <= 0 {
		timeout = 200
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready, err := s.ctl.WaitEvent(timeout)
		if err != nil {
			return invalidated(err)
		}

		if !ready {
			continue
		}

		ev, err := s.ctl.ReadEvent()
		if err != nil {
			if errors.Is(err, alsa.ErrDisconnected) {
				return invalidated(err)
			}

			s.logger.Debug("Skipping control event", "error", err)

			continue
		}

		if !s.owns(ev.NumID) {
			continue
		}

		if ev.Mask.Removed() {
			return fmt.Errorf("%w: control %s removed", adbvol.ErrSessionInvalidated, ev.Name)
		}

		if ev.Mask&(alsa.SNDRV_CTL_EVENT_MASK_VALUE|alsa.SNDRV_CTL_EVENT_MASK_INFO) != 0 {
			notify()
		}
	}
}

// Close removes the controls this session created and closes the control device.
func (s *alsaSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		for _, e := range s.created {
			if err := s.ctl.RemoveElem(e); err != nil && !errors.Is(err, alsa.ErrElemNotFound) {
				errs = append(errs, err)
			}
		}

		errs = append(errs, s.ctl.Close())
		s.closeErr = errors.Join(errs...)
	})

	return s.closeErr
}

func (s *alsaSession) owns(numid uint32) bool {
	return (s.volume != nil && s.volume.NumID == numid) || (s.mute != nil && s.mute.NumID == numid)
}

// invalidated marks errors that mean the session is gone.
func invalidated(err error) error {
	if errors.Is(err, alsa.ErrElemNotFound) || errors.Is(err, alsa.ErrDisconnected) || errors.Is(err, alsa.ErrClosed) {
		return fmt.Errorf("%w: %w", adbvol.ErrSessionInvalidated, err)
	}

	return err
}
