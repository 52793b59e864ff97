package adb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gen2brain/adbvol"
)

var _ adbvol.DeviceClient = (*Client)(nil)

var (
	disconnectRegex = regexp.MustCompile(`(?i)device '[^']*' not found|device (offline|not found|unauthorized)|no devices/emulators found|error: closed`)
	rangeRegex      = regexp.MustCompile(`volume is (\d+) in range \[(\d+)\.\.(\d+)\]`)
)

// form is one way of issuing a command on the device.
type form struct {
	name string
	args []string
	// relative forms press a key, so the resulting level is unknown.
	relative bool
}

// Client implements adbvol.DeviceClient over a Bridge.
type Client struct {
	bridge Bridge
	cfg    Config
	logger *slog.Logger

	incompatible []*regexp.Regexp
	maxPatterns  []*regexp.Regexp
}

// NewClient returns a client for cfg. A nil logger uses slog.Default.
func NewClient(bridge Bridge, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	incompatible, _ := compilePatterns(cfg.IncompatiblePatterns)
	maxPatterns, _ := compilePatterns(cfg.MaxPatterns)

	return &Client{
		bridge:       bridge,
		cfg:          cfg,
		logger:       logger,
		incompatible: incompatible,
		maxPatterns:  maxPatterns,
	}, nil
}

// Connect finds exactly one ready device and completes a handshake with it.
func (c *Client) Connect(ctx context.Context) (*adbvol.Device, error) {
	listCtx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	devices, err := c.bridge.Devices(listCtx)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if errors.Is(err, adbvol.ErrTransportUnavailable) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: listing devices: %w", adbvol.ErrTransportUnavailable, err)
	}

	var ready, other []DeviceInfo
	for _, d := range devices {
		if c.cfg.Serial != "" && d.Serial != c.cfg.Serial {
			continue
		}

		if d.Ready() {
			ready = append(ready, d)
		} else {
			other = append(other, d)
		}
	}

	switch {
	case len(ready) == 0 && len(other) > 0:
		states := make([]string, 0, len(other))
		for _, d := range other {
			states = append(states, d.String())
		}

		return nil, fmt.Errorf("%w: %s", adbvol.ErrNoDevice, strings.Join(states, ", "))
	case len(ready) == 0 && c.cfg.Serial != "":
		return nil, fmt.Errorf("%w: %s is not attached", adbvol.ErrNoDevice, c.cfg.Serial)
	case len(ready) == 0:
		return nil, adbvol.ErrNoDevice
	case len(ready) > 1:
		serials := make([]string, 0, len(ready))
		for _, d := range ready {
			serials = append(serials, d.Serial)
		}

		return nil, fmt.Errorf("%w: %s (select one with --serial)", adbvol.ErrAmbiguousDevice, strings.Join(serials, ", "))
	}

	dev := &adbvol.Device{Serial: ready[0].Serial}

	token := "adbvol-" + uuid.NewString()
	res, err := c.run(ctx, dev, c.cfg.CommandTimeout, "shell", "echo", token)
	if err != nil {
		return nil, err
	}

	if res.ExitCode != 0 || !strings.Contains(res.Stdout, token) {
		return nil, fmt.Errorf("%w: handshake with %s failed: %s", adbvol.ErrNoDevice, dev.Serial, res.Output())
	}

	c.logger.Info("Device connected", "serial", dev.Serial, "model", ready[0].Attrs["model"])

	return dev, nil
}

// QueryMaxVolume returns the maximum volume step of the configured stream.
// The result is cached on the handle.
func (c *Client) QueryMaxVolume(ctx context.Context, dev *adbvol.Device) (int, error) {
	if dev == nil {
		return 0, fmt.Errorf("%w: nil device", adbvol.ErrQueryFailed)
	}

	if dev.Max > 0 {
		return dev.Max, nil
	}

	stream := strconv.Itoa(c.cfg.Stream)

	res, err := c.run(ctx, dev, c.cfg.QueryTimeout, "shell", "cmd", "media_session", "volume", "--stream", stream, "--get")
	if err != nil {
		return 0, err
	}

	if res.ExitCode == 0 {
		if m := rangeRegex.FindStringSubmatch(res.Stdout); m != nil {
			current, _ := strconv.Atoi(m[1])
			maxVolume, _ := strconv.Atoi(m[3])

			if maxVolume > 0 {
				dev.Max = maxVolume
				dev.Observe(adbvol.DeviceVolumeState{Level: current})

				return maxVolume, nil
			}
		}
	}

	c.logger.Debug("media_session query gave no range, reading dumpsys", "serial", dev.Serial, "output", res.Output())

	res, err = c.run(ctx, dev, c.cfg.QueryTimeout, "shell", "dumpsys", "audio")
	if err != nil {
		return 0, err
	}

	if res.ExitCode != 0 {
		return 0, fmt.Errorf("%w: dumpsys audio exited with %d", adbvol.ErrQueryFailed, res.ExitCode)
	}

	for _, re := range c.maxPatterns {
		m := re.FindStringSubmatch(res.Stdout)
		if m == nil {
			continue
		}

		if maxVolume, err := strconv.Atoi(m[1]); err == nil && maxVolume > 0 {
			dev.Max = maxVolume

			return maxVolume, nil
		}
	}

	return 0, fmt.Errorf("%w: no range for stream %d on %s", adbvol.ErrQueryFailed, c.cfg.Stream, dev.Serial)
}

// SetVolume sets the stream volume to level.
func (c *Client) SetVolume(ctx context.Context, dev *adbvol.Device, level int) error {
	if dev == nil {
		return fmt.Errorf("%w: nil device", adbvol.ErrCommandFailed)
	}

	if level < 0 || (dev.Max > 0 && level > dev.Max) {
		return fmt.Errorf("%w: level %d outside [0..%d]", adbvol.ErrRangeMap, level, dev.Max)
	}

	if _, err := c.apply(ctx, dev, c.volumeForms(level)); err != nil {
		return err
	}

	dev.Observe(adbvol.DeviceVolumeState{Level: level})

	return nil
}

// SetMute mutes the stream by setting it to 0, or restores the last audible level.
func (c *Client) SetMute(ctx context.Context, dev *adbvol.Device, muted bool) error {
	if dev == nil {
		return fmt.Errorf("%w: nil device", adbvol.ErrCommandFailed)
	}

	level, key := 0, "KEYCODE_VOLUME_MUTE"
	if !muted {
		level, key = dev.AudibleLevel(), "KEYCODE_VOLUME_UP"
	}

	forms := append(c.volumeForms(level), form{"keyevent", []string{"shell", "input", "keyevent", key}, true})

	used, err := c.apply(ctx, dev, forms)
	if err != nil {
		return err
	}

	if used.relative {
		dev.Forget()
	} else {
		dev.Observe(adbvol.DeviceVolumeState{Level: level, Muted: muted})
	}

	return nil
}

// IsAlive reports whether the device answers get-state within the heartbeat timeout.
func (c *Client) IsAlive(ctx context.Context, dev *adbvol.Device) bool {
	if dev == nil {
		return false
	}

	res, err := c.run(ctx, dev, c.cfg.HeartbeatTimeout, "get-state")
	if err != nil {
		c.logger.Debug("Heartbeat failed", "serial", dev.Serial, "error", err)

		return false
	}

	return res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == "device"
}

// Release drops the handle. Its cached range is cleared so a stale handle is never reused as is.
func (c *Client) Release(dev *adbvol.Device) {
	if dev == nil {
		return
	}

	dev.Max = 0
	c.logger.Debug("Device released", "serial", dev.Serial)
}

func (c *Client) volumeForms(level int) []form {
	stream := strconv.Itoa(c.cfg.Stream)
	n := strconv.Itoa(level)

	return []form{
		{name: "media_session", args: []string{"shell", "cmd", "media_session", "volume", "--stream", stream, "--set", n}},
		{name: "service_call", args: []string{"shell", "service", "call", "audio", "3", "i32", stream, "i32", n, "i32", "1"}},
	}
}

// apply walks the command forms under the fallback policy and returns the form that succeeded.
// Transport failures are returned at once and never trigger a fallback.
func (c *Client) apply(ctx context.Context, dev *adbvol.Device, forms []form) (form, error) {
	var lastErr error

	for i, f := range forms {
		res, err := c.run(ctx, dev, c.cfg.CommandTimeout, f.args...)
		if err != nil {
			return form{}, err
		}

		incompatible := c.isIncompatible(res.Output())
		if res.ExitCode == 0 && !incompatible {
			if i > 0 {
				c.logger.Debug("Fallback form succeeded", "serial", dev.Serial, "form", f.name)
			}

			return f, nil
		}

		lastErr = fmt.Errorf("%s exited with %d: %s", f.name, res.ExitCode, res.Output())
		if incompatible {
			lastErr = fmt.Errorf("%w: %w", adbvol.ErrIncompatibleCommand, lastErr)
		}

		if !c.fallback(incompatible) {
			break
		}

		if i+1 < len(forms) {
			c.logger.Debug("Command form failed, falling back", "serial", dev.Serial, "form", f.name, "next", forms[i+1].name, "error", lastErr)
		}
	}

	return form{}, fmt.Errorf("%w: %w", adbvol.ErrCommandFailed, lastErr)
}

func (c *Client) fallback(incompatible bool) bool {
	switch c.cfg.Fallback {
	case FallbackAny:
		return true
	case FallbackNever:
		return false
	default:
		return incompatible
	}
}

func (c *Client) isIncompatible(output string) bool {
	for _, re := range c.incompatible {
		if re.MatchString(output) {
			return true
		}
	}

	return false
}

// run executes one command with its own timeout. A timed out call or adb
// reporting the device gone is ErrDeviceDisconnected.
func (c *Client) run(ctx context.Context, dev *adbvol.Device, timeout time.Duration, args ...string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.bridge.Exec(callCtx, dev.Serial, args...)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return res, fmt.Errorf("%w: %s timed out after %s: %w", adbvol.ErrDeviceDisconnected, args[0], timeout, context.DeadlineExceeded)
		}

		return res, err
	}

	if res.ExitCode != 0 && disconnectRegex.MatchString(res.Output()) {
		return res, fmt.Errorf("%w: %s", adbvol.ErrDeviceDisconnected, res.Output())
	}

	return res, nil
}
