package adb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/gen2brain/adbvol"
)

// DeviceInfo is one line of the adb device listing.
type DeviceInfo struct {
	Serial string
	// State is "device" for a usable device, otherwise e.g. "offline" or "unauthorized".
	State string
	// Attrs holds the key:value pairs of `adb devices -l`, e.g. model and transport_id.
	Attrs map[string]string
}

// Ready reports whether the device accepts commands.
func (d DeviceInfo) Ready() bool {
	return d.State == "device"
}

// String returns a human-readable representation of the DeviceInfo.
func (d DeviceInfo) String() string {
	if model := d.Attrs["model"]; model != "" {
		return fmt.Sprintf("%s (%s) [%s]", d.Serial, model, d.State)
	}

	return fmt.Sprintf("%s [%s]", d.Serial, d.State)
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout and stderr joined and trimmed.
func (r Result) Output() string {
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

// Bridge is the request/response channel to attached devices.
type Bridge interface {
	// Devices lists the attached devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)
	// Exec runs an adb command against serial. A command that ran reports its
	// exit code in Result with a nil error.
	Exec(ctx context.Context, serial string, args ...string) (Result, error)
}

// ExecBridge implements Bridge by running the adb executable.
type ExecBridge struct {
	// Path of the adb executable.
	Path string
}

// NewExecBridge returns a bridge running the adb executable at path.
func NewExecBridge(path string) *ExecBridge {
	if path == "" {
		path = "adb"
	}

	return &ExecBridge{Path: path}
}

// Version returns the first line of `adb version`.
func (b *ExecBridge) Version(ctx context.Context) (string, error) {
	res, err := b.Exec(ctx, "", "version")
	if err != nil {
		return "", err
	}

	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: adb version exited with %d: %s", adbvol.ErrTransportUnavailable, res.ExitCode, res.Output())
	}

	line, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")

	return line, nil
}

// Devices runs `adb devices -l` and parses its output.
func (b *ExecBridge) Devices(ctx context.Context) ([]DeviceInfo, error) {
	res, err := b.Exec(ctx, "", "devices", "-l")
	if err != nil {
		return nil, err
	}

	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: adb devices exited with %d: %s", adbvol.ErrTransportUnavailable, res.ExitCode, res.Output())
	}

	return ParseDevices(res.Stdout), nil
}

// Exec runs adb with args, prefixed by -s serial when serial is set.
func (b *ExecBridge) Exec(ctx context.Context, serial string, args ...string) (Result, error) {
	argv := make([]string, 0, len(args)+2)
	if serial != "" {
		argv = append(argv, "-s", serial)
	}
	argv = append(argv, args...)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, b.Path, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// adb may leave a forked server holding the pipes.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()

		return res, nil
	default:
		return res, fmt.Errorf("%w: %w", adbvol.ErrTransportUnavailable, err)
	}
}

// ParseDevices parses the output of `adb devices` or `adb devices -l`.
func ParseDevices(out string) []DeviceInfo {
	var devices []DeviceInfo

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		d := DeviceInfo{Serial: fields[0], State: fields[1]}

		// "no permissions (...)" spans several fields.
		rest := fields[2:]
		if d.State == "no" && len(rest) > 0 && rest[0] == "permissions" {
			d.State = "no permissions"
			rest = rest[1:]
		}

		for _, f := range rest {
			key, value, ok := strings.Cut(f, ":")
			if !ok || !isAttrKey(key) {
				continue
			}

			if d.Attrs == nil {
				d.Attrs = make(map[string]string)
			}
			d.Attrs[key] = value
		}

		devices = append(devices, d)
	}

	return devices
}

func isAttrKey(key string) bool {
	if key == "" {
		return false
	}

	for _, r := range key {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}

	return true
}
