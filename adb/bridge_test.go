package adb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/adbvol"
)

func TestParseDevices(t *testing.T) {
	out := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 device:emu64xa transport_id:1
R58M12ABCDE            unauthorized usb:1-1 transport_id:3
0123456789ABCDEF       no permissions (user in plugdev group; are your udev rules wrong?); see [http://developer.android.com/tools/device.html] usb:1-2

`

	devices := ParseDevices(out)
	require.Len(t, devices, 3)

	assert.Equal(t, "emulator-5554", devices[0].Serial)
	assert.True(t, devices[0].Ready())
	assert.Equal(t, "sdk_gphone64_x86_64", devices[0].Attrs["model"])
	assert.Equal(t, "emulator-5554 (sdk_gphone64_x86_64) [device]", devices[0].String())

	assert.Equal(t, "unauthorized", devices[1].State)
	assert.False(t, devices[1].Ready())
	assert.Equal(t, "R58M12ABCDE [unauthorized]", devices[1].String())

	assert.Equal(t, "no permissions", devices[2].State)
	assert.Equal(t, map[string]string{"usb": "1-2"}, devices[2].Attrs)

	assert.Empty(t, ParseDevices("List of devices attached\n\n"))
}

func TestResultOutput(t *testing.T) {
	assert.Equal(t, "out\nerr", Result{Stdout: "out\n", Stderr: "err\n"}.Output())
	assert.Equal(t, "err", Result{Stderr: "  err"}.Output())
}

// writeScript creates an executable shell script standing in for adb.
func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "adb")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))

	return path
}

func TestExecBridge(t *testing.T) {
	script := writeScript(t, `
case "$1" in
  version) echo "Android Debug Bridge version 1.0.41"; echo "Version 34.0.5";;
  devices) printf 'List of devices attached\nA\tdevice model:Pixel_7\n';;
  -s) shift 2; echo "$@"; [ "$1" = fail ] && { echo "error: device 'A' not found" >&2; exit 1; };;
esac
exit 0
`)
	b := NewExecBridge(script)
	ctx := context.Background()

	version, err := b.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Android Debug Bridge version 1.0.41", version)

	devices, err := b.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Pixel_7", devices[0].Attrs["model"])

	res, err := b.Exec(ctx, "A", "shell", "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "shell echo hi\n", res.Stdout)

	res, err = b.Exec(ctx, "A", "fail")
	require.NoError(t, err, "a non-zero exit is a result, not an error")
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Stderr, "not found")
}

func TestExecBridgeMissingBinary(t *testing.T) {
	b := NewExecBridge(filepath.Join(t.TempDir(), "no-adb"))

	_, err := b.Exec(context.Background(), "", "devices")
	assert.ErrorIs(t, err, adbvol.ErrTransportUnavailable)

	_, err = b.Version(context.Background())
	assert.ErrorIs(t, err, adbvol.ErrTransportUnavailable)

	assert.Equal(t, "adb", NewExecBridge("").Path)
}

func TestExecBridgeTimeout(t *testing.T) {
	b := NewExecBridge(writeScript(t, "exec sleep 5\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Exec(ctx, "A", "get-state")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
