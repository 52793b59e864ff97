package alsa_test

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

// dummyCard stores the dynamically found card number for the snd-dummy device.
var dummyCard = -1

// findCard searches /proc/asound/cards for the passed device name and returns its card number. Returns -1 if not found.
func findCard(name string) int {
	content, err := os.ReadFile("/proc/asound/cards")
	if err != nil {
		return -1
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.Contains(line, name) {
			var card int
			// The format is " 0 [Dummy          ]: Dummy - Dummy"
			if _, err := fmt.Sscanf(line, " %d", &card); err == nil {
				return card
			}
		}
	}

	return -1
}

// requireDummy skips hardware tests when snd-dummy is not loaded.
func requireDummy(t *testing.T) uint {
	t.Helper()

	if dummyCard == -1 {
		t.Skip("ALSA dummy device not found, run: sudo modprobe snd-dummy")
	}

	return uint(dummyCard)
}

func TestMain(m *testing.M) {
	dummyCard = findCard("Dummy")

	os.Exit(m.Run())
}
