package alsa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCards = ` 0 [PCH            ]: HDA-Intel - HDA Intel PCH
                      HDA Intel PCH at 0xf7f10000 irq 32
 1 [Dummy          ]: Dummy - Dummy
                      Dummy 1
 2 [Loopback       ]: Loopback - Loopback
                      Loopback 1
`

const testPcm = `00-00: ALC3232 Analog : ALC3232 Analog : playback 1 : capture 1
01-00: Dummy PCM : Dummy PCM : playback 8 : capture 8
02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8
02-01: Loopback PCM : Loopback PCM : capture 8
`

func writeProc(t *testing.T, pcm bool) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cards"), []byte(testCards), 0o644))

	if pcm {
		require.NoError(t, os.WriteFile(filepath.Join(root, "pcm"), []byte(testPcm), 0o644))
	}

	return root
}

func TestEnumerateCards(t *testing.T) {
	cards, err := enumerateCards(writeProc(t, true))
	require.NoError(t, err)
	require.Len(t, cards, 3)

	assert.Equal(t, 0, cards[0].ID)
	assert.Equal(t, "PCH", cards[0].Name)
	assert.Equal(t, "HDA-Intel - HDA Intel PCH", cards[0].Description)

	lo := cards[2]
	assert.Len(t, lo.Devices, 3)
	assert.True(t, lo.HasPlayback(0))
	assert.False(t, lo.HasPlayback(1), "device 1 is capture only")
	assert.Contains(t, lo.String(), "Device 0: pcm0p (Loopback PCM) [Playback]")
}

func TestEnumerateCardsWithoutPcm(t *testing.T) {
	cards, err := enumerateCards(writeProc(t, false))
	require.NoError(t, err)
	require.Len(t, cards, 3)
	assert.Empty(t, cards[1].Devices)

	_, err = enumerateCards(t.TempDir())
	assert.Error(t, err)
}

func TestFindCard(t *testing.T) {
	cards, err := enumerateCards(writeProc(t, true))
	require.NoError(t, err)

	card, err := findCard(cards, "")
	require.NoError(t, err)
	assert.Equal(t, 0, card.ID)

	card, err = findCard(cards, "dummy")
	require.NoError(t, err)
	assert.Equal(t, 1, card.ID)

	card, err = findCard(cards, "intel pch")
	require.NoError(t, err)
	assert.Equal(t, "PCH", card.Name)

	_, err = findCard(cards, "USB Audio")
	assert.ErrorIs(t, err, ErrCardNotFound)

	_, err = findCard(nil, "")
	assert.ErrorIs(t, err, ErrCardNotFound)
}
