package alsa

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestStructSizes(t *testing.T) {
	assert.Equal(t, uintptr(64), unsafe.Sizeof(sndCtlElemId{}))
	assert.Equal(t, uintptr(272), unsafe.Sizeof(sndCtlElemInfo{}))
	assert.Equal(t, uintptr(376), unsafe.Sizeof(sndCtlCardInfo{}))
	assert.Equal(t, uintptr(72), unsafe.Sizeof(sndCtlEvent{}))

	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("64-bit layout checks")
	}

	assert.Equal(t, uintptr(1224), unsafe.Sizeof(sndCtlElemValue{}))
	assert.Equal(t, uintptr(80), unsafe.Sizeof(sndCtlElemList{}))
	assert.Equal(t, uintptr(608), unsafe.Sizeof(sndPcmHwParams{}))
	assert.Equal(t, uintptr(136), unsafe.Sizeof(sndPcmSwParams{}))
	assert.Equal(t, uintptr(24), unsafe.Sizeof(sndXferi{}))
}

func TestIoctlCodes(t *testing.T) {
	assert.Equal(t, uintptr(0x81785501), SNDRV_CTL_IOCTL_CARD_INFO)
	assert.Equal(t, uintptr(0xC1105511), SNDRV_CTL_IOCTL_ELEM_INFO)
	assert.Equal(t, uintptr(0xC0045516), SNDRV_CTL_IOCTL_SUBSCRIBE_EVENTS)
	assert.Equal(t, uintptr(0xC1105517), SNDRV_CTL_IOCTL_ELEM_ADD)
	assert.Equal(t, uintptr(0xC0405519), SNDRV_CTL_IOCTL_ELEM_REMOVE)
	assert.Equal(t, uintptr(0x4140), SNDRV_PCM_IOCTL_PREPARE)
	assert.Equal(t, uintptr(0x4144), SNDRV_PCM_IOCTL_DRAIN)

	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("64-bit request codes")
	}

	assert.Equal(t, uintptr(0xC4C85512), SNDRV_CTL_IOCTL_ELEM_READ)
	assert.Equal(t, uintptr(0xC4C85513), SNDRV_CTL_IOCTL_ELEM_WRITE)
	assert.Equal(t, uintptr(0xC2604111), SNDRV_PCM_IOCTL_HW_PARAMS)
	assert.Equal(t, uintptr(0xC0884113), SNDRV_PCM_IOCTL_SW_PARAMS)
	assert.Equal(t, uintptr(0x40184150), SNDRV_PCM_IOCTL_WRITEI_FRAMES)
}

func TestHwParams(t *testing.T) {
	p := &sndPcmHwParams{}
	p.reset()
	assert.Equal(t, ^uint32(0), p.Masks[0].Bits[7])
	assert.Equal(t, ^uint32(0), p.interval(SNDRV_PCM_HW_PARAM_RATE).MaxVal)

	p.setMask(SNDRV_PCM_HW_PARAM_FORMAT, uint32(SNDRV_PCM_FORMAT_S16_LE))
	assert.Equal(t, uint32(1<<2), p.Masks[1].Bits[0])
	assert.Equal(t, uint32(0), p.Masks[1].Bits[1])

	p.setMask(SNDRV_PCM_HW_PARAM_ACCESS, 40)
	assert.Equal(t, [8]uint32{0, 1 << 8}, p.Masks[0].Bits)

	p.setInt(SNDRV_PCM_HW_PARAM_RATE, 48000)
	assert.Equal(t, uint32(48000), p.get(SNDRV_PCM_HW_PARAM_RATE))
	assert.Equal(t, uint32(48000), p.interval(SNDRV_PCM_HW_PARAM_RATE).MaxVal)
	assert.Equal(t, uint32(SNDRV_PCM_INTERVAL_INTEGER), p.interval(SNDRV_PCM_HW_PARAM_RATE).Flags)

	p.setMin(SNDRV_PCM_HW_PARAM_PERIOD_SIZE, 1024)
	assert.Equal(t, uint32(1024), p.get(SNDRV_PCM_HW_PARAM_PERIOD_SIZE))

	// Masks are not intervals and vice versa.
	p.setInt(SNDRV_PCM_HW_PARAM_FORMAT, 7)
	assert.Equal(t, uint32(0), p.get(SNDRV_PCM_HW_PARAM_FORMAT))
	assert.Nil(t, p.interval(SNDRV_PCM_HW_PARAM_ACCESS))
	assert.NotPanics(t, func() { p.setMask(SNDRV_PCM_HW_PARAM_RATE, 1) })
}

func TestNewElemDecodesInteger(t *testing.T) {
	info := newUserElemInfo("Phone Playback Volume", SNDRV_CTL_ELEM_TYPE_INTEGER, 2)
	in := (*integer)(unsafe.Pointer(&info.Value[0]))
	in.Min, in.Max, in.Step = 0, 15, 1
	info.Id.Numid = 42

	e := newElem(info)
	assert.Equal(t, "Phone Playback Volume", e.Name)
	assert.Equal(t, uint32(42), e.NumID)
	assert.Equal(t, SNDRV_CTL_ELEM_IFACE_MIXER, e.Iface)
	assert.Equal(t, uint32(2), e.Count)
	assert.Equal(t, int64(15), e.Max)
	assert.True(t, e.Readable())
	assert.True(t, e.Writable())
	assert.False(t, e.IsUser(), "the kernel sets the user flag, not the request")

	long := newUserElemInfo("a very long element name that does not fit into the id", SNDRV_CTL_ELEM_TYPE_BOOLEAN, 1)
	assert.Equal(t, byte(0), long.Id.Name[len(long.Id.Name)-1])
	assert.Len(t, newElem(long).Name, 43)
	assert.Equal(t, int64(1), newElem(long).Max)
}
