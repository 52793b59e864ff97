// Package alsa talks to the Linux ALSA kernel interface directly through ioctls.
//
// It covers what the volume bridge needs from a sound card: the control
// device (card info, element enumeration, user-defined elements, values and
// change events) and a minimal interleaved playback path.
package alsa

// PcmFormat defines the sample format for a PCM stream.
// These values correspond to the SNDRV_PCM_FORMAT_* constants in the ALSA kernel headers.
type PcmFormat int32

const (
	SNDRV_PCM_FORMAT_S8     PcmFormat = 0
	SNDRV_PCM_FORMAT_U8     PcmFormat = 1
	SNDRV_PCM_FORMAT_S16_LE PcmFormat = 2
	SNDRV_PCM_FORMAT_S32_LE PcmFormat = 10
)

// Bits returns the sample width of the format, or 0 when unknown.
func (f PcmFormat) Bits() uint32 {
	switch f {
	case SNDRV_PCM_FORMAT_S8, SNDRV_PCM_FORMAT_U8:
		return 8
	case SNDRV_PCM_FORMAT_S16_LE:
		return 16
	case SNDRV_PCM_FORMAT_S32_LE:
		return 32
	}

	return 0
}

// PcmParam identifies a hardware parameter for a PCM device.
// These values correspond to the SNDRV_PCM_HW_PARAM_* constants.
type PcmParam int

const (
	SNDRV_PCM_HW_PARAM_ACCESS      PcmParam = 0
	SNDRV_PCM_HW_PARAM_FORMAT      PcmParam = 1
	SNDRV_PCM_HW_PARAM_SUBFORMAT   PcmParam = 2
	SNDRV_PCM_HW_PARAM_SAMPLE_BITS PcmParam = 8
	SNDRV_PCM_HW_PARAM_CHANNELS    PcmParam = 10
	SNDRV_PCM_HW_PARAM_RATE        PcmParam = 11
	SNDRV_PCM_HW_PARAM_PERIOD_SIZE PcmParam = 13
	SNDRV_PCM_HW_PARAM_PERIODS     PcmParam = 15
	SNDRV_PCM_HW_PARAM_TICK_TIME   PcmParam = 19
)

const (
	SNDRV_PCM_INTERVAL_INTEGER = 1 << 2

	SNDRV_PCM_ACCESS_RW_INTERLEAVED = 3
)

// ElemType defines the value type of a control element.
type ElemType int32

const (
	SNDRV_CTL_ELEM_TYPE_NONE       ElemType = 0
	SNDRV_CTL_ELEM_TYPE_BOOLEAN    ElemType = 1
	SNDRV_CTL_ELEM_TYPE_INTEGER    ElemType = 2
	SNDRV_CTL_ELEM_TYPE_ENUMERATED ElemType = 3
	SNDRV_CTL_ELEM_TYPE_BYTES      ElemType = 4
	SNDRV_CTL_ELEM_TYPE_IEC958     ElemType = 5
	SNDRV_CTL_ELEM_TYPE_INTEGER64  ElemType = 6
)

var elemTypeNames = map[ElemType]string{
	SNDRV_CTL_ELEM_TYPE_NONE:       "NONE",
	SNDRV_CTL_ELEM_TYPE_BOOLEAN:    "BOOL",
	SNDRV_CTL_ELEM_TYPE_INTEGER:    "INT",
	SNDRV_CTL_ELEM_TYPE_ENUMERATED: "ENUM",
	SNDRV_CTL_ELEM_TYPE_BYTES:      "BYTE",
	SNDRV_CTL_ELEM_TYPE_IEC958:     "IEC958",
	SNDRV_CTL_ELEM_TYPE_INTEGER64:  "INT64",
}

// String returns the short name of the element type.
func (t ElemType) String() string {
	if name, ok := elemTypeNames[t]; ok {
		return name
	}

	return "UNKNOWN"
}

// ElemIface is the interface a control element belongs to.
type ElemIface int32

const (
	SNDRV_CTL_ELEM_IFACE_CARD  ElemIface = 0
	SNDRV_CTL_ELEM_IFACE_MIXER ElemIface = 2
	SNDRV_CTL_ELEM_IFACE_PCM   ElemIface = 3
)

// CtlAccessFlag defines the access permissions for a control element.
type CtlAccessFlag uint32

const (
	SNDRV_CTL_ELEM_ACCESS_READ      CtlAccessFlag = 1 << 0
	SNDRV_CTL_ELEM_ACCESS_WRITE     CtlAccessFlag = 1 << 1
	SNDRV_CTL_ELEM_ACCESS_READWRITE               = SNDRV_CTL_ELEM_ACCESS_READ | SNDRV_CTL_ELEM_ACCESS_WRITE
	SNDRV_CTL_ELEM_ACCESS_INACTIVE  CtlAccessFlag = 1 << 8
	// Set by the kernel on elements created from user space.
	SNDRV_CTL_ELEM_ACCESS_USER CtlAccessFlag = 1 << 29
)

// EventMask is the kind of change reported by a control event.
type EventMask uint32

const (
	SNDRV_CTL_EVENT_ELEM = 0

	// Indicates that a control element's value has changed.
	SNDRV_CTL_EVENT_MASK_VALUE EventMask = 1 << 0
	// Indicates that a control element's metadata (e.g., range) has changed.
	SNDRV_CTL_EVENT_MASK_INFO EventMask = 1 << 1
	// Indicates that a control element has been added.
	SNDRV_CTL_EVENT_MASK_ADD EventMask = 1 << 2
	// Indicates that the element's TLV data has changed.
	SNDRV_CTL_EVENT_MASK_TLV EventMask = 1 << 3
	// The whole mask is set to this value when an element is removed.
	SNDRV_CTL_EVENT_MASK_REMOVE EventMask = ^EventMask(0)
)

// Removed reports whether the event signals removal of the element.
func (m EventMask) Removed() bool {
	return m == SNDRV_CTL_EVENT_MASK_REMOVE
}

// Event represents a notification from the ALSA control interface.
type Event struct {
	Mask  EventMask
	NumID uint32
	Name  string
	Index uint32
}
