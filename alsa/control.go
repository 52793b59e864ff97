package alsa

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	// ErrElemNotFound is returned when no element matches the requested id.
	ErrElemNotFound = errors.New("control element not found")
	// ErrElemExists is returned when adding an element whose id is already taken.
	ErrElemExists = errors.New("control element already exists")
	// ErrDisconnected is returned once the card behind a control handle is gone.
	ErrDisconnected = errors.New("sound card disconnected")
	// ErrClosed is returned by operations on a closed control handle.
	ErrClosed = errors.New("control device is closed")
)

// maxElemValues is the number of long values in the element value union.
const maxElemValues = 128

// Elem describes a single control element.
type Elem struct {
	NumID     uint32
	Name      string
	Index     uint32
	Iface     ElemIface
	Device    uint32
	Subdevice uint32
	Type      ElemType
	Access    CtlAccessFlag
	Count     uint32
	Min       int64
	Max       int64
	Step      int64

	id sndCtlElemId
}

func newElem(info *sndCtlElemInfo) *Elem {
	e := &Elem{
		NumID:     info.Id.Numid,
		Name:      cString(info.Id.Name[:]),
		Index:     info.Id.Index,
		Iface:     ElemIface(info.Id.Iface),
		Device:    info.Id.Device,
		Subdevice: info.Id.Subdevice,
		Type:      ElemType(info.Typ),
		Access:    CtlAccessFlag(info.Access),
		Count:     info.Count,
		id:        info.Id,
	}

	switch e.Type {
	case SNDRV_CTL_ELEM_TYPE_BOOLEAN:
		e.Min, e.Max, e.Step = 0, 1, 1
	case SNDRV_CTL_ELEM_TYPE_INTEGER:
		in := (*integer)(unsafe.Pointer(&info.Value[0]))
		e.Min, e.Max, e.Step = int64(in.Min), int64(in.Max), int64(in.Step)
	}

	return e
}

// Readable reports whether the element value can be read.
func (e *Elem) Readable() bool {
	return e != nil && e.Access&SNDRV_CTL_ELEM_ACCESS_READ != 0
}

// Writable reports whether the element value can be written.
func (e *Elem) Writable() bool {
	return e != nil && e.Access&SNDRV_CTL_ELEM_ACCESS_WRITE != 0
}

// IsUser reports whether the element was created from user space.
func (e *Elem) IsUser() bool {
	return e != nil && e.Access&SNDRV_CTL_ELEM_ACCESS_USER != 0
}

// Normalize maps a raw value onto [0, 1] using the element range.
func (e *Elem) Normalize(v int64) float64 {
	if e == nil || e.Max <= e.Min {
		return 0
	}

	f := float64(v-e.Min) / float64(e.Max-e.Min)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}

	return f
}

// Denormalize maps a fraction in [0, 1] onto the element range, rounding to the nearest step.
func (e *Elem) Denormalize(f float64) int64 {
	if e == nil || e.Max <= e.Min {
		return 0
	}

	if math.IsNaN(f) || f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}

	step := e.Step
	if step <= 0 {
		step = 1
	}

	steps := int64(f*float64(e.Max-e.Min)/float64(step) + 0.5)
	v := e.Min + steps*step
	if v > e.Max {
		v = e.Max
	}

	return v
}

// String returns a short description of the element.
func (e *Elem) String() string {
	if e == nil {
		return "<nil>"
	}

	if e.Type == SNDRV_CTL_ELEM_TYPE_INTEGER {
		return fmt.Sprintf("%d: '%s' %s x%d [%d..%d]", e.NumID, e.Name, e.Type, e.Count, e.Min, e.Max)
	}

	return fmt.Sprintf("%d: '%s' %s x%d", e.NumID, e.Name, e.Type, e.Count)
}

// Control represents an open ALSA control device handle.
type Control struct {
	file     *os.File
	cardInfo sndCtlCardInfo
}

// OpenControl opens the control device of the given sound card.
// Only direct hardware control devices (e.g., /dev/snd/controlC0) are supported.
func OpenControl(card uint) (*Control, error) {
	path := fmt.Sprintf("/dev/snd/controlC%d", card)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open control device %s: %w", path, err)
	}

	c := &Control{file: file}

	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_CARD_INFO, uintptr(unsafe.Pointer(&c.cardInfo))); err != nil {
		_ = c.Close()

		return nil, fmt.Errorf("ioctl CARD_INFO failed: %w", wrapErrno(err))
	}

	return c, nil
}

// Close closes the control device handle.
func (c *Control) Close() error {
	if c == nil || c.file == nil {
		return nil
	}

	err := c.file.Close()
	c.file = nil

	return err
}

// Card returns the card number.
func (c *Control) Card() int {
	if c == nil {
		return -1
	}

	return int(c.cardInfo.Card)
}

// ID returns the card identifier, e.g. "PCH".
func (c *Control) ID() string {
	if c == nil {
		return ""
	}

	return cString(c.cardInfo.Id[:])
}

// Name returns the short name of the sound card.
func (c *Control) Name() string {
	if c == nil {
		return ""
	}

	return cString(c.cardInfo.Name[:])
}

// LongName returns the long name of the sound card.
func (c *Control) LongName() string {
	if c == nil {
		return ""
	}

	return cString(c.cardInfo.Longname[:])
}

// Driver returns the name of the card driver.
func (c *Control) Driver() string {
	if c == nil {
		return ""
	}

	return cString(c.cardInfo.Driver[:])
}

// Fd returns the underlying file descriptor for the control device.
func (c *Control) Fd() uintptr {
	if c == nil || c.file == nil {
		return ^uintptr(0) // Invalid FD
	}

	return c.file.Fd()
}

// Elems enumerates all control elements of the card.
func (c *Control) Elems() ([]*Elem, error) {
	if c == nil || c.file == nil {
		return nil, ErrClosed
	}

	list := &sndCtlElemList{}

	// First call: get the count of elements
	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_LIST, uintptr(unsafe.Pointer(list))); err != nil {
		return nil, fmt.Errorf("ioctl ELEM_LIST (get count) failed: %w", wrapErrno(err))
	}

	count := list.Count
	if count == 0 {
		return nil, nil
	}

	ids := make([]sndCtlElemId, count)

	// Second call: get the actual element IDs
	list.Space = count
	list.Pids = uintptr(unsafe.Pointer(&ids[0]))

	err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_LIST, uintptr(unsafe.Pointer(list)))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, fmt.Errorf("ioctl ELEM_LIST (get ids) failed: %w", wrapErrno(err))
	}

	elems := make([]*Elem, 0, list.Used)
	for i := uint32(0); i < list.Used; i++ {
		e, err := c.elemInfo(ids[i])
		if err != nil {
			// Skip elements that we can't read info for
			continue
		}

		elems = append(elems, e)
	}

	return elems, nil
}

// FindElem looks up an element by interface, name and index.
func (c *Control) FindElem(iface ElemIface, name string, index uint32) (*Elem, error) {
	if c == nil || c.file == nil {
		return nil, ErrClosed
	}

	id := sndCtlElemId{Iface: int32(iface), Index: index}
	setName(&id, name)

	e, err := c.elemInfo(id)
	if errors.Is(err, syscall.ENOENT) {
		return nil, fmt.Errorf("%w: %s,%d", ErrElemNotFound, name, index)
	}

	return e, err
}

// AddInteger creates a user-defined integer mixer element with the given number of channels and range.
func (c *Control) AddInteger(name string, channels uint32, lo, hi, step int64) (*Elem, error) {
	if lo >= hi {
		return nil, fmt.Errorf("invalid range [%d..%d] for %s", lo, hi, name)
	}

	info := newUserElemInfo(name, SNDRV_CTL_ELEM_TYPE_INTEGER, channels)

	in := (*integer)(unsafe.Pointer(&info.Value[0]))
	in.Min = clong(lo)
	in.Max = clong(hi)
	in.Step = clong(step)

	return c.addElem(info)
}

// AddBoolean creates a user-defined boolean mixer element with the given number of channels.
func (c *Control) AddBoolean(name string, channels uint32) (*Elem, error) {
	return c.addElem(newUserElemInfo(name, SNDRV_CTL_ELEM_TYPE_BOOLEAN, channels))
}

// RemoveElem deletes a user-defined element.
func (c *Control) RemoveElem(e *Elem) error {
	if c == nil || c.file == nil {
		return ErrClosed
	}

	if e == nil {
		return fmt.Errorf("element is nil")
	}

	id := e.id
	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_REMOVE, uintptr(unsafe.Pointer(&id))); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("%w: %s", ErrElemNotFound, e.Name)
		}

		return fmt.Errorf("ioctl ELEM_REMOVE failed: %w", wrapErrno(err))
	}

	return nil
}

// ReadValues returns the current value of every channel of the element.
func (c *Control) ReadValues(e *Elem) ([]int64, error) {
	if c == nil || c.file == nil {
		return nil, ErrClosed
	}

	if e == nil {
		return nil, fmt.Errorf("element is nil")
	}

	if !isLongValued(e.Type) {
		return nil, fmt.Errorf("unsupported element type %s", e.Type)
	}

	v := &sndCtlElemValue{Id: e.id}
	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_READ, uintptr(unsafe.Pointer(v))); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return nil, fmt.Errorf("%w: %s", ErrElemNotFound, e.Name)
		}

		return nil, fmt.Errorf("ioctl ELEM_READ failed: %w", wrapErrno(err))
	}

	raw := (*[maxElemValues]clong)(unsafe.Pointer(&v.Value[0]))

	n := min(int(e.Count), maxElemValues)
	values := make([]int64, n)
	for i := range values {
		values[i] = int64(raw[i])
	}

	return values, nil
}

// WriteValues sets the element value. A single value is applied to every channel.
func (c *Control) WriteValues(e *Elem, values ...int64) error {
	if c == nil || c.file == nil {
		return ErrClosed
	}

	if e == nil {
		return fmt.Errorf("element is nil")
	}

	if !isLongValued(e.Type) {
		return fmt.Errorf("unsupported element type %s", e.Type)
	}

	if len(values) != 1 && len(values) != int(e.Count) {
		return fmt.Errorf("element %s has %d channels, got %d values", e.Name, e.Count, len(values))
	}

	v := &sndCtlElemValue{Id: e.id}
	raw := (*[maxElemValues]clong)(unsafe.Pointer(&v.Value[0]))

	n := min(int(e.Count), maxElemValues)
	for i := 0; i < n; i++ {
		val := values[0]
		if len(values) > 1 {
			val = values[i]
		}

		if val < e.Min || val > e.Max {
			return fmt.Errorf("value %d out of range [%d..%d] for %s", val, e.Min, e.Max, e.Name)
		}

		raw[i] = clong(val)
	}

	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_WRITE, uintptr(unsafe.Pointer(v))); err != nil {
		if errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("%w: %s", ErrElemNotFound, e.Name)
		}

		return fmt.Errorf("ioctl ELEM_WRITE failed: %w", wrapErrno(err))
	}

	return nil
}

// SubscribeEvents enables or disables event generation for this control handle.
func (c *Control) SubscribeEvents(enable bool) error {
	if c == nil || c.file == nil {
		return ErrClosed
	}

	var val int32
	if enable {
		val = 1
	}

	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_SUBSCRIBE_EVENTS, uintptr(unsafe.Pointer(&val))); err != nil {
		return fmt.Errorf("ioctl SUBSCRIBE_EVENTS failed: %w", wrapErrno(err))
	}

	return nil
}

// WaitEvent waits for a control event to occur.
// It returns true if an event is pending, false on timeout.
func (c *Control) WaitEvent(timeoutMs int) (bool, error) {
	if c == nil || c.file == nil {
		return false, ErrClosed
	}

	pfd := []unix.PollFd{
		{Fd: int32(c.file.Fd()), Events: unix.POLLIN},
	}

	n, err := unix.Poll(pfd, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}

		return false, err
	}

	if n == 0 {
		return false, nil // Timeout
	}

	if (pfd[0].Revents & (unix.POLLERR | unix.POLLHUP | unix.POLLNVAL)) != 0 {
		return false, fmt.Errorf("poll revents %#x: %w", pfd[0].Revents, ErrDisconnected)
	}

	if (pfd[0].Revents & unix.POLLIN) != 0 {
		return true, nil
	}

	return false, fmt.Errorf("poll returned with unexpected revents: %d", pfd[0].Revents)
}

// ReadEvent reads a pending control event from the device.
func (c *Control) ReadEvent() (*Event, error) {
	if c == nil || c.file == nil {
		return nil, ErrClosed
	}

	var ev sndCtlEvent
	evSize := unsafe.Sizeof(ev)
	buffer := make([]byte, evSize)

	n, err := unix.Read(int(c.file.Fd()), buffer)
	if err != nil {
		return nil, wrapErrno(err)
	}

	if n < int(evSize) {
		return nil, fmt.Errorf("short read for event: got %d bytes, want %d", n, evSize)
	}

	ev = *(*sndCtlEvent)(unsafe.Pointer(&buffer[0]))

	if ev.Typ != SNDRV_CTL_EVENT_ELEM {
		return nil, fmt.Errorf("received non-element event type: %d", ev.Typ)
	}

	return &Event{
		Mask:  EventMask(ev.Elem.Mask),
		NumID: ev.Elem.Id.Numid,
		Name:  cString(ev.Elem.Id.Name[:]),
		Index: ev.Elem.Id.Index,
	}, nil
}

func (c *Control) elemInfo(id sndCtlElemId) (*Elem, error) {
	info := sndCtlElemInfo{Id: id}

	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_INFO, uintptr(unsafe.Pointer(&info))); err != nil {
		return nil, fmt.Errorf("ioctl ELEM_INFO failed: %w", wrapErrno(err))
	}

	return newElem(&info), nil
}

func (c *Control) addElem(info *sndCtlElemInfo) (*Elem, error) {
	if c == nil || c.file == nil {
		return nil, ErrClosed
	}

	name := cString(info.Id.Name[:])

	if info.Count == 0 || info.Count > maxElemValues {
		return nil, fmt.Errorf("invalid channel count %d for %s", info.Count, name)
	}

	if err := ioctl(c.file.Fd(), SNDRV_CTL_IOCTL_ELEM_ADD, uintptr(unsafe.Pointer(info))); err != nil {
		if errors.Is(err, syscall.EBUSY) {
			return nil, fmt.Errorf("%w: %s", ErrElemExists, name)
		}

		return nil, fmt.Errorf("ioctl ELEM_ADD failed: %w", wrapErrno(err))
	}

	// The kernel assigns the numid; look the element up to get it.
	return c.FindElem(ElemIface(info.Id.Iface), name, info.Id.Index)
}

func newUserElemInfo(name string, typ ElemType, channels uint32) *sndCtlElemInfo {
	info := &sndCtlElemInfo{}
	info.Id.Iface = int32(SNDRV_CTL_ELEM_IFACE_MIXER)
	setName(&info.Id, name)
	info.Typ = int32(typ)
	info.Access = uint32(SNDRV_CTL_ELEM_ACCESS_READWRITE)
	info.Count = channels

	return info
}

func isLongValued(t ElemType) bool {
	return t == SNDRV_CTL_ELEM_TYPE_BOOLEAN || t == SNDRV_CTL_ELEM_TYPE_INTEGER
}

// setName copies name into the fixed-size id name, leaving room for the terminator.
func setName(id *sndCtlElemId, name string) {
	copy(id.Name[:len(id.Name)-1], name)
}

// wrapErrno marks errors that mean the card went away.
func wrapErrno(err error) error {
	if errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EBADFD) {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	return err
}

// cString converts a C-style null-terminated byte array to a Go string.
func cString(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i == -1 {
		return string(b)
	}

	return string(b[:i])
}
