package alsa

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrCardNotFound is returned by FindCard when no card matches.
var ErrCardNotFound = errors.New("sound card not found")

// procRoot is where the asound proc files live.
var procRoot = "/proc/asound"

var (
	cardRegex = regexp.MustCompile(`^\s*(\d+)\s+\[\s*([^]]*?)\s*\]:\s*(.*)`)
	// "02-00: Loopback PCM : Loopback PCM : playback 8 : capture 8"
	pcmRegex = regexp.MustCompile(`^(\d+)-(\d+): (.*?) : (.*)$`)
)

// SoundCardDevice represents a single PCM device on a sound card.
type SoundCardDevice struct {
	ID          int
	Name        string
	Description string
	IsPlayback  bool // True for playback, false for capture
}

// String returns a human-readable representation of the SoundCardDevice.
func (d SoundCardDevice) String() string {
	direction := "Capture"
	if d.IsPlayback {
		direction = "Playback"
	}

	return fmt.Sprintf("  Device %d: %s (%s) [%s]", d.ID, d.Name, d.Description, direction)
}

// SoundCard represents an enumerated sound card with its devices.
type SoundCard struct {
	ID          int
	Name        string
	Description string
	Devices     []SoundCardDevice
}

// String returns a human-readable representation of the SoundCard.
func (c SoundCard) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Card %d: %s (%s)\n", c.ID, c.Name, c.Description))
	for _, dev := range c.Devices {
		sb.WriteString(dev.String() + "\n")
	}

	return sb.String()
}

// HasPlayback reports whether the card exposes the given playback device.
func (c SoundCard) HasPlayback(device int) bool {
	for _, dev := range c.Devices {
		if dev.IsPlayback && dev.ID == device {
			return true
		}
	}

	return false
}

// EnumerateCards scans /proc/asound to find all available sound cards and their PCM devices.
func EnumerateCards() ([]SoundCard, error) {
	return enumerateCards(procRoot)
}

// FindCard returns the card whose id or description matches name, case-insensitively.
// An empty name selects the first card.
func FindCard(name string) (SoundCard, error) {
	cards, err := EnumerateCards()
	if err != nil {
		return SoundCard{}, err
	}

	return findCard(cards, name)
}

func findCard(cards []SoundCard, name string) (SoundCard, error) {
	if len(cards) == 0 {
		return SoundCard{}, ErrCardNotFound
	}

	if name == "" {
		return cards[0], nil
	}

	for _, card := range cards {
		if strings.EqualFold(card.Name, name) {
			return card, nil
		}
	}

	lower := strings.ToLower(name)
	for _, card := range cards {
		if strings.Contains(strings.ToLower(card.Description), lower) {
			return card, nil
		}
	}

	return SoundCard{}, fmt.Errorf("%w: %s", ErrCardNotFound, name)
}

func enumerateCards(root string) ([]SoundCard, error) {
	data, err := os.ReadFile(filepath.Join(root, "cards"))
	if err != nil {
		return nil, fmt.Errorf("could not list sound cards: %w", err)
	}

	cards := parseCards(string(data))

	// Cards without PCM devices have no pcm file.
	data, err = os.ReadFile(filepath.Join(root, "pcm"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not list PCM devices: %w", err)
	}

	byID := make(map[int]*SoundCard, len(cards))
	for i := range cards {
		byID[cards[i].ID] = &cards[i]
	}

	for _, line := range strings.Split(string(data), "\n") {
		card, dev, ok := parsePCM(line)
		if !ok || byID[card] == nil {
			continue
		}

		byID[card].Devices = append(byID[card].Devices, dev...)
	}

	return cards, nil
}

// parseCards parses /proc/asound/cards. Continuation lines are skipped.
func parseCards(data string) []SoundCard {
	var cards []SoundCard

	for _, line := range strings.Split(data, "\n") {
		m := cardRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		cards = append(cards, SoundCard{ID: id, Name: m[2], Description: strings.TrimSpace(m[3])})
	}

	slices.SortFunc(cards, func(a, b SoundCard) int { return cmp.Compare(a.ID, b.ID) })

	return cards
}

// parsePCM parses one line of /proc/asound/pcm into a device per stream direction.
func parsePCM(line string) (card int, devices []SoundCardDevice, ok bool) {
	m := pcmRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, nil, false
	}

	card, _ = strconv.Atoi(m[1])
	id, _ := strconv.Atoi(m[2])
	description := strings.TrimSpace(m[3])

	_, streams, _ := strings.Cut(m[4], " : ")

	for _, dir := range []string{"playback", "capture"} {
		if !strings.Contains(streams, dir) {
			continue
		}

		devices = append(devices, SoundCardDevice{
			ID:          id,
			Name:        fmt.Sprintf("pcm%d%c", id, dir[0]),
			Description: description,
			IsPlayback:  dir == "playback",
		})
	}

	return card, devices, true
}
