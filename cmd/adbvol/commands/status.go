package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gen2brain/adbvol"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5555"))
)

// statusPrinter writes one line per controller status change.
// A quiet printer only writes errors.
type statusPrinter struct {
	w     io.Writer
	quiet bool
}

func newStatusPrinter(w io.Writer, quiet bool) *statusPrinter {
	return &statusPrinter{w: w, quiet: quiet}
}

func (p *statusPrinter) print(ev adbvol.StatusEvent) {
	if p.quiet && !isError(ev) {
		return
	}

	fmt.Fprintln(p.w, renderStatus(ev))
}

// isError reports whether ev is a failure the operator has to see: the bridge
// stopped, a change keeps failing, or the fix needs a hand on the device or host.
// Routine retries while the device is away are not.
func isError(ev adbvol.StatusEvent) bool {
	switch {
	case ev.Err == nil:
		return false
	case ev.Status == adbvol.StatusStopped, ev.Status == adbvol.StatusSyncing:
		return true
	}

	return hint(ev.Err) != ""
}

func renderStatus(ev adbvol.StatusEvent) string {
	var sb strings.Builder

	style := labelStyle
	switch {
	case ev.Status == adbvol.StatusStopped && ev.Err != nil:
		style = errorStyle
	case ev.Status == adbvol.StatusReconnecting:
		style = warnStyle
	}

	sb.WriteString(style.Render(fmt.Sprintf("%-12s", ev.Status)))

	if ev.Serial != "" {
		sb.WriteString(" " + ev.Serial)
		if ev.DeviceMax > 0 {
			sb.WriteString(dimStyle.Render(fmt.Sprintf(" [0..%d]", ev.DeviceMax)))
		}
	}

	if ev.Err != nil {
		sb.WriteString(" " + dimStyle.Render(ev.Err.Error()))

		if hint := hint(ev.Err); hint != "" {
			sb.WriteString("\n  " + warnStyle.Render(hint))
		}
	}

	return sb.String()
}

// hint returns operator guidance for errors that need action on the device or host.
func hint(err error) string {
	switch adbvol.Classify(err) {
	case adbvol.ClassAmbiguous:
		return "several devices are attached, select one with --serial"
	case adbvol.ClassHostRegistration:
		return "check that the sound card exists and that you may write its controls (audio group)"
	}

	if strings.Contains(err.Error(), "unauthorized") {
		return "accept the USB debugging prompt on the device"
	}

	return ""
}
