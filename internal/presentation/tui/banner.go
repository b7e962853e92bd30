package tui

import (
	"fmt"
	"io"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the bonsai banner to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  _                         _ ", "#4ade80"},
		{" | |__   ___  _ __  ___  __ _(_)", "#22c55e"},
		{" | '_ \\ / _ \\| '_ \\/ __|/ _` | |", "#16a34a"},
		{" | |_) | (_) | | | \\__ \\ (_| | |", "#15803d"},
		{" |_.__/ \\___/|_| |_|___/\\__,_|_|", "#166534"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}

// StatusLine renders the machine status with a colour per status.
func StatusLine(status domain.MachineStatus, active []string) string {
	p := termenv.ColorProfile()
	color := "#9ca3af"
	switch status {
	case domain.MachineRunning:
		color = "#22c55e"
	case domain.MachinePaused:
		color = "#eab308"
	case domain.MachineLoading:
		color = "#3b82f6"
	}
	s := termenv.String(string(status)).Foreground(p.Color(color)).Bold()
	return fmt.Sprintf("%s %v", s, active)
}
