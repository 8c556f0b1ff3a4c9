package watchtui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the watch view until the user quits.
func Run(src Source, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	_, err := tea.NewProgram(NewModel(src, interval), tea.WithAltScreen()).Run()
	return err
}
