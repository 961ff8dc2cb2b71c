package tui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

const listWidth = 36

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2).Bold(true).Foreground(lipgloss.Color("#FFFDF5"))
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)

	selectedTitleStyle = lipgloss.NewStyle().
				Width(listWidth - 6).
				Foreground(lipgloss.Color("#FFFDF5")).
				Background(lipgloss.Color("62"))
	normalTitleStyle = lipgloss.NewStyle().
				Width(listWidth - 6).
				Foreground(lipgloss.Color("#FFFDF5"))
	normalDescStyle = lipgloss.NewStyle().
			Width(listWidth - 6).
			Foreground(lipgloss.Color("#AFAFAF"))
	selectedDescStyle = normalDescStyle.Background(lipgloss.Color("62"))

	pane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))
	focusedPane = pane.BorderForeground(lipgloss.Color("62"))

	noSelectionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Align(lipgloss.Center).
				PaddingTop(2)

	selfStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	peerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("238")).Padding(0, 1)

	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")).Padding(0, 1)
	onlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	noticeColours = map[string]lipgloss.Color{
		"error":   lipgloss.Color("196"),
		"success": lipgloss.Color("42"),
		"warning": lipgloss.Color("214"),
	}
)

func noticeColour(tipo string) lipgloss.Color {
	if c, ok := noticeColours[tipo]; ok {
		return c
	}
	return lipgloss.Color("39")
}
