package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent  = "#E4572E"
	colorSuccess = "#04B575"
	colorError   = "#FF4F4F"
	colorMuted   = "#7A7A7A"
	colorLight   = "#FAFAFA"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorAccent)).
			MarginTop(1)

	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorSuccess))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorError))

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	HighlightStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorLight)).
			Background(lipgloss.Color(colorAccent)).
			Padding(0, 1)
)
