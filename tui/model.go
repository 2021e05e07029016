package tui

import (
	"clipfarm/production"

	tea "github.com/charmbracelet/bubbletea"
)

// Options seed the monitor.
type Options struct {
	BaseURL string
	// ID pins a production; empty follows the newest one
	ID string
	// URL starts a new production on launch when set
	URL      string
	Tone     string
	Duration int
	Voice    string
	Track    string
}

// Model is the monitor state. It only mirrors what the server reports.
type Model struct {
	Client *Client
	opts   Options

	ID        string
	Snapshot  *production.Snapshot
	Connected bool
	Pending   string
	Err       error
}

func NewModel(opts Options) Model {
	if opts.Track == "" {
		opts.Track = "auto"
	}
	return Model{
		Client: NewClient(opts.BaseURL),
		opts:   opts,
		ID:     opts.ID,
	}
}

// Init implements tea.Model interface
func (m Model) Init() tea.Cmd {
	if m.opts.URL != "" && m.ID == "" {
		return tea.Batch(createProduction(m.Client, m.opts.URL, m.opts.Tone, m.opts.Duration), tickCmd())
	}
	return tea.Batch(pollStatus(m.Client, m.ID), tickCmd())
}

// stage is the watched production's stage, empty when unknown.
func (m Model) stage() production.Stage {
	if m.Snapshot == nil {
		return ""
	}
	return m.Snapshot.Stage
}
