package tui

import (
	"fmt"

	"clipfarm/production"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model interface
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case TickMsg:
		return m, tea.Batch(pollStatus(m.Client, m.ID), tickCmd())
	case StatusUpdateMsg:
		return m.handleStatus(msg)
	case ActionMsg:
		return m.handleAction(msg)
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "a", "A":
		if m.ID != "" && m.Pending == "" && m.stage() == production.StageReady {
			m.Pending = "audio"
			return m, produceAudio(m.Client, m.ID, m.opts.Voice, m.opts.Track)
		}
	case "r", "R":
		if m.ID != "" && m.Pending == "" && m.Snapshot != nil && m.Snapshot.HasAudio {
			m.Pending = "render"
			return m, startRender(m.Client, m.ID)
		}
	}
	return m, nil
}

func (m Model) handleStatus(msg StatusUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.Connected = false
		m.Err = msg.Err
		return m, nil
	}
	m.Connected = true
	m.Err = nil
	if msg.Snapshot == nil {
		return m, nil
	}
	if m.ID == "" {
		m.ID = msg.Snapshot.ID
	}
	if msg.Snapshot.ID == m.ID {
		m.Snapshot = msg.Snapshot
	}
	return m, nil
}

func (m Model) handleAction(msg ActionMsg) (tea.Model, tea.Cmd) {
	m.Pending = ""
	if msg.Err != nil {
		m.Err = fmt.Errorf("%s failed: %w", msg.Action, msg.Err)
		return m, nil
	}
	m.Err = nil
	if msg.Action == "create" {
		m.ID = msg.ID
		m.Snapshot = nil
	}
	return m, pollStatus(m.Client, m.ID)
}
