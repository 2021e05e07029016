package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const requestTimeout = 10 * time.Second

// pollStatus fetches the watched production, or the newest one when no id
// is pinned yet.
func pollStatus(client *Client, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if id == "" {
			snap, err := client.Latest(ctx)
			return StatusUpdateMsg{Snapshot: snap, Err: err}
		}
		snap, err := client.Production(ctx, id)
		return StatusUpdateMsg{Snapshot: snap, Err: err}
	}
}

func createProduction(client *Client, url, tone string, duration int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		id, err := client.Create(ctx, url, tone, duration)
		return ActionMsg{Action: "create", ID: id, Err: err}
	}
}

func produceAudio(client *Client, id, voice, track string) tea.Cmd {
	return func() tea.Msg {
		// speech synthesis runs inside the request
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return ActionMsg{Action: "audio", ID: id, Err: client.ProduceAudio(ctx, id, voice, track)}
	}
}

func startRender(client *Client, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return ActionMsg{Action: "render", ID: id, Err: client.Render(ctx, id)}
	}
}

// tickCmd ticks every 500ms for polling
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
