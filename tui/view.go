package tui

import (
	"fmt"
	"math"
	"strings"

	"clipfarm/production"
	"clipfarm/video"
)

const (
	progressWidth = 30
	maxViewLogs   = 8
)

// View implements tea.Model interface
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("🎬 Clipfarm Production Monitor"))
	b.WriteString("\n\n")

	b.WriteString(m.stateText())
	b.WriteString("\n\n")

	if s := m.Snapshot; s != nil {
		if s.Script != nil {
			b.WriteString(InfoStyle.Render(fmt.Sprintf("📦 %s  (%d scenes, %s)", s.Script.Title, len(s.Script.Segments), s.Params.Tone)))
			b.WriteString("\n")
		}
		if missing := countMissing(s.Segments); missing > 0 {
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("   %d scene image(s) missing", missing)))
			b.WriteString("\n")
		}
		if s.HasAudio {
			b.WriteString(InfoStyle.Render(fmt.Sprintf("🔊 Soundtrack %.1fs, track %s", s.AudioSeconds, s.Mix.BackgroundTrackID)))
			b.WriteString("\n")
		}
		if s.Render != nil {
			b.WriteString(renderLine(s.Render))
			b.WriteString("\n")
		}
		if s.VideoURL != "" {
			b.WriteString(StatusStyle.Render("📁 " + s.VideoURL))
			b.WriteString("\n")
		}
		if s.PublishedURL != "" {
			b.WriteString(StatusStyle.Render("🌐 " + s.PublishedURL))
			b.WriteString("\n")
		}
		b.WriteString("\n")

		if logs := tail(s.Logs, maxViewLogs); len(logs) > 0 {
			b.WriteString(InfoStyle.Render("📝 Recent Activity:"))
			b.WriteString("\n")
			for _, l := range logs {
				b.WriteString(InfoStyle.Render(fmt.Sprintf("   %s %s", l.Timestamp.Format("15:04:05"), l.Message)))
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	if m.Err != nil {
		b.WriteString(ErrorStyle.Render("❌ " + m.Err.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(InfoStyle.Render(m.footer()))
	return b.String()
}

func (m Model) stateText() string {
	if !m.Connected {
		return ErrorStyle.Render("❌ Not connected to the production API")
	}
	if m.Pending != "" {
		return StatusStyle.Render(fmt.Sprintf("⏳ Requesting %s...", m.Pending))
	}
	switch m.stage() {
	case "":
		return HighlightStyle.Render("👋 Waiting for a production")
	case production.StageScripting:
		return StatusStyle.Render("✍️  Writing the script...")
	case production.StageImaging:
		return StatusStyle.Render("🖼  Generating scene images...")
	case production.StageReady:
		return HighlightStyle.Render("✅ Script ready")
	case production.StageVoicing:
		return StatusStyle.Render("🎙  Voicing and mixing...")
	case production.StageRendering:
		return StatusStyle.Render("🎞  Rendering video...")
	case production.StageComplete:
		return HighlightStyle.Render("✅ COMPLETE")
	case production.StageFailed:
		msg := "unknown error"
		if m.Snapshot.Error != "" {
			msg = m.Snapshot.Error
		}
		return ErrorStyle.Render("❌ Failed: " + msg)
	}
	return string(m.stage())
}

func (m Model) footer() string {
	keys := []string{"'q' quit"}
	if m.stage() == production.StageReady && m.Pending == "" {
		keys = append([]string{"'a' produce audio"}, keys...)
	}
	if m.Snapshot != nil && m.Snapshot.HasAudio && m.Pending == "" {
		keys = append([]string{"'r' render"}, keys...)
	}
	return "Press " + strings.Join(keys, " | ")
}

func renderLine(st *video.Status) string {
	line := fmt.Sprintf("%s %5.1f%% %s (%d frames)", progressBar(st.Progress, progressWidth), st.Progress, st.State, st.Frames)
	if st.State == video.StateFailed {
		return ErrorStyle.Render(line + ": " + st.Error)
	}
	return StatusStyle.Render(line)
}

// progressBar draws pct (0 to 100) as a bar of width cells.
func progressBar(pct float64, width int) string {
	if math.IsNaN(pct) || pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(math.Round(pct / 100 * float64(width)))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func countMissing(segs []production.SegmentStatus) int {
	n := 0
	for _, s := range segs {
		if s.Error != "" {
			n++
		}
	}
	return n
}

func tail(logs []production.LogEntry, n int) []production.LogEntry {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}
