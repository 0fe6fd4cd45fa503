// Package tui renders a resolution session as a live list of segments.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reelscout/internal/event"
	"reelscout/internal/scrape"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// SnapshotMsg carries a new session state.
type SnapshotMsg scrape.Snapshot

// DoneMsg ends the view.
type DoneMsg struct{}

// Model is the bubbletea model of the progress view.
type Model struct {
	title     string
	spinner   spinner.Model
	snap      scrape.Snapshot
	done      bool
	cancelled bool
}

// NewModel returns a model showing title above the segments.
func NewModel(title string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{title: title, spinner: s}
}

// Cancelled reports whether the user quit the view.
func (m Model) Cancelled() bool { return m.cancelled }

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = scrape.Snapshot(msg)
		return m, nil
	case DoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.cancelled = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	for _, seg := range m.snap.Ordered() {
		indent := ""
		if seg.EmbedID != "" {
			indent = "  "
		}
		fmt.Fprintf(&b, "%s%s %s\n", indent, m.icon(seg.Status), m.line(seg))
	}
	return b.String()
}

func (m Model) icon(s event.Status) string {
	switch s {
	case event.Pending:
		if m.done {
			return "•"
		}
		return m.spinner.View()
	case event.Success:
		return successStyle.Render("✓")
	case event.Failure:
		return failureStyle.Render("✗")
	case event.NotFound:
		return faintStyle.Render("–")
	default:
		return faintStyle.Render("·")
	}
}

func (m Model) line(seg scrape.Segment) string {
	switch seg.Status {
	case event.Pending:
		if seg.Percentage > 0 {
			return fmt.Sprintf("%s %d%%", seg.Name, seg.Percentage)
		}
		return seg.Name
	case event.Failure:
		reason := seg.Reason
		if seg.Error != "" {
			reason = seg.Error
		}
		if reason == "" {
			return seg.Name
		}
		return seg.Name + " " + faintStyle.Render("("+reason+")")
	case event.Waiting, event.NotFound:
		return faintStyle.Render(seg.Name)
	default:
		return seg.Name
	}
}
