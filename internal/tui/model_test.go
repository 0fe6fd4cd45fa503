package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"reelscout/internal/event"
	"reelscout/internal/scrape"
)

func snapshot() scrape.Snapshot {
	return scrape.Snapshot{
		SessionID: "s1",
		Segments: map[string]scrape.Segment{
			"dlhub":    {ID: "dlhub", Name: "DLHub", Status: event.Failure, Reason: "no result"},
			"flixhq":   {ID: "flixhq", Name: "FlixHQ", Status: event.Success},
			"flixhq-0": {ID: "flixhq-0", Name: "VidCloud", EmbedID: "vidcloud", Status: event.Pending, Percentage: 60},
			"addon":    {ID: "addon", Name: "Community", Status: event.Waiting},
		},
		Order: []scrape.OrderNode{
			{ID: "dlhub"},
			{ID: "flixhq", Children: []string{"flixhq-0"}},
			{ID: "addon"},
		},
	}
}

func TestViewRendersSegmentsInTreeOrder(t *testing.T) {
	m, _ := NewModel("The Matrix (1999)").Update(SnapshotMsg(snapshot()))
	view := m.View()

	lines := strings.Split(strings.TrimSpace(view), "\n")
	if len(lines) != 5 {
		t.Fatalf("view has %d lines:\n%s", len(lines), view)
	}
	checks := []string{"The Matrix (1999)", "DLHub", "FlixHQ", "VidCloud 60%", "Community"}
	for i, want := range checks {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
	if !strings.HasPrefix(lines[3], "  ") {
		t.Errorf("embed line should be indented: %q", lines[3])
	}
	if !strings.Contains(lines[1], "no result") {
		t.Errorf("failure reason missing: %q", lines[1])
	}
}

func TestUpdateQuits(t *testing.T) {
	m, cmd := NewModel("x").Update(DoneMsg{})
	if cmd == nil || m.(Model).Cancelled() {
		t.Error("done should quit without cancelling")
	}

	m, cmd = NewModel("x").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil || !m.(Model).Cancelled() {
		t.Error("ctrl+c should cancel")
	}
}

func TestLogObserverReportsChangesOnce(t *testing.T) {
	l := NewLogObserver()
	s := snapshot()
	l.SessionChanged(s)
	l.SessionChanged(s)
	if got := l.seen["s1/flixhq-0"]; got != event.Pending {
		t.Errorf("seen = %v", got)
	}
	if len(l.seen) != 4 {
		t.Errorf("seen %d segments, want 4", len(l.seen))
	}
}

func TestLogObserverWarnsOnFailedSegments(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	NewLogObserver().SessionChanged(snapshot())

	var warned, info []string
	for _, e := range hook.AllEntries() {
		switch e.Level {
		case log.WarnLevel:
			warned = append(warned, e.Data["segment"].(string))
		case log.InfoLevel:
			info = append(info, e.Data["segment"].(string))
		}
	}
	if len(warned) != 1 || warned[0] != "DLHub" {
		t.Errorf("warned = %v, want [DLHub]", warned)
	}
	if len(info) != 2 {
		t.Errorf("info = %v, want FlixHQ and VidCloud", info)
	}
}
