package tui

import (
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"reelscout/internal/event"
	"reelscout/internal/scrape"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Progress runs the view in the background and follows a session.
type Progress struct {
	program *tea.Program
	done    chan struct{}
}

var _ scrape.Observer = (*Progress)(nil)

// Start shows the view for title on out. onCancel runs when the user quits
// the view before Stop.
func Start(title string, out io.Writer, onCancel func()) *Progress {
	p := &Progress{
		program: tea.NewProgram(NewModel(title), tea.WithOutput(out)),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		m, err := p.program.Run()
		if err != nil {
			log.WithError(err).Debug("progress view failed")
			return
		}
		if final, ok := m.(Model); ok && final.Cancelled() && onCancel != nil {
			onCancel()
		}
	}()
	return p
}

// SessionChanged forwards the snapshot to the view.
func (p *Progress) SessionChanged(s scrape.Snapshot) {
	p.program.Send(SnapshotMsg(s))
}

// Stop closes the view, leaving its last frame on screen.
func (p *Progress) Stop() {
	p.program.Send(DoneMsg{})
	<-p.done
}

// LogObserver reports segment transitions through the logger, for when
// no terminal is attached. Failed segments are logged as warnings.
type LogObserver struct {
	mu   sync.Mutex
	seen map[string]event.Status
}

// NewLogObserver creates a LogObserver.
func NewLogObserver() *LogObserver {
	return &LogObserver{seen: make(map[string]event.Status)}
}

func (l *LogObserver) SessionChanged(s scrape.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, seg := range s.Ordered() {
		key := s.SessionID + "/" + seg.ID
		if l.seen[key] == seg.Status {
			continue
		}
		l.seen[key] = seg.Status
		if seg.Status == event.Waiting {
			continue
		}
		entry := log.WithFields(log.Fields{"segment": seg.Name, "status": seg.Status})
		if seg.Reason != "" {
			entry = entry.WithField("reason", seg.Reason)
		}
		if seg.Error != "" {
			entry = entry.WithField("error", seg.Error)
		}
		if seg.Status.Failed() {
			entry.Warn("segment failed")
			continue
		}
		entry.Info("scrape progress")
	}
}
