package scrape

import (
	"github.com/samber/lo"

	"reelscout/internal/event"
	"reelscout/internal/media"
)

// Segment is one attempted, or attemptable, source or embed of a session.
type Segment struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	EmbedID    string       `json:"embedId,omitempty"` // Set for embeds found under a source
	Status     event.Status `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Error      string       `json:"error,omitempty"`
	Percentage int          `json:"percentage"`
}

// OrderNode keeps attempt order and the embeds found under a source.
type OrderNode struct {
	ID       string   `json:"id"`
	Children []string `json:"children"`
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	SessionID string
	Media     media.Descriptor
	Current   string // The pending segment, if any
	Segments  map[string]Segment
	Order     []OrderNode
}

// Segment returns the segment with the given id.
func (s Snapshot) Segment(id string) (Segment, bool) {
	seg, ok := s.Segments[id]
	return seg, ok
}

// Ordered returns the segments in tree order: each source followed by its
// embeds.
func (s Snapshot) Ordered() []Segment {
	var out []Segment
	for _, node := range s.Order {
		if seg, ok := s.Segments[node.ID]; ok {
			out = append(out, seg)
		}
		for _, child := range node.Children {
			if seg, ok := s.Segments[child]; ok {
				out = append(out, seg)
			}
		}
	}
	return out
}

// ReportLine is one row of the diagnostic dump.
type ReportLine struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status event.Status `json:"status"`
	Reason string       `json:"reason,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Report returns the diagnostic dump of every segment in tree order.
func (s Snapshot) Report() []ReportLine {
	return lo.Map(s.Ordered(), func(seg Segment, _ int) ReportLine {
		return ReportLine{ID: seg.ID, Name: seg.Name, Status: seg.Status, Reason: seg.Reason, Error: seg.Error}
	})
}

// session is the mutable state of one Run. It is only touched by the
// orchestrator while holding its lock.
type session struct {
	id       string
	media    media.Descriptor
	current  string
	segments map[string]*Segment
	order    []OrderNode
	names    map[string]string
}

func newSession(id string, d media.Descriptor) *session {
	return &session{
		id:       id,
		media:    d,
		segments: make(map[string]*Segment),
		names:    make(map[string]string),
	}
}

// learn records display names resolved outside the orchestrator lock.
func (s *session) learn(names map[string]string) {
	for id, name := range names {
		s.names[id] = name
	}
}

func (s *session) name(id string) string {
	if name, ok := s.names[id]; ok {
		return name
	}
	return id
}

// add creates a waiting top-level segment unless id is already known.
func (s *session) add(id string) {
	if _, ok := s.segments[id]; !ok {
		s.segments[id] = &Segment{ID: id, Name: s.name(id), Status: event.Waiting}
	}
	if !lo.ContainsBy(s.order, func(n OrderNode) bool { return n.ID == id }) {
		s.order = append(s.order, OrderNode{ID: id})
	}
}

// segment returns the segment, creating it as a top-level entry when an
// event names an id the session has not seen.
func (s *session) segment(id string) *Segment {
	if seg, ok := s.segments[id]; ok {
		return seg
	}
	s.add(id)
	return s.segments[id]
}

// init merges the declared catalog sources. Known segments keep their state.
func (s *session) init(e event.Init) {
	for _, id := range e.SourceIDs {
		s.add(id)
	}
}

// start marks id pending. A previously started segment that is still
// pending is taken as finished successfully: the backend only moves on
// from a source once it is done with it.
func (s *session) start(id string) {
	if s.current != "" && s.current != id {
		if prev, ok := s.segments[s.current]; ok && prev.Status == event.Pending {
			prev.Status = event.Success
		}
	}
	seg := s.segment(id)
	seg.Status = event.Pending
	s.current = id
}

// update applies e verbatim.
func (s *session) update(e event.Update) {
	seg := s.segment(e.ID)
	seg.Status = e.Status
	seg.Reason = e.Reason
	seg.Error = e.Error
	seg.Percentage = e.Percentage
}

// discover adds waiting embed segments as children of their source.
func (s *session) discover(e event.DiscoverEmbeds) {
	s.segment(e.SourceID)
	idx := lo.IndexOf(lo.Map(s.order, func(n OrderNode, _ int) string { return n.ID }), e.SourceID)
	if idx == -1 {
		s.order = append(s.order, OrderNode{ID: e.SourceID})
		idx = len(s.order) - 1
	}
	node := &s.order[idx]
	for _, ref := range e.Embeds {
		if _, ok := s.segments[ref.ID]; !ok {
			s.segments[ref.ID] = &Segment{
				ID:      ref.ID,
				Name:    s.name(ref.EmbedScraperID),
				EmbedID: ref.EmbedScraperID,
				Status:  event.Waiting,
			}
		}
		if !lo.Contains(node.Children, ref.ID) {
			node.Children = append(node.Children, ref.ID)
		}
	}
}

// succeed marks the current segment, and the source owning it when it is an
// embed, successful if still pending.
func (s *session) succeed() {
	seg, ok := s.segments[s.current]
	if !ok {
		return
	}
	if seg.Status == event.Pending {
		seg.Status = event.Success
		seg.Percentage = 100
	}
	if seg.EmbedID == "" {
		return
	}
	for _, node := range s.order {
		if lo.Contains(node.Children, seg.ID) {
			if parent, ok := s.segments[node.ID]; ok && parent.Status == event.Pending {
				parent.Status = event.Success
			}
		}
	}
}

// fail marks the current segment failed with err.
func (s *session) fail(err error) {
	seg, ok := s.segments[s.current]
	if !ok {
		return
	}
	seg.Status = event.Failure
	seg.Reason = "stream rejected"
	seg.Error = err.Error()
	seg.Percentage = 100
}

// exhaust closes out the session after no output: nothing stays pending or
// waiting.
func (s *session) exhaust() {
	for _, seg := range s.segments {
		switch seg.Status {
		case event.Pending:
			seg.Status = event.Failure
		case event.Waiting:
			seg.Status = event.NotFound
		}
	}
	s.current = ""
}

func (s *session) snapshot() Snapshot {
	segs := make(map[string]Segment, len(s.segments))
	for id, seg := range s.segments {
		segs[id] = *seg
	}
	order := make([]OrderNode, len(s.order))
	for i, n := range s.order {
		order[i] = OrderNode{ID: n.ID, Children: append([]string{}, n.Children...)}
	}
	return Snapshot{
		SessionID: s.id,
		Media:     s.media,
		Current:   s.current,
		Segments:  segs,
		Order:     order,
	}
}
