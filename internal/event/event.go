// Package event defines the progress events emitted while a bulk scrape
// walks its sources, shared by the local runner, the resolver server and
// the remote channel client.
package event

// Status is the lifecycle state of a scrape segment.
type Status string

const (
	Waiting  Status = "waiting"
	Pending  Status = "pending"
	Success  Status = "success"
	Failure  Status = "failure"
	NotFound Status = "notfound"
)

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == Success || s == Failure || s == NotFound
}

// Failed reports whether the segment ended without a result.
func (s Status) Failed() bool {
	return s == Failure || s == NotFound
}

// Names of the wire events.
const (
	NameInit           = "init"
	NameStart          = "start"
	NameUpdate         = "update"
	NameDiscoverEmbeds = "discoverEmbeds"
	NameCompleted      = "completed"
	NameNoOutput       = "noOutput"
	NameError          = "error"
)

// Init declares the catalog sources the backend will attempt.
type Init struct {
	SourceIDs []string `json:"sourceIds"`
}

// Update refines the status of a segment.
type Update struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	Percentage int    `json:"percentage"`
}

// EmbedRef is an embed discovered under a source.
type EmbedRef struct {
	ID             string `json:"id"`
	EmbedScraperID string `json:"embedScraperId"`
}

// DiscoverEmbeds announces the embeds a source found.
type DiscoverEmbeds struct {
	SourceID string     `json:"sourceId"`
	Embeds   []EmbedRef `json:"embeds"`
}

// Start announces the backend began attempting a source or embed.
type Start struct {
	ID string `json:"id"`
}

// Handler carries the four progress callbacks. Nil callbacks are skipped.
type Handler struct {
	OnInit           func(Init)
	OnStart          func(id string)
	OnUpdate         func(Update)
	OnDiscoverEmbeds func(DiscoverEmbeds)
}

func (h Handler) Init(e Init) {
	if h.OnInit != nil {
		h.OnInit(e)
	}
}

func (h Handler) Start(id string) {
	if h.OnStart != nil {
		h.OnStart(id)
	}
}

func (h Handler) Update(e Update) {
	if h.OnUpdate != nil {
		h.OnUpdate(e)
	}
}

func (h Handler) DiscoverEmbeds(e DiscoverEmbeds) {
	if h.OnDiscoverEmbeds != nil {
		h.OnDiscoverEmbeds(e)
	}
}
