// Package media defines shared types for the reelscout application.
package media

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind represents whether content is a movie or a show.
type Kind int

const (
	Movie Kind = iota
	Show
)

func (k Kind) String() string {
	switch k {
	case Movie:
		return "movie"
	case Show:
		return "show"
	default:
		return "unknown"
	}
}

// ParseKind parses "movie", "show" (or "tv") into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return Movie, nil
	case "show", "tv", "series":
		return Show, nil
	default:
		return Movie, errors.Errorf("unknown media kind %q", s)
	}
}

// ErrInvalidDescriptor is returned by Descriptor.Validate.
var ErrInvalidDescriptor = errors.New("invalid media descriptor")

// Ref identifies a season or an episode.
type Ref struct {
	Number int    `json:"number"`
	ID     string `json:"id"`
}

// Descriptor identifies what to resolve. It is treated as immutable for the
// duration of a resolution attempt.
type Descriptor struct {
	Kind        Kind   `json:"-"`
	ExternalID  string `json:"externalId"` // Catalog id (e.g. TMDB)
	IMDbID      string `json:"imdbId,omitempty"`
	Title       string `json:"title"`
	ReleaseYear int    `json:"releaseYear,omitempty"`
	Season      *Ref   `json:"season,omitempty"`  // Show only
	Episode     *Ref   `json:"episode,omitempty"` // Show only
}

// Validate checks the descriptor carries what its kind requires.
func (d Descriptor) Validate() error {
	if d.ExternalID == "" {
		return errors.Wrap(ErrInvalidDescriptor, "external id is empty")
	}
	if d.Kind == Show {
		if d.Season == nil || d.Episode == nil {
			return errors.Wrap(ErrInvalidDescriptor, "show requires a season and an episode")
		}
		if d.Season.ID == "" || d.Episode.ID == "" {
			return errors.Wrap(ErrInvalidDescriptor, "season and episode ids are required")
		}
	}
	return nil
}

// Key derives the stable MediaKey of the descriptor.
func (d Descriptor) Key() Key {
	if d.Kind == Show && d.Season != nil && d.Episode != nil {
		return Key(fmt.Sprintf("show-%s-%s-%s", d.ExternalID, d.Season.ID, d.Episode.ID))
	}
	return Key("movie-" + d.ExternalID)
}

// DisplayTitle formats the descriptor for humans.
func (d Descriptor) DisplayTitle() string {
	title := d.Title
	if title == "" {
		title = d.ExternalID
	}
	if d.Kind == Show && d.Season != nil && d.Episode != nil {
		return fmt.Sprintf("%s S%02dE%02d", title, d.Season.Number, d.Episode.Number)
	}
	if d.ReleaseYear > 0 {
		return fmt.Sprintf("%s (%d)", title, d.ReleaseYear)
	}
	return title
}

// Key uniquely identifies a movie or a specific episode. It indexes failure
// memory and the last successful source.
type Key string

func (k Key) String() string { return string(k) }

// SourceDescriptor describes a source or an embed known to the system.
type SourceDescriptor struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Rank            int    `json:"rank"`
	DiscoversEmbeds bool   `json:"discoversEmbeds"` // Source can surface nested embeds
	Custom          bool   `json:"custom"`          // In-process adapter with bespoke scraping
}
