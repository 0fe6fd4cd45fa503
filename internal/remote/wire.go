// Package remote talks to a resolver over its event stream: it encodes a
// bulk run request as a query, decodes the server-sent events back into
// the four progress callbacks and caches the resolver's metadata.
package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"reelscout/internal/event"
	"reelscout/internal/media"
)

// Metadata is the resolver's catalog listing.
type Metadata struct {
	Sources []media.SourceDescriptor `json:"sources"`
	Embeds  []media.SourceDescriptor `json:"embeds"`
}

// Query encodes the media and the orders of in as the /scrape query.
func Query(in event.RunInput) url.Values {
	d := in.Media
	q := url.Values{}
	q.Set("type", d.Kind.String())
	q.Set("id", d.ExternalID)
	if d.IMDbID != "" {
		q.Set("imdbId", d.IMDbID)
	}
	if d.Title != "" {
		q.Set("title", d.Title)
	}
	if d.ReleaseYear > 0 {
		q.Set("releaseYear", strconv.Itoa(d.ReleaseYear))
	}
	if d.Kind == media.Show && d.Season != nil && d.Episode != nil {
		q.Set("seasonNumber", strconv.Itoa(d.Season.Number))
		q.Set("seasonId", d.Season.ID)
		q.Set("episodeNumber", strconv.Itoa(d.Episode.Number))
		q.Set("episodeId", d.Episode.ID)
	}
	if len(in.SourceOrder) > 0 {
		q.Set("sourceOrder", strings.Join(in.SourceOrder, ","))
	}
	if len(in.EmbedOrder) > 0 {
		q.Set("embedOrder", strings.Join(in.EmbedOrder, ","))
	}
	return q
}

// ParseQuery decodes a /scrape query into a run input without callbacks.
func ParseQuery(q url.Values) (event.RunInput, error) {
	kind, err := media.ParseKind(q.Get("type"))
	if err != nil {
		return event.RunInput{}, err
	}
	d := media.Descriptor{
		Kind:       kind,
		ExternalID: q.Get("id"),
		IMDbID:     q.Get("imdbId"),
		Title:      q.Get("title"),
	}
	if d.ReleaseYear, err = optionalInt(q, "releaseYear"); err != nil {
		return event.RunInput{}, err
	}
	if kind == media.Show {
		season, err := optionalInt(q, "seasonNumber")
		if err != nil {
			return event.RunInput{}, err
		}
		episode, err := optionalInt(q, "episodeNumber")
		if err != nil {
			return event.RunInput{}, err
		}
		d.Season = &media.Ref{Number: season, ID: q.Get("seasonId")}
		d.Episode = &media.Ref{Number: episode, ID: q.Get("episodeId")}
	}
	if err := d.Validate(); err != nil {
		return event.RunInput{}, err
	}
	return event.RunInput{
		Media:       d,
		SourceOrder: splitList(q.Get("sourceOrder")),
		EmbedOrder:  splitList(q.Get("embedOrder")),
	}, nil
}

func optionalInt(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("%s must be a number, got %q", name, v)
	}
	return n, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Compact(parts)
}

// WriteEvent writes one server-sent event frame with v encoded as JSON.
func WriteEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s event", name)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
