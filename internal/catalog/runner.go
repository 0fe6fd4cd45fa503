package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/event"
	"reelscout/internal/media"
)

// RunAll walks the sources in in.SourceOrder (every registered source when
// empty) one at a time and returns the first stream found, reporting each
// step through in.Events. Embeds discovered by a source are tried in
// in.EmbedOrder; when that order is non-empty, embeds missing from it are
// skipped. It returns nil when every source failed. The only error is a
// cancelled context.
func (r *Registry) RunAll(ctx context.Context, in event.RunInput) (*media.RunOutput, error) {
	sources := r.orderedSources(in.SourceOrder)
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.Info().ID)
	}
	ev := in.Events
	ev.Init(event.Init{SourceIDs: ids})

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := src.Info().ID
		ev.Start(id)

		out, err := scrapeSource(ctx, src, r.progressContext(ev, id), in.Media)
		if err != nil {
			ev.Update(failedUpdate(id, err))
			continue
		}
		if out == nil {
			ev.Update(event.Update{ID: id, Status: event.NotFound, Reason: "source returned nothing", Percentage: 100})
			continue
		}
		if !out.Stream.Empty() {
			ev.Update(event.Update{ID: id, Status: event.Success, Percentage: 100})
			return &media.RunOutput{Stream: out.Stream, SourceID: id}, nil
		}

		embeds := r.orderedEmbeds(out.Embeds, in.EmbedOrder)
		if len(embeds) == 0 {
			ev.Update(event.Update{ID: id, Status: event.NotFound, Reason: "no usable embeds found", Percentage: 100})
			continue
		}

		refs := make([]event.EmbedRef, len(embeds))
		for i, e := range embeds {
			refs[i] = event.EmbedRef{ID: embedSegmentID(id, i), EmbedScraperID: e.EmbedID}
		}
		ev.DiscoverEmbeds(event.DiscoverEmbeds{SourceID: id, Embeds: refs})

		for i, ref := range embeds {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			segID := embedSegmentID(id, i)
			ev.Start(segID)

			embed, _ := r.Embed(ref.EmbedID)
			stream, err := scrapeEmbed(ctx, embed, r.progressContext(ev, segID), ref.URL)
			if err != nil {
				ev.Update(failedUpdate(segID, err))
				continue
			}
			if stream.Empty() {
				ev.Update(event.Update{ID: segID, Status: event.NotFound, Reason: "embed returned no stream", Percentage: 100})
				continue
			}
			ev.Update(event.Update{ID: segID, Status: event.Success, Percentage: 100})
			return &media.RunOutput{Stream: stream, SourceID: id, EmbedID: ref.EmbedID}, nil
		}
	}

	return nil, nil
}

func (r *Registry) progressContext(ev event.Handler, id string) *Context {
	return NewContext(func(pct int) {
		ev.Update(event.Update{ID: id, Status: event.Pending, Percentage: pct})
	})
}

// orderedSources resolves order to registered sources, dropping unknown ids.
func (r *Registry) orderedSources(order []string) []Source {
	if len(order) == 0 {
		return append([]Source(nil), r.sources...)
	}
	out := make([]Source, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		s, ok := r.Source(id)
		if !ok || seen[id] {
			if !ok {
				log.WithField("source", id).Debug("unknown source in order")
			}
			continue
		}
		seen[id] = true
		out = append(out, s)
	}
	return out
}

// orderedEmbeds keeps the registered embeds of refs, sorted by order.
func (r *Registry) orderedEmbeds(refs []EmbedRef, order []string) []EmbedRef {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	out := make([]EmbedRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := r.Embed(ref.EmbedID); !ok {
			continue
		}
		if len(order) > 0 {
			if _, ok := pos[ref.EmbedID]; !ok {
				continue
			}
		}
		out = append(out, ref)
	}
	if len(order) > 0 {
		sort.SliceStable(out, func(i, j int) bool { return pos[out[i].EmbedID] < pos[out[j].EmbedID] })
	}
	return out
}

func scrapeSource(ctx context.Context, s Source, sc *Context, d media.Descriptor) (out *SourceOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, errors.Errorf("source panicked: %v", rec)
		}
	}()
	return s.Scrape(ctx, sc, d)
}

func scrapeEmbed(ctx context.Context, e Embed, sc *Context, url string) (stream *media.StreamResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stream, err = nil, errors.Errorf("embed panicked: %v", rec)
		}
	}()
	return e.Scrape(ctx, sc, url)
}

func embedSegmentID(sourceID string, index int) string {
	return fmt.Sprintf("%s-%d", sourceID, index)
}

func failedUpdate(id string, err error) event.Update {
	if errors.Is(err, ErrNotFound) {
		return event.Update{ID: id, Status: event.NotFound, Reason: err.Error(), Percentage: 100}
	}
	return event.Update{ID: id, Status: event.Failure, Reason: "scrape failed", Error: err.Error(), Percentage: 100}
}
