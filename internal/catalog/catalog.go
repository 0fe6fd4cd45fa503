// Package catalog holds the generic sources and embeds resolved by id
// through a registry, and the in-process runner that walks them.
package catalog

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"reelscout/internal/media"
)

// ErrNotFound signals that a source or embed was reachable but has nothing
// for the requested media.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with a reason.
func NotFound(reason string) error {
	return errors.Wrap(ErrNotFound, reason)
}

// Context is handed to every scrape and reports coarse progress.
type Context struct {
	progress func(pct int)
}

// NewContext returns a context forwarding progress to fn.
func NewContext(fn func(pct int)) *Context {
	return &Context{progress: fn}
}

// Progress reports pct percent (0-100) of work done.
func (c *Context) Progress(pct int) {
	if c == nil || c.progress == nil {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	c.progress(pct)
}

// EmbedRef is an embed a source found: which embed scraper should handle
// which URL.
type EmbedRef struct {
	EmbedID string
	URL     string
}

// SourceOutput is what a source yields: a stream, or embeds to try.
type SourceOutput struct {
	Stream *media.StreamResult
	Embeds []EmbedRef
}

// Source is a catalog provider scraped by id.
type Source interface {
	Info() media.SourceDescriptor
	Scrape(ctx context.Context, sc *Context, d media.Descriptor) (*SourceOutput, error)
}

// Embed is a secondary provider that turns an embed URL into a stream.
type Embed interface {
	Info() media.SourceDescriptor
	Scrape(ctx context.Context, sc *Context, url string) (*media.StreamResult, error)
}

// Registry is the ordered set of sources and embeds. It also serves as the
// id to name metadata cache.
type Registry struct {
	sources []Source
	embeds  []Embed
	meta    map[string]media.SourceDescriptor
}

// NewRegistry builds a registry. Sources and embeds are ordered by rank,
// highest first, keeping declaration order on ties. Duplicate ids are an
// error.
func NewRegistry(sources []Source, embeds []Embed) (*Registry, error) {
	r := &Registry{
		sources: append([]Source(nil), sources...),
		embeds:  append([]Embed(nil), embeds...),
		meta:    make(map[string]media.SourceDescriptor),
	}
	sort.SliceStable(r.sources, func(i, j int) bool { return r.sources[i].Info().Rank > r.sources[j].Info().Rank })
	sort.SliceStable(r.embeds, func(i, j int) bool { return r.embeds[i].Info().Rank > r.embeds[j].Info().Rank })

	for _, s := range r.sources {
		if err := r.register(s.Info()); err != nil {
			return nil, err
		}
	}
	for _, e := range r.embeds {
		if err := r.register(e.Info()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(d media.SourceDescriptor) error {
	if d.ID == "" {
		return errors.Errorf("catalog entry %q has no id", d.Name)
	}
	if _, dup := r.meta[d.ID]; dup {
		return errors.Errorf("duplicate catalog id %q", d.ID)
	}
	r.meta[d.ID] = d
	return nil
}

// Sources returns the source descriptors in registry order.
func (r *Registry) Sources() []media.SourceDescriptor {
	out := make([]media.SourceDescriptor, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s.Info())
	}
	return out
}

// Embeds returns the embed descriptors in registry order.
func (r *Registry) Embeds() []media.SourceDescriptor {
	out := make([]media.SourceDescriptor, 0, len(r.embeds))
	for _, e := range r.embeds {
		out = append(out, e.Info())
	}
	return out
}

// Load is a no-op: the registry is built in memory.
func (r *Registry) Load(context.Context) error { return nil }

// Lookup returns the descriptor of a source or embed.
func (r *Registry) Lookup(id string) (media.SourceDescriptor, bool) {
	d, ok := r.meta[id]
	return d, ok
}

// Source returns the source with the given id.
func (r *Registry) Source(id string) (Source, bool) {
	for _, s := range r.sources {
		if s.Info().ID == id {
			return s, true
		}
	}
	return nil, false
}

// Embed returns the embed with the given id.
func (r *Registry) Embed(id string) (Embed, bool) {
	for _, e := range r.embeds {
		if e.Info().ID == id {
			return e, true
		}
	}
	return nil, false
}
