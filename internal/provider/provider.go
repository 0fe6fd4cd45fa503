// Package provider defines the in-process adapters that scrape a single
// external content source and normalize its payload into a stream.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/media"
)

// ErrNoResult is returned by Resolve when an adapter produced nothing playable.
var ErrNoResult = errors.New("no result")

// Payload is the raw, provider-specific result of a scrape before it is
// normalized.
type Payload interface {
	// Success reports whether the payload carries at least one link.
	Success() bool
}

// Adapter is the interface custom content providers must implement.
type Adapter interface {
	// Source describes the adapter for ordering and display.
	Source() media.SourceDescriptor

	// ScrapeMovie fetches the raw payload for a movie.
	ScrapeMovie(ctx context.Context, d media.Descriptor) (Payload, error)

	// ScrapeShow fetches the raw payload for a show episode.
	ScrapeShow(ctx context.Context, d media.Descriptor) (Payload, error)

	// Normalize converts a payload into a stream. It reports false when the
	// payload holds nothing playable.
	Normalize(p Payload) (*media.StreamResult, bool)
}

// Resolve runs an adapter for d and normalizes the result. Panics, errors
// and empty payloads all come back as an error, so callers only need to
// decide between success and "no result".
func Resolve(ctx context.Context, a Adapter, d media.Descriptor) (stream *media.StreamResult, err error) {
	id := a.Source().ID
	defer func() {
		if r := recover(); r != nil {
			stream = nil
			err = errors.Errorf("adapter %s panicked: %v", id, r)
		}
		if err != nil {
			log.WithFields(log.Fields{
				"adapter": id,
				"media":   d.Key(),
			}).WithError(err).Debug("adapter gave no result")
		}
	}()

	var p Payload
	switch d.Kind {
	case media.Show:
		p, err = a.ScrapeShow(ctx, d)
	default:
		p, err = a.ScrapeMovie(ctx, d)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "scraping %s", id)
	}
	if p == nil || !p.Success() {
		return nil, ErrNoResult
	}

	stream, ok := a.Normalize(p)
	if !ok || stream.Empty() {
		return nil, ErrNoResult
	}
	if stream.ID == "" {
		stream.ID = id
	}
	return stream, nil
}

// Table is an immutable, ordered set of adapters.
type Table struct {
	adapters []Adapter
}

// NewTable builds a table. Later adapters with a duplicate id are ignored.
func NewTable(adapters ...Adapter) Table {
	seen := make(map[string]bool, len(adapters))
	t := Table{}
	for _, a := range adapters {
		id := a.Source().ID
		if seen[id] {
			log.WithField("adapter", id).Warn("duplicate adapter id ignored")
			continue
		}
		seen[id] = true
		t.adapters = append(t.adapters, a)
	}
	return t
}

// Get returns the adapter with the given id.
func (t Table) Get(id string) (Adapter, bool) {
	for _, a := range t.adapters {
		if a.Source().ID == id {
			return a, true
		}
	}
	return nil, false
}

// Descriptors returns the source descriptors in declaration order.
func (t Table) Descriptors() []media.SourceDescriptor {
	out := make([]media.SourceDescriptor, 0, len(t.adapters))
	for _, a := range t.adapters {
		out = append(out, a.Source())
	}
	return out
}

// Len returns the number of adapters.
func (t Table) Len() int { return len(t.adapters) }

// WithTimeout bounds every scrape of a with d. A scrape that outlives its
// deadline is reported as failed even if the adapter ignores its context.
func WithTimeout(a Adapter, d time.Duration) Adapter {
	if d <= 0 {
		return a
	}
	return &timeoutAdapter{Adapter: a, timeout: d}
}

type timeoutAdapter struct {
	Adapter
	timeout time.Duration
}

type scrapeResult struct {
	p   Payload
	err error
}

func (t *timeoutAdapter) ScrapeMovie(ctx context.Context, d media.Descriptor) (Payload, error) {
	return t.run(ctx, func(ctx context.Context) (Payload, error) { return t.Adapter.ScrapeMovie(ctx, d) })
}

func (t *timeoutAdapter) ScrapeShow(ctx context.Context, d media.Descriptor) (Payload, error) {
	return t.run(ctx, func(ctx context.Context) (Payload, error) { return t.Adapter.ScrapeShow(ctx, d) })
}

func (t *timeoutAdapter) run(ctx context.Context, fn func(context.Context) (Payload, error)) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan scrapeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- scrapeResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		p, err := fn(ctx)
		done <- scrapeResult{p: p, err: err}
	}()

	select {
	case r := <-done:
		return r.p, r.err
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s exceeded %s", t.Source().ID, t.timeout)
	}
}
