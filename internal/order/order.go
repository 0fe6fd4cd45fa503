// Package order computes the attempt sequence of sources and embeds for one
// resolution.
package order

import (
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Input is everything the sequence depends on. Id lists are in registry
// order.
type Input struct {
	Sources []string
	Embeds  []string

	DisabledSources []string
	DisabledEmbeds  []string

	// Failure memory for the media key. Failed embeds are keyed by the source
	// they were found under.
	FailedSources []string
	FailedEmbeds  map[string][]string

	SourceOrder       []string
	EnableSourceOrder bool
	EmbedOrder        []string
	EnableEmbedOrder  bool

	LastSuccessful       mo.Option[string]
	EnableLastSuccessful bool

	ResumeAfter mo.Option[string]
}

// Result is the computed attempt order.
type Result struct {
	Sources []string
	Embeds  []string
}

// Compute returns the source and embed sequences for in. It is a pure
// function of its input.
func Compute(in Input) Result {
	sources := sequence(in.Sources, lo.Union(in.DisabledSources, in.FailedSources), in.SourceOrder, in.EnableSourceOrder)
	if in.EnableLastSuccessful {
		if id, ok := in.LastSuccessful.Get(); ok {
			sources = promote(sources, id)
		}
	}
	if id, ok := in.ResumeAfter.Get(); ok {
		sources = resumeAfter(sources, id)
	}

	failedEmbeds := lo.Flatten(lo.Values(in.FailedEmbeds))
	embeds := sequence(in.Embeds, lo.Union(in.DisabledEmbeds, failedEmbeds), in.EmbedOrder, in.EnableEmbedOrder)

	return Result{Sources: sources, Embeds: embeds}
}

// sequence drops excluded ids and, when enabled, moves preferred ids to the
// front in preference order. Everything else keeps its registry order.
func sequence(ids, excluded, preferred []string, enabled bool) []string {
	base := lo.Uniq(lo.Without(ids, excluded...))
	if !enabled || len(preferred) == 0 {
		return base
	}
	front := lo.Filter(lo.Uniq(preferred), func(id string, _ int) bool {
		return lo.Contains(base, id)
	})
	return append(front, lo.Without(base, front...)...)
}

// promote moves id to the front when present.
func promote(seq []string, id string) []string {
	if !lo.Contains(seq, id) {
		return seq
	}
	return append([]string{id}, lo.Without(seq, id)...)
}

// resumeAfter keeps the ids strictly after id, or seq unchanged when id is
// absent.
func resumeAfter(seq []string, id string) []string {
	idx := lo.IndexOf(seq, id)
	if idx == -1 {
		return seq
	}
	return append([]string{}, seq[idx+1:]...)
}
