package httputil

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Relay forwards scraping requests through a pool of proxy workers that take
// the target in a "destination" query parameter. Workers are used round-robin.
// A relay without workers fetches directly.
type Relay struct {
	client  *http.Client
	workers []string
	next    atomic.Uint64
}

// NewRelay creates a relay over the given worker base URLs. Invalid workers
// are dropped.
func NewRelay(client *http.Client, workers []string) *Relay {
	r := &Relay{client: client}
	for _, w := range workers {
		w = strings.TrimRight(strings.TrimSpace(w), "/")
		if err := ValidateURL(w); err != nil {
			log.WithError(err).WithField("worker", w).Warn("skipping relay worker")
			continue
		}
		r.workers = append(r.workers, w)
	}
	return r
}

// Enabled reports whether at least one worker is configured.
func (r *Relay) Enabled() bool {
	return r != nil && len(r.workers) > 0
}

// Workers returns the configured worker URLs.
func (r *Relay) Workers() []string {
	return append([]string(nil), r.workers...)
}

// pick returns the next worker in rotation.
func (r *Relay) pick() string {
	n := r.next.Add(1) - 1
	return r.workers[n%uint64(len(r.workers))]
}

// URL returns the relayed URL for target, or target itself without workers.
func (r *Relay) URL(target string) string {
	if !r.Enabled() {
		return target
	}
	return r.pick() + "/?destination=" + url.QueryEscape(target)
}

// Get fetches target through the next worker.
func (r *Relay) Get(ctx context.Context, target string) (*http.Response, error) {
	if err := ValidateURL(target); err != nil {
		return nil, errors.Wrap(err, "invalid relay target")
	}
	fetchURL := r.URL(target)
	log.WithFields(log.Fields{
		"target":  target,
		"relayed": fetchURL != target,
	}).Debug("relay fetch")
	return Get(ctx, r.client, fetchURL)
}
