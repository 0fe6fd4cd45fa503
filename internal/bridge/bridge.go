// Package bridge is the privileged extension that makes protected streams
// playable: before a result is handed out, the request headers it needs are
// registered per host so the player and downloader can replay them.
package bridge

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/media"
)

// Local is the in-process bridge.
type Local struct {
	active bool

	mu    sync.RWMutex
	rules map[string]map[string]string // host -> headers
}

// NewLocal returns a bridge; an inactive bridge accepts no rules.
func NewLocal(active bool) *Local {
	return &Local{
		active: active,
		rules:  make(map[string]map[string]string),
	}
}

// Active reports whether the bridge is enabled.
func (l *Local) Active() bool {
	return l != nil && l.active
}

// Prepare registers the stream's headers for every host it references.
func (l *Local) Prepare(ctx context.Context, stream *media.StreamResult) error {
	if !l.Active() {
		return errors.New("bridge is not active")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if stream == nil || len(stream.Headers) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, raw := range streamURLs(stream) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Host)
		rule := l.rules[host]
		if rule == nil {
			rule = make(map[string]string, len(stream.Headers))
			l.rules[host] = rule
		}
		for k, v := range stream.Headers {
			rule[k] = v
		}
		log.WithFields(log.Fields{"host": host, "headers": len(stream.Headers)}).Debug("registered header rule")
	}
	return nil
}

// HeadersFor returns the headers registered for the host of rawURL.
func (l *Local) HeadersFor(rawURL string) map[string]string {
	if l == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	rule := l.rules[strings.ToLower(u.Host)]
	if rule == nil {
		return nil
	}
	out := make(map[string]string, len(rule))
	for k, v := range rule {
		out[k] = v
	}
	return out
}

func streamURLs(s *media.StreamResult) []string {
	var urls []string
	if s.Playlist != "" {
		urls = append(urls, s.Playlist)
	}
	for _, f := range s.Qualities {
		if f.URL != "" {
			urls = append(urls, f.URL)
		}
	}
	for _, c := range s.Captions {
		if c.URL != "" {
			urls = append(urls, c.URL)
		}
	}
	return urls
}
