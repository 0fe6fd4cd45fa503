// Package store persists failure memory and the last successful source, and
// carries the user's source preferences.
package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/media"
)

// Failures is the failure memory of one media key.
type Failures struct {
	Sources []string            `json:"failedSources"`
	Embeds  map[string][]string `json:"failedEmbeds"` // by parent source id
}

// Empty reports whether nothing is recorded.
func (f Failures) Empty() bool {
	if len(f.Sources) > 0 {
		return false
	}
	for _, ids := range f.Embeds {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Backend is the persistence behind failure memory and last-successful
// bookkeeping.
type Backend interface {
	Failures(ctx context.Context, key media.Key) (Failures, error)
	// AddFailure records sourceID as failed for key, or the embed under it
	// when embedID is set.
	AddFailure(ctx context.Context, key media.Key, sourceID, embedID string) error
	ClearFailures(ctx context.Context, key media.Key) error
	ListFailures(ctx context.Context) (map[media.Key]Failures, error)

	// LastSuccessful returns the source that last succeeded for key. Empty
	// when key never succeeded.
	LastSuccessful(ctx context.Context, key media.Key) (string, error)
	SetLastSuccessful(ctx context.Context, key media.Key, sourceID string) error

	Close() error
}

// Preferences are the user's source choices.
type Preferences struct {
	DisabledSources      []string
	DisabledEmbeds       []string
	SourceOrder          []string
	EnableSourceOrder    bool
	EmbedOrder           []string
	EnableEmbedOrder     bool
	EnableLastSuccessful bool
	Token                string
}

// Store combines a backend with the preferences loaded from configuration.
type Store struct {
	Backend
	prefs Preferences
}

// New wraps b.
func New(b Backend, prefs Preferences) *Store {
	return &Store{Backend: b, prefs: prefs}
}

func (s *Store) Preferences() Preferences {
	return s.prefs
}

// Token returns the per-user API token, empty when unset.
func (s *Store) Token() string {
	return s.prefs.Token
}

// Options select and configure a backend.
type Options struct {
	Driver    string // sqlite, memory or redis
	Path      string // sqlite database file
	RedisAddr string
	RedisDB   int
}

// Open creates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	log.WithField("driver", opts.Driver).Debug("opening store")
	switch opts.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, opts.Path)
	case "memory":
		return NewMemory(), nil
	case "redis":
		return OpenRedis(ctx, opts.RedisAddr, opts.RedisDB)
	default:
		return nil, errors.Errorf("unknown store driver %q", opts.Driver)
	}
}

func sorted(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}
