// Package scrape drives one resolution session: custom adapters first, one
// at a time, then a single bulk run over the catalog through either the
// local runner or the remote channel.
package scrape

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/event"
	"reelscout/internal/media"
	"reelscout/internal/order"
	"reelscout/internal/provider"
	"reelscout/internal/store"
)

// ErrSuperseded is returned by a Run whose session was replaced by a newer
// one before it finished.
var ErrSuperseded = errors.New("session superseded")

// noEmbeds is sent as the embed order when every embed is excluded. The
// runners skip unknown embed ids, while an empty order would mean "all".
const noEmbeds = "-"

// Runner is the in-process bulk runner.
type Runner interface {
	RunAll(ctx context.Context, in event.RunInput) (*media.RunOutput, error)
}

// Channel is the remote bulk runner reached over an event stream.
type Channel interface {
	Stream(ctx context.Context, in event.RunInput) (*media.RunOutput, error)
}

// Bridge is the optional privileged extension results are registered with.
type Bridge interface {
	Active() bool
	Prepare(ctx context.Context, stream *media.StreamResult) error
}

// MetadataCache names and lists the catalog sources and embeds. Load
// fetches the listing if needed and reports why it is unavailable.
type MetadataCache interface {
	Load(ctx context.Context) error
	Sources() []media.SourceDescriptor
	Embeds() []media.SourceDescriptor
	Lookup(id string) (media.SourceDescriptor, bool)
}

// PreferenceStore holds the user's choices and the last successful source.
type PreferenceStore interface {
	Preferences() store.Preferences
	LastSuccessful(ctx context.Context, key media.Key) (string, error)
	SetLastSuccessful(ctx context.Context, key media.Key, sourceID string) error
}

// FailureMemory reads the failures recorded for a media key.
type FailureMemory interface {
	Failures(ctx context.Context, key media.Key) (store.Failures, error)
}

// Observer is told about every session transition, synchronously.
type Observer interface {
	SessionChanged(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) SessionChanged(s Snapshot) { f(s) }

// Options wire the orchestrator. Customs, Preferences and Failures are
// required; the bulk phase needs a Runner with an active Bridge or a
// Channel.
type Options struct {
	Customs     provider.Table
	Runner      Runner
	Channel     Channel
	Bridge      Bridge
	Preferences PreferenceStore
	Failures    FailureMemory
	Metadata    MetadataCache
	Observer    Observer
}

// RunOptions tune a single Run.
type RunOptions struct {
	// ResumeAfter continues a previous session strictly after this source.
	ResumeAfter string
}

// Orchestrator runs resolution sessions. Starting a Run supersedes any Run
// still in flight.
type Orchestrator struct {
	opts Options

	mu      sync.Mutex
	session *session
	cancel  context.CancelFunc
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{opts: opts}
}

// Snapshot returns the state of the current session.
func (o *Orchestrator) Snapshot() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return Snapshot{}, false
	}
	return o.session.snapshot(), true
}

// Run resolves d. It returns the single output of the session, or nil when
// every source was exhausted. Errors are limited to an invalid descriptor,
// a bulk channel that could not be used, a failed bridge preparation and
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, d media.Descriptor, ro RunOptions) (*media.RunOutput, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	key := d.Key()
	prefs := o.opts.Preferences.Preferences()

	failures, err := o.opts.Failures.Failures(ctx, key)
	if err != nil {
		log.WithError(err).WithField("media", key).Warn("failed to read failure memory")
	}
	last := ""
	if prefs.EnableLastSuccessful {
		if last, err = o.opts.Preferences.LastSuccessful(ctx, key); err != nil {
			log.WithError(err).WithField("media", key).Warn("failed to read last successful source")
		}
	}

	metaErr := o.loadMetadata(ctx)

	base := order.Input{
		DisabledSources:      prefs.DisabledSources,
		DisabledEmbeds:       prefs.DisabledEmbeds,
		FailedSources:        failures.Sources,
		FailedEmbeds:         failures.Embeds,
		SourceOrder:          prefs.SourceOrder,
		EnableSourceOrder:    prefs.EnableSourceOrder,
		EmbedOrder:           prefs.EmbedOrder,
		EnableEmbedOrder:     prefs.EnableEmbedOrder,
		LastSuccessful:       mo.EmptyableToOption(last),
		EnableLastSuccessful: prefs.EnableLastSuccessful,
		ResumeAfter:          mo.EmptyableToOption(ro.ResumeAfter),
	}

	customIn := base
	customIn.Sources = lo.Map(o.opts.Customs.Descriptors(), func(s media.SourceDescriptor, _ int) string { return s.ID })
	customs := order.Compute(customIn).Sources

	bulkIn := base
	bulkIn.Sources = o.catalogIDs(false)
	bulkIn.Embeds = o.catalogIDs(true)
	bulk := order.Compute(bulkIn)

	s, ctx, done := o.begin(ctx, d)
	defer done()
	logger := log.WithFields(log.Fields{"session": s.id, "media": key})
	logger.WithFields(log.Fields{"customs": customs, "catalog": bulk.Sources}).Debug("session started")

	names := o.names(lo.Flatten([][]string{customs, bulk.Sources, o.catalogIDs(true)})...)
	o.apply(s, func(s *session) {
		s.learn(names)
		for _, id := range customs {
			s.add(id)
		}
		for _, id := range bulk.Sources {
			s.add(id)
		}
	})

	for _, id := range customs {
		if err := ctx.Err(); err != nil {
			return nil, o.abandoned(s, err)
		}
		a, _ := o.opts.Customs.Get(id)
		o.apply(s, func(s *session) { s.start(id) })

		stream, err := provider.Resolve(ctx, a, d)
		if err != nil {
			logger.WithError(err).WithField("source", id).Info("custom source failed")
			o.apply(s, func(s *session) { s.update(customFailure(id, err)) })
			continue
		}
		return o.finish(ctx, s, key, &media.RunOutput{Stream: stream, SourceID: id})
	}

	if metaErr != nil && o.viaChannel() {
		logger.WithError(metaErr).Warn("resolver metadata unavailable")
		return nil, errors.Wrap(metaErr, "remote channel")
	}

	out, err := o.bulk(ctx, s, d, bulk)
	if err != nil {
		if ctx.Err() != nil {
			return nil, o.abandoned(s, ctx.Err())
		}
		logger.WithError(err).Warn("bulk phase failed")
		return nil, err
	}
	if out == nil || out.Stream.Empty() {
		o.apply(s, (*session).exhaust)
		logger.Info("no output")
		return nil, nil
	}
	return o.finish(ctx, s, key, out)
}

// bulk runs the catalog through exactly one of the runner or the channel.
func (o *Orchestrator) bulk(ctx context.Context, s *session, d media.Descriptor, r order.Result) (*media.RunOutput, error) {
	if len(r.Sources) == 0 {
		return nil, nil
	}
	embeds := r.Embeds
	if len(embeds) == 0 && len(o.catalogIDs(true)) > 0 {
		embeds = []string{noEmbeds}
	}
	in := event.RunInput{
		Media:       d,
		SourceOrder: r.Sources,
		EmbedOrder:  embeds,
		Events:      o.handler(s),
	}

	switch {
	case o.viaRunner():
		log.WithField("session", s.id).Debug("bulk phase via local runner")
		return o.opts.Runner.RunAll(ctx, in)
	case o.viaChannel():
		log.WithField("session", s.id).Debug("bulk phase via remote channel")
		out, err := o.opts.Channel.Stream(ctx, in)
		return out, errors.Wrap(err, "remote channel")
	default:
		log.WithField("session", s.id).Debug("no bulk backend available")
		return nil, nil
	}
}

// handler routes bulk events into s. Events of a superseded session are
// dropped.
func (o *Orchestrator) handler(s *session) event.Handler {
	return event.Handler{
		OnInit: func(e event.Init) {
			names := o.names(e.SourceIDs...)
			o.apply(s, func(s *session) { s.learn(names); s.init(e) })
		},
		OnStart: func(id string) {
			names := o.names(id)
			o.apply(s, func(s *session) { s.learn(names); s.start(id) })
		},
		OnUpdate: func(e event.Update) {
			names := o.names(e.ID)
			o.apply(s, func(s *session) { s.learn(names); s.update(e) })
		},
		OnDiscoverEmbeds: func(e event.DiscoverEmbeds) {
			names := o.names(lo.Map(e.Embeds, func(r event.EmbedRef, _ int) string { return r.EmbedScraperID })...)
			o.apply(s, func(s *session) { s.learn(names); s.discover(e) })
		},
	}
}

// finish prepares the stream with the bridge, then records the success. A
// stream the bridge rejects fails its segment and is not remembered.
func (o *Orchestrator) finish(ctx context.Context, s *session, key media.Key, out *media.RunOutput) (*media.RunOutput, error) {
	logger := log.WithFields(log.Fields{"session": s.id, "source": out.SourceID, "embed": out.EmbedID})

	if o.opts.Bridge != nil && o.opts.Bridge.Active() {
		if err := o.opts.Bridge.Prepare(ctx, out.Stream); err != nil {
			if !o.apply(s, func(s *session) { s.fail(err) }) {
				return nil, ErrSuperseded
			}
			logger.WithError(err).Warn("bridge rejected stream")
			return nil, errors.Wrap(err, "preparing stream")
		}
	}
	if !o.apply(s, (*session).succeed) {
		return nil, ErrSuperseded
	}
	if err := o.opts.Preferences.SetLastSuccessful(ctx, key, out.SourceID); err != nil {
		logger.WithError(err).Warn("failed to record last successful source")
	}
	logger.Info("stream found")
	return out, nil
}

// begin installs a fresh session, cancelling the previous one.
func (o *Orchestrator) begin(ctx context.Context, d media.Descriptor) (*session, context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s := newSession(uuid.NewString(), d)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.session = s
	o.cancel = cancel
	o.mu.Unlock()

	o.notify(s.snapshot())
	return s, ctx, cancel
}

// apply mutates s if it is still the current session and notifies the
// observer. It reports whether s was current.
func (o *Orchestrator) apply(s *session, fn func(*session)) bool {
	o.mu.Lock()
	if o.session != s {
		o.mu.Unlock()
		log.WithField("session", s.id).Debug("dropping event of superseded session")
		return false
	}
	fn(s)
	snap := s.snapshot()
	o.mu.Unlock()

	o.notify(snap)
	return true
}

func (o *Orchestrator) notify(snap Snapshot) {
	if o.opts.Observer != nil {
		o.opts.Observer.SessionChanged(snap)
	}
}

func (o *Orchestrator) abandoned(s *session, err error) error {
	o.mu.Lock()
	current := o.session == s
	o.mu.Unlock()
	if !current {
		return ErrSuperseded
	}
	return err
}

// names resolves display names for ids. It may reach the metadata cache,
// so it is never called with the lock held.
func (o *Orchestrator) names(ids ...string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if a, ok := o.opts.Customs.Get(id); ok {
			out[id] = a.Source().Name
			continue
		}
		if o.opts.Metadata != nil {
			if d, ok := o.opts.Metadata.Lookup(id); ok && d.Name != "" {
				out[id] = d.Name
			}
		}
	}
	return out
}

func (o *Orchestrator) loadMetadata(ctx context.Context) error {
	if o.opts.Metadata == nil {
		return nil
	}
	return o.opts.Metadata.Load(ctx)
}

// viaRunner reports whether the bulk phase runs in-process.
func (o *Orchestrator) viaRunner() bool {
	return o.opts.Runner != nil && o.opts.Bridge != nil && o.opts.Bridge.Active()
}

// viaChannel reports whether the bulk phase goes through the remote channel.
func (o *Orchestrator) viaChannel() bool {
	return !o.viaRunner() && o.opts.Channel != nil
}

func (o *Orchestrator) catalogIDs(embeds bool) []string {
	if o.opts.Metadata == nil {
		return nil
	}
	list := o.opts.Metadata.Sources()
	if embeds {
		list = o.opts.Metadata.Embeds()
	}
	return lo.Map(list, func(s media.SourceDescriptor, _ int) string { return s.ID })
}

func customFailure(id string, err error) event.Update {
	if errors.Is(err, provider.ErrNoResult) {
		return event.Update{ID: id, Status: event.Failure, Reason: "no result", Percentage: 100}
	}
	return event.Update{ID: id, Status: event.Failure, Reason: "scrape failed", Error: err.Error(), Percentage: 100}
}
