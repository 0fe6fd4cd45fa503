package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"reelscout/internal/event"
	"reelscout/internal/media"
	"reelscout/internal/provider"
	"reelscout/internal/remote"
	"reelscout/internal/store"
)

type fakePayload struct{ stream *media.StreamResult }

func (p fakePayload) Success() bool { return p.stream != nil }

type fakeAdapter struct {
	id     string
	stream *media.StreamResult
	err    error
	calls  *[]string
}

func (a *fakeAdapter) Source() media.SourceDescriptor {
	return media.SourceDescriptor{ID: a.id, Name: strings.ToUpper(a.id), Custom: true}
}

func (a *fakeAdapter) ScrapeMovie(_ context.Context, _ media.Descriptor) (provider.Payload, error) {
	*a.calls = append(*a.calls, a.id)
	return fakePayload{a.stream}, a.err
}

func (a *fakeAdapter) ScrapeShow(ctx context.Context, d media.Descriptor) (provider.Payload, error) {
	return a.ScrapeMovie(ctx, d)
}

func (a *fakeAdapter) Normalize(p provider.Payload) (*media.StreamResult, bool) {
	s := p.(fakePayload).stream
	return s, s != nil
}

type fakeMeta struct {
	sources []media.SourceDescriptor
	embeds  []media.SourceDescriptor
	loadErr error
}

func (m fakeMeta) Load(context.Context) error        { return m.loadErr }
func (m fakeMeta) Sources() []media.SourceDescriptor { return m.sources }
func (m fakeMeta) Embeds() []media.SourceDescriptor  { return m.embeds }
func (m fakeMeta) Lookup(id string) (media.SourceDescriptor, bool) {
	for _, d := range append(append([]media.SourceDescriptor{}, m.sources...), m.embeds...) {
		if d.ID == id {
			return d, true
		}
	}
	return media.SourceDescriptor{}, false
}

type fakeRunner struct {
	calls int32
	input []event.RunInput
	fn    func(n int32, ctx context.Context, in event.RunInput) (*media.RunOutput, error)
}

func (r *fakeRunner) RunAll(ctx context.Context, in event.RunInput) (*media.RunOutput, error) {
	n := atomic.AddInt32(&r.calls, 1)
	r.input = append(r.input, in)
	if r.fn == nil {
		return nil, nil
	}
	return r.fn(n, ctx, in)
}

type fakeChannel struct {
	fakeRunner
}

func (c *fakeChannel) Stream(ctx context.Context, in event.RunInput) (*media.RunOutput, error) {
	return c.RunAll(ctx, in)
}

type fakeBridge struct {
	active   bool
	err      error
	prepared []*media.StreamResult
}

func (b *fakeBridge) Active() bool { return b.active }
func (b *fakeBridge) Prepare(_ context.Context, s *media.StreamResult) error {
	b.prepared = append(b.prepared, s)
	return b.err
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) SessionChanged(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

// history returns the distinct statuses segment id went through.
func (r *recorder) history(id string) []event.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Status
	for _, s := range r.snaps {
		seg, ok := s.Segment(id)
		if !ok || (len(out) > 0 && out[len(out)-1] == seg.Status) {
			continue
		}
		out = append(out, seg.Status)
	}
	return out
}

func fileStream(url string) *media.StreamResult {
	s := media.NewFileStream("")
	s.SetQuality(media.Quality1080, media.File{Format: "mp4", URL: url})
	return s
}

var (
	matrix = media.Descriptor{Kind: media.Movie, ExternalID: "603", Title: "The Matrix"}
	dune   = media.Descriptor{Kind: media.Movie, ExternalID: "438631", Title: "Dune"}
	meta   = fakeMeta{
		sources: []media.SourceDescriptor{{ID: "cat1", Name: "Catalog One"}, {ID: "cat2", Name: "Catalog Two"}},
		embeds:  []media.SourceDescriptor{{ID: "vidcloud", Name: "VidCloud"}, {ID: "upcloud", Name: "UpCloud"}},
	}
)

type fixture struct {
	calls   []string
	customs []*fakeAdapter
	store   *store.Store
	runner  *fakeRunner
	channel *fakeChannel
	bridge  *fakeBridge
	meta    fakeMeta
	rec     *recorder
}

func newFixture(prefs store.Preferences, customs ...*fakeAdapter) *fixture {
	f := &fixture{
		customs: customs,
		store:   store.New(store.NewMemory(), prefs),
		runner:  &fakeRunner{},
		channel: &fakeChannel{},
		bridge:  &fakeBridge{active: true},
		meta:    meta,
		rec:     &recorder{},
	}
	for _, c := range customs {
		c.calls = &f.calls
	}
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	adapters := make([]provider.Adapter, len(f.customs))
	for i, c := range f.customs {
		adapters[i] = c
	}
	return New(Options{
		Customs:     provider.NewTable(adapters...),
		Runner:      f.runner,
		Channel:     f.channel,
		Bridge:      f.bridge,
		Preferences: f.store,
		Failures:    f.store,
		Metadata:    f.meta,
		Observer:    f.rec,
	})
}

func failingCustoms() []*fakeAdapter {
	return []*fakeAdapter{
		{id: "c1"},
		{id: "c2", err: errors.New("boom")},
		{id: "c3"},
	}
}

func TestStartInference(t *testing.T) {
	Convey("A start for B after a start for A", t, func() {
		s := newSession("s", matrix)
		s.init(event.Init{SourceIDs: []string{"a", "b"}})
		s.start("a")
		s.start("b")

		So(s.segments["a"].Status, ShouldEqual, event.Success)
		So(s.segments["b"].Status, ShouldEqual, event.Pending)
		So(s.current, ShouldEqual, "b")

		Convey("does not resurrect a segment that already ended", func() {
			s.update(event.Update{ID: "b", Status: event.NotFound, Percentage: 100})
			s.start("c")
			So(s.segments["b"].Status, ShouldEqual, event.NotFound)
			So(s.segments["c"].Status, ShouldEqual, event.Pending)
		})
	})
}

func TestInitIdempotence(t *testing.T) {
	Convey("Initializing twice with the same init set", t, func() {
		s := newSession("s", matrix)
		s.add("c1")
		s.start("c1")
		s.init(event.Init{SourceIDs: []string{"c1", "cat1", "cat2"}})
		s.init(event.Init{SourceIDs: []string{"c1", "cat1", "cat2"}})

		So(len(s.order), ShouldEqual, 3)
		So(len(s.segments), ShouldEqual, 3)
		So(s.segments["c1"].Status, ShouldEqual, event.Pending)
		So(s.segments["cat1"].Status, ShouldEqual, event.Waiting)
	})
}

func TestDiscoverEmbeds(t *testing.T) {
	Convey("Discovered embeds become waiting children named by the metadata cache", t, func() {
		s := newSession("s", matrix)
		s.init(event.Init{SourceIDs: []string{"cat1"}})
		e := event.DiscoverEmbeds{SourceID: "cat1", Embeds: []event.EmbedRef{
			{ID: "cat1-0", EmbedScraperID: "upcloud"},
			{ID: "cat1-1", EmbedScraperID: "vidcloud"},
		}}
		s.learn(map[string]string{"upcloud": "UPCLOUD", "vidcloud": "VIDCLOUD"})
		s.discover(e)
		s.discover(e)

		So(s.order[0].Children, ShouldResemble, []string{"cat1-0", "cat1-1"})
		So(s.segments["cat1-1"].Name, ShouldEqual, "VIDCLOUD")
		So(s.segments["cat1-1"].EmbedID, ShouldEqual, "vidcloud")
		So(s.segments["cat1-1"].Status, ShouldEqual, event.Waiting)

		report := s.snapshot().Report()
		So(len(report), ShouldEqual, 3)
		So(report[1].ID, ShouldEqual, "cat1-0")
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Run", t, func() {
		Convey("Three failing customs and a bulk run with no output", func() {
			f := newFixture(store.Preferences{}, failingCustoms()...)
			f.runner.fn = func(_ int32, _ context.Context, in event.RunInput) (*media.RunOutput, error) {
				in.Events.Init(event.Init{SourceIDs: []string{"cat1", "cat2"}})
				in.Events.Start("cat1")
				in.Events.DiscoverEmbeds(event.DiscoverEmbeds{SourceID: "cat1", Embeds: []event.EmbedRef{{ID: "cat1-0", EmbedScraperID: "vidcloud"}}})
				in.Events.Start("cat1-0")
				in.Events.Update(event.Update{ID: "cat1-0", Status: event.Failure, Reason: "scrape failed", Error: "403"})
				return nil, nil
			}
			o := f.orchestrator()

			out, err := o.Run(ctx, matrix, RunOptions{})
			So(err, ShouldBeNil)
			So(out, ShouldBeNil)
			So(f.calls, ShouldResemble, []string{"c1", "c2", "c3"})

			snap, ok := o.Snapshot()
			So(ok, ShouldBeTrue)
			for _, seg := range snap.Segments {
				So(seg.Status, ShouldBeIn, []event.Status{event.Failure, event.NotFound, event.Success})
			}
			So(snap.Segments["c1"].Status, ShouldEqual, event.Failure)
			So(snap.Segments["c1"].Reason, ShouldEqual, "no result")
			So(snap.Segments["c2"].Error, ShouldContainSubstring, "boom")
			So(snap.Segments["cat1-0"].Status, ShouldEqual, event.Failure)
			So(snap.Segments["cat2"].Status, ShouldEqual, event.NotFound)
			So(snap.Segments["cat1-0"].Name, ShouldEqual, "VidCloud")

			// The inference rule marked cat1 done when its embed started.
			So(snap.Segments["cat1"].Status, ShouldEqual, event.Success)
			So(f.rec.history("c2"), ShouldResemble, []event.Status{event.Waiting, event.Pending, event.Failure})

			last, _ := f.store.LastSuccessful(ctx, matrix.Key())
			So(last, ShouldBeEmpty)
		})

		Convey("The first successful custom short-circuits the session", func() {
			customs := failingCustoms()
			customs[1] = &fakeAdapter{id: "c2", stream: fileStream("https://cdn.example/m.mp4")}
			f := newFixture(store.Preferences{}, customs...)
			o := f.orchestrator()

			out, err := o.Run(ctx, matrix, RunOptions{})
			So(err, ShouldBeNil)
			So(out.SourceID, ShouldEqual, "c2")
			So(out.Stream.ID, ShouldEqual, "c2")
			So(f.calls, ShouldResemble, []string{"c1", "c2"})
			So(f.runner.calls, ShouldEqual, 0)
			So(f.channel.calls, ShouldEqual, 0)
			So(len(f.bridge.prepared), ShouldEqual, 1)

			snap, _ := o.Snapshot()
			So(snap.Segments["c2"].Status, ShouldEqual, event.Success)
			So(snap.Segments["c3"].Status, ShouldEqual, event.Waiting)

			last, _ := f.store.LastSuccessful(ctx, matrix.Key())
			So(last, ShouldEqual, "c2")
		})

		Convey("Last successful custom goes first", func() {
			f := newFixture(store.Preferences{EnableLastSuccessful: true}, failingCustoms()...)
			So(f.store.SetLastSuccessful(ctx, matrix.Key(), "c3"), ShouldBeNil)

			_, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
			So(err, ShouldBeNil)
			So(f.calls, ShouldResemble, []string{"c3", "c1", "c2"})
		})

		Convey("Another title's last success does not reorder", func() {
			f := newFixture(store.Preferences{EnableLastSuccessful: true}, failingCustoms()...)
			So(f.store.SetLastSuccessful(ctx, dune.Key(), "c3"), ShouldBeNil)

			_, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
			So(err, ShouldBeNil)
			So(f.calls, ShouldResemble, []string{"c1", "c2", "c3"})
		})

		Convey("Disabled and failed ids never reach the bulk order", func() {
			f := newFixture(store.Preferences{DisabledEmbeds: []string{"vidcloud"}}, failingCustoms()...)
			So(f.store.AddFailure(ctx, matrix.Key(), "cat1", ""), ShouldBeNil)
			So(f.store.AddFailure(ctx, matrix.Key(), "cat2", "upcloud"), ShouldBeNil)
			So(f.store.AddFailure(ctx, matrix.Key(), "c2", ""), ShouldBeNil)

			_, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
			So(err, ShouldBeNil)
			So(f.calls, ShouldResemble, []string{"c1", "c3"})
			So(f.runner.input[0].SourceOrder, ShouldResemble, []string{"cat2"})
			So(f.runner.input[0].EmbedOrder, ShouldResemble, []string{noEmbeds})
		})

		Convey("Resuming after a catalog source", func() {
			f := newFixture(store.Preferences{}, failingCustoms()...)
			So(f.store.AddFailure(ctx, matrix.Key(), "c1", ""), ShouldBeNil)
			o := f.orchestrator()

			_, err := o.Run(ctx, matrix, RunOptions{ResumeAfter: "cat1"})
			So(err, ShouldBeNil)
			So(f.calls, ShouldResemble, []string{"c2", "c3"})
			So(f.runner.input[0].SourceOrder, ShouldResemble, []string{"cat2"})

			snap, _ := o.Snapshot()
			_, hasCat1 := snap.Segment("cat1")
			So(hasCat1, ShouldBeFalse)
		})

		Convey("Resuming after a custom source", func() {
			f := newFixture(store.Preferences{}, failingCustoms()...)
			_, err := f.orchestrator().Run(ctx, matrix, RunOptions{ResumeAfter: "c2"})
			So(err, ShouldBeNil)
			So(f.calls, ShouldResemble, []string{"c3"})
			So(f.runner.input[0].SourceOrder, ShouldResemble, []string{"cat1", "cat2"})
		})

		Convey("A bulk success is recorded and prepared", func() {
			f := newFixture(store.Preferences{})
			stream := fileStream("https://cdn.example/bulk.mp4")
			f.runner.fn = func(_ int32, _ context.Context, in event.RunInput) (*media.RunOutput, error) {
				in.Events.Init(event.Init{SourceIDs: []string{"cat1", "cat2"}})
				in.Events.Start("cat1")
				in.Events.DiscoverEmbeds(event.DiscoverEmbeds{SourceID: "cat1", Embeds: []event.EmbedRef{{ID: "cat1-0", EmbedScraperID: "upcloud"}}})
				in.Events.Start("cat1-0")
				return &media.RunOutput{Stream: stream, SourceID: "cat1", EmbedID: "upcloud"}, nil
			}
			o := f.orchestrator()

			out, err := o.Run(ctx, matrix, RunOptions{})
			So(err, ShouldBeNil)
			So(out.EmbedID, ShouldEqual, "upcloud")
			So(f.bridge.prepared, ShouldResemble, []*media.StreamResult{stream})

			snap, _ := o.Snapshot()
			So(snap.Segments["cat1-0"].Status, ShouldEqual, event.Success)
			So(snap.Segments["cat2"].Status, ShouldEqual, event.Waiting)

			last, _ := f.store.LastSuccessful(ctx, matrix.Key())
			So(last, ShouldEqual, "cat1")
		})

		Convey("The bulk backend is chosen once", func() {
			Convey("An active bridge uses the local runner only", func() {
				f := newFixture(store.Preferences{})
				_, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
				So(err, ShouldBeNil)
				So(f.runner.calls, ShouldEqual, 1)
				So(f.channel.calls, ShouldEqual, 0)
			})

			Convey("An inactive bridge uses the remote channel only", func() {
				f := newFixture(store.Preferences{})
				f.bridge.active = false
				f.channel.fn = func(_ int32, _ context.Context, _ event.RunInput) (*media.RunOutput, error) {
					return nil, errors.New("connection refused")
				}
				_, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "connection refused")
				So(f.runner.calls, ShouldEqual, 0)
				So(f.channel.calls, ShouldEqual, 1)
			})
		})

		Convey("A stream the bridge rejects fails its segment and is not remembered", func() {
			customs := failingCustoms()
			customs[0] = &fakeAdapter{id: "c1", stream: fileStream("https://cdn.example/m.mp4")}
			f := newFixture(store.Preferences{}, customs...)
			refused := errors.New("header rules refused")
			f.bridge.err = refused
			o := f.orchestrator()

			out, err := o.Run(ctx, matrix, RunOptions{})
			So(out, ShouldBeNil)
			So(errors.Is(err, refused), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "preparing stream")
			So(len(f.bridge.prepared), ShouldEqual, 1)

			snap, _ := o.Snapshot()
			So(snap.Segments["c1"].Status, ShouldEqual, event.Failure)
			So(snap.Segments["c1"].Error, ShouldContainSubstring, "refused")
			So(f.rec.history("c1"), ShouldResemble, []event.Status{event.Waiting, event.Pending, event.Failure})

			last, _ := f.store.LastSuccessful(ctx, matrix.Key())
			So(last, ShouldBeEmpty)
		})

		Convey("Unavailable metadata", func() {
			f := newFixture(store.Preferences{}, failingCustoms()...)
			f.meta.loadErr = errors.New("resolver unreachable")

			Convey("fails the session when the channel runs the bulk phase", func() {
				f.bridge.active = false
				out, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
				So(out, ShouldBeNil)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "resolver unreachable")
				So(f.calls, ShouldResemble, []string{"c1", "c2", "c3"})
				So(f.channel.calls, ShouldEqual, 0)
			})

			Convey("does not matter to the local runner", func() {
				_, err := f.orchestrator().Run(ctx, matrix, RunOptions{})
				So(err, ShouldBeNil)
				So(f.runner.calls, ShouldEqual, 1)
			})
		})

		Convey("Invalid descriptors are rejected", func() {
			f := newFixture(store.Preferences{})
			_, err := f.orchestrator().Run(ctx, media.Descriptor{Kind: media.Show, ExternalID: "1"}, RunOptions{})
			So(errors.Is(err, media.ErrInvalidDescriptor), ShouldBeTrue)
		})
	})
}

func TestSupersededSession(t *testing.T) {
	Convey("Events of a superseded session are dropped", t, func() {
		ctx := context.Background()
		f := newFixture(store.Preferences{})
		entered := make(chan struct{})
		release := make(chan struct{})
		f.runner.fn = func(n int32, _ context.Context, in event.RunInput) (*media.RunOutput, error) {
			if n != 1 {
				return nil, nil
			}
			close(entered)
			<-release
			in.Events.Start("cat1")
			in.Events.Update(event.Update{ID: "cat1", Status: event.Success, Percentage: 100})
			return &media.RunOutput{Stream: fileStream("https://cdn.example/old.mp4"), SourceID: "cat1"}, nil
		}
		o := f.orchestrator()

		var (
			firstOut *media.RunOutput
			firstErr error
		)
		done := make(chan struct{})
		go func() {
			firstOut, firstErr = o.Run(ctx, matrix, RunOptions{})
			close(done)
		}()
		<-entered

		out, err := o.Run(ctx, dune, RunOptions{})
		So(err, ShouldBeNil)
		So(out, ShouldBeNil)

		close(release)
		<-done
		So(firstOut, ShouldBeNil)
		So(firstErr, ShouldEqual, ErrSuperseded)

		snap, _ := o.Snapshot()
		So(snap.Media.ExternalID, ShouldEqual, dune.ExternalID)
		So(snap.Segments["cat1"].Status, ShouldEqual, event.NotFound)

		last, _ := f.store.LastSuccessful(ctx, matrix.Key())
		So(last, ShouldBeEmpty)
	})
}

func TestUnreachableResolver(t *testing.T) {
	Convey("A resolver that cannot be reached fails the whole session", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		rc, err := remote.NewClient(srv.URL, srv.Client())
		So(err, ShouldBeNil)

		st := store.New(store.NewMemory(), store.Preferences{})
		o := New(Options{
			Customs:     provider.NewTable(),
			Channel:     rc,
			Bridge:      &fakeBridge{},
			Preferences: st,
			Failures:    st,
			Metadata:    rc,
		})

		out, err := o.Run(context.Background(), matrix, RunOptions{})
		So(out, ShouldBeNil)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "remote channel")
	})
}

// snapshotMeta reads the orchestrator's snapshot on every lookup, which
// deadlocks if names are resolved while the session lock is held.
type snapshotMeta struct {
	fakeMeta
	o *Orchestrator
}

func (m *snapshotMeta) Lookup(id string) (media.SourceDescriptor, bool) {
	m.o.Snapshot()
	return m.fakeMeta.Lookup(id)
}

func TestNamesResolvedOutsideLock(t *testing.T) {
	Convey("Segment names are looked up without holding the session lock", t, func() {
		f := newFixture(store.Preferences{}, failingCustoms()...)
		f.runner.fn = func(_ int32, _ context.Context, in event.RunInput) (*media.RunOutput, error) {
			in.Events.Init(event.Init{SourceIDs: []string{"cat1", "late"}})
			in.Events.Start("cat1")
			in.Events.DiscoverEmbeds(event.DiscoverEmbeds{SourceID: "cat1", Embeds: []event.EmbedRef{{ID: "cat1-0", EmbedScraperID: "upcloud"}}})
			return nil, nil
		}
		m := &snapshotMeta{fakeMeta: meta}
		o := New(Options{
			Customs:     provider.NewTable(),
			Runner:      f.runner,
			Bridge:      f.bridge,
			Preferences: f.store,
			Failures:    f.store,
			Metadata:    m,
		})
		m.o = o

		done := make(chan error, 1)
		go func() {
			_, err := o.Run(context.Background(), matrix, RunOptions{})
			done <- err
		}()
		select {
		case err := <-done:
			So(err, ShouldBeNil)
		case <-time.After(5 * time.Second):
			t.Fatal("Run deadlocked resolving names")
		}

		snap, _ := o.Snapshot()
		So(snap.Segments["cat1"].Name, ShouldEqual, "Catalog One")
		So(snap.Segments["cat1-0"].Name, ShouldEqual, "UpCloud")
		So(snap.Segments["late"].Name, ShouldEqual, "late")
	})
}
