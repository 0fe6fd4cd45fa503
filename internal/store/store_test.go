package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"reelscout/internal/media"
)

// backends returns every backend available in the test environment. Redis
// is exercised only when REELSCOUT_TEST_REDIS names a server.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	ctx := context.Background()

	lite, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "data", "reelscout.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	out := map[string]Backend{
		"memory": NewMemory(),
		"sqlite": lite,
	}
	if addr := os.Getenv("REELSCOUT_TEST_REDIS"); addr != "" {
		r, err := OpenRedis(ctx, addr, 0)
		if err != nil {
			t.Fatalf("OpenRedis: %v", err)
		}
		out["redis"] = r
	}
	t.Cleanup(func() {
		for _, b := range out {
			b.Close()
		}
	})
	return out
}

func TestBackends(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		// Unique keys keep a shared redis clean between runs.
		prefix := uuid.NewString()
		movie := media.Key("movie-" + prefix)
		episode := media.Key("show-" + prefix + "-s1-e1")

		Convey("Backend "+name, t, func() {
			Convey("Unknown keys have no failures", func() {
				f, err := b.Failures(ctx, media.Key("movie-nothing-"+prefix))
				So(err, ShouldBeNil)
				So(f.Empty(), ShouldBeTrue)
			})

			Convey("Failures accumulate without duplicates", func() {
				So(b.AddFailure(ctx, movie, "dlhub", ""), ShouldBeNil)
				So(b.AddFailure(ctx, movie, "dlhub", ""), ShouldBeNil)
				So(b.AddFailure(ctx, movie, "flixhq", "upcloud"), ShouldBeNil)
				So(b.AddFailure(ctx, movie, "flixhq", "vidcloud"), ShouldBeNil)

				f, err := b.Failures(ctx, movie)
				So(err, ShouldBeNil)
				So(f.Sources, ShouldResemble, []string{"dlhub"})
				So(f.Embeds["flixhq"], ShouldResemble, []string{"upcloud", "vidcloud"})

				other, err := b.Failures(ctx, episode)
				So(err, ShouldBeNil)
				So(other.Empty(), ShouldBeTrue)

				all, err := b.ListFailures(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldContainKey, movie)

				So(b.ClearFailures(ctx, movie), ShouldBeNil)
				f, err = b.Failures(ctx, movie)
				So(err, ShouldBeNil)
				So(f.Empty(), ShouldBeTrue)

				all, err = b.ListFailures(ctx)
				So(err, ShouldBeNil)
				So(all, ShouldNotContainKey, movie)
			})

			Convey("Last successful is strictly per key", func() {
				So(b.SetLastSuccessful(ctx, movie, "tokenapi"), ShouldBeNil)
				So(b.SetLastSuccessful(ctx, episode, "flixhq"), ShouldBeNil)

				id, err := b.LastSuccessful(ctx, movie)
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "tokenapi")

				id, err = b.LastSuccessful(ctx, episode)
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "flixhq")

				id, err = b.LastSuccessful(ctx, media.Key("movie-unseen-"+prefix))
				So(err, ShouldBeNil)
				So(id, ShouldBeEmpty)

				So(b.SetLastSuccessful(ctx, movie, "dlhub"), ShouldBeNil)
				id, err = b.LastSuccessful(ctx, movie)
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "dlhub")
			})
		})
	}
}

func TestEmptyBackendHasNoLastSuccessful(t *testing.T) {
	Convey("A fresh backend has no last successful source", t, func() {
		id, err := NewMemory().LastSuccessful(context.Background(), media.Key("movie-1"))
		So(err, ShouldBeNil)
		So(id, ShouldBeEmpty)

		lite, err := OpenSQLite(context.Background(), ":memory:")
		So(err, ShouldBeNil)
		defer lite.Close()
		id, err = lite.LastSuccessful(context.Background(), media.Key("movie-1"))
		So(err, ShouldBeNil)
		So(id, ShouldBeEmpty)
	})
}

func TestOpen(t *testing.T) {
	Convey("Open", t, func() {
		b, err := Open(context.Background(), Options{Driver: "memory"})
		So(err, ShouldBeNil)
		So(b, ShouldHaveSameTypeAs, &Memory{})

		_, err = Open(context.Background(), Options{Driver: "etcd"})
		So(err, ShouldNotBeNil)
	})
}

func TestStorePreferences(t *testing.T) {
	Convey("Store exposes preferences and the backend", t, func() {
		s := New(NewMemory(), Preferences{Token: "abc", EnableLastSuccessful: true})
		So(s.Token(), ShouldEqual, "abc")
		So(s.Preferences().EnableLastSuccessful, ShouldBeTrue)
		So(s.SetLastSuccessful(context.Background(), media.Key("movie-1"), "dlhub"), ShouldBeNil)
	})
}
