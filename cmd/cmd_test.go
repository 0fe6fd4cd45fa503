package cmd

import (
	"errors"
	"testing"

	"reelscout/internal/config"
	"reelscout/internal/httputil"
	"reelscout/internal/media"
	"reelscout/internal/scrape"
	"reelscout/internal/store"
)

func TestDescriptorFromFlags(t *testing.T) {
	defer func() {
		flagResolveType, flagResolveTitle = "movie", ""
		flagResolveSeason, flagResolveSeasonID, flagResolveEpisode, flagResolveEpisodeID = 0, "", 0, ""
	}()

	flagResolveType, flagResolveTitle = "movie", "The Matrix"
	d, err := descriptorFromFlags("603")
	if err != nil {
		t.Fatal(err)
	}
	if d.Key() != "movie-603" || d.Season != nil {
		t.Errorf("descriptor = %+v", d)
	}

	flagResolveType = "show"
	if _, err := descriptorFromFlags("1396"); !errors.Is(err, media.ErrInvalidDescriptor) {
		t.Errorf("show without ids: err = %v", err)
	}

	flagResolveSeason, flagResolveSeasonID, flagResolveEpisode, flagResolveEpisodeID = 1, "3572", 2, "62086"
	d, err = descriptorFromFlags("1396")
	if err != nil {
		t.Fatal(err)
	}
	if d.Key() != "show-1396-3572-62086" {
		t.Errorf("key = %s", d.Key())
	}

	flagResolveType = "book"
	if _, err := descriptorFromFlags("1"); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestParseKindArg(t *testing.T) {
	tests := []struct {
		args []string
		want media.Kind
	}{
		{nil, media.Movie},
		{[]string{"movies"}, media.Movie},
		{[]string{"tv"}, media.Show},
		{[]string{"Series"}, media.Show},
	}
	for _, tt := range tests {
		if got := parseKindArg(tt.args); got != tt.want {
			t.Errorf("parseKindArg(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestNewRegistry(t *testing.T) {
	c := config.Default()
	c.Catalog.Addons = []config.AddonConfig{{ID: "community", URL: "https://addon.example"}}

	reg, flix, err := newRegistry(c, httputil.NewClient())
	if err != nil {
		t.Fatal(err)
	}
	if flix == nil {
		t.Fatal("flixhq source missing")
	}
	if d, ok := reg.Lookup("community"); !ok || d.Name != "community" {
		t.Errorf("addon = %+v, %v", d, ok)
	}
	for _, id := range []string{"flixhq", "vidcloud", "upcloud"} {
		if _, ok := reg.Lookup(id); !ok {
			t.Errorf("%s not registered", id)
		}
	}

	c.Catalog.Addons = append(c.Catalog.Addons, config.AddonConfig{ID: "flixhq", URL: "https://other.example"})
	if _, _, err := newRegistry(c, httputil.NewClient()); err == nil {
		t.Error("duplicate ids should fail")
	}
}

func TestNewCustoms(t *testing.T) {
	c := config.Default()
	st := store.New(store.NewMemory(), store.Preferences{})

	if n := newCustoms(c, httputil.NewClient(), st).Len(); n != 0 {
		t.Errorf("disabled providers built %d adapters", n)
	}

	c.Providers.DLHub.Enabled = true
	c.Providers.TokenAPI.Enabled = true
	table := newCustoms(c, httputil.NewClient(), st)
	if table.Len() != 2 {
		t.Fatalf("adapters = %d, want 2", table.Len())
	}
	for _, id := range []string{"dlhub", "tokenapi"} {
		if _, ok := table.Get(id); !ok {
			t.Errorf("%s missing", id)
		}
	}
}

func TestSwitchObserver(t *testing.T) {
	var got []string
	s := &switchObserver{}
	s.SessionChanged(scrape.Snapshot{SessionID: "dropped"})

	s.set(scrape.ObserverFunc(func(snap scrape.Snapshot) { got = append(got, snap.SessionID) }))
	s.SessionChanged(scrape.Snapshot{SessionID: "a"})
	s.set(nil)
	s.SessionChanged(scrape.Snapshot{SessionID: "b"})

	if len(got) != 1 || got[0] != "a" {
		t.Errorf("forwarded = %v, want [a]", got)
	}
}
