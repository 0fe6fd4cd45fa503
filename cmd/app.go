package cmd

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/bridge"
	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/extract"
	"reelscout/internal/httputil"
	"reelscout/internal/provider"
	"reelscout/internal/remote"
	"reelscout/internal/scrape"
	"reelscout/internal/source"
	"reelscout/internal/store"
	"reelscout/internal/tui"
)

// app is everything a command needs, built from cfg.
type app struct {
	client   *http.Client
	flix     *source.FlixHQ
	registry *catalog.Registry
	customs  provider.Table
	store    *store.Store
	bridge   *bridge.Local
	remote   *remote.Client
	scrape   *scrape.Orchestrator
	observer *switchObserver
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	client := httputil.NewClientWithOptions(httputil.ClientOptions{Fingerprint: c.Relay.Fingerprint})

	registry, flix, err := newRegistry(c, client)
	if err != nil {
		return nil, err
	}

	path, err := c.StorePath()
	if err != nil {
		return nil, err
	}
	backend, err := store.Open(ctx, store.Options{
		Driver:    c.Store.Driver,
		Path:      path,
		RedisAddr: c.Store.RedisAddr,
		RedisDB:   c.Store.RedisDB,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	st := store.New(backend, store.Preferences{
		DisabledSources:      c.Preferences.DisabledSources,
		DisabledEmbeds:       c.Preferences.DisabledEmbeds,
		SourceOrder:          c.Preferences.SourceOrder,
		EnableSourceOrder:    c.Preferences.EnableSourceOrder,
		EmbedOrder:           c.Preferences.EmbedOrder,
		EnableEmbedOrder:     c.Preferences.EnableEmbedOrder,
		EnableLastSuccessful: c.Preferences.EnableLastSuccessful,
		Token:                c.Preferences.Token,
	})

	a := &app{
		client:   client,
		flix:     flix,
		registry: registry,
		customs:  newCustoms(c, client, st),
		store:    st,
		bridge:   bridge.NewLocal(c.Bridge.Enabled),
		observer: &switchObserver{},
	}

	opts := scrape.Options{
		Customs:     a.customs,
		Runner:      registry,
		Bridge:      a.bridge,
		Preferences: st,
		Failures:    st,
		Metadata:    registry,
		Observer:    a.observer,
	}
	if c.Remote.URL != "" {
		rc, err := remote.NewClient(c.Remote.URL, httputil.NewClientWithOptions(httputil.ClientOptions{Timeout: remoteTimeout}))
		if err != nil {
			backend.Close()
			return nil, err
		}
		a.remote = rc
		opts.Channel = rc
		if !a.bridge.Active() {
			opts.Metadata = rc
		}
	}
	a.scrape = scrape.New(opts)

	log.WithFields(log.Fields{
		"customs": a.customs.Len(),
		"sources": len(registry.Sources()),
		"embeds":  len(registry.Embeds()),
		"remote":  c.Remote.URL,
		"bridge":  a.bridge.Active(),
	}).Debug("app ready")
	return a, nil
}

// remoteTimeout bounds a whole remote bulk phase, event stream included.
const remoteTimeout = 5 * time.Minute

// newRegistry builds the catalog sources and embeds the local runner and the
// resolver server use.
func newRegistry(c *config.Config, client *http.Client) (*catalog.Registry, *source.FlixHQ, error) {
	flix := source.NewFlixHQ(c.Catalog.FlixHQBase, client)
	sources := []catalog.Source{flix}
	for i, ac := range c.Catalog.Addons {
		sources = append(sources, source.NewAddon(ac.ID, ac.Name, ac.URL, 50-i, client))
	}

	embeds := []catalog.Embed{
		extract.NewMegaCloud(client, c.Catalog.FlixHQBase+"/", extract.DefaultKeysURL),
	}
	if c.Catalog.DecryptAPI != "" {
		embeds = append(embeds, extract.NewDecryptAPI(c.Catalog.DecryptAPI, client))
	}

	registry, err := catalog.NewRegistry(sources, embeds)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building catalog")
	}
	return registry, flix, nil
}

// newCustoms builds the custom adapter table, each adapter bounded by the
// configured timeout.
func newCustoms(c *config.Config, client *http.Client, st *store.Store) provider.Table {
	var adapters []provider.Adapter
	if c.Providers.DLHub.Enabled {
		relay := httputil.NewRelay(client, c.Relay.URLs)
		adapters = append(adapters, provider.NewDLHub(c.Providers.DLHub.Base, relay))
	}
	if c.Providers.TokenAPI.Enabled {
		adapters = append(adapters, provider.NewTokenAPI(c.Providers.TokenAPI.Base, client, st.Token, c.Providers.TokenAPI.SharedToken))
	}
	if d := c.Timeout(); d > 0 {
		for i, a := range adapters {
			adapters[i] = provider.WithTimeout(a, d)
		}
	}
	return provider.NewTable(adapters...)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		debugf("closing store: %v", err)
	}
}

// switchObserver forwards session changes to whichever view is current.
type switchObserver struct {
	mu     sync.Mutex
	target scrape.Observer
}

func (s *switchObserver) set(o scrape.Observer) {
	s.mu.Lock()
	s.target = o
	s.mu.Unlock()
}

func (s *switchObserver) SessionChanged(snap scrape.Snapshot) {
	s.mu.Lock()
	t := s.target
	s.mu.Unlock()
	if t != nil {
		t.SessionChanged(snap)
	}
}

// watch attaches a progress view for title, or plain log lines when stderr
// is not a terminal. The returned func detaches it.
func (a *app) watch(title string, cancel context.CancelFunc) func() {
	if flagJSON || !tui.IsTerminal(os.Stderr) {
		a.observer.set(tui.NewLogObserver())
		return func() { a.observer.set(nil) }
	}
	p := tui.Start(title, os.Stderr, cancel)
	a.observer.set(p)
	return func() {
		a.observer.set(nil)
		p.Stop()
	}
}
