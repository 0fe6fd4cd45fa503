// Package resolver serves the local bulk runner over HTTP: a scrape is
// streamed back as server-sent events, next to the catalog metadata,
// health and prometheus endpoints.
package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"reelscout/internal/event"
	"reelscout/internal/media"
	"reelscout/internal/remote"
)

// Catalog is what the server runs and lists.
type Catalog interface {
	RunAll(ctx context.Context, in event.RunInput) (*media.RunOutput, error)
	Sources() []media.SourceDescriptor
	Embeds() []media.SourceDescriptor
}

// Server is the resolver HTTP service.
type Server struct {
	*chi.Mux
	catalog Catalog
	metrics *metrics
}

// New builds the router. Metrics are registered with reg and exposed from
// the same registry.
func New(c Catalog, reg *prometheus.Registry) *Server {
	s := &Server{
		Mux:     chi.NewRouter(),
		catalog: c,
		metrics: newMetrics(reg),
	}

	s.Use(middleware.RequestID)
	s.Use(middleware.RealIP)
	s.Use(middleware.Recoverer)
	s.Use(requestLogger)

	s.Get("/healthz", s.health)
	s.Get("/metadata", s.metadata)
	s.Get("/scrape", s.scrape)
	s.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("resolver listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"request":  middleware.GetReqID(r.Context()),
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) metadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, remote.Metadata{
		Sources: s.catalog.Sources(),
		Embeds:  s.catalog.Embeds(),
	})
}

// scrape runs the catalog and streams every progress event, ending with
// completed, noOutput or error.
func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	in, err := remote.ParseQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := log.WithFields(log.Fields{"request": middleware.GetReqID(r.Context()), "media": in.Media.Key()})
	send := func(name string, v any) {
		if err := remote.WriteEvent(w, name, v); err != nil {
			logger.WithError(err).WithField("event", name).Debug("failed to write event")
			return
		}
		flusher.Flush()
	}

	in.Events = event.Handler{
		OnInit:  func(e event.Init) { send(event.NameInit, e) },
		OnStart: func(id string) { send(event.NameStart, event.Start{ID: id}) },
		OnUpdate: func(e event.Update) {
			if e.Status.Terminal() {
				s.metrics.segmentsTotal.WithLabelValues(string(e.Status)).Inc()
			}
			send(event.NameUpdate, e)
		},
		OnDiscoverEmbeds: func(e event.DiscoverEmbeds) { send(event.NameDiscoverEmbeds, e) },
	}

	s.metrics.runsActive.Inc()
	start := time.Now()
	out, err := s.catalog.RunAll(r.Context(), in)
	s.metrics.runDuration.Observe(time.Since(start).Seconds())
	s.metrics.runsActive.Dec()

	switch {
	case err != nil:
		logger.WithError(err).Warn("scrape failed")
		s.metrics.runsTotal.WithLabelValues("error").Inc()
		send(event.NameError, map[string]string{"message": err.Error()})
	case out == nil:
		logger.Info("scrape found nothing")
		s.metrics.runsTotal.WithLabelValues("no_output").Inc()
		send(event.NameNoOutput, struct{}{})
	default:
		logger.WithFields(log.Fields{"source": out.SourceID, "embed": out.EmbedID}).Info("scrape completed")
		s.metrics.runsTotal.WithLabelValues("completed").Inc()
		send(event.NameCompleted, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}
