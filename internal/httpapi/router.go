// Package httpapi serves the tracked tags, manual sightings and reader triggers over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/srg/tagscan/aggregator"
	"github.com/srg/tagscan/internal/session"
	"github.com/srg/tagscan/internal/tag"
)

// Service is the subset of session.Session the API drives.
type Service interface {
	Snapshot() []tag.Record
	Count() int
	Get(epc string) (tag.Record, bool)
	RecordBatch(ctx context.Context, sightings []tag.Sighting) (aggregator.BatchSummary, error)
	Trigger(ctx context.Context) (session.TriggerSummary, error)
	RecentTriggers() []session.TriggerSummary
	Clear(ctx context.Context) error
}

var _ Service = (*session.Session)(nil)

// Route declares one endpoint.
type Route struct {
	Name    string
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// NewRouter builds the API. gatherer may be nil to omit /metrics.
func NewRouter(svc Service, gatherer prometheus.Gatherer, logger *logrus.Logger) *mux.Router {
	if logger == nil {
		logger = logrus.New()
	}
	h := &handlers{svc: svc, logger: logger}

	routes := []Route{
		{"Health", http.MethodGet, "/health", h.health},
		{"ListTags", http.MethodGet, "/tags", h.listTags},
		{"CountTags", http.MethodGet, "/tags/count", h.countTags},
		{"GetTag", http.MethodGet, "/tags/{epc}", h.getTag},
		{"DeleteAllTags", http.MethodDelete, "/tags", h.deleteAllTags},
		{"RecordSightings", http.MethodPost, "/sightings", h.recordSightings},
		{"Trigger", http.MethodPost, "/trigger", h.trigger},
		{"RecentTriggers", http.MethodGet, "/triggers", h.recentTriggers},
	}

	router := mux.NewRouter().StrictSlash(true)
	for _, route := range routes {
		var handler http.Handler = route.Handler
		handler = recoverer(logger, handler)
		handler = requestLogger(logger, handler)
		handler = bodyLimiter(handler)

		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(handler)
	}

	if gatherer != nil {
		router.
			Methods(http.MethodGet).
			Path("/metrics").
			Name("Metrics").
			Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("HTTP API stopped")
	return nil
}
