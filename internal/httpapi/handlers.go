package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/srg/tagscan/internal/session"
	"github.com/srg/tagscan/internal/source"
	"github.com/srg/tagscan/internal/tag"
)

type handlers struct {
	svc    Service
	logger *logrus.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type countResponse struct {
	Count int `json:"count"`
}

type sightingsResponse struct {
	Records []tag.Record `json:"records"`
	New     int          `json:"new"`
	Updated int          `json:"updated"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tag.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrNotConnected), errors.Is(err, session.ErrNoSource):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	writeError(w, status, err.Error())
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	_, _ = fmt.Fprintln(w, "OK")
}

func (h *handlers) listTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *handlers) countTags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, countResponse{Count: h.svc.Count()})
}

func (h *handlers) getTag(w http.ResponseWriter, r *http.Request) {
	epc := mux.Vars(r)["epc"]
	rec, ok := h.svc.Get(epc)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("tag %s not found", epc))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handlers) deleteAllTags(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) recordSightings(w http.ResponseWriter, r *http.Request) {
	var sightings []tag.Sighting
	if err := json.NewDecoder(r.Body).Decode(&sightings); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	batch, err := h.svc.RecordBatch(r.Context(), sightings)
	if err != nil && !errors.Is(err, session.ErrPersist) {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		// Sightings are aggregated; only durability is affected.
		h.logger.WithError(err).Warn("Sightings recorded but not fully persisted")
	}

	records := batch.Records
	if records == nil {
		records = []tag.Record{}
	}
	writeJSON(w, http.StatusOK, sightingsResponse{Records: records, New: batch.New, Updated: batch.Updated})
}

func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Trigger(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) recentTriggers(w http.ResponseWriter, _ *http.Request) {
	recent := h.svc.RecentTriggers()
	if recent == nil {
		recent = []session.TriggerSummary{}
	}
	writeJSON(w, http.StatusOK, recent)
}
