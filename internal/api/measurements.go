package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smartpot-core/internal/telemetry"
)

// handleIngest accepts one sample from a device.
//
// Numbers are decoded as json.Number so integer readings keep their exact
// value until validation converts them.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}

	var sample telemetry.Sample
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&sample); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.ingester.Ingest(r.Context(), sample)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleHistory returns a flower's stored measurements, newest first.
//
// Query parameters:
//   - type: typeOfData or metric name (soil and humidity are equivalent); all when empty
//   - from, to: RFC 3339 window bounds, inclusive
//   - limit: maximum records
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	flowerID := chi.URLParam(r, "id")

	query, err := parseHistoryQuery(r)
	if err != nil {
		writeValidationError(w, "invalid query", err.Error())
		return
	}
	if _, err := s.flowers.GetFlower(r.Context(), flowerID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	measurements, err := s.measurements.History(r.Context(), flowerID, query)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if measurements == nil {
		measurements = []telemetry.Measurement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"flower_id":    flowerID,
		"measurements": measurements,
		"count":        len(measurements),
	})
}

// handleLatest returns the newest measurement of each metric, 404 when the
// flower has none.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	flowerID := chi.URLParam(r, "id")

	if _, err := s.flowers.GetFlower(r.Context(), flowerID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	latest, err := s.measurements.Latest(r.Context(), flowerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"flower_id": flowerID,
		"latest":    latest,
	})
}

func parseHistoryQuery(r *http.Request) (telemetry.HistoryQuery, error) {
	q := r.URL.Query()
	query := telemetry.HistoryQuery{Metric: q.Get("type")}

	if query.Metric != "" {
		if _, ok := telemetry.MetricFor(query.Metric); !ok {
			return query, fmt.Errorf("unknown type %q", query.Metric)
		}
	}

	var err error
	if v := q.Get("from"); v != "" {
		if query.From, err = time.Parse(time.RFC3339, v); err != nil {
			return query, fmt.Errorf("from must be RFC 3339: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if query.To, err = time.Parse(time.RFC3339, v); err != nil {
			return query, fmt.Errorf("to must be RFC 3339: %w", err)
		}
	}
	if v := q.Get("limit"); v != "" {
		if query.Limit, err = strconv.Atoi(v); err != nil || query.Limit < 0 {
			return query, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	return query, nil
}
