package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/dataset"
	"analyst-sandbox/internal/monitor"
	"analyst-sandbox/internal/present"
	"analyst-sandbox/internal/storage"
	"analyst-sandbox/internal/turn"
	"analyst-sandbox/internal/validator"
)

// turnReader loads audited turns. *storage.DB implements it.
type turnReader interface {
	GetTurn(ctx context.Context, id string) (*storage.TurnRecord, error)
}

type Handlers struct {
	processor *turn.Processor
	validator *validator.Validator
	datasets  *dataset.Store
	turns     turnReader
	metrics   *monitor.Metrics
}

func NewHandlers(processor *turn.Processor, v *validator.Validator, datasets *dataset.Store, db *storage.DB, metrics *monitor.Metrics) *Handlers {
	h := &Handlers{
		processor: processor,
		validator: v,
		datasets:  datasets,
		metrics:   metrics,
	}
	if db != nil {
		h.turns = db
	}
	return h
}

func (h *Handlers) HandleCreateDataset(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "dataset"
	}

	ds, err := dataset.LoadCSV(name, r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "dataset exceeds request size limit", "TOO_LARGE", http.StatusRequestEntityTooLarge, r)
			return
		}
		writeError(w, "invalid CSV: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	h.datasets.Add(ds)
	h.metrics.DatasetsLoaded.Set(float64(h.datasets.Len()))

	info := ds.Info()
	log.Info().
		Str("dataset_id", info.ID).
		Str("name", info.Name).
		Int("rows", info.Rows).
		Int("columns", len(info.Columns)).
		Str("request_id", RequestIDFromContext(r.Context())).
		Msg("dataset loaded")

	writeJSON(w, http.StatusCreated, info)
}

func (h *Handlers) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.lookupDataset(w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds.Info())
}

func (h *Handlers) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.lookupDataset(w, r, id); !ok {
		return
	}
	h.datasets.Delete(id)
	h.metrics.DatasetsLoaded.Set(float64(h.datasets.Len()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Response == "" {
		writeError(w, "response is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	switch req.Format {
	case "", "json", "html":
	default:
		writeError(w, "format must be json or html", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.processor == nil {
		writeError(w, "sandbox unavailable", "RUNNER_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	var ds *dataset.Dataset
	if req.DatasetID != "" {
		var ok bool
		if ds, ok = h.lookupDataset(w, r, req.DatasetID); !ok {
			return
		}
	}

	res := h.processor.Process(r.Context(), req.Response, ds)
	payload := present.BuildPayload(res)

	if req.Format != "html" {
		writeJSON(w, http.StatusOK, payload)
		return
	}

	html, err := present.RenderHTML(payload)
	if err != nil {
		log.Error().Err(err).Str("turn_id", res.ID).Msg("rendering turn failed")
		writeError(w, "rendering failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}
	writeJSON(w, http.StatusOK, TurnResponse{Payload: payload, HTML: html})
}

func (h *Handlers) HandleGetTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "turn ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.turns == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	rec, err := h.turns.GetTurn(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, "turn not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("turn_id", id).Msg("loading turn failed")
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Code == "" {
		writeError(w, "code is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	resp := ValidateResponse{
		Verdict:    h.processor.Validate(r.Context(), req.Code),
		Detections: h.validator.Scan(req.Code),
	}
	if resp.Detections == nil {
		resp.Detections = []validator.Detection{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) lookupDataset(w http.ResponseWriter, r *http.Request, id string) (*dataset.Dataset, bool) {
	if id == "" {
		writeError(w, "dataset ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return nil, false
	}
	ds, err := h.datasets.Get(id)
	if err != nil {
		writeError(w, "dataset not found", "NOT_FOUND", http.StatusNotFound, r)
		return nil, false
	}
	return ds, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
