package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/usecase"
)

const maxImportBytes = 10 << 20

type LeadHandler struct {
	Service *usecase.LeadService
	Logger  logrus.FieldLogger
}

func NewLeadHandler(service *usecase.LeadService, logger logrus.FieldLogger) *LeadHandler {
	return &LeadHandler{
		Service: service,
		Logger:  logger,
	}
}

type CreateLeadResponse struct {
	ID int64 `json:"id"`
}

type UpdateStageRequest struct {
	Stage string `json:"stage"`
}

// Routes mounts the lead endpoints on r.
func (h *LeadHandler) Routes(r chi.Router) {
	r.Get("/stages", h.Stages)
	r.Get("/dashboard", h.Dashboard)

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/interests", h.Interests)
		r.Post("/import", h.Import)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Patch("/stage", h.UpdateStage)
			r.Delete("/", h.Delete)
		})
	})
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leads, err := h.Service.List(r.Context(), entity.LeadFilter{
		Search:   q.Get("search"),
		Stage:    q.Get("stage"),
		Interest: q.Get("interest"),
	})
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if leads == nil {
		leads = []entity.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input entity.LeadInput
	if !decodeJSON(w, r, &input) {
		return
	}

	id, err := h.Service.Create(r.Context(), input)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateLeadResponse{ID: id})
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	lead, found, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, CodeNotFound, entity.ErrLeadNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	var input entity.LeadInput
	if !decodeJSON(w, r, &input) {
		return
	}

	if err := h.Service.Update(r.Context(), id, input); err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeLead(w, r, id)
}

func (h *LeadHandler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	var req UpdateStageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Service.UpdateStage(r.Context(), id, req.Stage); err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.writeLead(w, r, id)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	removed, err := h.Service.Delete(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if removed {
		middleware.RecordLeadDeleted()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeadHandler) Interests(w http.ResponseWriter, r *http.Request) {
	interests, err := h.Service.DistinctInterests(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if interests == nil {
		interests = []string{}
	}
	writeJSON(w, http.StatusOK, interests)
}

func (h *LeadHandler) Stages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, entity.Stages())
}

func (h *LeadHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	top := limitParam(q.Get("top"), usecase.DefaultTopInterests)
	recent := limitParam(q.Get("recent"), usecase.DefaultRecent)

	data, err := h.Service.Dashboard(r.Context(), top, recent)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Import takes the raw CSV file as the request body.
func (h *LeadHandler) Import(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)

	result, err := h.Service.ImportCSV(r.Context(), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, usecase.ErrEmptyCSV), errors.Is(err, usecase.ErrCSVHeader):
			writeError(w, http.StatusBadRequest, CodeInvalidCSV, err.Error())
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidCSV, "csv file too large")
		default:
			h.serviceError(w, r, err)
		}
		return
	}

	middleware.RecordImport(result.Imported, result.Skipped)
	writeJSON(w, http.StatusOK, result)
}

func (h *LeadHandler) writeLead(w http.ResponseWriter, r *http.Request, id int64) {
	lead, found, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, CodeNotFound, entity.ErrLeadNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve usecase.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   CodeValidationError,
			Message: ve.Message,
			Field:   ve.Field,
		})
	case errors.Is(err, entity.ErrLeadNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	default:
		h.Logger.WithError(err).WithField("path", r.URL.Path).Error("lead request failed")
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidID, "invalid lead id: "+raw)
		return 0, false
	}
	return id, true
}

// limitParam falls back to def for a missing or malformed value.
func limitParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
