// Package httpapi exposes the public HTTP surface of the forms service.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/formsdesk/formsdesk/internal/app"
	"github.com/formsdesk/formsdesk/internal/app/domain/record"
	"github.com/formsdesk/formsdesk/internal/app/metrics"
	"github.com/formsdesk/formsdesk/internal/app/services/forms"
	"github.com/formsdesk/formsdesk/internal/pdf"
	"github.com/formsdesk/formsdesk/pkg/logger"
)

// maxFormBodyBytes bounds submitted form bodies. Embedded signature images
// make submissions large, but not unbounded.
const maxFormBodyBytes = 8 << 20 // 8 MiB

// handler bundles the forms HTTP endpoints.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns a router exposing the forms REST surface plus health
// and metrics endpoints.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/forms/{type}", h.list).Methods(http.MethodGet)
	r.HandleFunc("/forms/{type}", h.create).Methods(http.MethodPost)
	r.HandleFunc("/forms/{type}/{id}", h.update).Methods(http.MethodPost)
	r.HandleFunc("/forms/{type}/{id}/pdf", h.exportPDF).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	typ, ok := h.formType(w, r)
	if !ok {
		return
	}

	filter := forms.Filter{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("from must be an ISO date"))
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("to must be an ISO date"))
			return
		}
		// Inclusive upper bound: the whole named day counts.
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}

	recs, err := h.app.Forms.List(r.Context(), typ, filter)
	if err != nil {
		h.log.WithError(err).Error("list records")
		writeError(w, http.StatusInternalServerError, errGeneric)
		return
	}
	writeJSON(w, http.StatusOK, recordsPayload(recs))
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	typ, ok := h.formType(w, r)
	if !ok {
		return
	}
	fields, action, ok := h.formFields(w, r)
	if !ok {
		return
	}

	rec, fieldErrs, err := h.app.Forms.Create(r.Context(), typ, fields)
	if err != nil {
		h.log.WithError(err).Error("create record")
		writeError(w, http.StatusInternalServerError, errGeneric)
		return
	}
	if len(fieldErrs) > 0 {
		// Field errors travel with the original input so nothing is lost on
		// a rejected submission.
		writeValidationErrors(w, fieldErrs, fields)
		return
	}

	if action == "export" {
		h.servePDF(w, r, typ, rec.ID)
		return
	}
	writeJSON(w, http.StatusCreated, recordPayload(rec))
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	typ, ok := h.formType(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	fields, action, ok := h.formFields(w, r)
	if !ok {
		return
	}

	rec, fieldErrs, err := h.app.Forms.Update(r.Context(), typ, id, fields)
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			writeError(w, http.StatusNotFound, errNotFound)
			return
		}
		h.log.WithError(err).Error("update record")
		writeError(w, http.StatusInternalServerError, errGeneric)
		return
	}
	if len(fieldErrs) > 0 {
		writeValidationErrors(w, fieldErrs, fields)
		return
	}

	if action == "export" {
		h.servePDF(w, r, typ, rec.ID)
		return
	}
	writeJSON(w, http.StatusOK, recordPayload(rec))
}

func (h *handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	typ, ok := h.formType(w, r)
	if !ok {
		return
	}
	h.servePDF(w, r, typ, mux.Vars(r)["id"])
}

func (h *handler) servePDF(w http.ResponseWriter, r *http.Request, typ record.FormType, id string) {
	export, err := h.app.Forms.ExportPDF(r.Context(), typ, id)
	if err != nil {
		var incomplete *forms.IncompleteError
		var renderErr *pdf.RenderError
		switch {
		case errors.Is(err, forms.ErrNotFound):
			writeError(w, http.StatusNotFound, errNotFound)
		case errors.As(err, &incomplete):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   "record is incomplete; complete it before exporting",
				"missing": incomplete.Missing,
			})
		case errors.As(err, &renderErr):
			// Render faults are retryable by the user, never automatically.
			h.log.WithError(err).Error("pdf render failed")
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     "export failed",
				"retryable": true,
			})
		default:
			h.log.WithError(err).Error("export record")
			writeError(w, http.StatusInternalServerError, errGeneric)
		}
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.PDF)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.PDF)
}

// formType resolves the route's {type} variable. An unknown type is a plain
// not-found, exactly like an unknown id.
func (h *handler) formType(w http.ResponseWriter, r *http.Request) (record.FormType, bool) {
	typ, err := record.ParseFormType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, http.StatusNotFound, errNotFound)
		return "", false
	}
	return typ, true
}

// formFields parses the submitted form body into a flat field map plus the
// action discriminator ("export" or default save).
func (h *handler) formFields(w http.ResponseWriter, r *http.Request) (map[string]string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed form body"))
		return nil, "", false
	}

	fields := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		fields[key] = r.PostForm.Get(key)
	}
	action := fields["action"]
	delete(fields, "action")
	return fields, action, true
}

var (
	errGeneric  = errors.New("something went wrong")
	errNotFound = errors.New("not found")
)

type recordJSON struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Data      record.Data `json:"data"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func recordPayload(rec record.Record) recordJSON {
	return recordJSON{
		ID:        rec.ID,
		Type:      string(rec.Type),
		Data:      rec.Data,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func recordsPayload(recs []record.Record) []recordJSON {
	out := make([]recordJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, recordPayload(rec))
	}
	return out
}

func writeValidationErrors(w http.ResponseWriter, fieldErrs record.FieldErrors, values map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"errors": fieldErrs,
		"values": values,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
