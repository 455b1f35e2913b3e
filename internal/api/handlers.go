// Package api exposes the mapping session over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rpattn/colmap/internal/domain"
	"github.com/rpattn/colmap/internal/export"
	"github.com/rpattn/colmap/internal/grouping"
	"github.com/rpattn/colmap/internal/ingestion"
	"github.com/rpattn/colmap/internal/mapping"
	"github.com/rpattn/colmap/internal/materialize"
	"github.com/rpattn/colmap/internal/middleware"
	"github.com/rpattn/colmap/internal/profile"
	"github.com/rpattn/colmap/internal/transformations"
)

const maxProfileBytes = 1 << 20

type Handler struct {
	Machine   *mapping.Machine
	Ingestion *ingestion.Service
	Evaluator *transformations.Evaluator
	Exports   *export.Service
	Uploads   *middleware.UploadGate
	MaxUpload int64
}

func NewHandler(machine *mapping.Machine, ingest *ingestion.Service, evaluator *transformations.Evaluator, exports *export.Service) *Handler {
	return &Handler{
		Machine:   machine,
		Ingestion: ingest,
		Evaluator: evaluator,
		Exports:   exports,
		Uploads:   middleware.NewUploadGate(),
		MaxUpload: ingestion.DefaultMaxBytes,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/api/schemas", h.ListSchemas)

	r.Method(http.MethodPost, "/api/files/inspect", ingestion.NewHTTPHandler(h.Ingestion))
	r.Post("/api/files/worksheets", h.ListWorksheets)
	r.Method(http.MethodGet, "/api/exports/{id}", export.NewHTTPHandler(h.Exports))
	r.Method(http.MethodHead, "/api/exports/{id}", export.NewHTTPHandler(h.Exports))

	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Method(http.MethodPost, "/upload", h.Uploads.Wrap(http.HandlerFunc(h.Upload)))
		r.Post("/select-source", h.SelectSource)
		r.Post("/select-target", h.SelectTarget)
		r.Delete("/edges/{source}/{ordinal}", h.Disconnect)
		r.Put("/edges/{source}/{ordinal}/transform", h.SetTransform)
		r.Post("/preview", h.Preview)
		r.Put("/filters", h.SetFilters)
		r.Put("/schema", h.SetSchema)
		r.Post("/reset", h.Reset)
		r.Get("/groups", h.GetGroups)
		r.Post("/export", h.Export)
		r.Get("/profile", h.GetProfile)
		r.Post("/profile", h.ApplyProfile)
	})
}

// ============================================================================
// Views
// ============================================================================

// SessionView is the rendered state of the session.
type SessionView struct {
	Schema         string               `json:"schema"`
	SchemaColumns  []string             `json:"schemaColumns"`
	Provenance     *domain.Provenance   `json:"provenance,omitempty"`
	RowCount       int                  `json:"rowCount"`
	SourceColumns  []string             `json:"sourceColumns"`
	VisibleSources []string             `json:"visibleSources"`
	Targets        []grouping.Entry     `json:"targets"`
	SelectedSource *string              `json:"selectedSource"`
	SelectedTarget *string              `json:"selectedTarget"`
	SourceFilter   string               `json:"sourceFilter"`
	TargetFilter   string               `json:"targetFilter"`
	Edges          []domain.MappingEdge `json:"edges"`
	NextOrdinal    int                  `json:"nextOrdinal"`
}

func newSessionView(s mapping.State) SessionView {
	view := SessionView{
		Schema:         s.Schema.Name,
		SchemaColumns:  s.Schema.Columns,
		SourceColumns:  s.SourceColumns(),
		VisibleSources: s.VisibleSources(),
		Targets:        s.TargetEntries(),
		SelectedSource: s.SelectedSource,
		SelectedTarget: s.SelectedTarget,
		SourceFilter:   s.SourceFilter,
		TargetFilter:   s.TargetFilter,
		Edges:          s.Edges(),
		NextOrdinal:    s.NextOrdinal,
	}
	if s.Dataset != nil {
		provenance := s.Dataset.Provenance
		view.Provenance = &provenance
		view.RowCount = len(s.Dataset.Rows)
	}
	if view.SourceColumns == nil {
		view.SourceColumns = []string{}
	}
	if view.VisibleSources == nil {
		view.VisibleSources = []string{}
	}
	if view.Edges == nil {
		view.Edges = []domain.MappingEdge{}
	}
	return view
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := make([]domain.TargetSchema, 0, len(domain.BuiltinSchemaNames()))
	for _, name := range domain.BuiltinSchemaNames() {
		schema, _ := domain.BuiltinSchema(name)
		schemas = append(schemas, schema)
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.State()))
}

func (h *Handler) GetGroups(w http.ResponseWriter, r *http.Request) {
	s := h.Machine.State()
	groups := s.TargetGroups()
	if groups == nil {
		groups = []domain.ColumnGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schema": s.Schema.Name,
		"groups": groups,
	})
}

// ============================================================================
// Files
// ============================================================================

// Upload parses a file and replaces the session's dataset. The state is untouched when
// parsing fails.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := ingestion.ReadUpload(r, h.MaxUpload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	result, err := h.Ingestion.Parse(r.Context(), req)
	if err != nil {
		log.Printf("[HTTP] upload %s rejected: %v", req.FileName, err)
		http.Error(w, err.Error(), ingestion.StatusFor(err))
		return
	}
	dataset, err := result.Dataset()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := h.Machine.LoadDataset(dataset)
	log.Printf("[HTTP] loaded %s (%d columns, %d rows)", result.Provenance.FileName, len(result.Columns), len(result.Rows))
	writeJSON(w, http.StatusOK, map[string]any{
		"session":    newSessionView(state),
		"delimiter":  result.Delimiter,
		"encoding":   result.Encoding,
		"worksheets": result.Worksheets,
	})
}

func (h *Handler) ListWorksheets(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := ingestion.ReadUpload(r, h.MaxUpload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	sheets, err := h.Ingestion.Worksheets(r.Context(), req.FileName, req.Data)
	if err != nil {
		http.Error(w, err.Error(), ingestion.StatusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"worksheets": sheets})
}

// ============================================================================
// Mapping
// ============================================================================

type columnRequest struct {
	Column string `json:"column"`
}

func (h *Handler) SelectSource(w http.ResponseWriter, r *http.Request) {
	var body columnRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.SelectSource(body.Column)))
}

func (h *Handler) SelectTarget(w http.ResponseWriter, r *http.Request) {
	var body columnRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.SelectTarget(body.Column)))
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	key, err := connectionKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.Disconnect(key)))
}

type transformRequest struct {
	Expression string `json:"expression"`
}

// SetTransform attaches an expression to an edge. Expressions that do not compile are
// rejected so a broken transform never reaches the session.
func (h *Handler) SetTransform(w http.ResponseWriter, r *http.Request) {
	key, err := connectionKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body transformRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if _, ok := h.Machine.State().Edge(key); !ok {
		http.Error(w, fmt.Sprintf("no connection %s", key), http.StatusNotFound)
		return
	}
	if err := h.Evaluator.Compile(body.Expression); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.SetTransform(key, body.Expression)))
}

type previewRequest struct {
	Source     string `json:"source"`
	Expression string `json:"expression"`
	Limit      int    `json:"limit"`
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var body previewRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	s := h.Machine.State()
	if s.Dataset == nil {
		http.Error(w, "no dataset loaded", http.StatusBadRequest)
		return
	}
	if !s.Dataset.HasColumn(body.Source) {
		http.Error(w, fmt.Sprintf("unknown source column %q", body.Source), http.StatusNotFound)
		return
	}
	limit := body.Limit
	if limit <= 0 {
		limit = materialize.DefaultPreviewRows
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows": materialize.Preview(*s.Dataset, body.Source, body.Expression, h.Evaluator, limit),
	})
}

type filterRequest struct {
	Source *string `json:"source"`
	Target *string `json:"target"`
}

func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var body filterRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	state := h.Machine.State()
	if body.Source != nil {
		state = h.Machine.SetSourceFilter(*body.Source)
	}
	if body.Target != nil {
		state = h.Machine.SetTargetFilter(*body.Target)
	}
	writeJSON(w, http.StatusOK, newSessionView(state))
}

type schemaRequest struct {
	Name string `json:"name"`
}

func (h *Handler) SetSchema(w http.ResponseWriter, r *http.Request) {
	var body schemaRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	schema, ok := domain.BuiltinSchema(body.Name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown schema %q", body.Name), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.SetSchema(schema)))
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionView(h.Machine.Reset()))
}

// ============================================================================
// Export and profiles
// ============================================================================

type exportRequest struct {
	Format   string `json:"format"`
	FileName string `json:"fileName"`
}

type exportResponse struct {
	File        export.File `json:"file"`
	DownloadURL string      `json:"downloadUrl"`
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var body exportRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	format, err := export.ParseFormat(body.Format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := h.Machine.State()
	if s.Dataset == nil {
		http.Error(w, "no dataset loaded", http.StatusBadRequest)
		return
	}
	edges := s.Edges()
	records := materialize.Materialize(*s.Dataset, edges, s.Schema, h.Evaluator)
	file, err := h.Exports.Write(r.Context(), export.Request{
		Records:  records,
		Header:   materialize.HeaderFor(edges, s.Schema),
		Schema:   s.Schema,
		FileName: body.FileName,
		Format:   format,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, export.ErrNothingToExport):
			status = http.StatusConflict
		case errors.Is(err, export.ErrUnsupportedFormat):
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusCreated, exportResponse{File: file, DownloadURL: h.Exports.BuildDownloadURL(file)})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p := profile.FromState(r.URL.Query().Get("name"), h.Machine.State())
	data, err := profile.Marshal(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// ApplyProfile reads a YAML profile from the body and applies it to the loaded dataset in
// one transition.
func (h *Handler) ApplyProfile(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxProfileBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("read profile: %v", err), http.StatusBadRequest)
		return
	}
	p, err := profile.Parse(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.Machine.State().Dataset == nil {
		http.Error(w, "no dataset loaded", http.StatusBadRequest)
		return
	}

	var report profile.Report
	state := h.Machine.Update(mapping.EventRestored, func(s mapping.State) mapping.State {
		next, applied := profile.Apply(s, p, h.Evaluator)
		report = applied
		return next
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"report":  report,
		"session": newSessionView(state),
	})
}

// ============================================================================
// Helpers
// ============================================================================

func connectionKey(r *http.Request) (domain.ConnectionKey, error) {
	source, err := url.PathUnescape(chi.URLParam(r, "source"))
	if err != nil {
		return domain.ConnectionKey{}, fmt.Errorf("invalid source: %w", err)
	}
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		return domain.ConnectionKey{}, fmt.Errorf("invalid ordinal: %w", err)
	}
	return domain.ConnectionKey{Source: source, Ordinal: ordinal}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}
