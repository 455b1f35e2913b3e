package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/colmap/internal/domain"
)

const inspectPreviewRows = 10

// Handler inspects an upload without loading it into a session: it reports worksheets,
// detected columns and the first rows.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

// Inspection is the response body of the inspect endpoint.
type Inspection struct {
	Columns    []string          `json:"columns"`
	Preview    []domain.Record   `json:"preview"`
	Provenance domain.Provenance `json:"provenance"`
	Delimiter  string            `json:"delimiter,omitempty"`
	Encoding   string            `json:"encoding,omitempty"`
	Worksheets []string          `json:"worksheets,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, cleanup, err := ReadUpload(r, h.service.maxBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer cleanup()

	result, err := h.service.Parse(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), StatusFor(err))
		return
	}

	preview := result.Rows
	if len(preview) > inspectPreviewRows {
		preview = preview[:inspectPreviewRows]
	}
	writeJSON(w, http.StatusOK, Inspection{
		Columns:    result.Columns,
		Preview:    preview,
		Provenance: result.Provenance,
		Delimiter:  result.Delimiter,
		Encoding:   result.Encoding,
		Worksheets: result.Worksheets,
	})
}

// ReadUpload extracts the multipart "file" field plus the optional "worksheet" and
// "headerRow" fields. The returned cleanup closes the file.
func ReadUpload(r *http.Request, maxBytes int64) (Request, func(), error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return Request{}, nil, fmt.Errorf("invalid form data: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return Request{}, nil, fmt.Errorf("file required: %w", err)
	}

	req := Request{
		FileName:  header.Filename,
		Worksheet: strings.TrimSpace(r.FormValue("worksheet")),
		Data:      file,
	}
	if raw := strings.TrimSpace(r.FormValue("headerRow")); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			_ = file.Close()
			return Request{}, nil, fmt.Errorf("invalid headerRow: %w", err)
		}
		req.HeaderRowIndex = &index
	}
	return req, func() { _ = file.Close() }, nil
}

// StatusFor maps ingestion errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrWorksheetNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
