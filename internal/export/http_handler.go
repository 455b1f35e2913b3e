package export

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Handler streams written export files to clients holding a valid download token.
type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		http.Error(w, "missing export identifier", http.StatusBadRequest)
		return
	}
	fileID, err := uuid.Parse(path[idx+1:])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid export identifier: %v", err), http.StatusBadRequest)
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if err := h.service.ValidateDownloadToken(fileID, token); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	file, handle, err := h.service.Open(fileID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrFileNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer handle.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Name))
	if file.Bytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Bytes, 10))
	}
	http.ServeContent(w, r, file.Name, file.CreatedAt, handle)
}
