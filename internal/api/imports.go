package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/pipeline"
	"github.com/sells-group/lead-finder/internal/source"
)

type importHandler struct {
	importer Importer
	maxBytes int64
}

type importResponse struct {
	Imported int          `json:"imported"`
	Skipped  int          `json:"skipped"`
	Source   model.Source `json:"source"`
}

// zipMagic opens every XLSX workbook.
var zipMagic = []byte("PK\x03\x04")

// csv accepts a multipart upload with a "file" part and an optional
// "source" field. Workbooks are detected by extension or content.
func (h importHandler) csv(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds the size limit")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_request", "expected a multipart form upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "missing file field")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "could not read upload")
		return
	}

	src := source.NormalizeSource(r.FormValue("source"))
	var stream source.Stream
	if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") || bytes.HasPrefix(data, zipMagic) {
		stream = source.XLSXRows(r.Context(), data, src)
	} else {
		stream = source.CSVRows(r.Context(), bytes.NewReader(data), src)
	}
	h.ingest(w, r, stream, src)
}

type leadsJSONRequest struct {
	Source string           `json:"source"`
	Leads  []map[string]any `json:"leads"`
}

// leadsJSON accepts leads posted by browser tools.
func (h importHandler) leadsJSON(w http.ResponseWriter, r *http.Request) {
	var req leadsJSONRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "expected {\"source\": string, \"leads\": [object]}")
		return
	}
	src := source.NormalizeSource(req.Source)
	h.ingest(w, r, source.JSONRows(req.Leads, src), src)
}

func (h importHandler) ingest(w http.ResponseWriter, r *http.Request, s source.Stream, src model.Source) {
	sum, err := h.importer.Ingest(r.Context(), s, pipeline.Options{Source: src})
	if errors.Is(err, source.ErrUnreadable) {
		writeError(w, r, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: sum.Imported, Skipped: sum.Skipped, Source: src})
}
