package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/lead-finder/internal/model"
)

const maxParamsBytes = 1 << 20

type runsHandler struct {
	runs Runner
}

type submitResponse struct {
	RunID  int64           `json:"run_id"`
	Kind   model.RunKind   `json:"kind"`
	Status model.RunStatus `json:"status"`
	Params json.RawMessage `json:"params"`
}

// submit accepts POST /api/runs/{kind}; "maps-scrape" and "maps_scrape"
// name the same kind.
func (h runsHandler) submit(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseRunKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxParamsBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "could not read request body")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
		return
	}

	run, err := h.runs.Submit(r.Context(), kind, body)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: run.ID, Kind: run.Kind, Status: run.Status, Params: run.Params})
}

func (h runsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h runsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{Status: model.RunStatus(q.Get("status"))}
	if k := q.Get("kind"); k != "" {
		kind, err := model.ParseRunKind(k)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		filter.Kind = kind
	}
	limit, err := queryInt(q.Get("limit"), "limit")
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if limit != nil {
		filter.Limit = *limit
	}

	runs, err := h.runs.List(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runs})
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, model.Validationf("invalid id %q", raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, model.Validationf("%s must be an integer, got %q", name, raw)
	}
	return &n, nil
}
