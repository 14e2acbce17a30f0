package api

import (
	"encoding/json"
	"net/http"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/source"
	"github.com/sells-group/lead-finder/internal/store"
)

type leadsHandler struct {
	leads store.LeadStore
}

func (h leadsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.LeadFilter{
		Query:          q.Get("q"),
		Status:         model.LeadStatus(q.Get("status")),
		WebsiteVerdict: model.WebsiteVerdict(q.Get("website_verdict")),
	}
	if s := q.Get("source"); s != "" {
		filter.Source = source.NormalizeSource(s)
	}

	ints := []struct {
		name string
		dst  **int
	}{
		{"min_score", &filter.MinScore},
		{"max_website_score", &filter.MaxWebsiteScore},
	}
	for _, p := range ints {
		v, err := queryInt(q.Get(p.name), p.name)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		*p.dst = v
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v, err := queryInt(q.Get(name), name)
		if err != nil {
			writeErr(w, r, err)
			return
		}
		if v != nil {
			*dst = *v
		}
	}

	leads, err := h.leads.ListLeads(r.Context(), filter)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": leads})
}

func (h leadsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	lead, err := h.leads.GetLead(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h leadsHandler) patch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var patch model.LeadPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxParamsBytes)).Decode(&patch); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := patch.Validate(); err != nil {
		writeErr(w, r, err)
		return
	}
	lead, err := h.leads.PatchLead(r.Context(), id, patch)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type kpi struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type statsResponse struct {
	PrimaryKPI kpi                      `json:"primary_kpi"`
	Counts     map[model.LeadStatus]int `json:"counts"`
}

// stats reports lead counts per status. The primary KPI is booked
// appointments.
func (h leadsHandler) stats(w http.ResponseWriter, r *http.Request) {
	var src model.Source
	if s := r.URL.Query().Get("source"); s != "" {
		src = source.NormalizeSource(s)
	}
	counts, err := h.leads.CountByStatus(r.Context(), src)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		PrimaryKPI: kpi{Name: "appointments_booked", Count: counts[model.LeadStatusAppointmentBooked]},
		Counts:     counts,
	})
}
