package http

import (
	"net/http"
	"strconv"

	"github.com/arkilian/drilldown/internal/report"
)

func (h *handlers) partitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reports.Partitions(r.Context()))
}

// loadPartitions answers 200 when at least one partition loaded, even if
// others failed; the failure is carried in the body and the store's last
// error.
func (h *handlers) loadPartitions(w http.ResponseWriter, r *http.Request) {
	var req report.LoadRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	sum, err := h.reports.Load(r.Context(), req)
	if err != nil && (sum == nil || sum.LoadResult == nil || len(sum.Loaded) == 0) {
		fail(w, r, err)
		return
	}
	resp := struct {
		*report.LoadSummary
		Error string `json:"error,omitempty"`
	}{LoadSummary: sum}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) loadEvents(w http.ResponseWriter, r *http.Request) {
	res, err := h.reports.LoadEvents(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	var q report.Query
	if err := decode(r, &q); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, toOverview(h.reports.Overview(q)))
}

func (h *handlers) rollup(w http.ResponseWriter, r *http.Request) {
	var req report.RollupRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	res, err := h.reports.Rollup(req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRollup(res))
}

func (h *handlers) series(w http.ResponseWriter, r *http.Request) {
	var req report.SeriesRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	res, err := h.reports.Series(req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) eventSummary(w http.ResponseWriter, r *http.Request) {
	var q report.Query
	if err := decode(r, &q); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, h.reports.EventSummary(q))
}

type eventRowsRequest struct {
	report.Query
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}

func (h *handlers) eventRows(w http.ResponseWriter, r *http.Request) {
	var req eventRowsRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	page, err := h.reports.EventRows(req.Query, req.Offset, req.Limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) attrs(w http.ResponseWriter, r *http.Request) {
	var req report.AttrsRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	if req.UserID == "" || req.TS.IsZero() {
		badRequest(w, r, "user_id and ts are required")
		return
	}
	res, err := h.reports.Attrs(req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) derive(w http.ResponseWriter, r *http.Request) {
	var req report.DeriveRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	col, err := h.reports.DeriveColumn(req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDerived(col))
}

func (h *handlers) statsUsage(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("top"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			badRequest(w, r, "top must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, h.usage.Usage(n))
}
