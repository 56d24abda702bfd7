package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/arkilian/drilldown/internal/viewstore"
	"github.com/arkilian/drilldown/pkg/types"
)

type saveViewRequest struct {
	Name    string               `json:"name"`
	Columns []types.ColumnConfig `json:"columns"`
}

type customColumnRequest struct {
	Label      string `json:"label"`
	Expression string `json:"expression"`
}

func (h *handlers) listViews(w http.ResponseWriter, r *http.Request) {
	views, err := h.views.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) saveView(w http.ResponseWriter, r *http.Request) {
	var req saveViewRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	id, err := h.views.Save(r.Context(), req.Name, req.Columns)
	if err != nil {
		fail(w, r, err)
		return
	}
	view, err := h.views.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *handlers) getView(w http.ResponseWriter, r *http.Request) {
	view, err := h.views.Get(r.Context(), viewstore.ViewID(chi.URLParam(r, "id")))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) deleteView(w http.ResponseWriter, r *http.Request) {
	if err := h.views.Delete(r.Context(), viewstore.ViewID(chi.URLParam(r, "id"))); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) defaultColumns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewstore.DefaultColumns())
}

func (h *handlers) customColumn(w http.ResponseWriter, r *http.Request) {
	var req customColumnRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, r, "%v", err)
		return
	}
	if strings.TrimSpace(req.Label) == "" || strings.TrimSpace(req.Expression) == "" {
		badRequest(w, r, "label and expression are required")
		return
	}
	writeJSON(w, http.StatusCreated, viewstore.NewCustomColumn(req.Label, req.Expression))
}
