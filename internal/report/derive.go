package report

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/query/expr"
	"github.com/arkilian/drilldown/pkg/types"
)

// Datasets a derived column can be computed over.
const (
	DatasetAds    = "ads"
	DatasetEvents = "events"
)

// DeriveRequest evaluates Expression once per filtered row of Dataset.
type DeriveRequest struct {
	Query
	Dataset    string `json:"dataset"`
	Expression string `json:"expression"`
	Offset     int    `json:"offset,omitempty"`
	// Limit caps the rows evaluated; non-positive uses DefaultRowPage.
	Limit int `json:"limit,omitempty"`
}

// DerivedColumn holds one value per evaluated row, aligned with Keys. A
// cell that failed to evaluate holds expr.ErrorValue.
type DerivedColumn struct {
	Dataset    string       `json:"dataset"`
	Expression string       `json:"expression"`
	UsesAttrs  bool         `json:"uses_attrs"`
	Keys       []string     `json:"keys"`
	Values     []expr.Value `json:"values"`
	Errors     int          `json:"errors"`
	Total      int          `json:"total"`
	// ParseError is set when the expression does not compile; every cell
	// then holds the error sentinel.
	ParseError string `json:"parse_error,omitempty"`
	Version    uint64 `json:"version"`
}

// DeriveColumn evaluates a user expression over a window of the filtered
// rows. Expression failures never fail the call: they become error cells.
func (s *Service) DeriveColumn(req DeriveRequest) (*DerivedColumn, error) {
	defer s.timed("derive")()
	if strings.TrimSpace(req.Expression) == "" {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, "expression is required")
	}
	if req.Offset < 0 {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, "offset must not be negative")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultRowPage
	}

	col := &DerivedColumn{Dataset: req.Dataset, Expression: req.Expression}
	prog, perr := s.eval.Compile(req.Expression)
	if perr != nil {
		col.ParseError = perr.Error()
		s.log.WithError(perr).WithField("expression", req.Expression).Warn("derived column does not compile")
	} else {
		col.UsesAttrs = prog.UsesAttrs()
	}

	switch req.Dataset {
	case DatasetAds:
		rows, version := s.filteredFacts(req.Query)
		col.Total, col.Version = len(rows), version
		rows = window(rows, req.Offset, limit)
		col.Keys = make([]string, len(rows))
		for i, r := range rows {
			col.Keys[i] = factKey(r)
		}
		col.Values, col.Errors = evaluate(s.eval, prog, rows, func(types.FactRow) expr.AttrsLoader { return nil })
	case DatasetEvents:
		rows, version := s.filteredEvents(req.Query)
		col.Total, col.Version = len(rows), version
		rows = window(rows, req.Offset, limit)
		col.Keys = make([]string, len(rows))
		for i, r := range rows {
			col.Keys[i] = r.Key()
		}
		col.Values, col.Errors = evaluate(s.eval, prog, rows, func(r types.EventRow) expr.AttrsLoader {
			return s.payloads.Loader(r)
		})
	default:
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest,
			fmt.Sprintf("unknown dataset %q", req.Dataset))
	}

	if s.recorder != nil {
		s.recorder.AddExpressionErrors(col.Errors)
	}
	if col.Errors > 0 {
		s.log.WithFields(logrus.Fields{
			"expression": req.Expression,
			"errors":     col.Errors,
			"rows":       len(col.Values),
		}).Debug("derived column has error cells")
	}
	return col, nil
}

// evaluate runs prog per row. A nil prog fills the column with the error
// sentinel.
func evaluate[R types.Fielder](ev *expr.Evaluator, prog *expr.Program, rows []R, attrs func(R) expr.AttrsLoader) ([]expr.Value, int) {
	values := make([]expr.Value, len(rows))
	errs := 0
	for i, r := range rows {
		if prog == nil {
			values[i] = expr.ErrorValue
			errs++
			continue
		}
		v, err := ev.Run(prog, expr.NewRowEnv(r, attrs(r)))
		if err != nil {
			errs++
		}
		values[i] = v
	}
	return values, errs
}

func window[R any](rows []R, offset, limit int) []R {
	if offset >= len(rows) {
		return []R{}
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// factKey identifies a fact row: one ad on one day.
func factKey(r types.FactRow) string {
	return r.AdID + "|" + types.Day(r.Date).Format("2006-01-02")
}
