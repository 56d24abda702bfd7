package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/query/aggregator"
	"github.com/arkilian/drilldown/internal/report"
	"github.com/arkilian/drilldown/pkg/types"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Category  string `json:"category,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// num renders non-finite values as null; JSON has no NaN or Infinity.
type num float64

func (n num) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

type ratiosJSON struct {
	CTR num `json:"ctr"`
	CVR num `json:"cvr"`
	ROI num `json:"roi"`
}

func toRatios(r types.Ratios) ratiosJSON {
	return ratiosJSON{CTR: num(r.CTR), CVR: num(r.CVR), ROI: num(r.ROI)}
}

type aggregateJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	types.Measures
	ratiosJSON

	AdvertiserID string `json:"advertiser_id,omitempty"`
	CampaignID   string `json:"campaign_id,omitempty"`
	CampaignType string `json:"campaign_type,omitempty"`
	AdSetID      string `json:"ad_set_id,omitempty"`
}

func toAggregates(rows []types.AggregateRow) []aggregateJSON {
	out := make([]aggregateJSON, len(rows))
	for i, r := range rows {
		out[i] = aggregateJSON{
			ID:           r.ID,
			Name:         r.Name,
			Measures:     r.Measures,
			ratiosJSON:   toRatios(r.Ratios),
			AdvertiserID: r.AdvertiserID,
			CampaignID:   r.CampaignID,
			CampaignType: r.CampaignType,
			AdSetID:      r.AdSetID,
		}
	}
	return out
}

type totalsJSON struct {
	Rows int `json:"rows"`
	types.Measures
	ratiosJSON
}

type overviewJSON struct {
	Totals  totalsJSON        `json:"totals"`
	Daily   []types.DetailRow `json:"daily"`
	ByType  []aggregateJSON   `json:"by_type"`
	Version uint64            `json:"version"`
}

func toOverview(ov *report.Overview) overviewJSON {
	return overviewJSON{
		Totals: totalsJSON{
			Rows:       ov.Totals.Rows,
			Measures:   ov.Totals.Measures,
			ratiosJSON: toRatios(ov.Totals.Ratios),
		},
		Daily:   ov.Daily,
		ByType:  toAggregates(ov.ByType),
		Version: ov.Version,
	}
}

type rollupJSON struct {
	Level   aggregator.Level `json:"level"`
	Rows    []aggregateJSON  `json:"rows"`
	Total   int              `json:"total"`
	Version uint64           `json:"version"`
}

func toRollup(res *report.RollupResult) rollupJSON {
	return rollupJSON{Level: res.Level, Rows: toAggregates(res.Rows), Total: res.Total, Version: res.Version}
}

// derivedJSON mirrors report.DerivedColumn with renderable values.
type derivedJSON struct {
	*report.DerivedColumn
	Values []interface{} `json:"values"`
}

func toDerived(col *report.DerivedColumn) derivedJSON {
	values := make([]interface{}, len(col.Values))
	for i, v := range col.Values {
		if f, ok := v.(float64); ok {
			values[i] = num(f)
			continue
		}
		values[i] = v
	}
	return derivedJSON{DerivedColumn: col, Values: values}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	writeJSON(w, statusCode, resp)
}

// fail maps err onto a status code and writes it.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: err.Error(), RequestID: GetRequestID(r.Context())}
	var de *dderrors.Error
	if errors.As(err, &de) {
		resp.Code = de.Code
		resp.Category = string(de.Category)
		resp.Retryable = de.Retryable
	}
	writeError(w, statusFor(err), resp)
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, http.StatusBadRequest, ErrorResponse{
		Error:     fmt.Sprintf(format, args...),
		Code:      dderrors.CodeInvalidRequest,
		Category:  string(dderrors.ErrCategoryValidation),
		RequestID: GetRequestID(r.Context()),
	})
}

func statusFor(err error) int {
	switch dderrors.GetCode(err) {
	case dderrors.CodeRowNotFound, dderrors.CodeViewNotFound, dderrors.CodeObjectNotFound:
		return http.StatusNotFound
	case dderrors.CodeMetadataUnavailable:
		return http.StatusServiceUnavailable
	}
	switch dderrors.GetCategory(err) {
	case dderrors.ErrCategoryValidation, dderrors.ErrCategoryExpression:
		return http.StatusBadRequest
	case dderrors.ErrCategoryStorage, dderrors.ErrCategoryPartition:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
