package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/drilldown/internal/observability"
	"github.com/arkilian/drilldown/internal/report"
	"github.com/arkilian/drilldown/internal/store"
	"github.com/arkilian/drilldown/internal/viewstore"
	"github.com/arkilian/drilldown/pkg/types"
)

type staticSource[R any] map[types.PartitionKey][]R

func (s staticSource[R]) Fetch(_ context.Context, keys []types.PartitionKey) (*store.Batch[R], error) {
	b := &store.Batch[R]{Rows: map[types.PartitionKey][]R{}, Errors: map[types.PartitionKey]error{}}
	for _, k := range keys {
		if rows, ok := s[k]; ok {
			b.Rows[k] = rows
		} else {
			b.Errors[k] = errors.New("object not found")
		}
	}
	return b, nil
}

type staticCatalog struct{ meta types.PartitionMetadata }

func (c staticCatalog) Metadata(context.Context) (types.PartitionMetadata, error) { return c.meta, nil }

var eventsKey = types.PartitionKey{Kind: types.KindEvents, Value: "events/user_sku_logs.arrow"}

func newTestServer(t *testing.T) (http.Handler, *observability.QueryStats) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	may := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }

	facts := staticSource[types.FactRow]{
		{Kind: types.KindAds, Value: "2024-05"}: {
			{Date: may(1), AdvertiserID: "A1", CampaignID: "C1", CampaignType: "search", AdSetID: "S1", AdID: "AD1", Impressions: 1000, Clicks: 100, Cost: 200, Conversions: 10, GMV: 600},
			{Date: may(2), AdvertiserID: "A2", CampaignID: "C2", CampaignType: "display", AdSetID: "S2", AdID: "AD2"},
		},
	}
	events := staticSource[types.EventRow]{
		eventsKey: {
			{TS: may(1).Add(10 * time.Hour), UserID: "u1", SKUID: "sku1", EventType: types.EventView},
			{TS: may(1).Add(11 * time.Hour), UserID: "u1", SKUID: "sku1", EventType: types.EventPurchase, Attrs: `{"price": 12}`},
		},
	}
	usage := observability.NewQueryStats(time.Hour)
	svc := report.New(report.Config{
		Ads:       store.New[types.FactRow]("ads", facts, store.WithLogger(logger)),
		Events:    store.New[types.EventRow]("events", events, store.WithLogger(logger)),
		Catalog:   staticCatalog{meta: types.PartitionMetadata{Months: []string{"2024-04", "2024-05"}}},
		EventsKey: eventsKey,
		Observer:  usage,
		Logger:    logger,
	})
	h := NewRouter(Dependencies{
		Reports: svc,
		Views:   viewstore.NewStore(viewstore.NewMemoryKV(), viewstore.WithLogger(logger)),
		Usage:   usage,
		Metrics: observability.NewMetrics().Handler(),
		Logger:  logger,
	})
	return h, usage
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func loadMay(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, "POST", "/v1/ads/partitions/load", `{"months": ["2024-05"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPartitions_LoadAndStatus(t *testing.T) {
	h, _ := newTestServer(t)

	// The latest month is loaded when no selector is given.
	rec := do(t, h, "POST", "/v1/ads/partitions/load", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"2024-05"}, body["requested"])
	assert.EqualValues(t, 2, body["rows"])

	// 2024-04 is listed but has no object: nothing loads, so the call fails.
	rec = do(t, h, "POST", "/v1/ads/partitions/load", `{"start": "2024-04-01", "end": "2024-04-30"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PARTITION_LOAD_FAILED", decodeBody(t, rec)["code"])

	rec = do(t, h, "GET", "/v1/ads/partitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody(t, rec)
	ads := status["ads"].(map[string]interface{})
	assert.Equal(t, []interface{}{"2024-05"}, ads["partitions"])
	assert.NotEmpty(t, ads["last_error"])

	rec = do(t, h, "POST", "/v1/ads/partitions/load", `{"months": ["05/2024"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RANGE", decodeBody(t, rec)["code"])
}

func TestOverview_NonFiniteRatiosAreNull(t *testing.T) {
	h, _ := newTestServer(t)
	loadMay(t, h)

	rec := do(t, h, "POST", "/v1/ads/overview", `{"filter": {"category": "display"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	totals := body["totals"].(map[string]interface{})
	assert.EqualValues(t, 1, totals["rows"])
	assert.Nil(t, totals["ctr"])
	assert.Contains(t, totals, "ctr")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRollup(t *testing.T) {
	h, usage := newTestServer(t)
	loadMay(t, h)

	rec := do(t, h, "POST", "/v1/ads/rollup", `{
		"level": "campaign",
		"selections": {"account": ["A1"]},
		"conditions": [{"id": "c1", "field": "clicks", "operator": "greaterThan", "value": "10"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "campaign", body["level"])
	rows := body["rows"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "C1", row["id"])
	assert.EqualValues(t, 10, row["ctr"])
	assert.EqualValues(t, 200, row["roi"])

	top := usage.TopPredicates(5)
	require.NotEmpty(t, top)
	assert.Equal(t, "clicks", top[0].Column)

	rec = do(t, h, "POST", "/v1/ads/rollup", `{"level": "region"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/v1/ads/rollup", `{"selections": {"region": ["x"]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_LEVEL", decodeBody(t, rec)["code"])

	rec = do(t, h, "POST", "/v1/ads/rollup", `{"unknown": 1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeries(t *testing.T) {
	h, _ := newTestServer(t)
	loadMay(t, h)
	rec := do(t, h, "POST", "/v1/ads/series", `{"level": "ad", "id": "AD1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := decodeBody(t, rec)["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.EqualValues(t, 200, rows[0].(map[string]interface{})["cost"])
}

func TestEvents(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, "POST", "/v1/events/load", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, "POST", "/v1/events/summary", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["rows"])
	funnel := body["funnel"].(map[string]interface{})
	assert.EqualValues(t, 100, funnel["overall"])

	rec = do(t, h, "POST", "/v1/events/rows", `{"limit": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody(t, rec)
	assert.EqualValues(t, 2, page["total"])
	assert.Len(t, page["rows"], 1)

	rec = do(t, h, "POST", "/v1/events/attrs", `{"user_id": "u1", "ts": "2024-05-01T11:00:00Z", "path": "$.price"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	attrs := decodeBody(t, rec)
	assert.Equal(t, []interface{}{12.0}, attrs["matches"])

	rec = do(t, h, "POST", "/v1/events/attrs", `{"user_id": "u9", "ts": "2024-05-01T11:00:00Z"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, "POST", "/v1/events/attrs", `{"user_id": "u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDerive(t *testing.T) {
	h, _ := newTestServer(t)
	loadMay(t, h)

	rec := do(t, h, "POST", "/v1/columns/derive", `{"dataset": "ads", "expression": "clicks / impressions"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{0.1, nil}, body["values"], "0/0 renders as null")

	rec = do(t, h, "POST", "/v1/columns/derive", `{"dataset": "ads", "expression": "nope + 1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, []interface{}{"#ERROR", "#ERROR"}, body["values"])
	assert.EqualValues(t, 2, body["errors"])

	rec = do(t, h, "POST", "/v1/columns/derive", `{"dataset": "users", "expression": "1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDerive_HostileExpressions(t *testing.T) {
	h, _ := newTestServer(t)
	loadMay(t, h)

	chain := "1" + strings.Repeat("+1", 100_000)
	rec := do(t, h, "POST", "/v1/columns/derive", `{"dataset": "ads", "expression": "`+chain+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"#ERROR", "#ERROR"}, body["values"])
	assert.NotEmpty(t, body["parse_error"])

	huge := strings.Repeat("1", MaxBodyBytes)
	rec = do(t, h, "POST", "/v1/columns/derive", `{"dataset": "ads", "expression": "`+huge+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViews(t *testing.T) {
	h, _ := newTestServer(t)

	rec := do(t, h, "GET", "/v1/columns/defaults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defaults []types.ColumnConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defaults))
	require.Len(t, defaults, 9)

	rec = do(t, h, "POST", "/v1/columns/custom", `{"label": "Margin", "expression": "gmv - cost"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var custom types.ColumnConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &custom))
	assert.True(t, viewstore.IsCustomKey(custom.Key))

	cols, err := json.Marshal(append(defaults, custom))
	require.NoError(t, err)
	rec = do(t, h, "POST", "/v1/views", `{"name": "with margin", "columns": `+string(cols)+`}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var saved types.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Len(t, saved.Columns, 10)

	rec = do(t, h, "GET", "/v1/views", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = do(t, h, "GET", "/v1/views/"+saved.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "DELETE", "/v1/views/"+saved.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, "GET", "/v1/views/"+saved.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "VIEW_NOT_FOUND", decodeBody(t, rec)["code"])

	rec = do(t, h, "POST", "/v1/views", `{"name": "", "columns": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsUsage(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, "POST", "/v1/ads/overview", `{"filter": {"range": {"start": "2024-05-01", "end": "2024-05-31"}}}`)

	rec := do(t, h, "GET", "/v1/stats/usage?top=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	preds := body["predicates"].([]interface{})
	require.Len(t, preds, 1)
	assert.Equal(t, "date", preds[0].(map[string]interface{})["column"])

	rec = do(t, h, "GET", "/v1/stats/usage?top=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := ChainMiddleware(RecoveryMiddleware(logger), RequestIDMiddleware)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "handler panicked", hook.LastEntry().Message)
}

func TestCorrelationID(t *testing.T) {
	h := ChainMiddleware(RequestIDMiddleware, CorrelationIDMiddleware)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(GetCorrelationID(r.Context())))
		}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-2", rec.Body.String())

	req.Header.Set("X-Correlation-ID", "corr-9")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "corr-9", rec.Header().Get("X-Correlation-ID"))
}
