// Package types provides the row and result shapes shared by the drilldown engine.
package types

import (
	"time"
)

// Fielder exposes named field values of a row to the filter pipeline and
// the expression evaluator. The boolean is false for unknown field names.
type Fielder interface {
	Field(name string) (any, bool)
}

// Event types of the interaction log, in funnel order.
const (
	EventView     = "view"
	EventCartAdd  = "cart_add"
	EventPurchase = "purchase"
)

// EventStages is the fixed funnel stage order.
var EventStages = []string{EventView, EventCartAdd, EventPurchase}

// FactRow is one ad-performance fact: a single ad on a single day.
type FactRow struct {
	// Date is the calendar day, truncated to UTC midnight
	Date time.Time `json:"date"`

	AdvertiserID string `json:"advertiser_id"`
	CampaignID   string `json:"campaign_id"`
	CampaignType string `json:"campaign_type"`
	AdSetID      string `json:"ad_set_id"`
	AdID         string `json:"ad_id"`

	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Cost        float64 `json:"cost"`
	Conversions float64 `json:"conversions"`
	GMV         float64 `json:"gmv"`
}

// Fact row field names.
const (
	FieldDate         = "date"
	FieldAdvertiserID = "advertiser_id"
	FieldCampaignID   = "campaign_id"
	FieldCampaignType = "campaign_type"
	FieldAdSetID      = "ad_set_id"
	FieldAdID         = "ad_id"
	FieldImpressions  = "impressions"
	FieldClicks       = "clicks"
	FieldCost         = "cost"
	FieldConversions  = "conversions"
	FieldGMV          = "gmv"
)

// Field implements Fielder.
func (r FactRow) Field(name string) (any, bool) {
	switch name {
	case FieldDate:
		return r.Date, true
	case FieldAdvertiserID:
		return r.AdvertiserID, true
	case FieldCampaignID:
		return r.CampaignID, true
	case FieldCampaignType:
		return r.CampaignType, true
	case FieldAdSetID:
		return r.AdSetID, true
	case FieldAdID:
		return r.AdID, true
	case FieldImpressions:
		return r.Impressions, true
	case FieldClicks:
		return r.Clicks, true
	case FieldCost:
		return r.Cost, true
	case FieldConversions:
		return r.Conversions, true
	case FieldGMV:
		return r.GMV, true
	}
	return nil, false
}

// Measures returns the summable measures of the row.
func (r FactRow) Measures() Measures {
	return Measures{
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
		Cost:        r.Cost,
		Conversions: r.Conversions,
		GMV:         r.GMV,
	}
}

// EventRow is one user–SKU interaction.
type EventRow struct {
	TS        time.Time `json:"ts"`
	UserID    string    `json:"user_id"`
	SKUID     string    `json:"sku_id"`
	EventType string    `json:"event_type"`

	// Ad attribution of the event. Empty when the log carries none.
	CampaignID string `json:"campaign_id,omitempty"`
	AdSetID    string `json:"ad_set_id,omitempty"`
	AdID       string `json:"ad_id,omitempty"`

	// Attrs is the raw JSON side payload. Empty when absent. It is never
	// parsed for aggregation; see package payload.
	Attrs string `json:"attrs,omitempty"`
}

// Event row field names.
const (
	FieldTS        = "ts"
	FieldUserID    = "user_id"
	FieldSKUID     = "sku_id"
	FieldEventType = "event_type"
	FieldAttrs     = "attrs"
)

// Field implements Fielder. The attrs payload is exposed as its raw string.
func (r EventRow) Field(name string) (any, bool) {
	switch name {
	case FieldTS:
		return r.TS, true
	case FieldUserID:
		return r.UserID, true
	case FieldSKUID:
		return r.SKUID, true
	case FieldEventType:
		return r.EventType, true
	case FieldCampaignID:
		return r.CampaignID, true
	case FieldAdSetID:
		return r.AdSetID, true
	case FieldAdID:
		return r.AdID, true
	case FieldAttrs:
		if r.Attrs == "" {
			return nil, false
		}
		return r.Attrs, true
	}
	return nil, false
}

// Key identifies the row for row expansion: user, timestamp, SKU and event
// type. Two rows may still share a key when a user logs the same event
// twice within one timestamp.
func (r EventRow) Key() string {
	return r.UserID + "|" + r.TS.UTC().Format(time.RFC3339Nano) + "|" + r.SKUID + "|" + r.EventType
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
