package partition

import (
	"fmt"
	"math"
	"strings"

	"github.com/arkilian/drilldown/pkg/types"
)

// ValidationError reports one invalid field of one row.
type ValidationError struct {
	RowIndex int
	Field    string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d, field %q: %s", e.RowIndex, e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

// maxReported bounds the errors listed in the message.
const maxReported = 10

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:", len(e)))
	for i, err := range e {
		if i == maxReported {
			sb.WriteString(fmt.Sprintf("\n  ... and %d more", len(e)-maxReported))
			break
		}
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// ValidateFacts checks the rows of one month shard: identifiers present,
// dates inside month, measures finite and non-negative.
func ValidateFacts(month string, rows []types.FactRow) error {
	if _, err := ParseMonth(month); err != nil {
		return err
	}
	var errs ValidationErrors
	add := func(i int, field, msg string) {
		errs = append(errs, &ValidationError{RowIndex: i, Field: field, Message: msg})
	}

	for i, r := range rows {
		if r.Date.IsZero() {
			add(i, types.FieldDate, "date is required")
		} else if got := MonthOfTime(r.Date); got != month {
			add(i, types.FieldDate, fmt.Sprintf("date falls in %s, not %s", got, month))
		}
		for _, f := range []struct{ name, value string }{
			{types.FieldAdvertiserID, r.AdvertiserID},
			{types.FieldCampaignID, r.CampaignID},
			{types.FieldAdSetID, r.AdSetID},
			{types.FieldAdID, r.AdID},
		} {
			if f.value == "" {
				add(i, f.name, f.name+" is required and cannot be empty")
			}
		}
		for _, f := range []struct {
			name  string
			value float64
		}{
			{types.FieldImpressions, r.Impressions},
			{types.FieldClicks, r.Clicks},
			{types.FieldCost, r.Cost},
			{types.FieldConversions, r.Conversions},
			{types.FieldGMV, r.GMV},
		} {
			if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
				add(i, f.name, fmt.Sprintf("must be a finite non-negative number, got %v", f.value))
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateEvents checks event rows: timestamp and user present, event type
// one of the funnel stages.
func ValidateEvents(rows []types.EventRow) error {
	var errs ValidationErrors
	for i, r := range rows {
		if r.TS.IsZero() {
			errs = append(errs, &ValidationError{RowIndex: i, Field: types.FieldTS, Message: "ts is required"})
		}
		if r.UserID == "" {
			errs = append(errs, &ValidationError{RowIndex: i, Field: types.FieldUserID, Message: "user_id is required and cannot be empty"})
		}
		if !isStage(r.EventType) {
			errs = append(errs, &ValidationError{
				RowIndex: i,
				Field:    types.FieldEventType,
				Message:  fmt.Sprintf("unknown event type %q", r.EventType),
			})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isStage(eventType string) bool {
	for _, s := range types.EventStages {
		if s == eventType {
			return true
		}
	}
	return false
}
