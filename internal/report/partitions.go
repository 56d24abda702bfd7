package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/partition"
	"github.com/arkilian/drilldown/internal/store"
	"github.com/arkilian/drilldown/pkg/types"
)

// StoreStatus describes one record store.
type StoreStatus struct {
	Partitions []string  `json:"partitions"`
	Rows       int       `json:"rows"`
	Version    uint64    `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// PartitionStatus is the dataset listing plus what is resident.
type PartitionStatus struct {
	Metadata      types.PartitionMetadata `json:"metadata"`
	MetadataError string                  `json:"metadata_error,omitempty"`
	Ads           StoreStatus             `json:"ads"`
	Events        StoreStatus             `json:"events"`
}

// LoadRequest selects ads months to make resident. Exactly one selector
// applies, checked in the order All, Months, Start/End; an empty request
// loads the latest month.
type LoadRequest struct {
	Months []string `json:"months,omitempty"`
	// Start and End bound an inclusive range as YYYY-MM-DD or YYYY-MM.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	All   bool   `json:"all,omitempty"`
}

// LoadSummary is the outcome of a load request.
type LoadSummary struct {
	Requested   []string `json:"requested"`
	Unavailable []string `json:"unavailable,omitempty"`
	*store.LoadResult
}

// Partitions reports the metadata and the resident partitions. A metadata
// failure is reported in the status rather than failing the call, so the
// resident data stays visible.
func (s *Service) Partitions(ctx context.Context) *PartitionStatus {
	st := &PartitionStatus{
		Ads:    storeStatus(s.ads.Snapshot(), s.ads.LastError()),
		Events: storeStatus(s.events.Snapshot(), s.events.LastError()),
	}
	meta, err := s.catalog.Metadata(ctx)
	if err != nil {
		st.MetadataError = err.Error()
		st.Metadata = types.PartitionMetadata{Months: []string{}}
	} else {
		st.Metadata = meta
	}
	return st
}

func storeStatus[R any](snap *store.Snapshot[R], lastErr error) StoreStatus {
	st := StoreStatus{
		Partitions: make([]string, len(snap.Partitions)),
		Rows:       len(snap.Rows),
		Version:    snap.Version,
		UpdatedAt:  snap.UpdatedAt,
	}
	for i, k := range snap.Partitions {
		st.Partitions[i] = k.Value
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// Load dispatches req to the matching loader.
func (s *Service) Load(ctx context.Context, req LoadRequest) (*LoadSummary, error) {
	switch {
	case req.All:
		return s.LoadAll(ctx)
	case len(req.Months) > 0:
		return s.LoadMonths(ctx, req.Months)
	case req.Start != "" || req.End != "":
		start, err := parseBound(req.Start, false)
		if err != nil {
			return nil, err
		}
		end, err := parseBound(req.End, true)
		if err != nil {
			return nil, err
		}
		return s.LoadRange(ctx, start, end)
	default:
		return s.LoadLatest(ctx)
	}
}

// LoadLatest makes the most recent listed month resident. An empty dataset
// loads nothing.
func (s *Service) LoadLatest(ctx context.Context) (*LoadSummary, error) {
	meta, err := s.catalog.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	latest := meta.Latest()
	if latest == "" {
		return s.loadMonths(ctx, []string{}, []string{})
	}
	return s.loadMonths(ctx, []string{latest}, []string{latest})
}

// LoadMonths makes the given months resident. Months that are not listed
// in the metadata are reported as unavailable and skipped.
func (s *Service) LoadMonths(ctx context.Context, months []string) (*LoadSummary, error) {
	for _, m := range months {
		if _, err := partition.ParseMonth(m); err != nil {
			return nil, dderrors.NewValidationError(dderrors.CodeInvalidRange, err.Error())
		}
	}
	meta, err := s.catalog.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadMonths(ctx, months, partition.Available(meta, months))
}

// LoadRange makes every listed month touched by [start, end] resident.
func (s *Service) LoadRange(ctx context.Context, start, end time.Time) (*LoadSummary, error) {
	if end.Before(start) {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRange,
			fmt.Sprintf("range end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly)))
	}
	months := partition.MonthsInRange(start, end)
	meta, err := s.catalog.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadMonths(ctx, months, partition.Available(meta, months))
}

// LoadAll makes every listed month resident.
func (s *Service) LoadAll(ctx context.Context) (*LoadSummary, error) {
	meta, err := s.catalog.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadMonths(ctx, meta.Months, meta.Months)
}

func (s *Service) loadMonths(ctx context.Context, requested, available []string) (*LoadSummary, error) {
	sum := &LoadSummary{Requested: append([]string{}, requested...)}
	avail := make(map[string]bool, len(available))
	for _, m := range available {
		avail[m] = true
	}
	for _, m := range requested {
		if !avail[m] {
			sum.Unavailable = append(sum.Unavailable, m)
		}
	}
	if len(sum.Unavailable) > 0 {
		s.log.WithField("months", strings.Join(sum.Unavailable, ",")).Warn("requested months are not in metadata")
	}

	res, err := s.ads.Load(ctx, partition.MonthKeys(available)...)
	sum.LoadResult = res
	if err != nil {
		return sum, err
	}
	s.log.WithFields(logrus.Fields{
		"requested": len(requested),
		"loaded":    len(res.Loaded),
		"rows":      res.Rows,
	}).Debug("months loaded")
	return sum, nil
}

// LoadEvents makes the event log resident.
func (s *Service) LoadEvents(ctx context.Context) (*store.LoadResult, error) {
	return s.events.Load(ctx, s.eventsKey)
}

// parseBound parses a range bound. A month bound expands to its first day,
// or its last day when end is set.
func parseBound(v string, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, dderrors.NewValidationError(dderrors.CodeInvalidRange, "range needs both start and end")
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	t, err := partition.ParseMonth(v)
	if err != nil {
		return time.Time{}, dderrors.NewValidationError(dderrors.CodeInvalidRange,
			fmt.Sprintf("invalid range bound %q", v))
	}
	if end {
		t = t.AddDate(0, 1, -1)
	}
	return t, nil
}
