package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkilian/drilldown/internal/app"
	"github.com/arkilian/drilldown/internal/partition"
	"github.com/arkilian/drilldown/pkg/types"
)

var publishEvents bool

var publishCmd = &cobra.Command{
	Use:   "publish [file]",
	Short: "Publish fact rows (JSON or CSV) or an event log (JSON) as Arrow shards",
	Long: `publish splits fact rows into month shards, validates and uploads them, then
updates the metadata document. With --events the rows replace the event log.

Fact rows use the columns date, advertiser_id, campaign_id, campaign_type,
ad_set_id, ad_id, impressions, clicks, cost, conversions and gmv. Event rows
use ts, user_id, sku_id, event_type and an optional attrs object.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		cfg.Resolve()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		objects, err := app.OpenStorage(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		pub := partition.NewPublisher(objects, app.LayoutFor(cfg), cfg.Partitions.Concurrency, log)

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		var out interface{}
		if publishEvents {
			rows, err := readEvents(f)
			if err != nil {
				return err
			}
			out, err = pub.PublishEvents(cmd.Context(), rows)
			if err != nil {
				return err
			}
		} else {
			var rows []types.FactRow
			if strings.EqualFold(filepath.Ext(args[0]), ".csv") {
				rows, err = readFactsCSV(f)
			} else {
				rows, err = readFactsJSON(f)
			}
			if err != nil {
				return err
			}
			res, err := pub.PublishFacts(cmd.Context(), rows)
			if res != nil {
				out = res
			}
			if err != nil {
				if out != nil {
					printJSON(cmd.OutOrStdout(), out)
				}
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	publishCmd.Flags().BoolVar(&publishEvents, "events", false, "Publish the event log instead of fact shards")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type factInput struct {
	Date         string  `json:"date"`
	AdvertiserID string  `json:"advertiser_id"`
	CampaignID   string  `json:"campaign_id"`
	CampaignType string  `json:"campaign_type"`
	AdSetID      string  `json:"ad_set_id"`
	AdID         string  `json:"ad_id"`
	Impressions  float64 `json:"impressions"`
	Clicks       float64 `json:"clicks"`
	Cost         float64 `json:"cost"`
	Conversions  float64 `json:"conversions"`
	GMV          float64 `json:"gmv"`
}

func (in factInput) row(i int) (types.FactRow, error) {
	day, err := parseDate(in.Date)
	if err != nil {
		return types.FactRow{}, fmt.Errorf("row %d: %w", i, err)
	}
	return types.FactRow{
		Date:         day,
		AdvertiserID: in.AdvertiserID,
		CampaignID:   in.CampaignID,
		CampaignType: in.CampaignType,
		AdSetID:      in.AdSetID,
		AdID:         in.AdID,
		Impressions:  in.Impressions,
		Clicks:       in.Clicks,
		Cost:         in.Cost,
		Conversions:  in.Conversions,
		GMV:          in.GMV,
	}, nil
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return t.UTC(), nil
}

func readFactsJSON(r io.Reader) ([]types.FactRow, error) {
	var in []factInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	rows := make([]types.FactRow, len(in))
	for i, v := range in {
		row, err := v.row(i)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

// readFactsCSV reads a header row naming the fact columns, in any order.
func readFactsCSV(r io.Reader) ([]types.FactRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{types.FieldDate, types.FieldAdvertiserID, types.FieldCampaignID, types.FieldAdSetID, types.FieldAdID} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("csv header is missing %s", name)
		}
	}
	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	num := func(rec []string, name string, line int) (float64, error) {
		v := strings.TrimSpace(get(rec, name))
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("line %d: %s: %w", line, name, err)
		}
		return f, nil
	}

	var rows []types.FactRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		in := factInput{
			Date:         get(rec, types.FieldDate),
			AdvertiserID: get(rec, types.FieldAdvertiserID),
			CampaignID:   get(rec, types.FieldCampaignID),
			CampaignType: get(rec, types.FieldCampaignType),
			AdSetID:      get(rec, types.FieldAdSetID),
			AdID:         get(rec, types.FieldAdID),
		}
		for _, m := range []struct {
			name string
			dst  *float64
		}{
			{types.FieldImpressions, &in.Impressions},
			{types.FieldClicks, &in.Clicks},
			{types.FieldCost, &in.Cost},
			{types.FieldConversions, &in.Conversions},
			{types.FieldGMV, &in.GMV},
		} {
			if *m.dst, err = num(rec, m.name, line); err != nil {
				return nil, err
			}
		}
		row, err := in.row(line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type eventInput struct {
	TS         time.Time       `json:"ts"`
	UserID     string          `json:"user_id"`
	SKUID      string          `json:"sku_id"`
	EventType  string          `json:"event_type"`
	CampaignID string          `json:"campaign_id"`
	AdSetID    string          `json:"ad_set_id"`
	AdID       string          `json:"ad_id"`
	Attrs      json.RawMessage `json:"attrs"`
}

func readEvents(r io.Reader) ([]types.EventRow, error) {
	var in []eventInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	rows := make([]types.EventRow, len(in))
	for i, v := range in {
		rows[i] = types.EventRow{
			TS:         v.TS.UTC(),
			UserID:     v.UserID,
			SKUID:      v.SKUID,
			EventType:  v.EventType,
			CampaignID: v.CampaignID,
			AdSetID:    v.AdSetID,
			AdID:       v.AdID,
		}
		// attrs may be an object or a string holding one
		if len(v.Attrs) > 0 && string(v.Attrs) != "null" {
			var s string
			if err := json.Unmarshal(v.Attrs, &s); err == nil {
				rows[i].Attrs = s
			} else {
				rows[i].Attrs = string(v.Attrs)
			}
		}
	}
	return rows, nil
}
