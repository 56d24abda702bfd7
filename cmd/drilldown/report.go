package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkilian/drilldown/internal/app"
	"github.com/arkilian/drilldown/internal/config"
	"github.com/arkilian/drilldown/internal/query/aggregator"
	"github.com/arkilian/drilldown/internal/query/filter"
	"github.com/arkilian/drilldown/internal/report"
)

var (
	reportMonths   []string
	reportAll      bool
	reportLevel    string
	reportSelect   []string
	reportCategory string
	reportFunnel   bool
	reportLimit    int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a one-shot rollup or event summary as JSON",
	Example: `  drilldown report --month 2024-05 --level campaign --select account=A1
  drilldown report --all --level ad --category search --limit 20
  drilldown report --funnel`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// One-shot runs never persist views and load exactly what is asked.
		cfg.Views.Backend = config.ViewsMemory
		cfg.Partitions.InitialMonths = 0
		cfg.Events.LoadOnStart = reportFunnel

		log, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		a, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		if err := a.Init(cmd.Context()); err != nil {
			return err
		}
		defer a.Close()
		reports := a.Reports()

		q := report.Query{Filter: filter.BaseFilter{Category: reportCategory}}
		var out interface{}
		if reportFunnel {
			if err := reports.Partitions(cmd.Context()).Events.LastError; err != "" {
				return fmt.Errorf("event log: %s", err)
			}
			out = reports.EventSummary(q)
		} else {
			req := report.LoadRequest{Months: reportMonths, All: reportAll}
			if _, err := reports.Load(cmd.Context(), req); err != nil {
				return err
			}
			level, err := aggregator.ParseLevel(reportLevel)
			if err != nil {
				return err
			}
			sel, err := parseSelections(reportSelect)
			if err != nil {
				return err
			}
			out, err = reports.Rollup(report.RollupRequest{
				Query:      q,
				Level:      level,
				Selections: sel,
				Limit:      reportLimit,
			})
			if err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// parseSelections turns level=id[,id...] pairs into a selection map.
func parseSelections(pairs []string) (map[string][]string, error) {
	sel := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		level, ids, ok := strings.Cut(p, "=")
		if !ok || level == "" || ids == "" {
			return nil, fmt.Errorf("invalid selection %q (want level=id[,id...])", p)
		}
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				sel[level] = append(sel[level], id)
			}
		}
	}
	return sel, nil
}

func init() {
	f := reportCmd.Flags()
	f.StringSliceVar(&reportMonths, "month", nil, "Month to load, YYYY-MM (repeatable; default latest)")
	f.BoolVar(&reportAll, "all", false, "Load every listed month")
	f.StringVar(&reportLevel, "level", "campaign", "Hierarchy level: account, campaign, ad_set, ad")
	f.StringSliceVar(&reportSelect, "select", nil, "Selected ids per level, level=id[,id...] (repeatable)")
	f.StringVar(&reportCategory, "category", "", "Only rows of this campaign type")
	f.BoolVar(&reportFunnel, "funnel", false, "Print the event summary instead of a rollup")
	f.IntVar(&reportLimit, "limit", 0, "Maximum rows (0 for all)")
}
