package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arkilian/drilldown/internal/app"
)

var httpAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if httpAddr != "" {
			cfg.HTTP.Addr = httpAddr
		}
		log, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}

		a, err := app.New(cfg, log)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"version": version,
			"addr":    cfg.HTTP.Addr,
			"storage": cfg.Storage.Type,
			"views":   cfg.Views.Backend,
		}).Info("starting drilldown")

		if err := a.Init(cmd.Context()); err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "HTTP listen address (overrides http.addr)")
}
