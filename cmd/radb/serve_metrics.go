package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbconfig"
	"github.com/BigDataAnalyticsGroup/radb/internal/dblog"
	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/tm"
)

var (
	serveMetricsConfigPath   string
	serveMetricsSchedulePath string
	serveMetricsLevel        string
	serveMetricsAddr         string
)

// serveMetricsCmd is the only subcommand that opens a network listener
// (§4.12): the transaction manager and executor stay side-effect-free,
// and this is purely tooling wrapped around them.
var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "execute a schedule, then serve its metrics registry over HTTP",
	RunE:  runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().StringVar(&serveMetricsConfigPath, "config", "", "YAML fixture/config file (required)")
	serveMetricsCmd.Flags().StringVar(&serveMetricsSchedulePath, "schedule", "", "schedule file, one '<tx>;<statement>' per line (required)")
	serveMetricsCmd.Flags().StringVar(&serveMetricsLevel, "level", "", "isolation level, overrides the config file's")
	serveMetricsCmd.Flags().StringVar(&serveMetricsAddr, "addr", ":9090", "listen address for the /metrics endpoint")
	serveMetricsCmd.MarkFlagRequired("config")
	serveMetricsCmd.MarkFlagRequired("schedule")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := dbconfig.Load(serveMetricsConfigPath)
	if err != nil {
		return err
	}
	levelName := cfg.Isolation
	if serveMetricsLevel != "" {
		levelName = serveMetricsLevel
	}
	level, err := tm.ParseIsolationLevel(levelName)
	if err != nil {
		return err
	}

	metrics := dbmetrics.New()
	mgr := tm.NewTransactionManager(metrics)
	for _, spec := range cfg.Fixture.Tables {
		attrs, err := spec.ToAttributes()
		if err != nil {
			return err
		}
		if _, err := mgr.AddTable(spec.Name, attrs, spec.Multiversion || level.UsesMVCC()); err != nil {
			return err
		}
	}

	lines, err := readLines(serveMetricsSchedulePath)
	if err != nil {
		return err
	}
	stmts, err := tm.ParseSchedule(lines)
	if err != nil {
		return err
	}
	if _, _, err := tm.ExecuteSchedule(mgr, stmts, level); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))

	dblog.Info("serving metrics on %s/metrics", serveMetricsAddr)
	fmt.Printf("serving metrics on %s/metrics\n", serveMetricsAddr)
	return http.ListenAndServe(serveMetricsAddr, mux)
}
