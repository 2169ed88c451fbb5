package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbconfig"
	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/tm"
)

var (
	runConfigPath   string
	runSchedulePath string
	runLevel        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "create the configured tables and execute a schedule against them",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "YAML fixture/config file (required)")
	runCmd.Flags().StringVar(&runSchedulePath, "schedule", "", "schedule file, one '<tx>;<statement>' per line (required)")
	runCmd.Flags().StringVar(&runLevel, "level", "", "isolation level, overrides the config file's")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("schedule")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := dbconfig.Load(runConfigPath)
	if err != nil {
		return err
	}
	levelName := cfg.Isolation
	if runLevel != "" {
		levelName = runLevel
	}
	level, err := tm.ParseIsolationLevel(levelName)
	if err != nil {
		return err
	}

	mgr := tm.NewTransactionManager(dbmetrics.New())
	for _, spec := range cfg.Fixture.Tables {
		attrs, err := spec.ToAttributes()
		if err != nil {
			return err
		}
		if _, err := mgr.AddTable(spec.Name, attrs, spec.Multiversion || level.UsesMVCC()); err != nil {
			return err
		}
	}

	lines, err := readLines(runSchedulePath)
	if err != nil {
		return err
	}
	stmts, err := tm.ParseSchedule(lines)
	if err != nil {
		return err
	}

	trace, statuses, err := tm.ExecuteSchedule(mgr, stmts, level)
	if err != nil {
		return err
	}

	fmt.Println("executed statements:")
	for _, e := range trace {
		fmt.Printf("  [%d] %s => %s\n", e.Index, e.TxID, e.Raw)
	}
	fmt.Println("\ntransaction status:")
	for tx, status := range statuses {
		fmt.Printf("  %s => %s\n", tx, status)
	}

	fmt.Println("\nfinal table state:")
	for _, spec := range cfg.Fixture.Tables {
		tbl, err := mgr.Table(spec.Name)
		if err != nil {
			return err
		}
		tbl.FormatTable(os.Stdout, 0)
		fmt.Println()
	}
	return nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines, nil
}
