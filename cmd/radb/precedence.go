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
	precedenceConfigPath   string
	precedenceSchedulePath string
	precedenceLevel        string
	precedenceDOT          bool
)

var precedenceCmd = &cobra.Command{
	Use:   "precedence",
	Short: "execute a schedule and print its precedence graph",
	RunE:  runPrecedence,
}

func init() {
	precedenceCmd.Flags().StringVar(&precedenceConfigPath, "config", "", "YAML fixture/config file (required)")
	precedenceCmd.Flags().StringVar(&precedenceSchedulePath, "schedule", "", "schedule file, one '<tx>;<statement>' per line (required)")
	precedenceCmd.Flags().StringVar(&precedenceLevel, "level", "", "isolation level, overrides the config file's")
	precedenceCmd.Flags().BoolVar(&precedenceDOT, "dot", false, "emit Graphviz DOT instead of an edge list")
	precedenceCmd.MarkFlagRequired("config")
	precedenceCmd.MarkFlagRequired("schedule")
}

func runPrecedence(cmd *cobra.Command, args []string) error {
	cfg, err := dbconfig.Load(precedenceConfigPath)
	if err != nil {
		return err
	}
	levelName := cfg.Isolation
	if precedenceLevel != "" {
		levelName = precedenceLevel
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

	lines, err := readLines(precedenceSchedulePath)
	if err != nil {
		return err
	}
	stmts, err := tm.ParseSchedule(lines)
	if err != nil {
		return err
	}

	trace, _, err := tm.ExecuteSchedule(mgr, stmts, level)
	if err != nil {
		return err
	}

	graph := tm.BuildPrecedenceGraph(trace, stmts)

	if precedenceDOT {
		fmt.Println(tm.RenderPrecedenceGraphDOT(graph))
		return nil
	}

	for _, tx := range graph.Transactions() {
		succs := graph.Successors(tx)
		if len(succs) == 0 {
			continue
		}
		fmt.Fprintf(os.Stdout, "%s ->", tx)
		for _, s := range succs {
			fmt.Fprintf(os.Stdout, " %s", s)
		}
		fmt.Println()
	}
	return nil
}
