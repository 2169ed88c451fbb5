package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbconfig"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

var (
	planConfigPath string
	planQuery      string
	planDOT        bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "parse, rewrite, and compile a query plan, printing the result",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planConfigPath, "config", "", "YAML fixture file providing leaf relation schemas (required)")
	planCmd.Flags().StringVar(&planQuery, "query", "", "a plan expression, e.g. selection(a==2, cartesian(leaf:R, leaf:S)) (required)")
	planCmd.Flags().BoolVar(&planDOT, "dot", false, "emit Graphviz DOT of the rewritten plan instead of compiling it")
	planCmd.MarkFlagRequired("config")
	planCmd.MarkFlagRequired("query")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := dbconfig.Load(planConfigPath)
	if err != nil {
		return err
	}
	relations := make(map[string]*ra.Relation, len(cfg.Fixture.Tables))
	for _, spec := range cfg.Fixture.Tables {
		attrs, err := spec.ToAttributes()
		if err != nil {
			return err
		}
		relations[spec.Name] = ra.NewRelation(spec.Name, ra.NewSchema(attrs...))
	}

	op, err := parsePlan(planQuery, relations)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	rewritten := ra.Rewrite(op)

	if planDOT {
		fmt.Println(ra.RenderDOT(rewritten))
		return nil
	}

	physical, err := ra.Compile(rewritten)
	if err != nil {
		return err
	}
	fmt.Println(physical)
	return nil
}

// parsePlan recognizes a small recursive grammar for composing operators
// over the fixture's leaf relations, since SQL parsing is explicitly out
// of scope (§1 non-goals) -- this is a debugging/demo front-end only.
func parsePlan(src string, relations map[string]*ra.Relation) (ra.Operator, error) {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "leaf:") {
		name := strings.TrimSpace(strings.TrimPrefix(src, "leaf:"))
		rel, ok := relations[name]
		if !ok {
			return nil, fmt.Errorf("no such leaf relation %q", name)
		}
		return ra.NewLeaf(rel), nil
	}

	open := strings.Index(src, "(")
	if open < 0 || !strings.HasSuffix(src, ")") {
		return nil, fmt.Errorf("malformed plan expression %q", src)
	}
	kind := strings.TrimSpace(src[:open])
	args := splitTopLevel(src[open+1 : len(src)-1])

	switch kind {
	case "selection":
		if len(args) != 2 {
			return nil, fmt.Errorf("selection takes 2 arguments, got %d", len(args))
		}
		child, err := parsePlan(args[1], relations)
		if err != nil {
			return nil, err
		}
		return ra.NewSelection(child, strings.TrimSpace(args[0])), nil

	case "projection":
		if len(args) != 2 {
			return nil, fmt.Errorf("projection takes 2 arguments, got %d", len(args))
		}
		child, err := parsePlan(args[1], relations)
		if err != nil {
			return nil, err
		}
		attrs := splitList(args[0])
		return ra.NewProjection(child, attrs), nil

	case "cartesian":
		if len(args) != 2 {
			return nil, fmt.Errorf("cartesian takes 2 arguments, got %d", len(args))
		}
		left, err := parsePlan(args[0], relations)
		if err != nil {
			return nil, err
		}
		right, err := parsePlan(args[1], relations)
		if err != nil {
			return nil, err
		}
		return ra.NewCartesianProduct(left, right), nil

	case "thetajoin":
		if len(args) != 3 {
			return nil, fmt.Errorf("thetajoin takes 3 arguments, got %d", len(args))
		}
		left, err := parsePlan(args[1], relations)
		if err != nil {
			return nil, err
		}
		right, err := parsePlan(args[2], relations)
		if err != nil {
			return nil, err
		}
		return ra.NewThetaJoin(left, right, strings.TrimSpace(args[0])), nil

	case "rename_relation":
		if len(args) != 2 {
			return nil, fmt.Errorf("rename_relation takes 2 arguments, got %d", len(args))
		}
		child, err := parsePlan(args[1], relations)
		if err != nil {
			return nil, err
		}
		return ra.NewRenameRelation(child, strings.TrimSpace(args[0]))

	case "union", "intersection", "difference":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s takes 2 arguments, got %d", kind, len(args))
		}
		left, err := parsePlan(args[0], relations)
		if err != nil {
			return nil, err
		}
		right, err := parsePlan(args[1], relations)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "union":
			return ra.NewUnion(left, right), nil
		case "intersection":
			return ra.NewIntersection(left, right), nil
		default:
			return ra.NewDifference(left, right), nil
		}

	default:
		return nil, fmt.Errorf("unknown operator %q", kind)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTopLevel splits s on commas that are not nested inside parens.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
