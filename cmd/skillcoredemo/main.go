// Command skillcoredemo is a minimal, manual-exercise wrapper around the
// Registry's four operations. It is not a supported CLI or RPC surface —
// transport is explicitly out of scope — just a way to drive the core by
// hand while developing against it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	skillcore "github.com/flexigpt/skillcore-go"
	"github.com/flexigpt/skillcore-go/internal/config"
	"github.com/flexigpt/skillcore-go/spec"
)

func main() {
	op := flag.String("op", "", "operation: sync | reindex | route | submit | feedback")
	query := flag.String("query", "", "route: free-text query")
	keywords := flag.String("keywords", "", "route: comma-separated keywords")
	k := flag.Int("k", 5, "route: result count")
	skill := flag.String("skill", "", "submit: candidate skill name under QUARANTINE_ROOT")
	candidateID := flag.String("candidate", "", "feedback: candidate tool id (skill.tool)")
	signal := flag.Int("signal", 0, "feedback: -1, 0, or 1")
	flag.Parse()

	if *op == "" {
		fmt.Fprintln(os.Stderr, "usage: skillcoredemo -op=sync|reindex|route|submit|feedback [flags]")
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fatal(err)
	}

	reg, err := skillcore.Open(cfg, skillcore.WithLogger(slog.Default()))
	if err != nil {
		fatal(err)
	}
	defer reg.Close()

	ctx := context.Background()

	switch *op {
	case "sync":
		result, err := reg.Sync(ctx, nil)
		if err != nil {
			fatal(err)
		}
		printJSON(result)

	case "reindex":
		result, err := reg.Reindex(ctx)
		if err != nil {
			fatal(err)
		}
		printJSON(result)

	case "route":
		if strings.TrimSpace(*query) == "" {
			fatal(fmt.Errorf("-query is required"))
		}
		var kws []string
		if *keywords != "" {
			kws = strings.Split(*keywords, ",")
		}
		candidates, err := reg.Route(ctx, spec.Query{Text: *query, Keywords: kws, K: *k})
		if err != nil {
			fatal(err)
		}
		printJSON(candidates)

	case "submit":
		if strings.TrimSpace(*skill) == "" {
			fatal(fmt.Errorf("-skill is required"))
		}
		report, err := reg.SubmitCandidate(ctx, *skill)
		if err != nil {
			fatal(err)
		}
		printJSON(report)

	case "feedback":
		if strings.TrimSpace(*query) == "" || strings.TrimSpace(*candidateID) == "" {
			fatal(fmt.Errorf("-query and -candidate are required"))
		}
		reg.RecordFeedback(spec.Query{Text: *query}, *candidateID, spec.FeedbackSignal(*signal))
		fmt.Println("ok")

	default:
		fatal(fmt.Errorf("unknown op %q", *op))
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
