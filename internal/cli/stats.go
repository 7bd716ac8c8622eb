package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"catchup-feed/internal/app"
)

var statsJSON bool

// recentChecksSample bounds how many SourceCheck rows feed the dedup-rate
// estimate per source; it's a sample, not the full history.
const recentChecksSample = 20

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-source article counts, dedup rates, and last-check outcomes",
	Run: func(cmd *cobra.Command, args []string) {
		runStats(statsJSON)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit machine-readable JSON instead of a table")
}

type sourceStats struct {
	Identifier   string  `json:"identifier"`
	Health       string  `json:"health"`
	ArticleCount int64   `json:"article_count"`
	DedupRate    float64 `json:"dedup_rate"`
	LastOutcome  string  `json:"last_outcome"`
}

func runStats(asJSON bool) {
	deps, err := app.Build(app.Holder())
	if err != nil {
		fail("build dependencies: %v", err)
		return
	}
	defer deps.Close()

	ctx := context.Background()
	sources, err := deps.Sourcing.List(ctx)
	if err != nil {
		fail("list sources: %v", err)
		return
	}

	rows := make([]sourceStats, 0, len(sources))
	for _, src := range sources {
		count, err := deps.Articles.CountBySource(ctx, src.ID)
		if err != nil {
			fail("count articles for source %d: %v", src.ID, err)
			return
		}

		state, err := deps.SourceStates.Get(ctx, src.ID)
		if err != nil {
			fail("get state for source %d: %v", src.ID, err)
			return
		}
		health := "unknown"
		if state != nil {
			health = string(state.Health)
		}

		checks, err := deps.Checks.ListRecent(ctx, src.ID, recentChecksSample)
		if err != nil {
			fail("list checks for source %d: %v", src.ID, err)
			return
		}
		var seen, new_ int
		lastOutcome := "none"
		for i, c := range checks {
			seen += c.ArticlesSeen
			new_ += c.ArticlesNew
			if i == 0 {
				if c.ErrorKind != "" {
					lastOutcome = c.ErrorKind
				} else {
					lastOutcome = "ok"
				}
			}
		}
		dedupRate := 0.0
		if seen > 0 {
			dedupRate = 1 - float64(new_)/float64(seen)
		}

		rows = append(rows, sourceStats{
			Identifier:   src.Identifier,
			Health:       health,
			ArticleCount: count,
			DedupRate:    dedupRate,
			LastOutcome:  lastOutcome,
		})
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fail("encode stats: %v", err)
			return
		}
	} else {
		fmt.Printf("%-30s %-14s %10s %10s %s\n", "IDENTIFIER", "HEALTH", "ARTICLES", "DEDUP%", "LAST_CHECK")
		for _, r := range rows {
			fmt.Printf("%-30s %-14s %10d %9.1f%% %s\n", r.Identifier, r.Health, r.ArticleCount, r.DedupRate*100, r.LastOutcome)
		}
	}

	exitWith(ExitSuccess)
}
