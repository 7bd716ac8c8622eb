package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"catchup-feed/internal/app"
	"catchup-feed/internal/domain/entity"
)

var (
	rescoreArticleID int64
	rescoreDryRun    bool
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute quality and threat-hunting scores for stored articles",
	Long: `rescore recomputes quality and threat-hunting scores from an
article's already-cleaned content. With --article-id, only that article is
rescored; otherwise every stored article is. --dry-run prints the
recomputed scores without persisting them.`,
	Run: func(cmd *cobra.Command, args []string) {
		runRescore(rescoreArticleID, rescoreDryRun)
	},
}

func init() {
	rescoreCmd.Flags().Int64Var(&rescoreArticleID, "article-id", 0, "rescore a single article by ID")
	rescoreCmd.Flags().BoolVar(&rescoreDryRun, "dry-run", false, "recompute without persisting")
	// --force is accepted for spec-surface parity with collect; rescore has
	// no conditional-fetch state to bypass, so it's a no-op here.
	rescoreCmd.Flags().Bool("force", false, "accepted for CLI surface parity; has no effect on rescore")
}

func runRescore(articleID int64, dryRun bool) {
	var (
		deps *app.Deps
		err  error
	)
	if dryRun {
		deps, err = app.BuildDryRun(app.Holder())
	} else {
		deps, err = app.Build(app.Holder())
	}
	if err != nil {
		fail("build dependencies: %v", err)
		return
	}
	defer deps.Close()

	ctx := context.Background()

	var articles []*entity.Article
	if articleID != 0 {
		a, err := deps.Articles.Get(ctx, articleID)
		if err != nil {
			fail("lookup article %d: %v", articleID, err)
			return
		}
		if a == nil {
			failConfig("unknown article id %d", articleID)
			return
		}
		articles = []*entity.Article{a}
	} else {
		sources, err := deps.Sourcing.List(ctx)
		if err != nil {
			fail("list sources: %v", err)
			return
		}
		for _, src := range sources {
			batch, err := deps.Articles.ListBySource(ctx, src.ID, 100000)
			if err != nil {
				fail("list articles for source %d: %v", src.ID, err)
				return
			}
			articles = append(articles, batch...)
		}
	}

	var failures int
	for _, a := range articles {
		rescored, err := deps.Processor.Rescore(ctx, a)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "article %d: %v\n", a.ID, err)
			continue
		}
		fmt.Printf("article %d: quality=%.3f threat=%d\n", rescored.ID, rescored.QualityScore, rescored.ThreatHuntingScore)
	}

	switch {
	case failures == 0:
		exitWith(ExitSuccess)
	case failures == len(articles):
		exitWith(ExitFailure)
	default:
		exitWith(ExitPartial)
	}
}
