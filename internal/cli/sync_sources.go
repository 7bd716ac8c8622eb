package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"catchup-feed/internal/app"
	"catchup-feed/internal/usecase/source"
)

var (
	syncConfigPath string
	syncRemove     bool
)

var syncSourcesCmd = &cobra.Command{
	Use:   "sync-sources",
	Short: "Diff the source catalog file against the database and apply changes",
	Run: func(cmd *cobra.Command, args []string) {
		runSync(syncConfigPath, syncRemove)
	},
}

func init() {
	syncSourcesCmd.Flags().StringVar(&syncConfigPath, "config", "", "path to the source catalog YAML document")
	syncSourcesCmd.Flags().BoolVar(&syncRemove, "remove", false, "delete sources absent from the catalog instead of deactivating them")
	_ = syncSourcesCmd.MarkFlagRequired("config")
}

func runSync(configPath string, remove bool) {
	doc, err := source.LoadCatalog(configPath)
	if err != nil {
		failConfig("%v", err)
		return
	}

	deps, err := app.Build(app.Holder())
	if err != nil {
		fail("build dependencies: %v", err)
		return
	}
	defer deps.Close()

	diff, err := deps.Sourcing.Sync(context.Background(), doc, remove)
	if err != nil {
		failConfig("%v", err)
		return
	}

	fmt.Printf("added: %d, updated: %d, deactivated: %d, removed: %d\n",
		len(diff.Added), len(diff.Updated), len(diff.Deactivated), len(diff.Removed))
	exitWith(ExitSuccess)
}
