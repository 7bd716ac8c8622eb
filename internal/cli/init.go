package cli

import (
	"github.com/spf13/cobra"
)

var initConfigPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Load the source catalog and provision the database schema",
	Long: `init loads the source catalog from --config, synchronizes it into the
database (creating or updating sources, deactivating any missing from the
document), and runs the idempotent schema migrations. It never removes a
source outright; use "sync-sources --remove" for that.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSync(initConfigPath, false)
	},
}

func init() {
	initCmd.Flags().StringVar(&initConfigPath, "config", "", "path to the source catalog YAML document")
	_ = initCmd.MarkFlagRequired("config")
}
