package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// indexCmd syncs the vault into the store
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Sync the vault into the note store and similarity index",
	Long: `Walks the vault and mirrors it into the note store. Changed notes get a
new version, deleted notes are removed, links and tags are re-resolved and the
similarity index is rebuilt.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.stats
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), stats)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %d, updated %d, unchanged %d, removed %d\n",
		stats.Added, stats.Updated, stats.Unchanged, stats.Removed)
	fmt.Fprintf(cmd.OutOrStdout(), "links %d (%d unresolved), %d notes in the similarity index\n",
		stats.Links, stats.Unresolved, a.index.Size())
	return nil
}
