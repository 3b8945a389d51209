package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/retrieve"
)

var (
	extractStrategy  string
	extractEvergreen string
)

// sourcesCmd lists the notes a query selects
var sourcesCmd = &cobra.Command{
	Use:   "sources [query]",
	Short: "List the notes a query selects",
	Long: `Runs a query and prints the matching note paths, deduplicated in
result order.

Examples:
  notesynth sources 'FROM "journal" AND #daily SORT file.mtime DESC LIMIT 5'
  notesynth sources 'SIMILAR [[Stoicism]] LIMIT 3'`,
	Args: cobra.ExactArgs(1),
	RunE: runSources,
}

// extractCmd prints the material a query and strategy produce
var extractCmd = &cobra.Command{
	Use:   "extract [query]",
	Short: "Print the excerpts a query and strategy extract",
	Long: `Runs a query and extracts every matching note with a strategy, printing
the excerpts with their %markers% and the block references they stand for.
An empty query runs the strategy's default query.

Strategies: Basic, LongContent, SingleEvergreenReferrer,
AllEvergreenReferrers, RecentMentions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractStrategy, "strategy", "s", "Basic", "Extraction strategy")
	extractCmd.Flags().StringVarP(&extractEvergreen, "evergreen", "e", "", "Evergreen note for the referrer strategies")
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.retriever.GetSourceInfo(ctx, args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), infos)
	}
	for _, info := range infos {
		fmt.Fprintln(cmd.OutOrStdout(), info.Path)
	}
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	strategy, ok := extract.ParseStrategy(extractStrategy)
	if !ok {
		return fmt.Errorf("unknown strategy %q", extractStrategy)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	p := retrieve.Params{Strategy: strategy, Evergreen: extractEvergreen}
	if len(args) == 1 {
		p.Query = args[0]
	}
	material, err := a.retriever.Retrieve(ctx, p)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), material)
	}

	out := cmd.OutOrStdout()
	for _, fc := range material {
		fmt.Fprintf(out, "== %s (%s)\n%s\n", fc.File, fc.Path, strings.TrimSpace(fc.Contents))
		for _, s := range fc.Substitutions {
			fmt.Fprintf(out, "   %s = %s\n", s.Template, s.BlockReference)
		}
		fmt.Fprintln(out)
	}
	return nil
}
