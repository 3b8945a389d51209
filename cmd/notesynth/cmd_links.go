package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kittclouds/notesynth/internal/store"
	"github.com/kittclouds/notesynth/pkg/vector"
)

var relatedLimit int

// linksCmd prints the link neighbourhood of a note
var linksCmd = &cobra.Command{
	Use:   "links [note]",
	Short: "Show the notes a note links to and the notes linking to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinks,
}

// relatedCmd searches the similarity index with free text
var relatedCmd = &cobra.Command{
	Use:   "related [text]",
	Short: "List the notes closest to a piece of text",
	Long: `Embeds the text the same way notes are indexed and prints the nearest
notes from the similarity index. Handy for finding an evergreen note before
naming it in a request block.`,
	Args: cobra.ExactArgs(1),
	RunE: runRelated,
}

func init() {
	relatedCmd.Flags().IntVarP(&relatedLimit, "limit", "n", 5, "Number of notes")
}

type noteLinks struct {
	Path      string   `json:"path"`
	Outgoing  []string `json:"outgoing"`
	Backlinks []string `json:"backlinks"`
}

func runLinks(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.ResolveLink(args[0], "")
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("%w: %s", store.ErrNotFound, args[0])
	}
	res := noteLinks{Path: n.ID}
	if res.Outgoing, err = a.store.Outgoing(n.ID); err != nil {
		return err
	}
	if res.Backlinks, err = a.store.Backlinks(n.ID); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Path)
	for _, p := range res.Outgoing {
		fmt.Fprintf(out, "  -> %s\n", p)
	}
	for _, p := range res.Backlinks {
		fmt.Fprintf(out, "  <- %s\n", p)
	}
	return nil
}

func runRelated(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	paths, err := a.index.Search(vector.Embed(args[0], a.index.Dimension()), relatedLimit)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), paths)
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
