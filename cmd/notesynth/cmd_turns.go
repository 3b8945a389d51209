package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/document"
	"github.com/kittclouds/notesynth/pkg/extract"
)

var (
	turnsLine  int
	turnsCh    int
	chooseItem int
)

// turnsCmd prints the conversation a document holds
var turnsCmd = &cobra.Command{
	Use:   "turns [file]",
	Short: "Print the conversation reconstructed from a document",
	Long: `Reads a vault document and prints its turns: every request block as a
user turn with its synthesis plan, every answer callout as an assistant turn.
With --line the conversation is cut at that cursor position.`,
	Args: cobra.ExactArgs(1),
	RunE: runTurns,
}

// chooseCmd switches the strategy of a request block
var chooseCmd = &cobra.Command{
	Use:   "choose [file] [strategy]",
	Short: "Rewrite the choice line of a request block",
	Args:  cobra.ExactArgs(2),
	RunE:  runChoose,
}

func init() {
	turnsCmd.Flags().IntVar(&turnsLine, "line", -1, "Cursor line (zero-based); -1 reads the whole document")
	turnsCmd.Flags().IntVar(&turnsCh, "ch", 0, "Cursor character on the line")
	chooseCmd.Flags().IntVar(&chooseItem, "block", -1, "Request block index; negative counts from the end")
}

func runTurns(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.readNote(args[0])
	if err != nil {
		return err
	}
	rec := conversation.NewReconstructor(conversation.WithAggregators(a.retriever.Aggregators(ctx)))
	var turns []conversation.Turn
	if turnsLine < 0 {
		turns = rec.Turns(text)
	} else {
		turns = rec.Reconstruct(text, conversation.Cursor{Line: turnsLine, Ch: turnsCh})
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), turns)
	}
	out := cmd.OutOrStdout()
	for _, t := range turns {
		fmt.Fprintf(out, "[%s]", t.Role)
		for _, m := range t.Metadata {
			fmt.Fprintf(out, " %s:%s", m.Type, m.ID)
		}
		fmt.Fprintf(out, "\n%s\n\n", strings.TrimSpace(t.Content))
	}
	return nil
}

func runChoose(cmd *cobra.Command, args []string) error {
	strategy, ok := extract.ParseStrategy(args[1])
	if !ok {
		return fmt.Errorf("unknown strategy %q", args[1])
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.readNote(args[0])
	if err != nil {
		return err
	}
	block, err := pickBlock(document.RequestBlocks(text), chooseItem)
	if err != nil {
		return err
	}
	buf := document.NewBuffer(text)
	if !document.SetBlockChoice(buf, block, strategy.String()) {
		return fmt.Errorf("request block at line %d has no choice", block.Start+1)
	}
	return a.writeNote(args[0], buf.String())
}

// pickBlock selects a request block by index; negative indexes count from
// the end.
func pickBlock(blocks []document.RequestBlock, i int) (document.RequestBlock, error) {
	if i < 0 {
		i += len(blocks)
	}
	if i < 0 || i >= len(blocks) {
		return document.RequestBlock{}, fmt.Errorf("no request block %d (document has %d)", i, len(blocks))
	}
	return blocks[i], nil
}
