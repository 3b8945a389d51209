package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kittclouds/notesynth/internal/synth"
	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/document"
)

var (
	synthBlock int
	synthPrint bool
)

// synthesizeCmd answers a request block in place
var synthesizeCmd = &cobra.Command{
	Use:   "synthesize [file]",
	Short: "Answer a request block of a document",
	Long: "Retrieves the sources named by a request block, asks the model for a\n" +
		"synthesis and writes it below the block as a callout, followed by an\n" +
		"empty request block for the next turn.\n\n" +
		"A request block looks like:\n\n" +
		"  ```reason\n" +
		"  sources:\n" +
		"    - query: 'FROM \"journal\" SORT file.mtime DESC LIMIT 7'\n" +
		"      strategy: LongContent\n" +
		"  guidance: What went well this week?\n" +
		"  ```",
	Args: cobra.ExactArgs(1),
	RunE: runSynthesize,
}

func init() {
	synthesizeCmd.Flags().IntVar(&synthBlock, "block", -1, "Request block index; negative counts from the end")
	synthesizeCmd.Flags().BoolVar(&synthPrint, "print", false, "Print the updated document instead of writing it back")
}

func newLLM() (synth.LLMClient, error) {
	switch cfg.Model.Provider {
	case "", "openai", "openai_compatible":
		return synth.NewOpenAIClient(synth.OpenAIOptions{
			BaseURL:     cfg.Model.BaseURL,
			APIKey:      cfg.Model.APIKey,
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			Timeout:     cfg.GetModelTimeout(),
			MaxRetries:  2,
		})
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Model.Provider)
	}
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	llm, err := newLLM()
	if err != nil {
		return err
	}

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
	block, err := pickBlock(document.RequestBlocks(text), synthBlock)
	if err != nil {
		return err
	}

	rec := conversation.NewReconstructor(conversation.WithAggregators(a.retriever.Aggregators(ctx)))
	agent := synth.NewAgent(a.retriever, llm,
		synth.WithReconstructor(rec),
		synth.WithLogger(log),
		synth.WithMaxSourceTokens(cfg.Synthesis.MaxSourceTokens),
	)

	buf := document.NewBuffer(text)
	notify := func(msg string) { fmt.Fprintln(cmd.ErrOrStderr(), msg) }
	key := args[0] + ":" + strconv.Itoa(block.End)
	res, err := agent.Trigger(ctx, key, buf, block.End, notify)
	if errors.Is(err, synth.ErrBusy) {
		return nil
	}
	if err != nil {
		return err
	}

	if synthPrint {
		fmt.Fprint(cmd.OutOrStdout(), buf.String())
		return nil
	}
	if err := a.writeNote(args[0], buf.String()); err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synthesis %s written from %d excerpts\n", res.ID, len(res.Sources))
	return nil
}
