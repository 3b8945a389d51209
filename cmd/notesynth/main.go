// notesynth synthesizes material from a markdown vault into conversation
// documents.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kittclouds/notesynth/internal/config"
	"github.com/kittclouds/notesynth/internal/logger"
)

var (
	configPath string
	vaultDir   string
	storeKind  string
	verbose    bool
	noSync     bool
	jsonOut    bool
	timeout    time.Duration

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "notesynth",
	Short: "Synthesize notes from a markdown vault",
	Long: `notesynth reads a markdown vault into a note store, retrieves note
excerpts with a small query language and asks a language model to weave them
together. Answers are written into the document as callouts, so the
conversation lives in the note itself.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if vaultDir != "" {
			cfg.Vault.Dir = vaultDir
		}
		if storeKind != "" {
			cfg.Store.Driver = storeKind
		}
		mode := cfg.Log.Mode
		if verbose {
			mode = "dev"
		}
		log, err = logger.New(mode)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "notesynth.yaml", "Config file")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "Vault directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "Store driver: sqlite or memory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noSync, "no-sync", false, "Skip syncing the vault into the store first")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(turnsCmd)
	rootCmd.AddCommand(chooseCmd)
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(relatedCmd)
}

// commandContext bounds a command by --timeout and interrupts.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
