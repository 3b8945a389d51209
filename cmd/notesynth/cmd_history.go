package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kittclouds/notesynth/internal/store"
)

var (
	historyVersion int
	historyAt      string
)

// historyCmd shows the stored versions of a note
var historyCmd = &cobra.Command{
	Use:   "history [file]",
	Short: "List the stored versions of a note",
	Long: `Lists every version the note store kept of a vault note, newest first.
With --version the text of that version is printed; with --at the text of
the version current at that time (RFC 3339 or YYYY-MM-DD).

History survives between runs with the sqlite store only.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

// restoreCmd brings an old version back
var restoreCmd = &cobra.Command{
	Use:   "restore [file] [version]",
	Short: "Restore an old version of a note into the vault",
	Long: `Records the text of an old version as the newest version of the note
and writes it back to the vault file.`,
	Args: cobra.ExactArgs(2),
	RunE: runRestore,
}

func init() {
	historyCmd.Flags().IntVar(&historyVersion, "version", 0, "Print the text of this version")
	historyCmd.Flags().StringVar(&historyAt, "at", "", "Print the text current at this time")
}

func parseAt(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD", s)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	id := cleanVaultPath(args[0])
	out := cmd.OutOrStdout()

	if historyVersion > 0 || historyAt != "" {
		var n *store.Note
		if historyVersion > 0 {
			n, err = a.store.GetNoteVersion(id, historyVersion)
		} else {
			var at int64
			if at, err = parseAt(historyAt); err != nil {
				return err
			}
			n, err = a.store.GetNoteAtTime(id, at)
		}
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("%w: no such version of %s", store.ErrNotFound, id)
		}
		if jsonOut {
			return printJSON(out, n)
		}
		fmt.Fprint(out, n.Content)
		return nil
	}

	versions, err := a.store.ListNoteVersions(id)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if jsonOut {
		return printJSON(out, versions)
	}
	for _, v := range versions {
		mark := ""
		if v.IsCurrent {
			mark = " (current)"
		}
		reason := v.ChangeReason
		if reason == "" {
			reason = "created"
		}
		fmt.Fprintf(out, "v%d  %s  %s%s\n", v.Version,
			time.UnixMilli(v.ValidFrom).UTC().Format(time.RFC3339), reason, mark)
	}
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[1])
	if err != nil || version <= 0 {
		return fmt.Errorf("invalid version %q", args[1])
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, log, !noSync)
	if err != nil {
		return err
	}
	defer a.Close()

	id := cleanVaultPath(args[0])
	if err := a.store.RestoreNoteVersion(id, version); err != nil {
		return fmt.Errorf("failed to restore %s v%d: %w", id, version, err)
	}
	n, err := a.store.GetNote(id)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err := a.writeNote(id, n.Content); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %s v%d as v%d\n", id, version, n.Version)
	return nil
}
