package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hack-pad/hackpadfs"

	"github.com/kittclouds/notesynth/internal/config"
	"github.com/kittclouds/notesynth/internal/logger"
	"github.com/kittclouds/notesynth/internal/store"
	"github.com/kittclouds/notesynth/internal/vault"
	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/retrieve"
	"github.com/kittclouds/notesynth/pkg/vector"
)

// app is everything a command needs, opened from the config.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	fs        hackpadfs.FS
	store     store.Storer
	index     *vector.Index
	view      *store.VaultView
	engine    *store.QueryEngine
	retriever *retrieve.Retriever

	stats vault.Stats // of the sync done on open
}

func openApp(ctx context.Context, cfg *config.Config, log *logger.Logger, sync bool) (*app, error) {
	fsys, err := vault.OpenDir(cfg.Vault.Dir)
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	index, err := vector.NewIndex(fsys, cfg.IndexPath(), cfg.Index.Dimension)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open similarity index: %w", err)
	}

	a := &app{cfg: cfg, log: log, fs: fsys, store: st, index: index}
	if sync || strings.EqualFold(cfg.Store.Driver, "memory") {
		a.stats, err = vault.NewIndexer(fsys, st, index, log).Sync(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to sync vault: %w", err)
		}
	}

	a.view = store.NewVaultView(st)
	a.engine = store.NewQueryEngine(st, index)
	a.retriever = retrieve.New(a.engine, a.view,
		extract.NewDelegator(a.view, extract.WithLogger(log)),
		retrieve.WithConcurrency(cfg.Synthesis.Concurrency),
		retrieve.WithDefaultQueries(cfg.Synthesis.DefaultQueries),
		retrieve.WithLogger(log),
	)
	return a, nil
}

// openStore opens the configured store. A relative sqlite file is placed
// inside the vault.
func openStore(cfg *config.Config, log *logger.Logger) (store.Storer, error) {
	if strings.EqualFold(cfg.Store.Driver, "memory") {
		return store.NewMemStore(), nil
	}
	dsn := cfg.Store.DSN
	if file, ok := strings.CutPrefix(dsn, "file:"); ok {
		name, params, _ := strings.Cut(file, "?")
		if name != "" && !strings.HasPrefix(name, ":") && !filepath.IsAbs(name) {
			name = filepath.Join(cfg.Vault.Dir, name)
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
			dsn = "file:" + filepath.ToSlash(name)
			if params != "" {
				dsn += "?" + params
			}
		}
	}
	st, err := store.NewSQLiteStoreWithDSN(dsn)
	if err != nil {
		return nil, err
	}
	if v, err := st.VecVersion(); err == nil {
		log.Debug("opened sqlite store", "dsn", dsn, "vec", v)
	}
	return st, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// readNote reads a vault file by its slash separated path.
func (a *app) readNote(name string) (string, error) {
	data, err := hackpadfs.ReadFile(a.fs, cleanVaultPath(name))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return string(data), nil
}

func (a *app) writeNote(name, text string) error {
	if err := hackpadfs.WriteFullFile(a.fs, cleanVaultPath(name), []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func cleanVaultPath(name string) string {
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
