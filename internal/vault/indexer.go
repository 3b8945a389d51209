// Package vault syncs a markdown vault on a hackpadfs.FS into the note
// store: note contents and versions, resolved links, tags and the
// similarity index.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hack-pad/hackpadfs"

	"github.com/kittclouds/notesynth/internal/logger"
	"github.com/kittclouds/notesynth/internal/store"
	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/markdown"
	"github.com/kittclouds/notesynth/pkg/vector"
)

// Stats summarizes one sync.
type Stats struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
	Removed    int `json:"removed"`
	Links      int `json:"links"`
	Unresolved int `json:"unresolved"`
}

// Indexer walks a vault and mirrors it into a Storer.
type Indexer struct {
	fs    hackpadfs.FS
	store store.Storer
	index *vector.Index
	log   *logger.Logger
}

// NewIndexer creates an indexer. index and log may be nil.
func NewIndexer(fsys hackpadfs.FS, st store.Storer, index *vector.Index, log *logger.Logger) *Indexer {
	if log == nil {
		log = logger.Nop()
	}
	return &Indexer{fs: fsys, store: st, index: index, log: log}
}

// file is one vault entry found by the walk.
type file struct {
	id    string
	mtime int64
}

// Sync brings the store in line with the vault. A note gets a new version
// only when its content changed; notes gone from the vault are deleted.
// Links are resolved after every note is in place, so a link may point at a
// note that sorts later in the walk.
func (ix *Indexer) Sync(ctx context.Context) (Stats, error) {
	var stats Stats

	files, err := ix.walk(ctx, ".")
	if err != nil {
		return stats, fmt.Errorf("failed to walk vault: %w", err)
	}

	seen := make(map[string]struct{}, len(files))
	var notes []*store.Note
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		seen[f.id] = struct{}{}

		n, err := ix.syncFile(f, &stats)
		if err != nil {
			return stats, err
		}
		notes = append(notes, n)
	}

	existing, err := ix.store.ListNotes("")
	if err != nil {
		return stats, fmt.Errorf("failed to list notes: %w", err)
	}
	for _, n := range existing {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		if err := ix.store.DeleteNote(n.ID); err != nil {
			return stats, err
		}
		stats.Removed++
		ix.log.Debug("note removed", "path", n.ID)
	}

	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := ix.linkNote(n, &stats); err != nil {
			return stats, err
		}
	}

	if ix.index != nil {
		if err := ix.rebuildIndex(notes); err != nil {
			return stats, err
		}
	}

	ix.log.Info("vault synced",
		"added", stats.Added, "updated", stats.Updated, "unchanged", stats.Unchanged,
		"removed", stats.Removed, "links", stats.Links, "unresolved", stats.Unresolved)
	return stats, nil
}

func (ix *Indexer) walk(ctx context.Context, dir string) ([]file, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := hackpadfs.ReadDir(ix.fs, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []file
	for _, e := range entries {
		// .obsidian, .git and our own .notesynth state
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p := e.Name()
		if dir != "." {
			p = path.Join(dir, e.Name())
		}
		if e.IsDir() {
			sub, err := ix.walk(ctx, p)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, file{id: p, mtime: info.ModTime().UnixMilli()})
	}
	return files, nil
}

func (ix *Indexer) syncFile(f file, stats *Stats) (*store.Note, error) {
	n := store.NewNote(f.id, "", f.mtime)
	if n.IsMarkdown() {
		raw, err := hackpadfs.ReadFile(ix.fs, f.id)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.id, err)
		}
		n.Content = string(raw)
		meta, err := json.Marshal(markdown.Parse(n.Content))
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata of %s: %w", f.id, err)
		}
		n.Metadata = string(meta)
	}

	cur, err := ix.store.GetNote(f.id)
	if err != nil {
		return nil, err
	}
	switch {
	case cur == nil:
		if err := ix.store.UpsertNote(n); err != nil {
			return nil, err
		}
		stats.Added++
	case cur.Content != n.Content:
		if err := ix.store.UpdateNote(n, "sync"); err != nil {
			return nil, err
		}
		stats.Updated++
		ix.log.Debug("note updated", "path", f.id, "version", n.Version)
	default:
		stats.Unchanged++
		return cur, nil
	}
	return n, nil
}

func (ix *Indexer) linkNote(n *store.Note, stats *Stats) error {
	if !n.IsMarkdown() {
		return nil
	}
	meta, err := n.ParsedMetadata()
	if err != nil {
		return fmt.Errorf("failed to decode metadata of %s: %w", n.ID, err)
	}

	links := store.LinksFromMetadata(n.ID, meta)
	for _, l := range links {
		target, err := ix.store.ResolveLink(l.Target, n.ID)
		if err != nil {
			return err
		}
		if target == nil {
			stats.Unresolved++
			continue
		}
		l.TargetID = target.ID
	}
	stats.Links += len(links)

	if err := ix.store.ReplaceLinks(n.ID, links); err != nil {
		return fmt.Errorf("failed to record links of %s: %w", n.ID, err)
	}
	if err := ix.store.ReplaceTags(n.ID, meta.Tags); err != nil {
		return fmt.Errorf("failed to record tags of %s: %w", n.ID, err)
	}
	return nil
}

func (ix *Indexer) rebuildIndex(notes []*store.Note) error {
	ix.index.Reset()
	for _, n := range notes {
		if !n.IsMarkdown() {
			continue
		}
		if err := ix.index.Add(n.ID, extract.CleanContents(n.Content)); err != nil {
			return fmt.Errorf("failed to index %s: %w", n.ID, err)
		}
	}
	if err := ix.index.Save(); err != nil {
		return err
	}
	ix.log.Debug("similarity index rebuilt", "notes", ix.index.Size())
	return nil
}
