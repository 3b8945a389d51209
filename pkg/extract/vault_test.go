package extract

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/kittclouds/notesynth/pkg/markdown"
)

// memVault is a map-backed Vault for tests.
type memVault struct {
	notes     map[string]string
	backlinks map[string][]string // overrides computed backlinks
	mtime     time.Time
}

func newMemVault(notes map[string]string) *memVault {
	return &memVault{
		notes: notes,
		mtime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (v *memVault) file(p string) File {
	ext := path.Ext(p)
	return File{
		Path:      p,
		Basename:  strings.TrimSuffix(path.Base(p), ext),
		Extension: strings.TrimPrefix(ext, "."),
		ModTime:   v.mtime,
	}
}

func (v *memVault) Read(_ context.Context, f File) (string, error) {
	c, ok := v.notes[f.Path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, f.Path)
	}
	return c, nil
}

func (v *memVault) Resolve(_ context.Context, link, _ string) (File, error) {
	if _, ok := v.notes[link]; ok {
		return v.file(link), nil
	}
	if _, ok := v.notes[link+".md"]; ok {
		return v.file(link + ".md"), nil
	}
	var paths []string
	for p := range v.notes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if strings.EqualFold(v.file(p).Basename, link) {
			return v.file(p), nil
		}
	}
	return File{}, fmt.Errorf("%w: %s", ErrNotFound, link)
}

func (v *memVault) Metadata(_ context.Context, f File) (*markdown.Metadata, error) {
	c, ok := v.notes[f.Path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, f.Path)
	}
	return markdown.Parse(c), nil
}

func (v *memVault) Backlinks(ctx context.Context, f File) ([]string, error) {
	if v.backlinks != nil {
		return v.backlinks[f.Path], nil
	}
	seen := map[string]struct{}{}
	for p, c := range v.notes {
		meta := markdown.Parse(c)
		for _, ref := range append(meta.Links, meta.Embeds...) {
			target, _ := markdown.ParseLinktext(ref.Link)
			if resolved, err := v.Resolve(ctx, target, p); err == nil && resolved.Path == f.Path {
				seen[p] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
