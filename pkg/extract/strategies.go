package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kittclouds/notesynth/pkg/markdown"
)

// DefaultTrimSections is how many trailing sections LongContent keeps.
const DefaultTrimSections = 5

// helpers shared by the strategies
type toolkit struct {
	vault  Vault
	embeds *EmbedResolver
	marker MarkerFunc
}

func (t *toolkit) readResolved(ctx context.Context, file File, meta *markdown.Metadata) (string, Shift, error) {
	raw, err := t.vault.Read(ctx, file)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s: %w", file.Path, err)
	}
	text, shift := t.embeds.ReplaceEmbeds(ctx, file, raw, meta)
	return text, shift, nil
}

func (t *toolkit) contents(file File, text string) FileContents {
	subs, out := SubstituteBlockReferences(file.Basename, text, t.marker)
	return newFileContents(file, out, subs)
}

func newFileContents(file File, contents string, subs []BlockRefSubstitution) FileContents {
	if subs == nil {
		subs = []BlockRefSubstitution{}
	}
	return FileContents{
		File:          file.Basename,
		Path:          file.Path,
		LastModified:  file.ModTime,
		Contents:      contents,
		Substitutions: subs,
	}
}

// WholeFile extracts the entire note.
type WholeFile struct{ *toolkit }

func (w WholeFile) Extract(ctx context.Context, file File, meta *markdown.Metadata, _ Strategy, _ string) ([]FileContents, error) {
	text, _, err := w.readResolved(ctx, file, meta)
	if err != nil {
		return nil, err
	}
	return []FileContents{w.contents(file, CleanContents(text))}, nil
}

// TrimToEnd keeps the last Sections sections of a note. Suited to long
// append-only notes such as reading highlights.
type TrimToEnd struct {
	*toolkit
	Sections int
}

func (t TrimToEnd) Extract(ctx context.Context, file File, meta *markdown.Metadata, _ Strategy, _ string) ([]FileContents, error) {
	text, shift, err := t.readResolved(ctx, file, meta)
	if err != nil {
		return nil, err
	}

	keep := t.Sections
	if keep <= 0 {
		keep = DefaultTrimSections
	}

	boundary := 0
	if meta != nil && len(meta.Sections) > 0 {
		idx := len(meta.Sections) - keep
		if idx < 0 {
			idx = 0
		}
		boundary = shift(meta.Sections[idx].Position.Start)
	}
	if boundary > len(text) {
		boundary = len(text)
	}

	return []FileContents{t.contents(file, CleanContents(text[boundary:]))}, nil
}

// SingleBacklinker extracts the paragraphs of a note that mention the
// evergreen note.
type SingleBacklinker struct{ *toolkit }

func (s SingleBacklinker) Extract(ctx context.Context, file File, meta *markdown.Metadata, _ Strategy, evergreen string) ([]FileContents, error) {
	text, _, err := s.readResolved(ctx, file, meta)
	if err != nil {
		return nil, err
	}
	text = CleanContents(text)

	var parts []string
	subs := []BlockRefSubstitution{}
	for _, window := range ReferenceWindows(text, []string{evergreen}) {
		// Substitute each window on its own, but keep markers distinct
		// across the windows of this note.
		windowSubs, out := SubstituteBlockReferences(file.Basename, window, s.distinctFrom(subs))
		parts = append(parts, out)
		subs = append(subs, windowSubs...)
	}

	return []FileContents{newFileContents(file, strings.Join(parts, "\n\n"), subs)}, nil
}

// distinctFrom wraps the marker generator so it skips markers already handed
// out for earlier windows.
func (s SingleBacklinker) distinctFrom(subs []BlockRefSubstitution) MarkerFunc {
	next := s.marker
	if next == nil {
		next = RandomMarker
	}
	if len(subs) == 0 {
		return next
	}
	taken := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		taken[sub.Template] = struct{}{}
	}
	return func() string {
		m := next()
		for i := 0; i < 64; i++ {
			if _, ok := taken[m]; !ok {
				return m
			}
			m = next()
		}
		v := 0
		if isMarker(m) {
			n, _ := strconv.ParseUint(m[1:5], 16, 16)
			v = int(n)
		}
		for i := 0; i <= 0xffff; i++ {
			c := fmt.Sprintf("%%%04x%%", (v+i)&0xffff)
			if _, ok := taken[c]; !ok {
				return c
			}
		}
		return m
	}
}

// AllBacklinkers treats the file as the evergreen note and extracts the
// mention windows of every note that links to it, by re-entering the
// dispatcher with SingleEvergreenReferrer.
type AllBacklinkers struct {
	*toolkit
	Dispatcher Extractor
}

func (a AllBacklinkers) Extract(ctx context.Context, file File, _ *markdown.Metadata, _ Strategy, _ string) ([]FileContents, error) {
	referrers, err := a.vault.Backlinks(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlinks of %s: %w", file.Path, err)
	}

	var out []FileContents
	for _, p := range referrers {
		if p == file.Path {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ref, err := a.vault.Resolve(ctx, p, "")
		if err != nil {
			return nil, fmt.Errorf("referrer %s of %s: %w", p, file.Path, err)
		}
		meta, err := a.vault.Metadata(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to get metadata of %s: %w", ref.Path, err)
		}
		contents, err := a.Dispatcher.Extract(ctx, ref, meta, SingleEvergreenReferrer, file.Basename)
		if err != nil {
			return nil, err
		}
		out = append(out, contents...)
	}
	return out, nil
}
