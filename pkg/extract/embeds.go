package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kittclouds/notesynth/internal/logger"
	"github.com/kittclouds/notesynth/pkg/markdown"
)

// EmbedResolver inlines ![[Note#^block]] embeds.
type EmbedResolver struct {
	Vault Vault
	Log   *logger.Logger
}

// Shift maps an offset in the original text to the same position in the
// text after embeds were replaced. Offsets inside a replaced embed map to
// the start of its replacement.
type Shift func(offset int) int

// splice records one replacement, in original-text offsets.
type splice struct {
	start, end int
	driftAfter int
}

// embedFold is the accumulator threaded through the embeds in ascending
// offset order. drift is the total length change of the replacements
// applied so far.
type embedFold struct {
	text    string
	drift   int
	splices []splice
}

func (f embedFold) apply(start, end int, content string) embedFold {
	from, to := start+f.drift, end+f.drift
	f.text = f.text[:from] + content + f.text[to:]
	f.drift += len(content) - (end - start)
	f.splices = append(f.splices, splice{start: start, end: end, driftAfter: f.drift})
	return f
}

func (f embedFold) shift() Shift {
	splices := f.splices
	return func(offset int) int {
		drift := 0
		for _, s := range splices {
			switch {
			case offset >= s.end:
				drift = s.driftAfter
			case offset > s.start:
				return s.start + drift
			default:
				return offset + drift
			}
		}
		return offset + drift
	}
}

// ReplaceEmbeds replaces each embed recorded in meta with the content it
// points to. Embed offsets refer to text as given. A failure resolving one
// embed is logged and that embed becomes empty.
func (r *EmbedResolver) ReplaceEmbeds(ctx context.Context, file File, text string, meta *markdown.Metadata) (string, Shift) {
	fold := embedFold{text: text}
	if meta == nil || len(meta.Embeds) == 0 {
		return text, fold.shift()
	}

	embeds := make([]markdown.Reference, len(meta.Embeds))
	copy(embeds, meta.Embeds)
	sort.SliceStable(embeds, func(i, j int) bool {
		return embeds[i].Position.Start < embeds[j].Position.Start
	})

	prevEnd := 0
	for _, e := range embeds {
		start, end := e.Position.Start, e.Position.End
		if start < prevEnd || start > end || end > len(text) {
			r.log().Warn("skipping embed with invalid offsets",
				"path", file.Path, "link", e.Link, "start", start, "end", end)
			continue
		}
		if e.Original != "" && text[start:end] != e.Original {
			r.log().Warn("skipping stale embed", "path", file.Path, "link", e.Link)
			continue
		}

		content, err := r.embedContent(ctx, file, e)
		if err != nil {
			r.log().Warn("failed to get embed", "path", file.Path, "link", e.Link, "error", err)
			content = ""
		}
		fold = fold.apply(start, end, content)
		prevEnd = end
	}

	return fold.text, fold.shift()
}

func (r *EmbedResolver) embedContent(ctx context.Context, file File, e markdown.Reference) (string, error) {
	path, subpath := markdown.ParseLinktext(e.Link)
	if path == "" {
		path = file.Path
	}
	target, err := r.Vault.Resolve(ctx, path, file.Path)
	if err != nil {
		return "", err
	}
	if !target.IsMarkdown() {
		return "", nil
	}
	if !strings.HasPrefix(subpath, "#^") {
		return "", nil
	}

	blockID := subpath[2:]
	meta, err := r.Vault.Metadata(ctx, target)
	if err != nil {
		return "", err
	}
	block, ok := meta.Blocks[blockID]
	if !ok {
		return "", fmt.Errorf("block ^%s not found in %s", blockID, target.Path)
	}

	content, err := r.Vault.Read(ctx, target)
	if err != nil {
		return "", err
	}
	if block.Position.End > len(content) || block.Position.Start > block.Position.End {
		return "", fmt.Errorf("block ^%s of %s is out of range", blockID, target.Path)
	}
	return block.Position.Slice(content), nil
}

func (r *EmbedResolver) log() *logger.Logger {
	if r.Log == nil {
		return logger.Nop()
	}
	return r.Log
}
