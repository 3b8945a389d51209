package retrieve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/markdown"
)

// Note roles, read from the role frontmatter field.
const (
	RoleSource     = "source"
	RoleAggregator = "aggregator"
)

// queryBlockRe finds the query a source note embeds.
var queryBlockRe = regexp.MustCompile("(?s)```(?:query|dataview)\r?\n(.*?)\r?\n```")

// NodeContents is what an explicitly addressed note contributes to a
// synthesis.
type NodeContents struct {
	Path           string                 `json:"path"`
	Role           string                 `json:"role,omitempty"`
	Guidance       string                 `json:"guidance,omitempty"`
	SourceMaterial []extract.FileContents `json:"sourceMaterial,omitempty"`
	Contents       string                 `json:"contents,omitempty"`
}

func (r *Retriever) open(ctx context.Context, ref string) (extract.File, string, *markdown.Metadata, error) {
	f, err := r.vault.Resolve(ctx, ref, "")
	if err != nil {
		if errors.Is(err, extract.ErrNotFound) {
			return extract.File{}, "", nil, fmt.Errorf("%w: %s", extract.ErrNotFound, ref)
		}
		return extract.File{}, "", nil, err
	}
	text, err := r.vault.Read(ctx, f)
	if err != nil {
		return extract.File{}, "", nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
	}
	meta, err := r.vault.Metadata(ctx, f)
	if err != nil {
		return extract.File{}, "", nil, fmt.Errorf("failed to get metadata of %s: %w", f.Path, err)
	}
	return f, text, meta, nil
}

// body returns the note text after its frontmatter.
func body(text string) string {
	if _, start, ok := markdown.SplitFrontmatter(text); ok {
		return text[start:]
	}
	return text
}

// LoadNode reads a note named by the user. Unlike query results, a note that
// does not resolve is an error. A source note runs the query block it holds
// with the strategy and evergreen from its frontmatter; an aggregator note
// contributes its body as guidance; any other note contributes its text.
func (r *Retriever) LoadNode(ctx context.Context, ref string) (*NodeContents, error) {
	f, text, meta, err := r.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	node := &NodeContents{Path: f.Path, Role: meta.FrontmatterString("role")}

	switch node.Role {
	case RoleSource:
		m := queryBlockRe.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("source note %s has no query block", f.Path)
		}
		strategy, _ := extract.ParseStrategy(meta.FrontmatterString("strategy"))
		material, err := r.Retrieve(ctx, Params{
			Query:     m[1],
			Strategy:  strategy,
			Evergreen: EvergreenTitle(meta.FrontmatterString("evergreen")),
		})
		if err != nil {
			return nil, fmt.Errorf("source note %s: %w", f.Path, err)
		}
		node.SourceMaterial = material
		node.Guidance = strings.TrimSpace(queryBlockRe.ReplaceAllString(body(text), ""))
	case RoleAggregator:
		node.Guidance = strings.TrimSpace(body(text))
	default:
		node.Contents = text
	}
	return node, nil
}

// LoadAggregator reads an aggregator note: its id and sources come from the
// frontmatter, its guidance from the body. A note without an id uses its
// path.
func (r *Retriever) LoadAggregator(ctx context.Context, ref string) (conversation.Aggregator, error) {
	f, text, meta, err := r.open(ctx, ref)
	if err != nil {
		return conversation.Aggregator{}, err
	}
	agg := conversation.Aggregator{
		ID:       meta.FrontmatterString("id"),
		Sources:  []conversation.Source{},
		Guidance: strings.TrimSpace(body(text)),
	}
	if agg.ID == "" {
		agg.ID = f.Path
	}
	if g := meta.FrontmatterString("guidance"); g != "" && agg.Guidance == "" {
		agg.Guidance = g
	}

	if raw, ok := meta.Frontmatter["sources"]; ok {
		// round-trip through YAML so dql/query aliases decode the same way
		// as in request blocks
		b, err := yaml.Marshal(raw)
		if err != nil {
			return conversation.Aggregator{}, fmt.Errorf("aggregator %s: %w", f.Path, err)
		}
		if err := yaml.Unmarshal(b, &agg.Sources); err != nil {
			return conversation.Aggregator{}, fmt.Errorf("aggregator %s has malformed sources: %w", f.Path, err)
		}
	}
	return agg, nil
}

// Aggregators adapts LoadAggregator to the reconstructor's lookup. Lookups
// that fail are logged and treated as unknown aggregators.
func (r *Retriever) Aggregators(ctx context.Context) conversation.AggregatorLookup {
	return aggregatorLookup{ctx: ctx, r: r}
}

type aggregatorLookup struct {
	ctx context.Context
	r   *Retriever
}

func (a aggregatorLookup) LookupAggregator(name string) (conversation.Aggregator, bool) {
	agg, err := a.r.LoadAggregator(a.ctx, name)
	if err != nil {
		a.r.log.Warn("failed to load aggregator", "name", name, "error", err)
		return conversation.Aggregator{}, false
	}
	return agg, true
}
