// Package retrieve runs source queries against the vault and extracts the
// matching notes with the requested strategy.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/notesynth/internal/logger"
	"github.com/kittclouds/notesynth/pkg/conversation"
	"github.com/kittclouds/notesynth/pkg/extract"
	"github.com/kittclouds/notesynth/pkg/markdown"
	"github.com/kittclouds/notesynth/pkg/query"
)

// DefaultConcurrency bounds how many notes are extracted at once.
const DefaultConcurrency = 8

// ErrNoQuery is returned for a source without a query whose strategy has no
// default query either.
var ErrNoQuery = errors.New("source has no query")

// Params selects source material: the notes a query matches, extracted with
// one strategy.
type Params struct {
	Query     string
	Strategy  extract.Strategy
	Evergreen string
}

// ParamsFromSource converts a request source. Unknown strategy names fall
// back to Basic; an evergreen written as a wikilink is reduced to its path.
func ParamsFromSource(s conversation.Source) Params {
	strategy, _ := extract.ParseStrategy(s.Strategy)
	return Params{Query: s.Query, Strategy: strategy, Evergreen: EvergreenTitle(s.Evergreen)}
}

// EvergreenTitle strips wikilink brackets, alias and subpath from an
// evergreen reference: "[[People/Seneca|Seneca]]" becomes "People/Seneca".
func EvergreenTitle(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "!")
	ref = strings.TrimSuffix(strings.TrimPrefix(ref, "[["), "]]")
	if i := strings.IndexByte(ref, '|'); i >= 0 {
		ref = ref[:i]
	}
	p, _ := markdown.ParseLinktext(ref)
	return p
}

// SourceInfo identifies one note a query matches.
type SourceInfo struct {
	Path string `json:"path"`
}

// Retriever turns source descriptors into extracted note contents.
type Retriever struct {
	engine    query.Engine
	vault     extract.Vault
	extractor extract.Extractor
	limit     int
	defaults  map[extract.Strategy]string
	log       *logger.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithConcurrency bounds concurrent extractions.
func WithConcurrency(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithDefaultQueries sets the query used for sources that name a strategy
// but no query, keyed by strategy name.
func WithDefaultQueries(q map[string]string) Option {
	return func(r *Retriever) {
		for name, text := range q {
			if s, ok := extract.ParseStrategy(name); ok {
				r.defaults[s] = text
			}
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.log = l
		}
	}
}

// New creates a Retriever.
func New(engine query.Engine, vault extract.Vault, extractor extract.Extractor, opts ...Option) *Retriever {
	r := &Retriever{
		engine:    engine,
		vault:     vault,
		extractor: extractor,
		limit:     DefaultConcurrency,
		defaults:  make(map[extract.Strategy]string),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultQuery returns the query configured for strategy, if any.
func (r *Retriever) DefaultQuery(strategy extract.Strategy) (string, bool) {
	q, ok := r.defaults[strategy]
	return q, ok
}

func (r *Retriever) queryText(p Params) (string, error) {
	if strings.TrimSpace(p.Query) != "" {
		return p.Query, nil
	}
	if q, ok := r.defaults[p.Strategy]; ok {
		return q, nil
	}
	return "", fmt.Errorf("%w (strategy %s)", ErrNoQuery, p.Strategy)
}

// paths runs the query and returns the matching paths, first occurrence
// order, each path once.
func (r *Retriever) paths(ctx context.Context, text string) ([]string, error) {
	results, err := r.engine.Query(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to run query %q: %w", text, err)
	}
	seen := make(map[string]struct{}, len(results))
	out := make([]string, 0, len(results))
	for _, res := range results {
		if _, ok := seen[res.Path]; ok {
			continue
		}
		seen[res.Path] = struct{}{}
		out = append(out, res.Path)
	}
	return out, nil
}

// Retrieve runs the query and extracts every matching note. Paths that no
// longer resolve are skipped. Notes are extracted concurrently; the result
// keeps the query's file order.
func (r *Retriever) Retrieve(ctx context.Context, p Params) ([]extract.FileContents, error) {
	text, err := r.queryText(p)
	if err != nil {
		return nil, err
	}
	paths, err := r.paths(ctx, text)
	if err != nil {
		return nil, err
	}

	var files []extract.File
	for _, path := range paths {
		f, err := r.vault.Resolve(ctx, path, "")
		if errors.Is(err, extract.ErrNotFound) {
			r.log.Debug("skipping unresolved source", "path", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	perFile := make([][]extract.FileContents, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, f := range files {
		g.Go(func() error {
			meta, err := r.vault.Metadata(gctx, f)
			if err != nil {
				return fmt.Errorf("failed to get metadata of %s: %w", f.Path, err)
			}
			contents, err := r.extractor.Extract(gctx, f, meta, p.Strategy, p.Evergreen)
			if err != nil {
				return fmt.Errorf("failed to extract %s: %w", f.Path, err)
			}
			perFile[i] = contents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []extract.FileContents
	for _, contents := range perFile {
		out = append(out, contents...)
	}
	r.log.Debug("sources retrieved",
		"query", text, "strategy", p.Strategy.String(), "files", len(files), "contents", len(out))
	return out, nil
}

// RetrieveAll retrieves every source in order and concatenates the results.
func (r *Retriever) RetrieveAll(ctx context.Context, sources []conversation.Source) ([]extract.FileContents, error) {
	var out []extract.FileContents
	for _, s := range sources {
		contents, err := r.Retrieve(ctx, ParamsFromSource(s))
		if err != nil {
			return nil, err
		}
		out = append(out, contents...)
	}
	return out, nil
}

// GetSourceInfo lists the notes a query matches without reading them.
func (r *Retriever) GetSourceInfo(ctx context.Context, text string) ([]SourceInfo, error) {
	paths, err := r.paths(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]SourceInfo, len(paths))
	for i, p := range paths {
		out[i] = SourceInfo{Path: p}
	}
	return out, nil
}
