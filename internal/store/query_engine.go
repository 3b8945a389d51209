package store

import (
	"context"
	"fmt"

	"github.com/kittclouds/notesynth/pkg/query"
)

// SimilarityIndex ranks notes by content similarity.
type SimilarityIndex interface {
	Similar(id string, k int) ([]string, error)
}

// QueryEngine executes query text against a Storer. SIMILAR clauses are
// answered by the similarity index when one is configured.
type QueryEngine struct {
	store Storer
	index SimilarityIndex
}

// NewQueryEngine creates a query engine. index may be nil.
func NewQueryEngine(store Storer, index SimilarityIndex) *QueryEngine {
	return &QueryEngine{store: store, index: index}
}

// Query parses and runs text.
func (e *QueryEngine) Query(ctx context.Context, text string) ([]query.Result, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	if q.Similar == "" {
		ids, err = e.store.Select(q)
		if err != nil {
			return nil, err
		}
	} else {
		ids, err = e.similar(q)
		if err != nil {
			return nil, err
		}
	}

	results := make([]query.Result, len(ids))
	for i, id := range ids {
		results[i] = query.Result{Path: id}
	}
	return results, nil
}

// similar intersects the nearest neighbours of the SIMILAR note with the
// source clause. Similarity order is kept unless the query sorts.
func (e *QueryEngine) similar(q *query.Query) ([]string, error) {
	if e.index == nil {
		return nil, fmt.Errorf("SIMILAR requires a similarity index")
	}
	anchor, err := e.store.ResolveLink(q.Similar, "")
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Similar)
	}

	total, err := e.store.CountNotes()
	if err != nil {
		return nil, err
	}
	ranked, err := e.index.Similar(anchor.ID, total)
	if err != nil {
		return nil, err
	}

	// Source filter (and sort, when asked for) without the limit
	filter := &query.Query{Source: q.Source, Sort: q.Sort}
	allowed, err := e.store.Select(filter)
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int, len(ranked))
	for i, id := range ranked {
		if id != anchor.ID {
			rank[id] = i
		}
	}

	var ids []string
	if q.Sort != nil {
		for _, id := range allowed {
			if _, ok := rank[id]; ok {
				ids = append(ids, id)
			}
		}
	} else {
		ok := make(map[string]struct{}, len(allowed))
		for _, id := range allowed {
			ok[id] = struct{}{}
		}
		for _, id := range ranked {
			if _, in := ok[id]; in && id != anchor.ID {
				ids = append(ids, id)
			}
		}
	}

	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}
	return ids, nil
}

var _ query.Engine = (*QueryEngine)(nil)
