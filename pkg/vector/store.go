// Package vector keeps an HNSW index of note embeddings for SIMILAR queries.
package vector

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/fogfish/hnsw"
	"github.com/fogfish/hnsw/vector" // fogfish/hnsw/vector alias, imports kshard/vector
	"github.com/hack-pad/hackpadfs"
	kvector "github.com/kshard/vector" // Underlying vector types
)

// DefaultDimension is the embedding size used when none is configured.
const DefaultDimension = 256

// entry is what the sidecar file keeps per note.
type entry struct {
	Path string
	Vec  []float32
}

// snapshot is the sidecar file layout.
type snapshot struct {
	Dim     int
	Next    uint32
	Entries map[uint32]entry
}

// Index maps note paths to embeddings and answers nearest-neighbour
// lookups. The HNSW graph is persisted at Path, the path table next to it.
type Index struct {
	FS   hackpadfs.FS
	Path string

	mu      sync.RWMutex
	dim     int
	graph   *hnsw.HNSW[vector.VF32]
	keys    map[string]uint32
	entries map[uint32]entry
	next    uint32
}

// NewIndex opens the index stored at path, or starts an empty one when
// nothing is stored there or the stored dimension differs from dim.
func NewIndex(fs hackpadfs.FS, path string, dim int) (*Index, error) {
	if dim <= 0 {
		dim = DefaultDimension
	}
	idx := &Index{FS: fs, Path: path, dim: dim}
	idx.reset()

	if err := idx.Load(); err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
		return nil, err
	}
	return idx, nil
}

func newGraph() *hnsw.HNSW[vector.VF32] {
	return hnsw.New[vector.VF32](vector.SurfaceVF32(kvector.Cosine()))
}

func (idx *Index) reset() {
	idx.graph = newGraph()
	idx.keys = make(map[string]uint32)
	idx.entries = make(map[uint32]entry)
	idx.next = 1
}

// Reset drops every entry.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.reset()
}

// Dimension returns the embedding size.
func (idx *Index) Dimension() int {
	return idx.dim
}

// Size returns the number of indexed notes.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.keys)
}

// Add embeds text and records it under path, replacing an earlier entry.
func (idx *Index) Add(path, text string) error {
	return idx.AddVector(path, Embed(text, idx.dim))
}

// AddVector records a precomputed embedding under path.
// Returns error if vector dimension doesn't match the index.
func (idx *Index) AddVector(path string, vec []float32) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", idx.dim, len(vec))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	// HNSW has no delete; a superseded node stays in the graph but no
	// longer maps to a path.
	if old, ok := idx.keys[path]; ok {
		delete(idx.entries, old)
	}
	key := idx.next
	idx.next++
	idx.keys[path] = key
	idx.entries[key] = entry{Path: path, Vec: vec}

	if !isZero(vec) {
		idx.graph.Insert(vector.VF32{Key: key, Vec: vec})
	}
	return nil
}

// Similar returns up to k indexed notes closest to the note at path, nearest
// first. The note itself is not included. A note that is not indexed, or has
// no words to compare, has no neighbours.
func (idx *Index) Similar(path string, k int) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	key, ok := idx.keys[path]
	if !ok || k <= 0 {
		return nil, nil
	}
	vec := idx.entries[key].Vec
	if isZero(vec) {
		return nil, nil
	}
	return idx.searchLocked(vec, k, key), nil
}

// Search returns up to k indexed notes closest to vec.
func (idx *Index) Search(vec []float32, k int) ([]string, error) {
	if len(vec) != idx.dim {
		return nil, fmt.Errorf("vector dimension mismatch: expected %d, got %d", idx.dim, len(vec))
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if k <= 0 || isZero(vec) {
		return nil, nil
	}
	return idx.searchLocked(vec, k, 0), nil
}

func (idx *Index) searchLocked(vec []float32, k int, skip uint32) []string {
	if idx.graph.Size() == 0 {
		return nil
	}

	// Stale nodes and the query note can crowd the top k, so ask for more.
	want := k + 1 + (int(idx.next) - 1 - len(idx.entries))
	ef := want * 2
	if ef < 100 {
		ef = 100
	}

	results := idx.graph.Search(vector.VF32{Vec: vec}, want, ef)
	out := make([]string, 0, k)
	for _, r := range results {
		if r.Key == skip {
			continue
		}
		e, ok := idx.entries[r.Key]
		if !ok {
			continue
		}
		out = append(out, e.Path)
		if len(out) == k {
			break
		}
	}
	return out
}

// Paths returns the indexed note paths, sorted.
func (idx *Index) Paths() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.keys))
	for p := range idx.keys {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (idx *Index) sidecar() string {
	return idx.Path + ".notes"
}

// Save persists the graph and the path table to FS.
func (idx *Index) Save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var nodes bytes.Buffer
	if err := gob.NewEncoder(&nodes).Encode(idx.graph.Nodes()); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}

	var table bytes.Buffer
	snap := snapshot{Dim: idx.dim, Next: idx.next, Entries: idx.entries}
	if err := gob.NewEncoder(&table).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode index paths: %w", err)
	}

	if dir := path.Dir(idx.Path); dir != "." {
		if err := hackpadfs.MkdirAll(idx.FS, dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	if err := hackpadfs.WriteFullFile(idx.FS, idx.Path, nodes.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := hackpadfs.WriteFullFile(idx.FS, idx.sidecar(), table.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write index paths: %w", err)
	}
	return nil
}

// Load reads the index from FS. A stored index of another dimension is
// ignored and leaves the index empty.
func (idx *Index) Load() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	raw, err := hackpadfs.ReadFile(idx.FS, idx.sidecar())
	if err != nil {
		return err
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index paths: %w", err)
	}
	if snap.Dim != idx.dim {
		idx.reset()
		return nil
	}

	content, err := hackpadfs.ReadFile(idx.FS, idx.Path)
	if err != nil {
		return err
	}
	var nodes hnsw.Nodes[vector.VF32]
	if err := gob.NewDecoder(bytes.NewReader(content)).Decode(&nodes); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	// Rehydrate
	graph := newGraph()
	if hasVectors(snap.Entries) {
		graph = hnsw.FromNodes[vector.VF32](vector.SurfaceVF32(kvector.Cosine()), nodes)
	}

	idx.graph = graph
	idx.next = snap.Next
	idx.entries = snap.Entries
	if idx.entries == nil {
		idx.entries = make(map[uint32]entry)
	}
	idx.keys = make(map[string]uint32, len(idx.entries))
	for key, e := range idx.entries {
		idx.keys[e.Path] = key
	}
	return nil
}

func hasVectors(entries map[uint32]entry) bool {
	for _, e := range entries {
		if !isZero(e.Vec) {
			return true
		}
	}
	return false
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
