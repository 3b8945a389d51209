// This file contains the in-memory implementation of Storer.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kittclouds/notesynth/pkg/graph"
	"github.com/kittclouds/notesynth/pkg/query"
)

// MemStore is an in-memory implementation of Storer. Links are kept in a
// graph.LinkGraph for backlink and outgoing lookups.
type MemStore struct {
	mu       sync.RWMutex
	versions map[string][]*Note // ascending by version
	links    map[string][]*Link
	tags     map[string][]string
	graph    *graph.LinkGraph
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		versions: make(map[string][]*Note),
		links:    make(map[string][]*Link),
		tags:     make(map[string][]string),
		graph:    graph.NewGraph(),
	}
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

// =============================================================================
// Note CRUD
// =============================================================================

func (s *MemStore) current(id string) *Note {
	vs := s.versions[id]
	if len(vs) == 0 || !vs[len(vs)-1].IsCurrent {
		return nil
	}
	return vs[len(vs)-1]
}

func (s *MemStore) CreateNote(note *Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createLocked(note)
	return nil
}

func (s *MemStore) createLocked(note *Note) {
	if note.Version == 0 {
		note.Version = 1
	}
	if note.ValidFrom == 0 {
		note.ValidFrom = note.CreatedAt
	}
	note.IsCurrent = true

	// Deep copy to avoid mutation issues
	copy := *note
	s.versions[note.ID] = append(s.versions[note.ID], &copy)
	s.graph.EnsureNode(note.ID)
}

func (s *MemStore) UpdateNote(note *Note, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current(note.ID)
	if cur == nil {
		s.createLocked(note)
		return nil
	}

	validTo := note.UpdatedAt
	cur.ValidTo = &validTo
	cur.IsCurrent = false

	note.Version = cur.Version + 1
	note.CreatedAt = cur.CreatedAt
	note.ValidFrom = note.UpdatedAt
	note.ValidTo = nil
	note.IsCurrent = true
	note.ChangeReason = reason

	copy := *note
	s.versions[note.ID] = append(s.versions[note.ID], &copy)
	return nil
}

func (s *MemStore) UpsertNote(note *Note) error {
	s.mu.RLock()
	exists := s.current(note.ID) != nil
	s.mu.RUnlock()

	if !exists {
		return s.CreateNote(note)
	}
	return s.UpdateNote(note, "upsert")
}

func (s *MemStore) GetNote(id string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if note := s.current(id); note != nil {
		copy := *note
		return &copy, nil
	}
	return nil, nil
}

func (s *MemStore) GetNoteVersion(id string, version int) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.versions[id] {
		if n.Version == version {
			copy := *n
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListNoteVersions(id string) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[id]
	out := make([]*Note, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		copy := *vs[i]
		out = append(out, &copy)
	}
	return out, nil
}

func (s *MemStore) GetNoteAtTime(id string, timestamp int64) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs := s.versions[id]
	for i := len(vs) - 1; i >= 0; i-- {
		n := vs[i]
		if n.ValidFrom <= timestamp && (n.ValidTo == nil || *n.ValidTo > timestamp) {
			copy := *n
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *MemStore) RestoreNoteVersion(id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[id]
	var old *Note
	for _, n := range vs {
		if n.Version == version {
			old = n
		}
	}
	if old == nil {
		return ErrNotFound
	}

	now := time.Now().UnixMilli()
	if cur := s.current(id); cur != nil {
		cur.ValidTo = &now
		cur.IsCurrent = false
	}

	restored := *old
	restored.Version = vs[len(vs)-1].Version + 1
	restored.UpdatedAt = now
	restored.ValidFrom = now
	restored.ValidTo = nil
	restored.IsCurrent = true
	restored.ChangeReason = "restore"
	s.versions[id] = append(vs, &restored)
	return nil
}

func (s *MemStore) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.versions, id)
	delete(s.links, id)
	delete(s.tags, id)
	s.graph.RemoveNode(id)
	for _, links := range s.links {
		for _, l := range links {
			if l.TargetID == id {
				l.TargetID = ""
			}
		}
	}
	return nil
}

func (s *MemStore) currentNotes() []*Note {
	out := make([]*Note, 0, len(s.versions))
	for id := range s.versions {
		if n := s.current(id); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *MemStore) ListNotes(folder string) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Note
	for _, note := range s.currentNotes() {
		if inFolder(note.Folder, folder) {
			copy := *note
			result = append(result, &copy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemStore) CountNotes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.currentNotes()), nil
}

// =============================================================================
// Links and tags
// =============================================================================

func (s *MemStore) ReplaceLinks(sourceID string, links []*Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.graph.ClearOutgoing(sourceID)
	s.graph.EnsureNode(sourceID)

	copies := make([]*Link, 0, len(links))
	for _, l := range links {
		copy := *l
		copy.SourceID = sourceID
		copies = append(copies, &copy)
		if copy.TargetID != "" {
			s.graph.AddLink(sourceID, copy.TargetID, copy.Kind == LinkKindEmbed)
		}
	}
	sort.SliceStable(copies, func(i, j int) bool { return copies[i].Start < copies[j].Start })
	s.links[sourceID] = copies
	return nil
}

func (s *MemStore) ListLinks(sourceID string) ([]*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Link, 0, len(s.links[sourceID]))
	for _, l := range s.links[sourceID] {
		copy := *l
		out = append(out, &copy)
	}
	return out, nil
}

func (s *MemStore) Backlinks(targetID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Backlinks(targetID), nil
}

func (s *MemStore) Outgoing(sourceID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Outgoing(sourceID), nil
}

func (s *MemStore) ReplaceTags(noteID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[noteID] = normalizeTags(tags)
	return nil
}

func (s *MemStore) ListTags(noteID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tags[noteID]...), nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Resolution and queries
// =============================================================================

func (s *MemStore) ResolveLink(link, fromID string) (*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if best := bestLinkMatch(link, fromID, s.currentNotes()); best != nil {
		copy := *best
		return &copy, nil
	}
	return nil, nil
}

// memSubject evaluates query predicates against one note.
type memSubject struct {
	s        *MemStore
	note     *Note
	resolved map[string]string // link path -> note id, shared per Select
}

func (m memSubject) resolve(link string) string {
	if id, ok := m.resolved[link]; ok {
		return id
	}
	id := ""
	if best := bestLinkMatch(link, "", m.s.currentNotes()); best != nil {
		id = best.ID
	}
	m.resolved[link] = id
	return id
}

func (m memSubject) InFolder(folder string) bool {
	return inFolder(m.note.Folder, folder)
}

func (m memSubject) HasTag(tag string) bool {
	for _, t := range m.s.tags[m.note.ID] {
		if tagMatches(t, tag) {
			return true
		}
	}
	return false
}

func (m memSubject) LinksTo(target string) bool {
	id := m.resolve(target)
	return id != "" && m.s.graph.Edge(m.note.ID, id) != nil
}

func (m memSubject) LinkedFrom(source string) bool {
	id := m.resolve(source)
	return id != "" && m.s.graph.Edge(id, m.note.ID) != nil
}

func (s *MemStore) Select(q *query.Query) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resolved := make(map[string]string)
	var matched []*Note
	for _, n := range s.currentNotes() {
		if query.Eval(q.Source, memSubject{s: s, note: n, resolved: resolved}) {
			matched = append(matched, n)
		}
	}

	less := func(i, j int) bool { return matched[i].ID < matched[j].ID }
	if q.Sort != nil {
		switch q.Sort.Field {
		case query.FieldMTime:
			less = func(i, j int) bool {
				a, b := matched[i], matched[j]
				if a.MTime != b.MTime {
					return (a.MTime < b.MTime) != q.Sort.Desc
				}
				return a.ID < b.ID
			}
		case query.FieldName:
			less = func(i, j int) bool {
				a, b := strings.ToLower(matched[i].Title), strings.ToLower(matched[j].Title)
				if a != b {
					return (a < b) != q.Sort.Desc
				}
				return matched[i].ID < matched[j].ID
			}
		case query.FieldPath:
			less = func(i, j int) bool { return (matched[i].ID < matched[j].ID) != q.Sort.Desc }
		}
	}
	sort.Slice(matched, less)

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	ids := make([]string, len(matched))
	for i, n := range matched {
		ids[i] = n.ID
	}
	return ids, nil
}

// Compile-time interface check
var _ Storer = (*MemStore)(nil)
