// Package graph provides the note link graph: which note links to or embeds
// which other note. The in-memory store keeps one of these for backlink and
// outgoing-link queries.
package graph

import "sort"

// LinkEdge is the set of references from one note to another.
type LinkEdge struct {
	Links  int `json:"links"`  // [[Target]] occurrences
	Embeds int `json:"embeds"` // ![[Target]] occurrences
}

// LinkGraph is a directed graph of notes keyed by vault path.
type LinkGraph struct {
	Nodes map[string]struct{} `json:"nodes"`

	// Adjacency lists: SourceID -> TargetID -> Edge
	Outbound map[string]map[string]*LinkEdge `json:"outbound"`
	Inbound  map[string]map[string]*LinkEdge `json:"inbound"`
}

// NewGraph creates an empty graph
func NewGraph() *LinkGraph {
	return &LinkGraph{
		Nodes:    make(map[string]struct{}),
		Outbound: make(map[string]map[string]*LinkEdge),
		Inbound:  make(map[string]map[string]*LinkEdge),
	}
}

// EnsureNode adds a node if it doesn't exist
func (g *LinkGraph) EnsureNode(id string) {
	g.Nodes[id] = struct{}{}
}

// AddLink records one reference from source to target.
func (g *LinkGraph) AddLink(sourceID, targetID string, embed bool) {
	g.EnsureNode(sourceID)
	g.EnsureNode(targetID)

	if g.Outbound[sourceID] == nil {
		g.Outbound[sourceID] = make(map[string]*LinkEdge)
	}
	edge := g.Outbound[sourceID][targetID]
	if edge == nil {
		edge = &LinkEdge{}
		g.Outbound[sourceID][targetID] = edge
	}
	if embed {
		edge.Embeds++
	} else {
		edge.Links++
	}

	// Reverse index shares the edge
	if g.Inbound[targetID] == nil {
		g.Inbound[targetID] = make(map[string]*LinkEdge)
	}
	g.Inbound[targetID][sourceID] = edge
}

// ClearOutgoing drops every edge leaving sourceID. Called before a note's
// links are re-recorded after an edit.
func (g *LinkGraph) ClearOutgoing(sourceID string) {
	for targetID := range g.Outbound[sourceID] {
		delete(g.Inbound[targetID], sourceID)
		if len(g.Inbound[targetID]) == 0 {
			delete(g.Inbound, targetID)
		}
	}
	delete(g.Outbound, sourceID)
}

// RemoveNode drops a node and all edges touching it.
func (g *LinkGraph) RemoveNode(id string) {
	g.ClearOutgoing(id)
	for sourceID := range g.Inbound[id] {
		delete(g.Outbound[sourceID], id)
	}
	delete(g.Inbound, id)
	delete(g.Nodes, id)
}

// Outgoing returns the notes id links to, sorted.
func (g *LinkGraph) Outgoing(id string) []string {
	return sortedKeys(g.Outbound[id])
}

// Backlinks returns the notes linking to id, sorted.
func (g *LinkGraph) Backlinks(id string) []string {
	return sortedKeys(g.Inbound[id])
}

// Edge returns the edge between two notes, or nil.
func (g *LinkGraph) Edge(sourceID, targetID string) *LinkEdge {
	return g.Outbound[sourceID][targetID]
}

func sortedKeys(m map[string]*LinkEdge) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
